package flight

import (
	"time"
)

const (
	TagTypeAuto   = "auto"
	TagTypeManual = "manual"
)

// TelemetryPoint is one instant of flight state. Every field except the
// timestamp is optional: nil means the source format or frame did not report
// the value, never zero. Timestamps are flight-relative milliseconds and are
// unique and increasing within one flight.
type TelemetryPoint struct {
	TimestampMS        int64     `json:"timestampMs"`
	Latitude           *float64  `json:"latitude,omitempty"`           // GPS latitude in degrees
	Longitude          *float64  `json:"longitude,omitempty"`          // GPS longitude in degrees
	Altitude           *float64  `json:"altitude,omitempty"`           // Barometric altitude in meters
	Height             *float64  `json:"height,omitempty"`             // Height above takeoff in meters
	VPSHeight          *float64  `json:"vpsHeight,omitempty"`          // Vision positioning height in meters
	VelocityX          *float64  `json:"velocityX,omitempty"`          // North velocity in m/s
	VelocityY          *float64  `json:"velocityY,omitempty"`          // East velocity in m/s
	VelocityZ          *float64  `json:"velocityZ,omitempty"`          // Down velocity in m/s
	Speed              *float64  `json:"speed,omitempty"`              // Ground speed in m/s
	Pitch              *float64  `json:"pitch,omitempty"`              // Pitch angle in degrees
	Roll               *float64  `json:"roll,omitempty"`               // Roll angle in degrees
	Yaw                *float64  `json:"yaw,omitempty"`                // Yaw angle in degrees
	GimbalPitch        *float64  `json:"gimbalPitch,omitempty"`        // Gimbal pitch in degrees
	GimbalRoll         *float64  `json:"gimbalRoll,omitempty"`         // Gimbal roll in degrees
	GimbalYaw          *float64  `json:"gimbalYaw,omitempty"`          // Gimbal yaw in degrees
	BatteryPercent     *float64  `json:"batteryPercent,omitempty"`     // Remaining charge in percent
	BatteryVoltage     *float64  `json:"batteryVoltage,omitempty"`     // Pack voltage in volts
	BatteryCurrent     *float64  `json:"batteryCurrent,omitempty"`     // Pack current in amps
	BatteryTemperature *float64  `json:"batteryTemperature,omitempty"` // Pack temperature in Celsius
	CellVoltages       []float64 `json:"cellVoltages,omitempty"`       // Per-cell voltages in volts
	Satellites         *int      `json:"satellites,omitempty"`         // Visible GPS satellites
	GPSSignalLevel     *int      `json:"gpsSignalLevel,omitempty"`     // GPS signal level, 0..5
	RCUplink           *int      `json:"rcUplink,omitempty"`           // RC uplink signal quality
	RCDownlink         *int      `json:"rcDownlink,omitempty"`         // RC downlink signal quality
	RCAileron          *float64  `json:"rcAileron,omitempty"`          // Stick position, -100..100
	RCElevator         *float64  `json:"rcElevator,omitempty"`         // Stick position, -100..100
	RCThrottle         *float64  `json:"rcThrottle,omitempty"`         // Stick position, -100..100
	RCRudder           *float64  `json:"rcRudder,omitempty"`           // Stick position, -100..100
	IsPhoto            *bool     `json:"isPhoto,omitempty"`            // Photo shutter active
	IsVideo            *bool     `json:"isVideo,omitempty"`            // Video recording active
}

// Metadata is one row per imported flight. Created once at import time;
// mutated only for display name, notes and tags; deleted on explicit user
// action or as a loser in deduplication.
type Metadata struct {
	ID            int64      `json:"id"`
	FileName      string     `json:"fileName"`
	DisplayName   string     `json:"displayName"`
	FileHash      string     `json:"fileHash"`
	DroneModel    string     `json:"droneModel,omitempty"`
	DroneSerial   string     `json:"droneSerial,omitempty"`
	AircraftName  string     `json:"aircraftName,omitempty"`
	BatterySerial string     `json:"batterySerial,omitempty"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	DurationSecs  float64    `json:"durationSecs"`
	TotalDistance float64    `json:"totalDistance"` // Meters over ground
	MaxAltitude   float64    `json:"maxAltitude"`   // Meters
	MaxSpeed      float64    `json:"maxSpeed"`      // Meters per second
	HomeLat       *float64   `json:"homeLat,omitempty"`
	HomeLon       *float64   `json:"homeLon,omitempty"`
	PointCount    int        `json:"pointCount"`
	PhotoCount    int        `json:"photoCount"`
	VideoCount    int        `json:"videoCount"`
	Notes         string     `json:"notes,omitempty"`
}

// Tag is a flight classification label. Auto tags are regenerable from
// flight statistics and are replaced as a whole set; manual tags are
// append and remove only, never touched by regeneration.
type Tag struct {
	FlightID int64  `json:"flightId"`
	Tag      string `json:"tag"`
	Type     string `json:"type"` // TagTypeAuto or TagTypeManual
}

// Message is an in-flight event message decoded from a log.
type Message struct {
	FlightID    int64  `json:"flightId"`
	TimestampMS int64  `json:"timestampMs"`
	Type        string `json:"type"`
	Message     string `json:"message"`
}

// Stats holds aggregates derived from a finalized point sequence.
type Stats struct {
	DurationSecs        float64
	TotalDistance       float64
	MaxAltitude         float64
	MaxSpeed            float64
	AvgSpeed            float64
	HomeLat             *float64
	HomeLon             *float64
	MaxDistanceFromHome float64
	BatteryStart        *float64 // First reported charge percent
	BatteryEnd          *float64 // Last reported charge percent
	BatteryStartTemp    *float64 // First reported pack temperature
	PhotoCount          int
	VideoCount          int
}

// ParseResult is the hand-off between parsing and persistence: everything
// the ingestion pipeline produced for one file.
type ParseResult struct {
	Metadata   Metadata
	Points     []TelemetryPoint
	Tags       []string // Generated auto tags
	ManualTags []string // Preserved through re-import, never auto-deleted
	Messages   []Message
	Notes      string
}

// TrackPoint is a position-only projection of a telemetry point, used for
// map rendering.
type TrackPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Height    float64 `json:"height"`
}

// NewManualEntry builds metadata for a flight recorded by hand rather than
// imported from a log file. Manual entries are the one sanctioned case of a
// flight with zero telemetry points.
func NewManualEntry(displayName string, start time.Time, durationSecs float64) Metadata {
	start = start.UTC()
	end := start.Add(time.Duration(durationSecs * float64(time.Second)))
	return Metadata{
		FileName:     "manual",
		DisplayName:  displayName,
		FileHash:     "manual-" + start.Format("20060102T150405"),
		StartTime:    &start,
		EndTime:      &end,
		DurationSecs: durationSecs,
	}
}

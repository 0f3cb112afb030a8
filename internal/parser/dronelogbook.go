package parser

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
)

// exportMetadata is the flight-level JSON carried in the metadata column of
// the first data row of this tool's own CSV export. Re-import preserves
// manual tags and notes through it.
type exportMetadata struct {
	DroneModel    string `json:"droneModel,omitempty"`
	DroneSerial   string `json:"droneSerial,omitempty"`
	AircraftName  string `json:"aircraftName,omitempty"`
	BatterySerial string `json:"batterySerial,omitempty"`
	StartTime     string `json:"startTime,omitempty"`
	Notes         string `json:"notes,omitempty"`
	Tags          []struct {
		Tag  string `json:"tag"`
		Type string `json:"type"`
	} `json:"tags,omitempty"`
}

var flightRecordFilename = regexp.MustCompile(`DJIFlightRecord_(\d{4}-\d{2}-\d{2})_\[(\d{2})-(\d{2})-(\d{2})\]`)

// parseDroneLogbook decodes the re-import CSV dialect: this tool's own
// export, with SI columns and flight metadata embedded as JSON.
func (p *Parser) parseDroneLogbook(path string) (*decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, flight.ErrNoTelemetryData
	}

	rd := newColumnReader(records[0], p.logger)

	dec := &decoded{manualTags: []string{"Re-imported"}}

	for i, row := range records[1:] {
		if len(row) == 0 {
			continue
		}

		pt := flight.TelemetryPoint{TimestampMS: timestampUnset}
		if ts := rd.RawFloat(row, "time_s"); ts != nil {
			pt.TimestampMS = int64(*ts * 1000)
		}

		pt.Latitude = rd.Float(row, "lat")
		pt.Longitude = rd.Float(row, "lng")
		pt.Altitude = rd.Float(row, "alt_m")
		pt.Height = rd.Float(row, "height_m")
		pt.VPSHeight = rd.Float(row, "vps_height_m")
		pt.Speed = rd.Float(row, "speed_ms")
		pt.VelocityX = rd.Float(row, "velocity_x_ms")
		pt.VelocityY = rd.Float(row, "velocity_y_ms")
		pt.VelocityZ = rd.Float(row, "velocity_z_ms")
		pt.Pitch = rd.Float(row, "pitch_deg")
		pt.Roll = rd.Float(row, "roll_deg")
		pt.Yaw = rd.Float(row, "yaw_deg")
		pt.GimbalPitch = rd.Float(row, "gimbal_pitch_deg")
		pt.BatteryPercent = rd.Float(row, "battery_percent")
		pt.BatteryVoltage = rd.Float(row, "battery_voltage_v")
		pt.BatteryCurrent = rd.Float(row, "battery_current_a")
		pt.BatteryTemperature = rd.Float(row, "battery_temp_c")
		pt.Satellites = rd.Int(row, "satellites")
		pt.GPSSignalLevel = rd.Int(row, "gps_signal")
		pt.RCUplink = rd.Int(row, "rc_uplink")
		pt.RCDownlink = rd.Int(row, "rc_downlink")

		// Sticks were normalized to -100..100 at export time.
		pt.RCAileron = rd.Float(row, "rc_aileron")
		pt.RCElevator = rd.Float(row, "rc_elevator")
		pt.RCThrottle = rd.Float(row, "rc_throttle")
		pt.RCRudder = rd.Float(row, "rc_rudder")

		pt.IsPhoto = rd.Bool(row, "is_photo")
		pt.IsVideo = rd.Bool(row, "is_video")

		if i == 0 {
			if raw := rd.String(row, "metadata"); raw != "" {
				p.applyExportMetadata(dec, raw)
			}
		}

		dec.points = append(dec.points, pt)
	}

	if dec.startTime == nil {
		if ts, ok := timeFromFilename(filepath.Base(path)); ok {
			dec.startTime = &ts
		}
	}

	return dec, nil
}

func (p *Parser) applyExportMetadata(dec *decoded, raw string) {
	var meta exportMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		p.logger.Warn("ignoring malformed metadata column", slog.Any("error", err))
		return
	}

	dec.droneModel = meta.DroneModel
	dec.droneSerial = meta.DroneSerial
	dec.aircraftName = meta.AircraftName
	dec.batterySerial = meta.BatterySerial
	dec.notes = meta.Notes

	if meta.StartTime != "" {
		if ts, err := parseTimestampFlexible(meta.StartTime); err != nil {
			p.logger.Warn("ignoring malformed start time", slog.Any("error", err))
		} else {
			dec.startTime = &ts
		}
	}

	// Auto tags regenerate from statistics; only manual ones survive.
	for _, t := range meta.Tags {
		if t.Type == flight.TagTypeManual && t.Tag != "" {
			dec.manualTags = append(dec.manualTags, t.Tag)
		}
	}
}

// parseTimestampFlexible accepts RFC 3339, RFC 3339 with a short "+00"
// style zone offset, and naive date-times which are assumed UTC.
func parseTimestampFlexible(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	// Normalize short offsets like "+00" or "-0500".
	if n := len(s); n > 3 {
		switch {
		case (s[n-3] == '+' || s[n-3] == '-') && isDigits(s[n-2:]):
			s += ":00"
		case n > 5 && (s[n-5] == '+' || s[n-5] == '-') && isDigits(s[n-4:]):
			s = s[:n-2] + ":" + s[n-2:]
		}
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// timeFromFilename recovers the flight start from DJI's standard export
// file name, e.g. "DJIFlightRecord_2024-03-01_[14-22-05].csv".
func timeFromFilename(name string) (time.Time, bool) {
	m := flightRecordFilename.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	ts, err := time.Parse("2006-01-02 15-04-05", fmt.Sprintf("%s %s-%s-%s", m[1], m[2], m[3], m[4]))
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

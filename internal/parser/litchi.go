package parser

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
)

// Litchi names drone models by a numeric code in its CSV export.
var litchiDroneTypes = map[int]string{
	1:  "DJI Inspire 1",
	2:  "DJI Phantom 3 Advanced",
	3:  "DJI Phantom 3 Professional",
	4:  "DJI Phantom 3 Standard",
	5:  "DJI Phantom 4",
	7:  "DJI Mavic Pro",
	8:  "DJI Inspire 2",
	9:  "DJI Phantom 4 Pro",
	10: "DJI Spark",
	11: "DJI Mavic Air",
	13: "DJI Mavic 2",
	14: "DJI Phantom 4 RTK",
	15: "DJI Mavic Mini",
	16: "DJI Mavic Air 2",
	17: "DJI Mini 2",
	18: "DJI Air 2S",
	19: "DJI Mini SE",
}

// normalizeSerial canonicalizes a serial number read from a CSV cell so it
// matches the form binary logs carry, keeping signature deduplication
// possible across export tools.
func normalizeSerial(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// parseLitchi decodes a Litchi flight record CSV. Litchi embeds units in
// header names (feet, mph) and logs wall-clock epoch timestamps; both are
// normalized here.
func (p *Parser) parseLitchi(path string) (*decoded, error) {
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

	dec := &decoded{manualTags: []string{"Litchi"}}

	var minTS int64 = -1
	for _, row := range records[1:] {
		if len(row) == 0 {
			continue
		}

		pt := flight.TelemetryPoint{TimestampMS: timestampUnset}
		if ts := rd.RawFloat(row, "timestamp"); ts != nil && *ts > 0 {
			pt.TimestampMS = int64(*ts)
			if minTS < 0 || pt.TimestampMS < minTS {
				minTS = pt.TimestampMS
			}
		}

		pt.Latitude = rd.Float(row, "latitude")
		pt.Longitude = rd.Float(row, "longitude")
		pt.Altitude = rd.Float(row, "altitude")
		pt.VPSHeight = rd.Float(row, "ultrasonicHeight")
		pt.Speed = rd.Float(row, "speed")
		pt.VelocityX = rd.Float(row, "velocityX")
		pt.VelocityY = rd.Float(row, "velocityY")
		pt.VelocityZ = rd.Float(row, "velocityZ")
		pt.Pitch = rd.Float(row, "pitch")
		pt.Roll = rd.Float(row, "roll")
		pt.Yaw = rd.Float(row, "yaw")

		if v := rd.Float(row, "gimbalPitchRaw"); v != nil {
			pt.GimbalPitch = v
		} else {
			pt.GimbalPitch = rd.Float(row, "gimbalPitch")
		}
		if v := rd.Float(row, "gimbalRollRaw"); v != nil {
			pt.GimbalRoll = v
		} else {
			pt.GimbalRoll = rd.Float(row, "gimbalRoll")
		}
		if v := rd.Float(row, "gimbalYawRaw"); v != nil {
			pt.GimbalYaw = v
		} else {
			pt.GimbalYaw = rd.Float(row, "gimbalYaw")
		}

		pt.BatteryPercent = rd.Float(row, "remainPowerPercent")
		pt.BatteryCurrent = rd.Float(row, "currentCurrent")
		if v := rd.Float(row, "voltage"); v != nil {
			pt.BatteryVoltage = v
		} else {
			pt.BatteryVoltage = rd.Float(row, "currentVoltage")
		}
		if v := rd.Float(row, "batteryTemperature"); v != nil {
			pt.BatteryTemperature = v
		} else {
			pt.BatteryTemperature = rd.Float(row, "temperature")
		}

		pt.Satellites = rd.Int(row, "satellites")
		pt.RCUplink = rd.Int(row, "uplinkSignalQuality")
		pt.RCDownlink = rd.Int(row, "downlinkSignalQuality")

		// Litchi logs sticks as raw 1024-centered counts.
		if v := rd.RawFloat(row, "rc_aileron"); v != nil {
			pt.RCAileron = normalizeStick(*v)
		}
		if v := rd.RawFloat(row, "rc_elevator"); v != nil {
			pt.RCElevator = normalizeStick(*v)
		}
		if v := rd.RawFloat(row, "rc_throttle"); v != nil {
			pt.RCThrottle = normalizeStick(*v)
		}
		if v := rd.RawFloat(row, "rc_rudder"); v != nil {
			pt.RCRudder = normalizeStick(*v)
		}

		pt.IsPhoto = rd.Bool(row, "isTakingPhoto")
		pt.IsVideo = rd.Bool(row, "isTakingVideo")

		if dec.droneModel == "" {
			if code := rd.Int(row, "droneType"); code != nil {
				dec.droneModel = litchiDroneTypes[*code]
			}
		}
		if dec.droneSerial == "" {
			dec.droneSerial = normalizeSerial(rd.String(row, "FlyControllerSerialNumber"))
		}
		if dec.batterySerial == "" {
			dec.batterySerial = normalizeSerial(rd.String(row, "BatterySerialNumber"))
		}
		if dec.aircraftName == "" {
			dec.aircraftName = rd.String(row, "Planename")
		}
		if dec.homeLat == nil {
			dec.homeLat = rd.Float(row, "home_latitude")
			dec.homeLon = rd.Float(row, "home_longitude")
		}

		dec.points = append(dec.points, pt)
	}

	// Timestamps are wall-clock epoch milliseconds; the store wants
	// flight-relative time.
	if minTS > 0 {
		for i := range dec.points {
			if dec.points[i].TimestampMS != timestampUnset {
				dec.points[i].TimestampMS -= minTS
			}
		}
		start := time.UnixMilli(minTS).UTC()
		dec.startTime = &start
	}

	return dec, nil
}

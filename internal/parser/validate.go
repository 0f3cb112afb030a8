package parser

import (
	"log/slog"
	"math"
	"sort"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
)

const (
	// timestampUnset marks a point whose source record carried no time
	// field; validation assigns a fallback timestamp.
	timestampUnset = int64(-1)

	// gpsEpsilon: a position within this of (0,0) is "no GPS lock", not a
	// real coordinate.
	gpsEpsilon = 1e-6

	// Sanity bounds. These reject parser and sensor garbage, not real
	// flight envelopes.
	maxAltitudeM = 10000.0
	maxSpeedMps  = 100.0

	// fallbackIntervalMS is used when a log declares no duration at all.
	fallbackIntervalMS = int64(100)

	// RC sticks are logged as raw counts centered on 1024; normalized to a
	// signed percentage.
	rcStickCenter = 1024.0
)

type validationStats struct {
	corrupt         int // dropped: non-finite value in some field
	noGPS           int // position cleared: no GPS lock
	outOfRange      int // position cleared: coordinates outside the globe
	altitudeClamped int // altitude or height cleared: beyond sanity bound
	speedClamped    int // speed cleared: beyond sanity bound
}

func (v validationStats) total() int {
	return v.corrupt + v.noGPS + v.outOfRange + v.altitudeClamped + v.speedClamped
}

func normalizeStick(raw float64) *float64 {
	v := (raw - rcStickCenter) / rcStickCenter * 100
	return &v
}

func finite(vals ...*float64) bool {
	for _, v := range vals {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return false
		}
	}
	return true
}

// validatePoints applies the numeric sanity pipeline to decoded points:
// finiteness, GPS lock and range checks, physical-range clamps and fallback
// timestamp assignment. A single corrupt record never aborts the import; it
// is dropped and counted. The result is ordered by timestamp.
func validatePoints(points []flight.TelemetryPoint, declaredDurationMS int64, logger *slog.Logger) ([]flight.TelemetryPoint, validationStats) {
	var vs validationStats

	// Fallback interval derives from the declared duration and frame count
	// rather than an assumed sample rate, so logs sampled at non-standard
	// rates do not get a systematically wrong duration.
	interval := fallbackIntervalMS
	if declaredDurationMS > 0 && len(points) > 0 {
		if iv := declaredDurationMS / int64(len(points)); iv > 0 {
			interval = iv
		}
	}

	out := make([]flight.TelemetryPoint, 0, len(points))
	var elapsed int64
	for i := range points {
		pt := points[i]

		if pt.TimestampMS == timestampUnset {
			pt.TimestampMS = elapsed
		}
		elapsed = pt.TimestampMS + interval

		// A non-finite value anywhere poisons the whole record. Drop it
		// rather than salvaging fields.
		if !finite(pt.Latitude, pt.Longitude, pt.Altitude, pt.Height, pt.VPSHeight,
			pt.VelocityX, pt.VelocityY, pt.VelocityZ, pt.Speed) {
			vs.corrupt++
			continue
		}

		if pt.Latitude != nil && pt.Longitude != nil {
			switch {
			case math.Abs(*pt.Latitude) < gpsEpsilon && math.Abs(*pt.Longitude) < gpsEpsilon:
				vs.noGPS++
				clearPosition(&pt)
			case math.Abs(*pt.Latitude) > 90 || math.Abs(*pt.Longitude) > 180:
				vs.outOfRange++
				clearPosition(&pt)
			}
		}

		if pt.Altitude != nil && math.Abs(*pt.Altitude) > maxAltitudeM {
			vs.altitudeClamped++
			pt.Altitude = nil
		}
		if pt.Height != nil && math.Abs(*pt.Height) > maxAltitudeM {
			vs.altitudeClamped++
			pt.Height = nil
		}
		if pt.VPSHeight != nil && math.Abs(*pt.VPSHeight) > maxAltitudeM {
			vs.altitudeClamped++
			pt.VPSHeight = nil
		}
		if pt.Speed != nil && math.Abs(*pt.Speed) > maxSpeedMps {
			vs.speedClamped++
			pt.Speed = nil
		}

		out = append(out, pt)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimestampMS < out[j].TimestampMS
	})

	if vs.corrupt > 0 {
		logger.Debug("dropped corrupt records", slog.Int("count", vs.corrupt))
	}
	return out, vs
}

// clearPosition removes the coordinates and everything derived from them.
// Velocity and speed computed from an invalid position are meaningless.
func clearPosition(pt *flight.TelemetryPoint) {
	pt.Latitude = nil
	pt.Longitude = nil
	pt.VelocityX = nil
	pt.VelocityY = nil
	pt.VelocityZ = nil
	pt.Speed = nil
}

// Package tags derives aggregate flight statistics from a telemetry point
// sequence and classifies flights with a deterministic rule engine.
package tags

import (
	"math"
	"time"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
	"github.com/roman-kulish/flight-log-ingest/internal/geo"
)

// idleSpeedMps: speed samples at or below this are ground idle and are
// excluded from the average so it reflects actual flying.
const idleSpeedMps = 0.1

// Compute folds a finalized, timestamp-ordered point sequence into flight
// statistics. Absent fields are skipped, never treated as zero: distance
// accumulates over consecutive valid GPS fixes only.
func Compute(points []flight.TelemetryPoint, start *time.Time) *flight.Stats {
	stats := &flight.Stats{}
	if len(points) == 0 {
		return stats
	}

	stats.DurationSecs = float64(points[len(points)-1].TimestampMS-points[0].TimestampMS) / 1000

	var prevLat, prevLon *float64
	var speedSum float64
	var speedN int
	var photoOn, videoOn bool

	for i := range points {
		pt := &points[i]

		if pt.Latitude != nil && pt.Longitude != nil {
			if stats.HomeLat == nil {
				stats.HomeLat = pt.Latitude
				stats.HomeLon = pt.Longitude
			}
			if prevLat != nil {
				stats.TotalDistance += geo.Haversine(*prevLat, *prevLon, *pt.Latitude, *pt.Longitude)
			}
			if stats.HomeLat != nil {
				d := geo.Haversine(*stats.HomeLat, *stats.HomeLon, *pt.Latitude, *pt.Longitude)
				stats.MaxDistanceFromHome = math.Max(stats.MaxDistanceFromHome, d)
			}
			prevLat, prevLon = pt.Latitude, pt.Longitude
		}

		if pt.Altitude != nil {
			stats.MaxAltitude = math.Max(stats.MaxAltitude, *pt.Altitude)
		} else if pt.Height != nil {
			stats.MaxAltitude = math.Max(stats.MaxAltitude, *pt.Height)
		}

		if pt.Speed != nil {
			stats.MaxSpeed = math.Max(stats.MaxSpeed, *pt.Speed)
			if *pt.Speed > idleSpeedMps {
				speedSum += *pt.Speed
				speedN++
			}
		}

		if pt.BatteryPercent != nil {
			if stats.BatteryStart == nil {
				stats.BatteryStart = pt.BatteryPercent
			}
			stats.BatteryEnd = pt.BatteryPercent
		}
		if pt.BatteryTemperature != nil && stats.BatteryStartTemp == nil {
			stats.BatteryStartTemp = pt.BatteryTemperature
		}

		// Shutter states count on rising edges only, so a long recording
		// is one video, not one per sample.
		if pt.IsPhoto != nil {
			if *pt.IsPhoto && !photoOn {
				stats.PhotoCount++
			}
			photoOn = *pt.IsPhoto
		}
		if pt.IsVideo != nil {
			if *pt.IsVideo && !videoOn {
				stats.VideoCount++
			}
			videoOn = *pt.IsVideo
		}
	}

	if speedN > 0 {
		stats.AvgSpeed = speedSum / float64(speedN)
	}
	return stats
}

// ApplyHomeOverride replaces the derived home location with one the log
// declares explicitly and recomputes the distance-from-home maximum against
// it. Near-zero coordinates are a no-fix placeholder and are ignored.
func ApplyHomeOverride(stats *flight.Stats, points []flight.TelemetryPoint, lat, lon *float64) {
	if lat == nil || lon == nil {
		return
	}
	if math.Abs(*lat) < 1e-3 && math.Abs(*lon) < 1e-3 {
		return
	}

	stats.HomeLat, stats.HomeLon = lat, lon
	stats.MaxDistanceFromHome = 0
	for i := range points {
		pt := &points[i]
		if pt.Latitude != nil && pt.Longitude != nil {
			d := geo.Haversine(*lat, *lon, *pt.Latitude, *pt.Longitude)
			stats.MaxDistanceFromHome = math.Max(stats.MaxDistanceFromHome, d)
		}
	}
}

package tags

import (
	"math"
	"testing"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
)

func fp(v float64) *float64 { return &v }
func bp(v bool) *bool       { return &v }

func TestComputeEmpty(t *testing.T) {
	s := Compute(nil, nil)
	if s.DurationSecs != 0 || s.TotalDistance != 0 || s.HomeLat != nil {
		t.Errorf("expected zero stats for empty input, got %+v", s)
	}
}

func TestComputeDurationAndDistance(t *testing.T) {
	// Three fixes moving due north, roughly 111 m per 0.001 degree of
	// latitude.
	points := []flight.TelemetryPoint{
		{TimestampMS: 0, Latitude: fp(-33.8000), Longitude: fp(151.2000)},
		{TimestampMS: 1000, Latitude: fp(-33.7990), Longitude: fp(151.2000)},
		{TimestampMS: 5000, Latitude: fp(-33.7980), Longitude: fp(151.2000)},
	}

	s := Compute(points, nil)

	if s.DurationSecs != 5 {
		t.Errorf("DurationSecs = %.1f, want 5", s.DurationSecs)
	}
	if math.Abs(s.TotalDistance-222.4) > 1 {
		t.Errorf("TotalDistance = %.1f m, want ~222.4", s.TotalDistance)
	}
	if math.Abs(s.MaxDistanceFromHome-222.4) > 1 {
		t.Errorf("MaxDistanceFromHome = %.1f m, want ~222.4", s.MaxDistanceFromHome)
	}
	if s.HomeLat == nil || *s.HomeLat != -33.8 {
		t.Errorf("HomeLat = %v, want -33.8", s.HomeLat)
	}
}

func TestComputeDistanceSkipsMissingFixes(t *testing.T) {
	// The gap point carries no position; distance must bridge the two
	// valid fixes, not treat the gap as (0,0).
	points := []flight.TelemetryPoint{
		{TimestampMS: 0, Latitude: fp(10.0000), Longitude: fp(20.0)},
		{TimestampMS: 1000},
		{TimestampMS: 2000, Latitude: fp(10.0010), Longitude: fp(20.0)},
	}

	s := Compute(points, nil)
	if s.TotalDistance > 150 {
		t.Errorf("TotalDistance = %.1f m, gap point was treated as a position", s.TotalDistance)
	}
}

func TestApplyHomeOverride(t *testing.T) {
	points := []flight.TelemetryPoint{
		{TimestampMS: 0, Latitude: fp(-33.8000), Longitude: fp(151.2000)},
		{TimestampMS: 1000, Latitude: fp(-33.7990), Longitude: fp(151.2000)},
	}
	s := Compute(points, nil)

	// The declared home sits south of the first fix, so every point is
	// farther from it than from the derived home.
	ApplyHomeOverride(s, points, fp(-33.8010), fp(151.2000))
	if s.HomeLat == nil || *s.HomeLat != -33.801 {
		t.Errorf("HomeLat = %v, want -33.801", s.HomeLat)
	}
	if math.Abs(s.MaxDistanceFromHome-222.4) > 1 {
		t.Errorf("MaxDistanceFromHome = %.1f m, want ~222.4 from the override", s.MaxDistanceFromHome)
	}
}

func TestApplyHomeOverrideIgnoresPlaceholder(t *testing.T) {
	points := []flight.TelemetryPoint{
		{TimestampMS: 0, Latitude: fp(-33.8000), Longitude: fp(151.2000)},
	}
	s := Compute(points, nil)

	ApplyHomeOverride(s, points, fp(0), fp(0))
	if s.HomeLat == nil || *s.HomeLat != -33.8 {
		t.Errorf("HomeLat = %v, near-zero override must be ignored", s.HomeLat)
	}

	ApplyHomeOverride(s, points, nil, nil)
	if s.HomeLat == nil || *s.HomeLat != -33.8 {
		t.Errorf("HomeLat = %v, absent override must be ignored", s.HomeLat)
	}
}

func TestComputeAvgSpeedExcludesIdle(t *testing.T) {
	points := []flight.TelemetryPoint{
		{TimestampMS: 0, Speed: fp(0)},
		{TimestampMS: 1000, Speed: fp(0.05)},
		{TimestampMS: 2000, Speed: fp(4)},
		{TimestampMS: 3000, Speed: fp(6)},
	}

	s := Compute(points, nil)
	if s.AvgSpeed != 5 {
		t.Errorf("AvgSpeed = %.2f, want 5 (idle samples excluded)", s.AvgSpeed)
	}
	if s.MaxSpeed != 6 {
		t.Errorf("MaxSpeed = %.2f, want 6", s.MaxSpeed)
	}
}

func TestComputeRisingEdgeCounts(t *testing.T) {
	points := []flight.TelemetryPoint{
		{TimestampMS: 0, IsVideo: bp(false), IsPhoto: bp(false)},
		{TimestampMS: 1000, IsVideo: bp(true), IsPhoto: bp(true)},
		{TimestampMS: 2000, IsVideo: bp(true), IsPhoto: bp(false)},
		{TimestampMS: 3000, IsVideo: bp(false), IsPhoto: bp(true)},
		{TimestampMS: 4000, IsVideo: bp(true), IsPhoto: bp(true)},
	}

	s := Compute(points, nil)
	if s.VideoCount != 2 {
		t.Errorf("VideoCount = %d, want 2 (one long recording is one video)", s.VideoCount)
	}
	if s.PhotoCount != 3 {
		t.Errorf("PhotoCount = %d, want 3", s.PhotoCount)
	}
}

func TestComputeBatteryEndpoints(t *testing.T) {
	points := []flight.TelemetryPoint{
		{TimestampMS: 0},
		{TimestampMS: 1000, BatteryPercent: fp(98), BatteryTemperature: fp(12)},
		{TimestampMS: 2000, BatteryPercent: fp(60), BatteryTemperature: fp(30)},
		{TimestampMS: 3000, BatteryPercent: fp(22)},
	}

	s := Compute(points, nil)
	if s.BatteryStart == nil || *s.BatteryStart != 98 {
		t.Errorf("BatteryStart = %v, want 98", s.BatteryStart)
	}
	if s.BatteryEnd == nil || *s.BatteryEnd != 22 {
		t.Errorf("BatteryEnd = %v, want 22", s.BatteryEnd)
	}
	if s.BatteryStartTemp == nil || *s.BatteryStartTemp != 12 {
		t.Errorf("BatteryStartTemp = %v, want 12", s.BatteryStartTemp)
	}
}

func TestComputeAltitudeFallsBackToHeight(t *testing.T) {
	points := []flight.TelemetryPoint{
		{TimestampMS: 0, Height: fp(45)},
		{TimestampMS: 1000, Altitude: fp(30), Height: fp(80)},
	}

	s := Compute(points, nil)

	if s.MaxAltitude != 80 {
		t.Errorf("MaxAltitude = %.1f, want 80 (height used when altitude absent)", s.MaxAltitude)
	}
}

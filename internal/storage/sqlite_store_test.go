package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "test.sqlite"),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }
func bp(v bool) *bool       { return &v }

// testPoints builds n points one second apart with deterministic values.
func testPoints(n int) []flight.TelemetryPoint {
	points := make([]flight.TelemetryPoint, n)
	for i := range points {
		points[i] = flight.TelemetryPoint{
			TimestampMS:  int64(i) * 1000,
			Latitude:     fp(-33.8 + float64(i)*0.0001),
			Longitude:    fp(151.2),
			Height:       fp(float64(10 + i)),
			Speed:        fp(5),
			Satellites:   ip(12 + i%3),
			CellVoltages: []float64{3.85, 3.84},
			IsVideo:      bp(i == n/2),
		}
	}
	return points
}

func testResult(hash string, points []flight.TelemetryPoint) *flight.ParseResult {
	start := time.Date(2024, 3, 1, 14, 22, 5, 0, time.UTC)
	end := start.Add(time.Duration(len(points)) * time.Second)
	return &flight.ParseResult{
		Metadata: flight.Metadata{
			FileName:      "DJIFlightRecord_2024-03-01_[14-22-05].txt",
			DisplayName:   "Flight 2024-03-01 14:22",
			FileHash:      hash,
			DroneModel:    "DJI Mini 2",
			DroneSerial:   "SN42",
			AircraftName:  "Maverick",
			BatterySerial: "BATT7",
			StartTime:     &start,
			EndTime:       &end,
			DurationSecs:  float64(len(points)),
			TotalDistance: 350,
			MaxAltitude:   42,
			MaxSpeed:      9.5,
			HomeLat:       fp(-33.8),
			HomeLon:       fp(151.2),
			PointCount:    len(points),
		},
		Points:     points,
		Tags:       []string{"Short Flight", "Australia"},
		ManualTags: []string{"Favorite"},
		Messages: []flight.Message{
			{TimestampMS: 1000, Type: "warning", Message: "Strong wind"},
		},
		Notes: "windy day",
	}
}

func TestImportFlightRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, stored, err := s.ImportFlight(ctx, testResult("hash-1", testPoints(10)))
	require.NoError(t, err)
	assert.Equal(t, 10, stored)

	m, err := s.Flight(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Flight 2024-03-01 14:22", m.DisplayName)
	assert.Equal(t, "SN42", m.DroneSerial)
	assert.Equal(t, "BATT7", m.BatterySerial)
	assert.Equal(t, 10, m.PointCount)
	assert.Equal(t, "windy day", m.Notes)
	require.NotNil(t, m.StartTime)
	assert.True(t, m.StartTime.Equal(time.Date(2024, 3, 1, 14, 22, 5, 0, time.UTC)))
	require.NotNil(t, m.HomeLat)
	assert.Equal(t, -33.8, *m.HomeLat)

	points, err := s.FlightTelemetry(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, points, 10)
	assert.Equal(t, int64(0), points[0].TimestampMS)
	require.NotNil(t, points[3].Height)
	assert.Equal(t, 13.0, *points[3].Height)
	assert.Equal(t, []float64{3.85, 3.84}, points[0].CellVoltages)
	require.NotNil(t, points[5].IsVideo)
	assert.True(t, *points[5].IsVideo)

	tags, err := s.TagsForFlight(ctx, id)
	require.NoError(t, err)
	require.Len(t, tags, 3)
	byName := make(map[string]string, len(tags))
	for _, tag := range tags {
		byName[tag.Tag] = tag.Type
	}
	assert.Equal(t, flight.TagTypeAuto, byName["Short Flight"])
	assert.Equal(t, flight.TagTypeManual, byName["Favorite"])

	messages, err := s.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Strong wind", messages[0].Message)
	assert.Equal(t, "warning", messages[0].Type)

	name, imported, err := s.IsFileImported(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, imported)
	assert.Equal(t, "Flight 2024-03-01 14:22", name)

	_, imported, err = s.IsFileImported(ctx, "other-hash")
	require.NoError(t, err)
	assert.False(t, imported)
}

func TestImportFlightsGetDistinctIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, _, err := s.ImportFlight(ctx, testResult("h1", testPoints(3)))
	require.NoError(t, err)
	id2, _, err := s.ImportFlight(ctx, testResult("h2", testPoints(3)))
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestBulkInsertSkipsDuplicateTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	points := testPoints(5)
	points[3].TimestampMS = points[1].TimestampMS

	id, stored, err := s.ImportFlight(ctx, testResult("h1", points))
	require.NoError(t, err)
	assert.Equal(t, 4, stored)

	// The stored point count reflects what actually landed.
	m, err := s.Flight(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, m.PointCount)
}

func TestBulkInsertDuplicateAcrossCallsFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.ImportFlight(ctx, testResult("h1", testPoints(3)))
	require.NoError(t, err)

	// A second load colliding on the primary key fails and leaves nothing
	// behind from the failed batch.
	_, _, err = s.BulkInsertTelemetry(ctx, id, []flight.TelemetryPoint{
		{TimestampMS: 0},
		{TimestampMS: 999_999},
	})
	require.Error(t, err)

	points, err := s.FlightTelemetry(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, points, 3)
}

func TestIsDuplicateFlight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result := testResult("h1", testPoints(3))
	_, _, err := s.ImportFlight(ctx, result)
	require.NoError(t, err)

	dup, err := s.IsDuplicateFlight(ctx, "SN42", "BATT7", *result.Metadata.StartTime)
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = s.IsDuplicateFlight(ctx, "SN42", "BATT7", result.Metadata.StartTime.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, dup)

	// Unknown serials can never produce a meaningful signature.
	dup, err = s.IsDuplicateFlight(ctx, "", "BATT7", *result.Metadata.StartTime)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestDeleteFlightCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.ImportFlight(ctx, testResult("h1", testPoints(5)))
	require.NoError(t, err)

	require.NoError(t, s.DeleteFlight(ctx, id))

	m, err := s.Flight(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, m)

	points, err := s.FlightTelemetry(ctx, id, 0)
	require.NoError(t, err)
	assert.Empty(t, points)

	tags, err := s.TagsForFlight(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, tags)

	messages, err := s.Messages(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestUpdateDisplayNameAndNotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.ImportFlight(ctx, testResult("h1", testPoints(3)))
	require.NoError(t, err)

	require.NoError(t, s.UpdateDisplayName(ctx, id, "Morning survey"))
	require.NoError(t, s.UpdateNotes(ctx, id, ""))

	m, err := s.Flight(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Morning survey", m.DisplayName)
	assert.Empty(t, m.Notes)
}

func TestReplaceAutoTagsKeepsManual(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.ImportFlight(ctx, testResult("h1", testPoints(3)))
	require.NoError(t, err)

	require.NoError(t, s.ReplaceAutoTags(ctx, id, []string{"Night Flight"}))

	tags, err := s.TagsForFlight(ctx, id)
	require.NoError(t, err)

	var autoTags, manualTags []string
	for _, tag := range tags {
		if tag.Type == flight.TagTypeAuto {
			autoTags = append(autoTags, tag.Tag)
		} else {
			manualTags = append(manualTags, tag.Tag)
		}
	}
	assert.Equal(t, []string{"Night Flight"}, autoTags)
	assert.Equal(t, []string{"Favorite"}, manualTags)
}

func TestAddTagRejectsUnknownType(t *testing.T) {
	s := newTestStore(t)
	err := s.AddTag(context.Background(), 1, "whatever", "sideways")
	assert.Error(t, err)
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Setting(ctx, "theme")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "theme", "dark"))
	require.NoError(t, s.SetSetting(ctx, "theme", "light")) // upsert

	v, ok, err := s.Setting(ctx, "theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "light", v)
}

func TestKeychainRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := []byte{0x01, 0x02, 0xff, 0xfe}
	require.NoError(t, s.StoreKeychain(ctx, "SN42", 13, key))

	got, ok := s.Keychain("SN42", 13)
	assert.True(t, ok)
	assert.Equal(t, key, got)

	_, ok = s.Keychain("SN42", 14)
	assert.False(t, ok)
	_, ok = s.Keychain("OTHER", 13)
	assert.False(t, ok)
}

func TestEquipmentNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetEquipmentName(ctx, "BATT7", "Battery #1", "battery"))

	name, ok, err := s.EquipmentName(ctx, "BATT7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Battery #1", name)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.ImportFlight(context.Background(), testResult("h1", testPoints(1)))
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

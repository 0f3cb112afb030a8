package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
	"github.com/roman-kulish/flight-log-ingest/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	s := storage.NewSqliteStore(filepath.Join(t.TempDir(), "test.sqlite"),
		storage.WithLogger(discardLogger()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testFlight(t *testing.T, store storage.Store, hash string, n int) int64 {
	t.Helper()

	points := make([]flight.TelemetryPoint, n)
	for i := range points {
		lat := -33.8 + float64(i)*0.0001
		lon := 151.2
		points[i] = flight.TelemetryPoint{
			TimestampMS: int64(i) * 1000,
			Latitude:    &lat,
			Longitude:   &lon,
		}
	}

	start := time.Date(2024, 3, 1, 14, 22, 5, 0, time.UTC)
	id, _, err := store.ImportFlight(context.Background(), &flight.ParseResult{
		Metadata: flight.Metadata{
			FileName:    "test.csv",
			DisplayName: "Test flight",
			FileHash:    hash,
			StartTime:   &start,
			PointCount:  n,
		},
		Points: points,
	})
	require.NoError(t, err)
	return id
}

func TestExportPointsRaw(t *testing.T) {
	store := newTestStore(t)
	id := testFlight(t, store, "h1", 5)

	var buf bytes.Buffer
	require.NoError(t, exportPoints(context.Background(), store, &buf, id, 0))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6, "header plus one row per point")
	assert.Equal(t, "timestamp_ms", records[0][0])
	assert.Equal(t, "0", records[1][0])
	assert.Equal(t, "-33.8", records[1][1])
	assert.Empty(t, records[1][6], "absent fields export as empty cells")
}

func TestExportPointsHonorsMaxPoints(t *testing.T) {
	store := newTestStore(t)
	id := testFlight(t, store, "h1", 100)

	var buf bytes.Buffer
	require.NoError(t, exportPoints(context.Background(), store, &buf, id, 10))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Less(t, len(records)-1, 100, "output must be downsampled")
	assert.LessOrEqual(t, len(records)-1, 11)
}

func TestExportPointsUnknownFlight(t *testing.T) {
	store := newTestStore(t)

	var buf bytes.Buffer
	err := exportPoints(context.Background(), store, &buf, 999, 0)
	assert.Error(t, err)
}

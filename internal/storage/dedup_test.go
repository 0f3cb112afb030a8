package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicateSignaturePass(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Same drone, battery and start time but different files, as when the
	// same flight is exported by two different tools.
	full, _, err := s.ImportFlight(ctx, testResult("h1", testPoints(10)))
	require.NoError(t, err)
	partial, _, err := s.ImportFlight(ctx, testResult("h2", testPoints(4)))
	require.NoError(t, err)

	removed, err := s.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	m, err := s.Flight(ctx, full)
	require.NoError(t, err)
	require.NotNil(t, m, "the record with more points survives")

	m, err = s.Flight(ctx, partial)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestDeduplicatePurgesOrphanedRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.ImportFlight(ctx, testResult("h1", testPoints(10)))
	require.NoError(t, err)
	loser, _, err := s.ImportFlight(ctx, testResult("h2", testPoints(4)))
	require.NoError(t, err)

	_, err = s.Deduplicate(ctx)
	require.NoError(t, err)

	points, err := s.FlightTelemetry(ctx, loser, 0)
	require.NoError(t, err)
	assert.Empty(t, points)

	tags, err := s.TagsForFlight(ctx, loser)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestDeduplicateTieKeepsOldest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _, err := s.ImportFlight(ctx, testResult("h1", testPoints(5)))
	require.NoError(t, err)
	second, _, err := s.ImportFlight(ctx, testResult("h2", testPoints(5)))
	require.NoError(t, err)
	require.Less(t, first, second)

	removed, err := s.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	m, err := s.Flight(ctx, first)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestDeduplicateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.ImportFlight(ctx, testResult("h1", testPoints(10)))
	require.NoError(t, err)
	_, _, err = s.ImportFlight(ctx, testResult("h2", testPoints(4)))
	require.NoError(t, err)

	removed, err := s.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = s.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "second pass over the same data removes nothing")
}

func TestDeduplicateDistinctFlightsUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testResult("h2", testPoints(10))
	shifted := r.Metadata.StartTime.Add(2 * time.Hour)
	r.Metadata.StartTime = &shifted

	_, _, err := s.ImportFlight(ctx, testResult("h1", testPoints(10)))
	require.NoError(t, err)
	_, _, err = s.ImportFlight(ctx, r)
	require.NoError(t, err)

	removed, err := s.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRunStartupDeduplicationRunsOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.ImportFlight(ctx, testResult("h1", testPoints(10)))
	require.NoError(t, err)
	_, _, err = s.ImportFlight(ctx, testResult("h2", testPoints(4)))
	require.NoError(t, err)

	removed, err := s.RunStartupDeduplication(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, err := s.Setting(ctx, settingDuplicateChecked)
	require.NoError(t, err)
	assert.True(t, ok)

	// A later duplicate is left alone until an explicit dedup run.
	_, _, err = s.ImportFlight(ctx, testResult("h3", testPoints(4)))
	require.NoError(t, err)

	removed, err = s.RunStartupDeduplication(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

package parser

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestColumnReaderUnits(t *testing.T) {
	rd := newColumnReader([]string{"altitude(feet)", "speed(mph)", "temperature(f)", "distance"}, discardLogger())
	row := []string{"100", "10", "32", "5.5"}

	alt := rd.Float(row, "altitude")
	require.NotNil(t, alt)
	assert.InDelta(t, 30.48, *alt, 1e-9)

	speed := rd.Float(row, "speed")
	require.NotNil(t, speed)
	assert.InDelta(t, 4.4704, *speed, 1e-9)

	temp := rd.Float(row, "temperature")
	require.NotNil(t, temp)
	assert.InDelta(t, 0, *temp, 1e-9)

	dist := rd.Float(row, "distance")
	require.NotNil(t, dist)
	assert.Equal(t, 5.5, *dist)
}

func TestColumnReaderRawFloatSkipsConversion(t *testing.T) {
	rd := newColumnReader([]string{"rc_aileron(feet)"}, discardLogger())

	v := rd.RawFloat([]string{"1024"}, "rc_aileron")
	require.NotNil(t, v)
	assert.Equal(t, 1024.0, *v)
}

func TestColumnReaderMissingAndMalformed(t *testing.T) {
	rd := newColumnReader([]string{"a", "b"}, discardLogger())

	assert.Nil(t, rd.Float([]string{"1.5", ""}, "b"), "empty cell")
	assert.Nil(t, rd.Float([]string{"1.5"}, "b"), "short row")
	assert.Nil(t, rd.Float([]string{"abc", "2"}, "a"), "malformed number")
	assert.Nil(t, rd.Float([]string{"1", "2"}, "missing"), "unknown column")
	assert.False(t, rd.Has("missing"))
	assert.True(t, rd.Has("A"), "lookup is case-insensitive")
}

func TestColumnReaderFirstDuplicateWins(t *testing.T) {
	rd := newColumnReader([]string{"v", "v"}, discardLogger())

	got := rd.Float([]string{"1", "2"}, "v")
	require.NotNil(t, got)
	assert.Equal(t, 1.0, *got)
}

func TestColumnReaderBool(t *testing.T) {
	rd := newColumnReader([]string{"flag"}, discardLogger())

	tests := []struct {
		cell string
		want *bool
	}{
		{"true", bp(true)},
		{"YES", bp(true)},
		{"0", bp(false)},
		{"1", bp(true)},
		{"no", bp(false)},
		{"maybe", nil},
	}
	for _, tt := range tests {
		got := rd.Bool([]string{tt.cell}, "flag")
		if tt.want == nil {
			assert.Nil(t, got, tt.cell)
		} else {
			require.NotNil(t, got, tt.cell)
			assert.Equal(t, *tt.want, *got, tt.cell)
		}
	}
}

func bp(v bool) *bool { return &v }

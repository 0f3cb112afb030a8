package parser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const litchiCSV = `latitude,longitude,altitude(feet),speed(mph),timestamp,rc_aileron,droneType,Planename,FlyControllerSerialNumber,BatterySerialNumber,home_latitude,home_longitude,currentCurrent,isTakingVideo
-33.80000,151.20000,100,10,1709303525000,1024,7,Maverick, sn42fc ,batt7,-33.80100,151.20000,4.2,0
-33.79990,151.20000,110,11,1709303526000,1536,7,,,,,,4.5,1
-33.79980,151.20000,120,12,1709303527000,512,7,,,,,,4.1,1
`

func TestParseLitchi(t *testing.T) {
	p := New(WithLogger(discardLogger()))
	path := writeTestFile(t, "litchi.csv", []byte(litchiCSV))

	dec, err := p.parseLitchi(path)
	require.NoError(t, err)
	require.Len(t, dec.points, 3)

	// Epoch timestamps become flight-relative.
	assert.Equal(t, int64(0), dec.points[0].TimestampMS)
	assert.Equal(t, int64(1000), dec.points[1].TimestampMS)
	assert.Equal(t, int64(2000), dec.points[2].TimestampMS)

	require.NotNil(t, dec.startTime)
	assert.Equal(t, time.UnixMilli(1709303525000).UTC(), *dec.startTime)

	// Units convert to meters and m/s.
	require.NotNil(t, dec.points[0].Altitude)
	assert.InDelta(t, 30.48, *dec.points[0].Altitude, 1e-9)
	require.NotNil(t, dec.points[0].Speed)
	assert.InDelta(t, 4.4704, *dec.points[0].Speed, 1e-9)

	// Sticks normalize from 1024-centered counts to signed percent.
	require.NotNil(t, dec.points[0].RCAileron)
	assert.InDelta(t, 0, *dec.points[0].RCAileron, 1e-9)
	require.NotNil(t, dec.points[1].RCAileron)
	assert.InDelta(t, 50, *dec.points[1].RCAileron, 1e-9)
	require.NotNil(t, dec.points[2].RCAileron)
	assert.InDelta(t, -50, *dec.points[2].RCAileron, 1e-9)

	assert.Equal(t, "DJI Mavic Pro", dec.droneModel)
	assert.Equal(t, "Maverick", dec.aircraftName)
	assert.Equal(t, []string{"Litchi"}, dec.manualTags)

	// Serials come from the first row, trimmed and uppercased.
	assert.Equal(t, "SN42FC", dec.droneSerial)
	assert.Equal(t, "BATT7", dec.batterySerial)

	require.NotNil(t, dec.homeLat)
	assert.Equal(t, -33.801, *dec.homeLat)

	require.NotNil(t, dec.points[1].BatteryCurrent)
	assert.Equal(t, 4.5, *dec.points[1].BatteryCurrent)
}

func TestParseLitchiEndToEnd(t *testing.T) {
	p := New(WithLogger(discardLogger()))
	path := writeTestFile(t, "litchi.csv", []byte(litchiCSV))

	result, err := p.Parse(context.Background(), path, "deadbeef")
	require.NoError(t, err)

	assert.Equal(t, "deadbeef", result.Metadata.FileHash)
	assert.Equal(t, 3, result.Metadata.PointCount)
	assert.Equal(t, 1, result.Metadata.VideoCount, "one continuous recording")
	assert.Equal(t, "DJI Mavic Pro", result.Metadata.DroneModel)
	require.NotNil(t, result.Metadata.StartTime)
	assert.Equal(t, "Flight 2024-03-01 14:32", result.Metadata.DisplayName)
	assert.Contains(t, result.ManualTags, "Litchi")

	// Serials survive to the metadata, so signature deduplication can
	// match this flight against a binary export of the same flight.
	assert.Equal(t, "SN42FC", result.Metadata.DroneSerial)
	assert.Equal(t, "BATT7", result.Metadata.BatterySerial)
	assert.Equal(t, "Maverick", result.Metadata.AircraftName)

	// The declared home overrides the first GPS fix and re-anchors the
	// distance-from-home maximum.
	require.NotNil(t, result.Metadata.HomeLat)
	assert.Equal(t, -33.801, *result.Metadata.HomeLat)
}

func TestParseLitchiHeaderOnly(t *testing.T) {
	p := New(WithLogger(discardLogger()))
	path := writeTestFile(t, "litchi.csv", []byte("latitude,longitude\n"))

	_, err := p.parseLitchi(path)
	assert.Error(t, err)
}

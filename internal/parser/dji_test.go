package parser

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
)

type mapKeychain map[string][]byte

func (m mapKeychain) Keychain(droneSerial string, _ int) ([]byte, bool) {
	k, ok := m[droneSerial]
	return k, ok
}

// record encodes one stream record: type, length, payload, terminator.
func record(recType byte, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+3)
	out = append(out, recType, byte(len(payload)))
	out = append(out, payload...)
	return append(out, recordTerminator)
}

func osdPayload(timeMS uint32, lat, lon float64, heightDeci, vxDeci, vyDeci int16, sats, gps, flags byte) []byte {
	p := make([]byte, osdPayloadSize)
	binary.LittleEndian.PutUint32(p[0:], timeMS)
	binary.LittleEndian.PutUint64(p[4:], math.Float64bits(lat))
	binary.LittleEndian.PutUint64(p[12:], math.Float64bits(lon))
	binary.LittleEndian.PutUint16(p[22:], uint16(heightDeci))
	binary.LittleEndian.PutUint16(p[24:], uint16(vxDeci))
	binary.LittleEndian.PutUint16(p[26:], uint16(vyDeci))
	p[36] = sats
	p[37] = gps
	p[38] = flags
	return p
}

func batteryPayload(percent byte, voltageMV uint16, tempDeci int16, cellsMV ...uint16) []byte {
	p := make([]byte, 8+2*len(cellsMV))
	p[0] = percent
	binary.LittleEndian.PutUint16(p[1:], voltageMV)
	binary.LittleEndian.PutUint16(p[5:], uint16(tempDeci))
	p[7] = byte(len(cellsMV))
	for i, mv := range cellsMV {
		binary.LittleEndian.PutUint16(p[8+2*i:], mv)
	}
	return p
}

// buildDJILog assembles a complete binary log file: header, record stream,
// details block. With a key the stream is AES-CTR encrypted.
func buildDJILog(t *testing.T, version byte, key []byte, stream []byte) []byte {
	t.Helper()

	iv := bytes.Repeat([]byte{0x42}, 16)
	if key != nil {
		block, err := aes.NewCipher(key)
		require.NoError(t, err)
		enc := make([]byte, len(stream))
		cipher.NewCTR(block, iv).XORKeyStream(enc, stream)
		stream = enc
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(header[headerDetailsOffset:], uint64(headerSize+len(stream)))
	header[headerVersionOffset] = version
	copy(header[headerIVOffset:], iv)

	details := make([]byte, detailsSize)
	copy(details[0:32], "Maverick")
	copy(details[32:48], "SN42")
	copy(details[48:64], "BATT7")
	details[64] = 10 // DJI Mini 2
	binary.LittleEndian.PutUint32(details[65:], math.Float32bits(4.5))
	binary.LittleEndian.PutUint64(details[69:], uint64(time.Date(2024, 3, 1, 14, 22, 5, 0, time.UTC).UnixMilli()))

	var f bytes.Buffer
	f.Write(header)
	f.Write(stream)
	f.Write(details)
	return f.Bytes()
}

func testStream() []byte {
	var stream bytes.Buffer
	stream.Write(record(recBattery, batteryPayload(95, 15400, 180, 3850, 3850, 3850, 3850)))
	stream.Write(record(recGimbal, []byte{0x0a, 0x00, 0x00, 0x00, 0xf6, 0xff})) // pitch 1.0, yaw -1.0
	stream.Write(record(recOSD, osdPayload(0, -33.8, 151.2, 250, 30, 40, 14, 5, 0x01)))
	stream.Write(record(recVPS, []byte{0x7d, 0x00})) // 12.5 m
	stream.Write(record(recOSD, osdPayload(1000, -33.799, 151.2, 260, 30, 40, 14, 5, 0x02)))
	stream.Write(record(recMessage, append([]byte{0xe8, 0x03, 0x00, 0x00, 0x01}, "Strong wind"...)))
	stream.Write(record(0x7e, []byte{0xde, 0xad})) // unknown type is skipped
	return stream.Bytes()
}

func TestParseDJIUnencrypted(t *testing.T) {
	p := New(WithLogger(discardLogger()))
	data := buildDJILog(t, 12, nil, testStream())
	path := writeTestFile(t, "DJIFlightRecord_2024-03-01_[14-22-05].txt", data)

	result, err := p.Parse(context.Background(), path, "f00d")
	require.NoError(t, err)

	meta := result.Metadata
	assert.Equal(t, "DJI Mini 2", meta.DroneModel)
	assert.Equal(t, "SN42", meta.DroneSerial)
	assert.Equal(t, "BATT7", meta.BatterySerial)
	assert.Equal(t, "Maverick", meta.AircraftName)
	require.NotNil(t, meta.StartTime)
	assert.Equal(t, time.Date(2024, 3, 1, 14, 22, 5, 0, time.UTC), *meta.StartTime)
	assert.Equal(t, 4.5, meta.DurationSecs, "declared duration wins over point span")
	assert.Equal(t, 2, meta.PointCount)
	assert.Equal(t, 1, meta.PhotoCount)
	assert.Equal(t, 1, meta.VideoCount)

	require.Len(t, result.Points, 2)
	first := result.Points[0]

	require.NotNil(t, first.Height)
	assert.InDelta(t, 25.0, *first.Height, 1e-9)
	require.NotNil(t, first.Speed)
	assert.InDelta(t, 5.0, *first.Speed, 1e-9, "speed is the horizontal velocity norm")
	require.NotNil(t, first.Satellites)
	assert.Equal(t, 14, *first.Satellites)

	// Rolling battery and gimbal state attaches to each OSD point.
	require.NotNil(t, first.BatteryPercent)
	assert.Equal(t, 95.0, *first.BatteryPercent)
	require.NotNil(t, first.BatteryVoltage)
	assert.InDelta(t, 15.4, *first.BatteryVoltage, 1e-9)
	require.NotNil(t, first.BatteryTemperature)
	assert.InDelta(t, 18.0, *first.BatteryTemperature, 1e-9)
	assert.Equal(t, []float64{3.85, 3.85, 3.85, 3.85}, first.CellVoltages)
	require.NotNil(t, first.GimbalPitch)
	assert.InDelta(t, 1.0, *first.GimbalPitch, 1e-9)
	require.NotNil(t, first.GimbalYaw)
	assert.InDelta(t, -1.0, *first.GimbalYaw, 1e-9)

	// VPS applies to the point preceding it in the stream.
	require.NotNil(t, first.VPSHeight)
	assert.InDelta(t, 12.5, *first.VPSHeight, 1e-9)
	assert.Nil(t, result.Points[1].VPSHeight)

	require.Len(t, result.Messages, 1)
	assert.Equal(t, int64(1000), result.Messages[0].TimestampMS)
	assert.Equal(t, "warning", result.Messages[0].Type)
	assert.Equal(t, "Strong wind", result.Messages[0].Message)
}

func TestParseDJIEncrypted(t *testing.T) {
	key := bytes.Repeat([]byte{0x1f}, 16)
	data := buildDJILog(t, 13, key, testStream())
	path := writeTestFile(t, "encrypted.txt", data)

	// No keychain source configured at all.
	p := New(WithLogger(discardLogger()))
	_, err := p.Parse(context.Background(), path, "h1")
	assert.ErrorIs(t, err, flight.ErrEncryptionKeyRequired)

	// Keychain source without a matching serial.
	p = New(WithLogger(discardLogger()), WithKeychainSource(mapKeychain{}))
	_, err = p.Parse(context.Background(), path, "h1")
	assert.ErrorIs(t, err, flight.ErrEncryptionKeyRequired)

	// The details block stays readable without the key, so the serial
	// resolves the keychain and the stream decrypts.
	p = New(WithLogger(discardLogger()), WithKeychainSource(mapKeychain{"SN42": key}))
	result, err := p.Parse(context.Background(), path, "h1")
	require.NoError(t, err)
	assert.Equal(t, "SN42", result.Metadata.DroneSerial)
	assert.Len(t, result.Points, 2)
}

func TestParseDJIMissingTerminator(t *testing.T) {
	bad := record(recOSD, osdPayload(0, -33.8, 151.2, 100, 0, 0, 10, 5, 0))
	bad[len(bad)-1] = 0x00

	p := New(WithLogger(discardLogger()))
	path := writeTestFile(t, "bad.txt", buildDJILog(t, 12, nil, bad))

	_, err := p.Parse(context.Background(), path, "h2")
	assert.ErrorIs(t, err, flight.ErrDecodeFailed)
}

func TestParseDJITruncatedHeader(t *testing.T) {
	p := New(WithLogger(discardLogger()))
	path := writeTestFile(t, "tiny.txt", []byte{0x01, 0x02, 0x03})

	_, err := p.Parse(context.Background(), path, "h3")
	assert.ErrorIs(t, err, flight.ErrIncompatibleFile)
}

func TestParseDJIBogusDetailsOffset(t *testing.T) {
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(header[headerDetailsOffset:], 1<<40)
	header[headerVersionOffset] = 12

	p := New(WithLogger(discardLogger()))
	path := writeTestFile(t, "bogus.txt", header)

	_, err := p.Parse(context.Background(), path, "h4")
	assert.ErrorIs(t, err, flight.ErrIncompatibleFile)
}

package parser

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
)

// Binary log container layout. The header and the details block are always
// cleartext; from format version 13 the record stream is encrypted with a
// per-aircraft keychain, so the serial needed to look the key up stays
// readable.
const (
	headerSize          = 100
	headerDetailsOffset = 0 // uint64 LE, file offset of the details block
	headerVersionOffset = 8 // uint8, log format version
	headerIVOffset      = 9 // 16 bytes, CTR IV for encrypted streams
	detailsSize         = 77
	encryptedVersion    = 13
	recordTerminator    = 0xFF
)

// Record types in the binary stream.
const (
	recOSD     = 1
	recGimbal  = 2
	recRC      = 3
	recVPS     = 4
	recBattery = 7
	recMessage = 9
)

var messageTypes = map[uint8]string{
	0: "info",
	1: "warning",
	2: "error",
}

// logInfo is what can be read from a binary log without decrypting it.
type logInfo struct {
	version       int
	detailsOffset int
	iv            []byte
	aircraftName  string
	droneSerial   string
	batterySerial string
	droneModel    string
	totalTimeSecs float64
	startTimeMS   int64
}

// Drone model codes used by the flight controller details block.
var djiDroneModels = map[uint8]string{
	1:  "DJI Inspire 1",
	2:  "DJI Phantom 3",
	3:  "DJI Phantom 4",
	4:  "DJI Mavic Pro",
	5:  "DJI Spark",
	6:  "DJI Mavic Air",
	7:  "DJI Mavic 2",
	8:  "DJI Mini",
	9:  "DJI Air 2S",
	10: "DJI Mini 2",
	11: "DJI Mavic 3",
	12: "DJI Mini 3 Pro",
	13: "DJI Avata",
	14: "DJI Air 3",
	15: "DJI Mini 4 Pro",
}

// parseDJI decodes a binary flight controller log. The record walk runs on
// a dedicated goroutine under a hard wall-clock deadline with a panic
// boundary: a malformed file may cost the timeout, never the process.
func (p *Parser) parseDJI(ctx context.Context, path string) (*decoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	info, err := readLogInfo(data)
	if err != nil {
		return nil, err
	}

	var key []byte
	if info.version >= encryptedVersion {
		if p.keychains == nil {
			return nil, flight.ErrEncryptionKeyRequired
		}
		k, ok := p.keychains.Keychain(info.droneSerial, info.version)
		if !ok {
			return nil, flight.ErrEncryptionKeyRequired
		}
		key = k
	}

	return p.decodeSupervised(ctx, data, info, key)
}

func (p *Parser) decodeSupervised(ctx context.Context, data []byte, info *logInfo, key []byte) (*decoded, error) {
	type result struct {
		dec *decoded
		err error
	}

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &flight.DecodeError{Reason: fmt.Sprint(r)}}
			}
		}()
		dec, err := decodeRecords(data, info, key)
		done <- result{dec: dec, err: err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.dec, r.err
	case <-timer.C:
		return nil, &flight.TimeoutError{Elapsed: time.Since(start)}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func readLogInfo(data []byte) (*logInfo, error) {
	if len(data) < headerSize {
		return nil, flight.ErrIncompatibleFile
	}

	info := &logInfo{
		detailsOffset: int(binary.LittleEndian.Uint64(data[headerDetailsOffset:])),
		version:       int(data[headerVersionOffset]),
		iv:            data[headerIVOffset : headerIVOffset+16],
	}
	if info.detailsOffset < headerSize || info.detailsOffset+detailsSize > len(data) {
		return nil, flight.ErrIncompatibleFile
	}

	d := data[info.detailsOffset:]
	info.aircraftName = cString(d[0:32])
	info.droneSerial = cString(d[32:48])
	info.batterySerial = cString(d[48:64])
	info.droneModel = djiDroneModels[d[64]]
	info.totalTimeSecs = float64(math.Float32frombits(binary.LittleEndian.Uint32(d[65:69])))
	info.startTimeMS = int64(binary.LittleEndian.Uint64(d[69:77]))
	return info, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}

// decodeRecords walks the record stream and merges the interleaved record
// types: each OSD record emits one telemetry point carrying the most recent
// gimbal, RC and battery state seen before it.
func decodeRecords(data []byte, info *logInfo, key []byte) (*decoded, error) {
	stream := data[headerSize:info.detailsOffset]
	if len(key) > 0 {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, &flight.DecodeError{Reason: fmt.Sprintf("bad keychain: %s", err)}
		}
		plain := make([]byte, len(stream))
		cipher.NewCTR(block, info.iv).XORKeyStream(plain, stream)
		stream = plain
	}

	dec := &decoded{
		droneModel:    info.droneModel,
		droneSerial:   info.droneSerial,
		aircraftName:  info.aircraftName,
		batterySerial: info.batterySerial,
		durationSecs:  info.totalTimeSecs,
	}
	if info.startTimeMS > 0 {
		start := time.UnixMilli(info.startTimeMS).UTC()
		dec.startTime = &start
	}

	// Rolling state from non-OSD records, attached to subsequent points.
	var gimbal, rc, battery *flight.TelemetryPoint

	for off := 0; off+2 <= len(stream); {
		recType := stream[off]
		recLen := int(stream[off+1])
		off += 2

		if off+recLen+1 > len(stream) {
			break // truncated trailing record
		}
		payload := stream[off : off+recLen]
		term := stream[off+recLen]
		off += recLen + 1

		if term != recordTerminator {
			return nil, &flight.DecodeError{Reason: fmt.Sprintf("record %d missing terminator", recType)}
		}

		switch recType {
		case recOSD:
			pt, err := decodeOSD(payload)
			if err != nil {
				return nil, err
			}
			mergeState(pt, gimbal, rc, battery)
			dec.points = append(dec.points, *pt)

		case recGimbal:
			gimbal = decodeGimbal(payload)

		case recRC:
			rc = decodeRC(payload)

		case recBattery:
			battery = decodeBattery(payload)

		case recVPS:
			if len(payload) >= 2 && len(dec.points) > 0 {
				v := float64(int16(binary.LittleEndian.Uint16(payload))) / 10
				dec.points[len(dec.points)-1].VPSHeight = &v
			}

		case recMessage:
			if msg := decodeMessage(payload); msg != nil {
				dec.messages = append(dec.messages, *msg)
			}

		default:
			// Unknown record types are skipped, not fatal: newer firmware
			// adds types this decoder does not know.
		}
	}

	return dec, nil
}

const osdPayloadSize = 4 + 8 + 8 + 2*9 + 3

func decodeOSD(p []byte) (*flight.TelemetryPoint, error) {
	if len(p) < osdPayloadSize {
		return nil, &flight.DecodeError{Reason: "short OSD record"}
	}

	pt := &flight.TelemetryPoint{
		TimestampMS: int64(binary.LittleEndian.Uint32(p[0:4])),
	}

	lat := math.Float64frombits(binary.LittleEndian.Uint64(p[4:12]))
	lon := math.Float64frombits(binary.LittleEndian.Uint64(p[12:20]))
	pt.Latitude = &lat
	pt.Longitude = &lon

	deci := func(off int) *float64 {
		v := float64(int16(binary.LittleEndian.Uint16(p[off:]))) / 10
		return &v
	}
	pt.Altitude = deci(20)
	pt.Height = deci(22)
	pt.VelocityX = deci(24)
	pt.VelocityY = deci(26)
	pt.VelocityZ = deci(28)
	pt.Pitch = deci(30)
	pt.Roll = deci(32)
	pt.Yaw = deci(34)

	speed := math.Sqrt(*pt.VelocityX**pt.VelocityX + *pt.VelocityY**pt.VelocityY)
	pt.Speed = &speed

	sats := int(p[36])
	gps := int(p[37])
	pt.Satellites = &sats
	pt.GPSSignalLevel = &gps

	flags := p[38]
	photo := flags&0x01 != 0
	video := flags&0x02 != 0
	pt.IsPhoto = &photo
	pt.IsVideo = &video

	return pt, nil
}

func decodeGimbal(p []byte) *flight.TelemetryPoint {
	if len(p) < 6 {
		return nil
	}
	var pt flight.TelemetryPoint
	deci := func(off int) *float64 {
		v := float64(int16(binary.LittleEndian.Uint16(p[off:]))) / 10
		return &v
	}
	pt.GimbalPitch = deci(0)
	pt.GimbalRoll = deci(2)
	pt.GimbalYaw = deci(4)
	return &pt
}

func decodeRC(p []byte) *flight.TelemetryPoint {
	if len(p) < 10 {
		return nil
	}
	var pt flight.TelemetryPoint
	stick := func(off int) *float64 {
		return normalizeStick(float64(binary.LittleEndian.Uint16(p[off:])))
	}
	pt.RCAileron = stick(0)
	pt.RCElevator = stick(2)
	pt.RCThrottle = stick(4)
	pt.RCRudder = stick(6)
	up := int(p[8])
	down := int(p[9])
	pt.RCUplink = &up
	pt.RCDownlink = &down
	return &pt
}

func decodeBattery(p []byte) *flight.TelemetryPoint {
	if len(p) < 8 {
		return nil
	}
	var pt flight.TelemetryPoint
	percent := float64(p[0])
	voltage := float64(binary.LittleEndian.Uint16(p[1:3])) / 1000
	current := float64(int16(binary.LittleEndian.Uint16(p[3:5]))) / 100
	temp := float64(int16(binary.LittleEndian.Uint16(p[5:7]))) / 10
	pt.BatteryPercent = &percent
	pt.BatteryVoltage = &voltage
	pt.BatteryCurrent = &current
	pt.BatteryTemperature = &temp

	cells := int(p[7])
	if cells > 0 && len(p) >= 8+2*cells {
		pt.CellVoltages = make([]float64, cells)
		for i := 0; i < cells; i++ {
			pt.CellVoltages[i] = float64(binary.LittleEndian.Uint16(p[8+2*i:])) / 1000
		}
	}
	return &pt
}

func decodeMessage(p []byte) *flight.Message {
	if len(p) < 5 {
		return nil
	}
	msgType, ok := messageTypes[p[4]]
	if !ok {
		msgType = "info"
	}
	return &flight.Message{
		TimestampMS: int64(binary.LittleEndian.Uint32(p[0:4])),
		Type:        msgType,
		Message:     cString(p[5:]),
	}
}

func mergeState(pt, gimbal, rc, battery *flight.TelemetryPoint) {
	if gimbal != nil {
		pt.GimbalPitch = gimbal.GimbalPitch
		pt.GimbalRoll = gimbal.GimbalRoll
		pt.GimbalYaw = gimbal.GimbalYaw
	}
	if rc != nil {
		pt.RCAileron = rc.RCAileron
		pt.RCElevator = rc.RCElevator
		pt.RCThrottle = rc.RCThrottle
		pt.RCRudder = rc.RCRudder
		pt.RCUplink = rc.RCUplink
		pt.RCDownlink = rc.RCDownlink
	}
	if battery != nil {
		pt.BatteryPercent = battery.BatteryPercent
		pt.BatteryVoltage = battery.BatteryVoltage
		pt.BatteryCurrent = battery.BatteryCurrent
		pt.BatteryTemperature = battery.BatteryTemperature
		pt.CellVoltages = battery.CellVoltages
	}
}

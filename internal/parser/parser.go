// Package parser turns heterogeneous drone flight logs (binary DJI
// flight-controller exports and two CSV dialects) into a canonical
// ParseResult: normalized telemetry points, flight metadata and tags.
package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
	"github.com/roman-kulish/flight-log-ingest/internal/tags"
)

const defaultDecodeTimeout = 40 * time.Second

// KeychainSource resolves decryption keychains for encrypted binary log
// versions, typically backed by the persistent keychain cache.
type KeychainSource interface {
	Keychain(droneSerial string, logVersion int) ([]byte, bool)
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for per-row diagnostics. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// WithKeychainSource sets the source of decryption keychains for encrypted
// binary logs. Without one, encrypted logs fail with ErrEncryptionKeyRequired.
func WithKeychainSource(ks KeychainSource) Option {
	return func(p *Parser) {
		p.keychains = ks
	}
}

// WithDecodeTimeout overrides the wall-clock budget for binary log decoding.
func WithDecodeTimeout(d time.Duration) Option {
	return func(p *Parser) {
		p.timeout = d
	}
}

// Parser converts flight log files into ParseResults. Safe for concurrent
// use; each Parse call owns its own decode state.
type Parser struct {
	logger    *slog.Logger
	keychains KeychainSource
	timeout   time.Duration
}

func New(opts ...Option) *Parser {
	p := &Parser{
		logger:  slog.Default(),
		timeout: defaultDecodeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HashFile returns the SHA-256 hex digest of the file contents. Callers hash
// before parsing so known duplicates short-circuit without a full parse.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err = io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// decoded is the per-format decoder output before validation and stats.
type decoded struct {
	points        []flight.TelemetryPoint
	droneModel    string
	droneSerial   string
	aircraftName  string
	batterySerial string
	homeLat       *float64 // explicit home override, when the log declares one
	homeLon       *float64
	startTime     *time.Time
	durationSecs  float64 // declared flight duration, for timestamp fallback
	manualTags    []string
	notes         string
	messages      []flight.Message
}

// Parse reads the file at path and produces a complete ParseResult, or a
// typed error describing why the file cannot be imported. fileHash is the
// precomputed SHA-256 of the file contents and becomes the flight's dedup
// key.
func (p *Parser) Parse(ctx context.Context, path, fileHash string) (*flight.ParseResult, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var dec *decoded
	switch format {
	case FormatDroneLogbook:
		dec, err = p.parseDroneLogbook(path)
	case FormatLitchi:
		dec, err = p.parseLitchi(path)
	case FormatDJI:
		dec, err = p.parseDJI(ctx, path)
	default:
		return nil, flight.ErrIncompatibleFile
	}
	if err != nil {
		return nil, err
	}

	points, vs := validatePoints(dec.points, int64(dec.durationSecs*1000), p.logger)
	if len(points) == 0 {
		return nil, flight.ErrNoTelemetryData
	}
	if n := vs.total(); n > 0 {
		p.logger.Info("dropped invalid telemetry",
			slog.String("file", filepath.Base(path)),
			slog.Int("corrupt", vs.corrupt),
			slog.Int("noGPS", vs.noGPS),
			slog.Int("outOfRange", vs.outOfRange),
			slog.Int("altitudeClamped", vs.altitudeClamped),
			slog.Int("speedClamped", vs.speedClamped))
	}

	stats := tags.Compute(points, dec.startTime)
	tags.ApplyHomeOverride(stats, points, dec.homeLat, dec.homeLon)
	if dec.durationSecs > 0 {
		stats.DurationSecs = dec.durationSecs
	}

	meta := flight.Metadata{
		FileName:      filepath.Base(path),
		DisplayName:   displayName(path, dec.startTime),
		FileHash:      fileHash,
		DroneModel:    dec.droneModel,
		DroneSerial:   dec.droneSerial,
		AircraftName:  dec.aircraftName,
		BatterySerial: dec.batterySerial,
		StartTime:     dec.startTime,
		DurationSecs:  stats.DurationSecs,
		TotalDistance: stats.TotalDistance,
		MaxAltitude:   stats.MaxAltitude,
		MaxSpeed:      stats.MaxSpeed,
		HomeLat:       stats.HomeLat,
		HomeLon:       stats.HomeLon,
		PointCount:    len(points),
		PhotoCount:    stats.PhotoCount,
		VideoCount:    stats.VideoCount,
	}
	if meta.StartTime != nil {
		end := meta.StartTime.Add(time.Duration(stats.DurationSecs * float64(time.Second)))
		meta.EndTime = &end
	}

	return &flight.ParseResult{
		Metadata:   meta,
		Points:     points,
		Tags:       tags.Generate(stats, dec.startTime),
		ManualTags: dec.manualTags,
		Messages:   dec.messages,
		Notes:      dec.notes,
	}, nil
}

func displayName(path string, start *time.Time) string {
	if start != nil {
		return "Flight " + start.UTC().Format("2006-01-02 15:04")
	}
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

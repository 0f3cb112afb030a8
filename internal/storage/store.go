package storage

import (
	"context"
	"io"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
)

// Store provides an interface for managing flight log data storage. It
// handles flight metadata, telemetry points, tags, messages, settings and
// decryption keychains. All writes are serialized behind a single write
// connection; each write operation should be considered atomic.
type Store interface {
	// ImportFlight persists a complete parse result as one atomic unit:
	// metadata, telemetry points, tags and messages. If point insertion
	// fails after the metadata commit, the metadata row is deleted before
	// the error is returned, so a ghost flight is never left behind.
	//
	// Returns the new flight ID and the number of points stored.
	ImportFlight(ctx context.Context, result *flight.ParseResult) (flightID int64, stored int, err error)

	// BulkInsertTelemetry appends an ordered point sequence to a flight.
	// Points whose timestamp collides with one already in the same batch
	// are skipped and counted, not treated as an error; true storage
	// faults are returned as hard errors.
	BulkInsertTelemetry(ctx context.Context, flightID int64, points []flight.TelemetryPoint) (inserted, skipped int, err error)

	// IsFileImported reports whether a file with this content hash exists,
	// and if so the display name of the matching flight.
	IsFileImported(ctx context.Context, fileHash string) (displayName string, imported bool, err error)

	// IsDuplicateFlight reports whether a flight with the same signature
	// (drone serial, battery serial, start time) already exists.
	IsDuplicateFlight(ctx context.Context, droneSerial, batterySerial string, start time.Time) (bool, error)

	// Flights returns all flights ordered by start time descending.
	Flights(ctx context.Context) ([]*flight.Metadata, error)

	// Flight returns one flight by ID, or nil when it does not exist.
	Flight(ctx context.Context, id int64) (*flight.Metadata, error)

	// DeleteFlight removes a flight and cascades to its telemetry, tags
	// and messages.
	DeleteFlight(ctx context.Context, id int64) error

	UpdateDisplayName(ctx context.Context, id int64, name string) error
	UpdateNotes(ctx context.Context, id int64, notes string) error

	// FlightTelemetry returns the flight's points, raw when the stored
	// count is within maxPoints, otherwise downsampled into time buckets:
	// numeric fields averaged, categorical fields first-by-time, booleans
	// OR-ed across the bucket.
	FlightTelemetry(ctx context.Context, flightID int64, maxPoints int) ([]flight.TelemetryPoint, error)

	// ExtractTrack returns a position-only projection for map rendering:
	// points without a usable fix are filtered, the rest uniform-stride
	// downsampled to at most maxPoints.
	ExtractTrack(ctx context.Context, flightID int64, maxPoints int) ([]flight.TrackPoint, error)

	// Messages returns the flight's event messages in time order.
	Messages(ctx context.Context, flightID int64) ([]flight.Message, error)

	AddTag(ctx context.Context, flightID int64, tag, tagType string) error
	RemoveTag(ctx context.Context, flightID int64, tag string) error
	TagsForFlight(ctx context.Context, flightID int64) ([]flight.Tag, error)

	// ReplaceAutoTags atomically swaps the flight's auto tag set; manual
	// tags are untouched.
	ReplaceAutoTags(ctx context.Context, flightID int64, tags []string) error
	RemoveAllAutoTags(ctx context.Context) error

	// Deduplicate removes duplicate flights, first by content hash, then
	// by signature, keeping the record with the most points (ties broken
	// by lowest ID), and purges orphaned rows. Idempotent.
	Deduplicate(ctx context.Context) (removed int, err error)

	// RunStartupDeduplication runs Deduplicate once per database lifetime,
	// gated by a persisted flag.
	RunStartupDeduplication(ctx context.Context) (removed int, err error)

	Setting(ctx context.Context, key string) (value string, ok bool, err error)
	SetSetting(ctx context.Context, key, value string) error

	// Keychain returns a cached decryption keychain. The signature matches
	// the parser's keychain source, so a store can be handed to the parser
	// directly.
	Keychain(droneSerial string, logVersion int) ([]byte, bool)
	StoreKeychain(ctx context.Context, droneSerial string, logVersion int, key []byte) error

	EquipmentName(ctx context.Context, serial string) (string, bool, error)
	SetEquipmentName(ctx context.Context, serial, name, kind string) error

	// OverviewStats aggregates the whole library for the dashboard.
	OverviewStats(ctx context.Context) (*OverviewStats, error)

	// ExportBackup writes every table as CSV into a tar.gz archive.
	// ImportBackup restores one, deleting rows whose flight ID or file
	// hash collides with the incoming set before loading.
	ExportBackup(ctx context.Context, w io.Writer) error
	ImportBackup(ctx context.Context, r io.Reader) error

	// Close releases all database connections. Safe to call multiple
	// times.
	Close() error
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
	"github.com/roman-kulish/flight-log-ingest/internal/parser"
	"github.com/roman-kulish/flight-log-ingest/internal/storage"
	"github.com/roman-kulish/flight-log-ingest/internal/tags"
)

// WithLogger sets the logger to use for import progress and diagnostics
func WithLogger(logger *slog.Logger) func(*Importer) {
	return func(i *Importer) {
		i.logger = logger
	}
}

// WithWorkers overrides the number of concurrent parse workers
func WithWorkers(n int) func(*Importer) {
	return func(i *Importer) {
		if n > 0 {
			i.workers = n
		}
	}
}

// Importer runs the import pipeline: files are hashed and parsed by a pool
// of workers, the results flow into a single consumer goroutine which owns
// all database writes. Per-file failures are reported and counted, never
// fatal to the batch.
type Importer struct {
	store  storage.Store
	parser *parser.Parser
	config *Config

	logger  *slog.Logger
	workers int
}

// parseOutcome is what a worker hands to the store consumer for one file.
type parseOutcome struct {
	path   string
	result *flight.ParseResult
	err    error
}

// NewImporter creates a new Importer
func NewImporter(store storage.Store, config *Config, options ...func(*Importer)) *Importer {
	i := Importer{
		store:   store,
		config:  config,
		logger:  slog.Default(),
		workers: config.Import.Workers,
	}
	if i.workers < 1 {
		i.workers = defaultWorkers
	}

	for _, option := range options {
		option(&i)
	}

	i.parser = parser.New(
		parser.WithLogger(i.logger),
		parser.WithKeychainSource(store),
		parser.WithDecodeTimeout(config.DecodeTimeout()))

	return &i
}

// ImportFiles imports the given files, parsing up to the configured number
// of files concurrently. Returns an error only for batch-level faults; a
// file that cannot be imported is logged and skipped.
func (i *Importer) ImportFiles(ctx context.Context, paths []string) error {
	enabled, err := enabledTagRules(ctx, i.store, i.config)
	if err != nil {
		return fmt.Errorf("loading tag rule settings: %w", err)
	}

	startGate := make(chan struct{})
	jobs := make(chan string)
	outcomes := make(chan parseOutcome, i.workers)

	var imported, skipped, failed int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for out := range outcomes {
			switch i.storeOutcome(ctx, out, enabled) {
			case outcomeImported:
				imported++
			case outcomeSkipped:
				skipped++
			default:
				failed++
			}
		}
	}()

	var wg sync.WaitGroup
	for range i.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			<-startGate

			for path := range jobs {
				result, err := i.parseFile(ctx, path)
				select {
				case outcomes <- parseOutcome{path: path, result: result, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	close(startGate) // Start the parse workers

feed:
	for _, path := range paths {
		select {
		case jobs <- path:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)

	wg.Wait()
	close(outcomes) // Signal the consumer to drain and stop
	<-done

	fmt.Printf("imported %d, skipped %d, failed %d\n", imported, skipped, failed)
	return ctx.Err()
}

func (i *Importer) parseFile(ctx context.Context, path string) (*flight.ParseResult, error) {
	hash, err := parser.HashFile(path)
	if err != nil {
		return nil, err
	}

	if name, ok, err := i.store.IsFileImported(ctx, hash); err != nil {
		return nil, err
	} else if ok {
		return nil, &flight.AlreadyImportedError{DisplayName: name}
	}

	return i.parser.Parse(ctx, path, hash)
}

type outcome int

const (
	outcomeImported outcome = iota
	outcomeSkipped
	outcomeFailed
)

// storeOutcome classifies one parse result and, on success, commits it.
// Runs only on the consumer goroutine so writes stay serialized.
func (i *Importer) storeOutcome(ctx context.Context, out parseOutcome, enabled map[string]bool) outcome {
	name := filepath.Base(out.path)

	if out.err != nil {
		var already *flight.AlreadyImportedError
		switch {
		case errors.As(out.err, &already):
			i.logger.Info("skipping, already imported",
				slog.String("file", name), slog.String("as", already.DisplayName))
			return outcomeSkipped
		case errors.Is(out.err, flight.ErrEncryptionKeyRequired):
			i.logger.Warn("log is encrypted and no cached keychain matches, skipping",
				slog.String("file", name))
			return outcomeSkipped
		case errors.Is(out.err, flight.ErrIncompatibleFile):
			i.logger.Warn("unrecognized file format, skipping", slog.String("file", name))
			return outcomeSkipped
		case errors.Is(out.err, flight.ErrNoTelemetryData):
			i.logger.Warn("no usable telemetry in file, skipping", slog.String("file", name))
			return outcomeSkipped
		case errors.Is(out.err, flight.ErrDecodeTimeout),
			errors.Is(out.err, flight.ErrDecodeFailed):
			i.logger.Error("decoding failed",
				slog.String("file", name), slog.Any("error", out.err))
			return outcomeFailed
		default:
			i.logger.Error("import failed",
				slog.String("file", name), slog.Any("error", out.err))
			return outcomeFailed
		}
	}

	result := out.result
	result.Tags = tags.Filter(result.Tags, enabled)

	meta := &result.Metadata

	// A batch can carry the same file twice. The worker-side hash check
	// runs before the first copy lands, so the write path re-checks.
	if prior, ok, err := i.store.IsFileImported(ctx, meta.FileHash); err != nil {
		i.logger.Error("duplicate file check failed",
			slog.String("file", name), slog.Any("error", err))
		return outcomeFailed
	} else if ok {
		i.logger.Info("skipping, already imported",
			slog.String("file", name), slog.String("as", prior))
		return outcomeSkipped
	}
	if meta.StartTime != nil {
		dup, err := i.store.IsDuplicateFlight(ctx, meta.DroneSerial, meta.BatterySerial, *meta.StartTime)
		if err != nil {
			i.logger.Error("duplicate check failed",
				slog.String("file", name), slog.Any("error", err))
		} else if dup {
			// Same aircraft, battery and start time but different file
			// contents. Import anyway; dedup keeps the richer record.
			i.logger.Warn("flight signature matches an existing flight",
				slog.String("file", name))
		}
	}

	flightID, stored, err := i.store.ImportFlight(ctx, result)
	if err != nil {
		i.logger.Error("storing flight failed",
			slog.String("file", name), slog.Any("error", err))
		return outcomeFailed
	}

	i.logger.Info("imported flight",
		slog.String("file", name),
		slog.Int64("flightID", flightID),
		slog.String("points", humanize.Comma(int64(stored))),
		slog.Float64("durationSecs", meta.DurationSecs))
	return outcomeImported
}

package app

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
	"github.com/roman-kulish/flight-log-ingest/internal/storage"
	"github.com/roman-kulish/flight-log-ingest/internal/tags"
)

func Run(ctx context.Context, config *Config, args []string, logger *slog.Logger) error {
	store := storage.NewSqliteStore(config.Storage.DatabasePath, storage.WithLogger(logger))
	defer store.Close()

	// One-time cleanup for databases created before duplicate detection
	// existed.
	if removed, err := store.RunStartupDeduplication(ctx); err != nil {
		return fmt.Errorf("startup deduplication: %w", err)
	} else if removed > 0 {
		logger.Info("startup deduplication removed flights", slog.Int("count", removed))
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "import":
		fs := flag.NewFlagSet("import", flag.ContinueOnError)
		workers := fs.Int("j", 0, "Number of concurrent parse workers (overrides configuration)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if fs.NArg() == 0 {
			return errors.New("import: no files given")
		}
		importer := NewImporter(store, config, WithLogger(logger), WithWorkers(*workers))
		return importer.ImportFiles(ctx, fs.Args())

	case "add":
		if len(rest) < 3 {
			return errors.New(`add: want <name> <start> <duration-secs>, e.g. add "Test hover" "2024-03-01 14:22" 300`)
		}
		return addManualEntry(ctx, store, rest[0], rest[1], rest[2])

	case "list":
		return listFlights(ctx, store)

	case "show":
		id, err := parseID(rest, "show")
		if err != nil {
			return err
		}
		return showFlight(ctx, store, config, id)

	case "delete":
		id, err := parseID(rest, "delete")
		if err != nil {
			return err
		}
		return store.DeleteFlight(ctx, id)

	case "rename":
		if len(rest) < 2 {
			return errors.New("rename: want <id> <name>")
		}
		id, err := parseID(rest[:1], "rename")
		if err != nil {
			return err
		}
		return store.UpdateDisplayName(ctx, id, strings.Join(rest[1:], " "))

	case "note":
		if len(rest) < 2 {
			return errors.New("note: want <id> <text>")
		}
		id, err := parseID(rest[:1], "note")
		if err != nil {
			return err
		}
		return store.UpdateNotes(ctx, id, strings.Join(rest[1:], " "))

	case "tag":
		if len(rest) != 2 {
			return errors.New("tag: want <id> <tag>")
		}
		id, err := parseID(rest[:1], "tag")
		if err != nil {
			return err
		}
		return store.AddTag(ctx, id, rest[1], flight.TagTypeManual)

	case "untag":
		if len(rest) != 2 {
			return errors.New("untag: want <id> <tag>")
		}
		id, err := parseID(rest[:1], "untag")
		if err != nil {
			return err
		}
		return store.RemoveTag(ctx, id, rest[1])

	case "retag":
		if len(rest) == 0 {
			return regenerateAllTags(ctx, store, config, logger)
		}
		id, err := parseID(rest, "retag")
		if err != nil {
			return err
		}
		return regenerateTags(ctx, store, config, id)

	case "points":
		id, err := parseID(rest, "points")
		if err != nil {
			return err
		}
		return exportPoints(ctx, store, os.Stdout, id, config.Storage.MaxPoints)

	case "dedup":
		removed, err := store.Deduplicate(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d duplicate flight(s)\n", removed)
		return nil

	case "stats":
		return printOverview(ctx, store)

	case "backup":
		if len(rest) != 1 {
			return errors.New("backup: want <file>")
		}
		return exportBackup(ctx, store, rest[0])

	case "restore":
		if len(rest) != 1 {
			return errors.New("restore: want <file>")
		}
		return importBackup(ctx, store, rest[0])

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseID(args []string, cmd string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%s: want <id>", cmd)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid flight id %q", cmd, args[0])
	}
	return id, nil
}

func addManualEntry(ctx context.Context, store storage.Store, name, startArg, durationArg string) error {
	var start time.Time
	var err error
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 15:04:05", time.RFC3339} {
		if start, err = time.ParseInLocation(layout, startArg, time.Local); err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("add: invalid start time %q", startArg)
	}

	duration, err := strconv.ParseFloat(durationArg, 64)
	if err != nil || duration <= 0 {
		return fmt.Errorf("add: invalid duration %q", durationArg)
	}

	id, _, err := store.ImportFlight(ctx, &flight.ParseResult{
		Metadata: flight.NewManualEntry(name, start, duration),
	})
	if err != nil {
		return err
	}
	fmt.Printf("added manual entry %d: %s\n", id, name)
	return nil
}

func listFlights(ctx context.Context, store storage.Store) error {
	flights, err := store.Flights(ctx)
	if err != nil {
		return err
	}
	if len(flights) == 0 {
		fmt.Println("no flights imported")
		return nil
	}

	for _, m := range flights {
		start := "unknown"
		if m.StartTime != nil {
			start = m.StartTime.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-14d %-20s %-30s %6.0fs %8s points\n",
			m.ID, start, m.DisplayName, m.DurationSecs, humanize.Comma(int64(m.PointCount)))
	}
	return nil
}

func showFlight(ctx context.Context, store storage.Store, config *Config, id int64) error {
	m, err := store.Flight(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("flight %d not found", id)
	}

	fmt.Printf("Flight %d: %s\n", m.ID, m.DisplayName)
	fmt.Printf("  file:     %s (%s)\n", m.FileName, m.FileHash[:min(12, len(m.FileHash))])
	if m.DroneModel != "" {
		fmt.Printf("  aircraft: %s", m.DroneModel)
		if m.AircraftName != "" {
			fmt.Printf(" (%s)", m.AircraftName)
		}
		fmt.Println()
	}
	if m.StartTime != nil {
		fmt.Printf("  start:    %s\n", m.StartTime.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Printf("  duration: %.0fs  distance: %.0fm  max alt: %.1fm  max speed: %.1fm/s\n",
		m.DurationSecs, m.TotalDistance, m.MaxAltitude, m.MaxSpeed)
	fmt.Printf("  points:   %s (%d photos, %d videos)\n",
		humanize.Comma(int64(m.PointCount)), m.PhotoCount, m.VideoCount)
	if m.Notes != "" {
		fmt.Printf("  notes:    %s\n", m.Notes)
	}

	flightTags, err := store.TagsForFlight(ctx, id)
	if err != nil {
		return err
	}
	if len(flightTags) > 0 {
		parts := make([]string, len(flightTags))
		for i, t := range flightTags {
			parts[i] = t.Tag
			if t.Type == flight.TagTypeManual {
				parts[i] += "*"
			}
		}
		fmt.Printf("  tags:     %s\n", strings.Join(parts, ", "))
	}

	messages, err := store.Messages(ctx, id)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		fmt.Printf("  [%8.1fs] %s: %s\n", float64(msg.TimestampMS)/1000, msg.Type, msg.Message)
	}
	return nil
}

// exportPoints writes a flight's telemetry as CSV, downsampled to the
// configured point limit.
func exportPoints(ctx context.Context, store storage.Store, w io.Writer, id int64, maxPoints int) error {
	m, err := store.Flight(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("flight %d not found", id)
	}

	points, err := store.FlightTelemetry(ctx, id, maxPoints)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err = cw.Write([]string{
		"timestamp_ms", "latitude", "longitude", "altitude", "height",
		"speed", "battery_percent", "satellites",
	}); err != nil {
		return err
	}
	for i := range points {
		pt := &points[i]
		record := []string{
			strconv.FormatInt(pt.TimestampMS, 10),
			floatCell(pt.Latitude),
			floatCell(pt.Longitude),
			floatCell(pt.Altitude),
			floatCell(pt.Height),
			floatCell(pt.Speed),
			floatCell(pt.BatteryPercent),
			intCell(pt.Satellites),
		}
		if err = cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// enabledTagRules merges the configured rule toggles with the persisted
// disabled set.
func enabledTagRules(ctx context.Context, store storage.Store, config *Config) (map[string]bool, error) {
	enabled := make(map[string]bool)
	for _, id := range tags.AllRules() {
		enabled[id] = true
	}
	for _, id := range config.Tags.DisabledRules {
		enabled[id] = false
	}

	stored, ok, err := store.Setting(ctx, "disabled_tag_rules")
	if err != nil {
		return nil, err
	}
	if ok {
		for _, id := range strings.Split(stored, ",") {
			if id = strings.TrimSpace(id); id != "" {
				enabled[id] = false
			}
		}
	}
	return enabled, nil
}

func regenerateTags(ctx context.Context, store storage.Store, config *Config, id int64) error {
	m, err := store.Flight(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("flight %d not found", id)
	}

	enabled, err := enabledTagRules(ctx, store, config)
	if err != nil {
		return err
	}

	// Asking for exactly point_count points keeps the read raw; tags
	// derived from downsampled data would drift.
	points, err := store.FlightTelemetry(ctx, id, max(m.PointCount, 1))
	if err != nil {
		return err
	}

	stats := tags.Compute(points, m.StartTime)
	generated := tags.Filter(tags.Generate(stats, m.StartTime), enabled)
	return store.ReplaceAutoTags(ctx, id, generated)
}

func regenerateAllTags(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) error {
	flights, err := store.Flights(ctx)
	if err != nil {
		return err
	}
	for _, m := range flights {
		if err = regenerateTags(ctx, store, config, m.ID); err != nil {
			return fmt.Errorf("regenerating tags for flight %d: %w", m.ID, err)
		}
		logger.Debug("regenerated tags", slog.Int64("flightID", m.ID))
	}
	return nil
}

func printOverview(ctx context.Context, store storage.Store) error {
	stats, err := store.OverviewStats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Flights:       %d\n", stats.TotalFlights)
	fmt.Printf("Airtime:       %.1f h\n", stats.TotalDurationSecs/3600)
	fmt.Printf("Distance:      %.1f km\n", stats.TotalDistance/1000)
	fmt.Printf("Max altitude:  %.1f m\n", stats.MaxAltitude)
	fmt.Printf("Max speed:     %.1f m/s\n", stats.MaxSpeed)

	if len(stats.DroneUsage) > 0 {
		fmt.Println("\nBy aircraft:")
		for _, e := range stats.DroneUsage {
			fmt.Printf("  %-30s %4d flights %8.1f h\n", e.Name, e.Flights, e.DurationSecs/3600)
		}
	}
	if len(stats.TopByDuration) > 0 {
		fmt.Println("\nLongest flights:")
		for _, r := range stats.TopByDuration {
			fmt.Printf("  %-30s %8.0f s\n", r.DisplayName, r.Value)
		}
	}
	if len(stats.TopByDistance) > 0 {
		fmt.Println("\nFarthest flights:")
		for _, r := range stats.TopByDistance {
			fmt.Printf("  %-30s %8.0f m\n", r.DisplayName, r.Value)
		}
	}
	return nil
}

func exportBackup(ctx context.Context, store storage.Store, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating backup file: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if err = store.ExportBackup(ctx, f); err != nil {
		return fmt.Errorf("exporting backup: %w", err)
	}

	info, err := f.Stat()
	if err == nil {
		fmt.Printf("wrote %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
	}
	return nil
}

func importBackup(ctx context.Context, store storage.Store, path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening backup file: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if err = store.ImportBackup(ctx, f); err != nil {
		return fmt.Errorf("importing backup: %w", err)
	}
	fmt.Println("backup restored")
	return nil
}

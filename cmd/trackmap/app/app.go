package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"

	"github.com/roman-kulish/flight-log-ingest/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath, storage.WithLogger(logger))
	defer store.Close()

	return renderTrack(ctx, store, config, logger)
}

func renderTrack(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) error {
	meta, err := store.Flight(ctx, config.FlightID)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("flight %d does not exist", config.FlightID)
	}

	points, err := store.ExtractTrack(ctx, config.FlightID, config.MaxPoints)
	if err != nil {
		return err
	}

	track, err := NewTrackData(points)
	if err != nil {
		return fmt.Errorf("flight %d has no drawable track: %w", config.FlightID, err)
	}

	logger.Info("rendering track",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", config.Width),
			slog.Int("points", len(track.Points)),
		))

	renderer := NewTrackRenderer(RenderConfig{
		Width: config.Width,
		Theme: config.Theme,
	})

	img, err := renderer.Render(track)
	if err != nil {
		return fmt.Errorf("rendering track: %w", err)
	}

	if !config.NoAnnotations && config.FontFile != "" {
		annotator, err := NewAnnotator(config.FontFile)
		if err != nil {
			return err
		}
		if err = annotator.Annotate(img, meta, track); err != nil {
			return err
		}
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}

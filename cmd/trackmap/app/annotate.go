package app

import (
	"fmt"
	"image"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
)

const (
	dpi     float64 = 72
	size    float64 = 18
	spacing float64 = 1.1
)

type Annotator struct {
	context *freetype.Context
}

// NewAnnotator loads a TTF font from fontFile and prepares a drawing
// context for it.
func NewAnnotator(fontFile string) (*Annotator, error) {
	fontBytes, err := os.ReadFile(fontFile)
	if err != nil {
		return nil, fmt.Errorf("reading font file: %w", err)
	}

	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.White)
	context.SetHinting(font.HintingFull)

	return &Annotator{context: context}, nil
}

// Annotate draws the flight summary block into the lower left corner.
func (a *Annotator) Annotate(img *image.RGBA, meta *flight.Metadata, track *TrackData) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	strings := []string{
		meta.DisplayName,
		fmt.Sprintf("Duration: %s", a.humanSecs(meta.DurationSecs)),
		fmt.Sprintf("Distance: %s", a.humanMeters(meta.TotalDistance)),
		fmt.Sprintf("Max altitude: %.1f m", meta.MaxAltitude),
		fmt.Sprintf("Max speed: %.1f m/s", meta.MaxSpeed),
		fmt.Sprintf("Points: %s", humanize.Comma(int64(len(track.Points)))),
	}
	if meta.StartTime != nil {
		strings[0] = fmt.Sprintf("%s (%s)", meta.DisplayName, meta.StartTime.Format("2006-01-02 15:04"))
	}

	imgSize := img.Bounds().Size()
	lineHeight := size * spacing
	top, left := imgSize.Y-len(strings)*int(lineHeight)-5, 5

	pt := freetype.Pt(left, top)
	for _, s := range strings {
		if _, err := a.context.DrawString(s, pt); err != nil {
			return fmt.Errorf("drawing annotation: %w", err)
		}
		pt.Y += a.context.PointToFixed(size * spacing)
	}

	return nil
}

func (a *Annotator) humanSecs(secs float64) string {
	if secs < 60 {
		return fmt.Sprintf("%.0f s", secs)
	}
	return fmt.Sprintf("%d:%02d min", int(secs)/60, int(secs)%60)
}

func (a *Annotator) humanMeters(m float64) string {
	fract, suffix := humanize.ComputeSI(m)
	return fmt.Sprintf("%0.2f %sm", fract, suffix)
}

package app

import (
	"errors"
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
)

const (
	marginFrac  = 0.06 // Margin around the track as a fraction of image width
	superSample = 2    // Render at Nx and downscale for smooth lines
	lineRadius  = 3    // Brush radius at supersampled scale, in pixels

	minAspect = 0.4
	maxAspect = 1.5
)

var backgroundColor = color.RGBA{R: 0x10, G: 0x10, B: 0x18, A: 0xff}

// TrackData holds a track projected into a local planar frame. GPS
// coordinates are projected equirectangular with the longitude axis scaled
// by cos(midLat), which is accurate to well under a meter at flight scale.
type TrackData struct {
	Points []flight.TrackPoint

	MinX, MaxX           float64 // Projected meters east
	MinY, MaxY           float64 // Projected meters north
	MinHeight, MaxHeight float64
}

func NewTrackData(points []flight.TrackPoint) (*TrackData, error) {
	if len(points) < 2 {
		return nil, errors.New("track has fewer than two points")
	}

	t := &TrackData{
		Points:    points,
		MinX:      math.Inf(1),
		MaxX:      math.Inf(-1),
		MinY:      math.Inf(1),
		MaxY:      math.Inf(-1),
		MinHeight: math.Inf(1),
		MaxHeight: math.Inf(-1),
	}

	midLat := (points[0].Latitude + points[len(points)-1].Latitude) / 2
	cosLat := math.Cos(midLat * math.Pi / 180)

	for _, p := range points {
		x := p.Longitude * cosLat
		y := p.Latitude

		t.MinX = math.Min(t.MinX, x)
		t.MaxX = math.Max(t.MaxX, x)
		t.MinY = math.Min(t.MinY, y)
		t.MaxY = math.Max(t.MaxY, y)
		t.MinHeight = math.Min(t.MinHeight, p.Height)
		t.MaxHeight = math.Max(t.MaxHeight, p.Height)
	}

	return t, nil
}

// project maps a track point to supersampled pixel coordinates.
func (t *TrackData) project(p flight.TrackPoint, width, height, margin int, cosLat float64) (int, int) {
	spanX := t.MaxX - t.MinX
	spanY := t.MaxY - t.MinY
	if spanX == 0 {
		spanX = 1e-9
	}
	if spanY == 0 {
		spanY = 1e-9
	}

	x := p.Longitude*cosLat - t.MinX
	y := p.Latitude - t.MinY

	px := margin + int(x/spanX*float64(width-2*margin))
	// Image Y grows down, latitude grows up
	py := height - margin - int(y/spanY*float64(height-2*margin))
	return px, py
}

type RenderConfig struct {
	Width int
	Theme ColorTheme
}

type TrackRenderer struct {
	config RenderConfig
}

func NewTrackRenderer(config RenderConfig) *TrackRenderer {
	return &TrackRenderer{config: config}
}

// Render draws the track polyline colored by height and returns the final
// downscaled image.
func (r *TrackRenderer) Render(track *TrackData) (*image.RGBA, error) {
	width := r.config.Width * superSample
	height := r.imageHeight(track) * superSample
	margin := int(float64(width) * marginFrac)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, xdraw.Src)

	midLat := (track.MinY + track.MaxY) / 2
	cosLat := math.Cos(midLat * math.Pi / 180)

	mapper := NewHeightMapper(256, r.config.Theme, track.MinHeight, track.MaxHeight)

	x0, y0 := track.project(track.Points[0], width, height, margin, cosLat)
	for _, p := range track.Points[1:] {
		x1, y1 := track.project(p, width, height, margin, cosLat)
		drawLine(img, x0, y0, x1, y1, lineRadius, mapper.GetColor(p.Height))
		x0, y0 = x1, y1
	}

	// Start and end markers on top of the polyline
	sx, sy := track.project(track.Points[0], width, height, margin, cosLat)
	ex, ey := track.project(track.Points[len(track.Points)-1], width, height, margin, cosLat)
	drawDisc(img, sx, sy, lineRadius*3, color.RGBA{G: 0xff, A: 0xff})
	drawDisc(img, ex, ey, lineRadius*3, color.RGBA{R: 0xff, A: 0xff})

	out := image.NewRGBA(image.Rect(0, 0, width/superSample, height/superSample))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return out, nil
}

// imageHeight derives the output height from the track's aspect ratio,
// clamped so degenerate tracks still produce a usable image.
func (r *TrackRenderer) imageHeight(track *TrackData) int {
	spanX := track.MaxX - track.MinX
	spanY := track.MaxY - track.MinY

	aspect := maxAspect
	if spanX > 0 {
		aspect = math.Max(minAspect, math.Min(maxAspect, spanY/spanX))
	}
	return int(float64(r.config.Width) * aspect)
}

// drawLine draws a thick line segment using Bresenham with a disc brush.
func drawLine(img *image.RGBA, x0, y0, x1, y1, radius int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy

	for {
		drawDisc(img, x0, y0, radius, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func drawDisc(img *image.RGBA, cx, cy, radius int, c color.Color) {
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y <= radius*radius {
				img.Set(cx+x, cy+y, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package app

import (
	"image/color"
	"math"
)

const (
	ClassicTheme   ColorTheme = "classic"
	GrayscaleTheme ColorTheme = "grayscale"
	ThermalTheme   ColorTheme = "thermal"
)

type ColorTheme string

var validColorThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	ThermalTheme:   {},
}

// HSV represents a color in HSV color space
type HSV struct {
	H float64 // Hue [0-360]
	S float64 // Saturation [0-1]
	V float64 // Value [0-1]
}

// RGB converts HSV color space to RGB
// H: [0-360], S: [0-1], V: [0-1]
func (hsv HSV) RGB() color.Color {
	h := hsv.H
	s := hsv.S
	v := hsv.V

	if s <= 0.0 {
		rgb := uint8(v * 255)
		return color.RGBA{R: rgb, G: rgb, B: rgb, A: 0xff}
	}

	h = math.Mod(h, 360) / 60
	i := math.Floor(h)
	f := h - i

	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	var r, g, b float64

	switch int(i) {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}

	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 0xff}
}

// GetColorTheme returns a function mapping a normalized height [0,1] to the
// track segment color for the theme.
func GetColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case GrayscaleTheme: // Dark Gray -> White
		return func(height float64) color.Color {
			v := uint8(64 + math.Pow(height, 0.7)*191)
			return color.RGBA{R: v, G: v, B: v, A: 0xff}
		}

	case ThermalTheme: // Red -> Yellow -> White
		return func(height float64) color.Color {
			if height < 0.5 {
				return color.RGBA{R: 255, G: uint8(height * 2 * 255), A: 0xff}
			}
			return color.RGBA{R: 255, G: 255, B: uint8((height - 0.5) * 2 * 255), A: 0xff}
		}

	default: // Classic: Blue (low) -> Red (high)
		return func(height float64) color.Color {
			hsv := HSV{
				H: 240 - (height * 240),
				S: 0.9 + (height * 0.1),
				V: 1.0,
			}
			return hsv.RGB()
		}
	}
}

// HeightMapper maps a track point height to a segment color using a
// pre-computed color table over the flight's height range.
type HeightMapper struct {
	colorMap       []color.Color
	minHeight      float64
	heightPerIndex float64
	size           int
}

func NewHeightMapper(size int, theme ColorTheme, minHeight, maxHeight float64) *HeightMapper {
	hm := &HeightMapper{
		colorMap:  make([]color.Color, size),
		minHeight: minHeight,
		size:      size,
	}

	span := maxHeight - minHeight
	if span <= 0 {
		span = 1 // Flat flight, every index maps to the low color
	}
	hm.heightPerIndex = span / float64(size-1)

	themeFn := GetColorTheme(theme)
	for i := 0; i < size; i++ {
		normalized := float64(i) / float64(size-1)
		hm.colorMap[i] = themeFn(normalized)
	}

	return hm
}

func (hm *HeightMapper) GetColor(height float64) color.Color {
	index := int((height - hm.minHeight) / hm.heightPerIndex)

	if index < 0 {
		index = 0
	} else if index >= hm.size {
		index = hm.size - 1
	}

	return hm.colorMap[index]
}

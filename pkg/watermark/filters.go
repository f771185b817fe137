package watermark

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"watermarkstudio/pkg/composition"
)

// ApplyFilters returns img with f applied in a fixed order: brightness,
// contrast, saturation, grayscale, blur. img itself is not modified unless
// f is the identity, in which case it is returned as is.
func ApplyFilters(img *image.NRGBA, f composition.Filters) *image.NRGBA {
	if f.Identity() {
		return img
	}
	out := img
	if f.BrightnessPct != 100 {
		k := f.BrightnessPct / 100
		out = imaging.AdjustFunc(out, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{R: scale8(c.R, k), G: scale8(c.G, k), B: scale8(c.B, k), A: c.A}
		})
	}
	if f.ContrastPct != 100 {
		out = imaging.AdjustContrast(out, f.ContrastPct-100)
	}
	if f.SaturationPct != 100 {
		out = imaging.AdjustSaturation(out, f.SaturationPct-100)
	}
	if f.GrayscalePct > 0 {
		g := f.GrayscalePct / 100
		out = imaging.AdjustFunc(out, func(c color.NRGBA) color.NRGBA {
			y := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
			return color.NRGBA{R: toward(c.R, y, g), G: toward(c.G, y, g), B: toward(c.B, y, g), A: c.A}
		})
	}
	if f.BlurPx > 0 {
		out = imaging.Blur(out, f.BlurPx)
	}
	if out == img {
		out = imaging.Clone(img)
	}
	return out
}

func scale8(v uint8, k float64) uint8 {
	return clamp8(float64(v) * k)
}

func toward(v uint8, target, t float64) uint8 {
	return clamp8(float64(v) + (target-float64(v))*t)
}

func clamp8(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

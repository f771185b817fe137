package composition

import (
	"image/color"
	"math"

	"watermarkstudio/pkg/geometry"
)

// Default parameter values for a fresh session.
const (
	DefaultText        = "Watermark"
	DefaultFontFamily  = "goregular"
	DefaultFontSizePx  = 48
	DefaultOpacity     = 0.35
	DefaultTextAnchorX = 80
	DefaultTextAnchorY = 80
	DefaultLogoScale   = 0.3
	DefaultLogoAnchorX = 120
	DefaultLogoAnchorY = 120
)

// Accepted parameter ranges. Patches are clamped into them.
const (
	MinLogoScale = 0.01
	MaxLogoScale = 0.99
	MaxTonePct   = 200
	MaxGrayPct   = 100
	MaxBlurPx    = 10
)

// TextWatermark describes the text layer. AnchorX/AnchorY are design-space
// pixels: they are applied verbatim to whatever surface is rendered, preview
// or export.
type TextWatermark struct {
	Text        string
	FontFamily  string
	FontSizePx  float64
	Color       color.NRGBA
	Opacity     float64
	RotationDeg float64
	AnchorX     float64
	AnchorY     float64
}

// LogoWatermark describes the image layer. A nil Mark means no logo has
// been supplied. RelativeScale is a fraction of min(surfaceW, surfaceH).
type LogoWatermark struct {
	Mark          *Handle
	RelativeScale float64
	Opacity       float64
	RotationDeg   float64
	AnchorX       float64
	AnchorY       float64
}

// Present reports whether a logo bitmap is loaded.
func (l LogoWatermark) Present() bool {
	return !l.Mark.Released()
}

// Filters are applied to the base image only.
type Filters struct {
	BrightnessPct float64
	ContrastPct   float64
	SaturationPct float64
	GrayscalePct  float64
	BlurPx        float64
}

// Identity reports whether f leaves the base image untouched.
func (f Filters) Identity() bool {
	return f == DefaultFilters()
}

// DefaultTextWatermark returns the text layer of a fresh session.
func DefaultTextWatermark() TextWatermark {
	return TextWatermark{
		Text:       DefaultText,
		FontFamily: DefaultFontFamily,
		FontSizePx: DefaultFontSizePx,
		Color:      color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		Opacity:    DefaultOpacity,
		AnchorX:    DefaultTextAnchorX,
		AnchorY:    DefaultTextAnchorY,
	}
}

// DefaultLogoWatermark returns logo parameters without a bitmap.
func DefaultLogoWatermark() LogoWatermark {
	return LogoWatermark{
		RelativeScale: DefaultLogoScale,
		Opacity:       DefaultOpacity,
		AnchorX:       DefaultLogoAnchorX,
		AnchorY:       DefaultLogoAnchorY,
	}
}

// DefaultFilters returns the identity filter set.
func DefaultFilters() Filters {
	return Filters{BrightnessPct: 100, ContrastPct: 100, SaturationPct: 100}
}

// Params is the undoable part of the composition: everything except the
// image collection. It is a plain value; copies never alias.
type Params struct {
	Text          TextWatermark
	Logo          LogoWatermark
	Filters       Filters
	ActiveImageID string
}

// TextPatch changes only its non-nil fields.
type TextPatch struct {
	Text        *string
	FontFamily  *string
	FontSizePx  *float64
	Color       *color.NRGBA
	Opacity     *float64
	RotationDeg *float64
	AnchorX     *float64
	AnchorY     *float64
}

func (p TextPatch) apply(t TextWatermark) TextWatermark {
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.FontFamily != nil {
		t.FontFamily = *p.FontFamily
	}
	if p.FontSizePx != nil {
		t.FontSizePx = math.Max(1, *p.FontSizePx)
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	if p.Opacity != nil {
		t.Opacity = geometry.Clamp(*p.Opacity, 0, 1)
	}
	if p.RotationDeg != nil {
		t.RotationDeg = normalizeDeg(*p.RotationDeg)
	}
	if p.AnchorX != nil {
		t.AnchorX = *p.AnchorX
	}
	if p.AnchorY != nil {
		t.AnchorY = *p.AnchorY
	}
	return t
}

// LogoPatch changes only its non-nil fields. The bitmap is set through
// State.SetLogoImage.
type LogoPatch struct {
	RelativeScale *float64
	Opacity       *float64
	RotationDeg   *float64
	AnchorX       *float64
	AnchorY       *float64
}

func (p LogoPatch) apply(l LogoWatermark) LogoWatermark {
	if p.RelativeScale != nil {
		l.RelativeScale = geometry.Clamp(*p.RelativeScale, MinLogoScale, MaxLogoScale)
	}
	if p.Opacity != nil {
		l.Opacity = geometry.Clamp(*p.Opacity, 0, 1)
	}
	if p.RotationDeg != nil {
		l.RotationDeg = normalizeDeg(*p.RotationDeg)
	}
	if p.AnchorX != nil {
		l.AnchorX = *p.AnchorX
	}
	if p.AnchorY != nil {
		l.AnchorY = *p.AnchorY
	}
	return l
}

// FilterPatch changes only its non-nil fields.
type FilterPatch struct {
	BrightnessPct *float64
	ContrastPct   *float64
	SaturationPct *float64
	GrayscalePct  *float64
	BlurPx        *float64
}

func (p FilterPatch) apply(f Filters) Filters {
	if p.BrightnessPct != nil {
		f.BrightnessPct = geometry.Clamp(*p.BrightnessPct, 0, MaxTonePct)
	}
	if p.ContrastPct != nil {
		f.ContrastPct = geometry.Clamp(*p.ContrastPct, 0, MaxTonePct)
	}
	if p.SaturationPct != nil {
		f.SaturationPct = geometry.Clamp(*p.SaturationPct, 0, MaxTonePct)
	}
	if p.GrayscalePct != nil {
		f.GrayscalePct = geometry.Clamp(*p.GrayscalePct, 0, MaxGrayPct)
	}
	if p.BlurPx != nil {
		f.BlurPx = geometry.Clamp(*p.BlurPx, 0, MaxBlurPx)
	}
	return f
}

// normalizeDeg maps d into (-180, 180].
func normalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// Ptr is a convenience for building patches from literals.
func Ptr[T any](v T) *T {
	return &v
}

// Package watermark is the render pipeline: it composes a source image, its
// filters and the text and logo layers onto a surface of any size. Preview
// and export both render through Renderer, so they cannot drift apart.
package watermark

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"watermarkstudio/pkg/composition"
	"watermarkstudio/pkg/geometry"
)

var (
	// ErrEmptySurface is returned for a target with zero area.
	ErrEmptySurface = errors.New("render target has zero area")
	// ErrReleased is returned when the source bitmap was already released.
	ErrReleased = errors.New("source bitmap released")
)

// Scene is everything besides the source image that affects the output.
type Scene struct {
	Filters composition.Filters
	Text    composition.TextWatermark
	Logo    composition.LogoWatermark
}

// SceneOf extracts the render inputs from session parameters.
func SceneOf(p composition.Params) Scene {
	return Scene{Filters: p.Filters, Text: p.Text, Logo: p.Logo}
}

// Renderer draws scenes. It caches font faces and is safe for concurrent use.
type Renderer struct {
	mu       sync.Mutex
	faces    map[string]font.Face
	fontPath string
	logger   *slog.Logger
}

// NewRenderer returns a Renderer. fontPath, when set, is the fallback font
// for unknown families; Go Regular is used otherwise.
func NewRenderer(fontPath string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{faces: map[string]font.Face{}, fontPath: fontPath, logger: logger}
}

// Render composes sc over src on a new width×height surface.
func (r *Renderer) Render(src image.Image, sc Scene, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptySurface, width, height)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if err := r.RenderInto(dst, src, sc); err != nil {
		return nil, err
	}
	return dst, nil
}

// RenderInto composes sc over src onto dst, replacing its contents. The
// order is fixed: filtered base, then text, then logo. Filters never touch
// the watermark layers. src is only read.
func (r *Renderer) RenderInto(dst *image.NRGBA, src image.Image, sc Scene) error {
	b := dst.Bounds()
	if b.Empty() {
		return fmt.Errorf("%w: %dx%d", ErrEmptySurface, b.Dx(), b.Dy())
	}
	if src == nil {
		return ErrReleased
	}

	base := imaging.Resize(src, b.Dx(), b.Dy(), imaging.Lanczos)
	base = ApplyFilters(base, sc.Filters)
	draw.Draw(dst, b, base, image.Point{}, draw.Src)

	if err := r.drawText(dst, sc.Text); err != nil {
		return err
	}
	r.drawLogo(dst, sc.Logo)
	return nil
}

func (r *Renderer) drawText(dst *image.NRGBA, t composition.TextWatermark) error {
	alpha := float64(t.Color.A) / 255 * geometry.Clamp(t.Opacity, 0, 1)
	if t.Text == "" || alpha <= 0 || t.FontSizePx <= 0 {
		return nil
	}

	r.mu.Lock()
	tile, err := r.textTile(t)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if tile == nil {
		return nil
	}
	setOpacity(tile, alpha)
	compose(dst, tile, t.AnchorX, t.AnchorY, t.RotationDeg, 1, 1, draw.BiLinear)
	return nil
}

// textTile rasterizes t.Text in opaque t.Color with its top at y=0, the
// equivalent of a top text baseline.
func (r *Renderer) textTile(t composition.TextWatermark) (*image.NRGBA, error) {
	face, err := r.fontFace(t.FontFamily, t.FontSizePx)
	if err != nil {
		return nil, err
	}
	m := face.Metrics()
	w := fixedToInt(font.MeasureString(face, t.Text))
	h := fixedToInt(m.Ascent + m.Descent)
	if w <= 0 || h <= 0 {
		return nil, nil
	}

	tile := image.NewNRGBA(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  tile,
		Src:  image.NewUniform(color.NRGBA{R: t.Color.R, G: t.Color.G, B: t.Color.B, A: 255}),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: m.Ascent},
	}
	d.DrawString(t.Text)

	if !hasAlpha(tile) {
		r.logger.Warn("watermark: text rendered empty; check font coverage", "text", t.Text, "font", t.FontFamily)
		return nil, nil
	}
	return tile, nil
}

func (r *Renderer) drawLogo(dst *image.NRGBA, l composition.LogoWatermark) {
	mark := l.Mark.Image()
	opacity := geometry.Clamp(l.Opacity, 0, 1)
	if mark == nil || opacity <= 0 {
		return
	}
	mb := mark.Bounds()
	if mb.Empty() {
		return
	}
	w, h := geometry.LogoSize(l.RelativeScale, dst.Bounds().Dx(), dst.Bounds().Dy(), mb.Dx(), mb.Dy())
	src := imaging.Clone(mark)
	setOpacity(src, opacity)
	compose(dst, src, l.AnchorX, l.AnchorY, l.RotationDeg,
		w/float64(mb.Dx()), h/float64(mb.Dy()), draw.CatmullRom)
}

// compose draws src over dst scaled by (sx, sy), rotated by deg clockwise
// about its top-left corner, with that corner placed at (x, y).
func compose(dst *image.NRGBA, src *image.NRGBA, x, y, deg, sx, sy float64, interp draw.Transformer) {
	sin, cos := math.Sincos(geometry.DegToRad(deg))
	o := dst.Bounds().Min
	s2d := f64.Aff3{
		cos * sx, -sin * sy, x + float64(o.X),
		sin * sx, cos * sy, y + float64(o.Y),
	}
	interp.Transform(dst, s2d, src, src.Bounds(), draw.Over, nil)
}

// EncodePNG encodes a rendered surface, e.g. for preview display.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// setOpacity multiplies every alpha value of img by opacity in place.
func setOpacity(img *image.NRGBA, opacity float64) {
	if opacity >= 1 {
		return
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(math.Round(float64(img.Pix[i]) * opacity))
	}
}

// hasAlpha reports whether any pixel of img is not fully transparent.
func hasAlpha(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			return true
		}
	}
	return false
}

func fixedToInt(v fixed.Int26_6) int {
	return int(math.Ceil(float64(v) / 64.0))
}

// Package geometry holds the pure placement math shared by the preview,
// the export path and pointer hit-testing.
package geometry

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// Text boxes are estimated, not measured: glyph advance ≈ 0.6em and
	// line height ≈ 1.2em.
	textAdvanceFactor = 0.6
	textLineFactor    = 1.2
	minTextBoxW       = 40
	minTextBoxH       = 20
	minLogoSide       = 8
)

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// DegToRad converts degrees to radians.
func DegToRad(d float64) float64 {
	return d * math.Pi / 180
}

// Box is an axis-aligned rectangle in surface pixels.
type Box struct {
	X, Y, W, H float64
}

// Contains reports whether (x, y) lies inside b, edges included.
func (b Box) Contains(x, y float64) bool {
	return x >= b.X && x <= b.X+b.W && y >= b.Y && y <= b.Y+b.H
}

// Rotated returns the axis-aligned envelope of b after rotating it by deg
// about its top-left corner. Positive angles turn clockwise on a y-down
// surface, matching how layers are drawn.
func (b Box) Rotated(deg float64) Box {
	if math.Mod(deg, 360) == 0 {
		return b
	}
	sin, cos := math.Sincos(DegToRad(deg))
	corners := [4][2]float64{{0, 0}, {b.W, 0}, {0, b.H}, {b.W, b.H}}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x := c[0]*cos - c[1]*sin
		y := c[0]*sin + c[1]*cos
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return Box{X: b.X + minX, Y: b.Y + minY, W: maxX - minX, H: maxY - minY}
}

// TextSize estimates the drawn size of text at fontSizePx.
func TextSize(text string, fontSizePx float64) (w, h float64) {
	n := float64(utf8.RuneCountInString(text))
	w = math.Max(minTextBoxW, fontSizePx*n*textAdvanceFactor)
	h = math.Max(minTextBoxH, fontSizePx*textLineFactor)
	return w, h
}

// LogoSize returns the drawn logo size on a surface. The longer logo side
// maps to relativeScale × min(surfaceW, surfaceH); the other side follows
// the logo's aspect ratio.
func LogoSize(relativeScale float64, surfaceW, surfaceH, logoW, logoH int) (w, h float64) {
	if logoW <= 0 || logoH <= 0 {
		return 0, 0
	}
	size := math.Max(minLogoSide, relativeScale*float64(min(surfaceW, surfaceH)))
	aspect := float64(logoW) / float64(logoH)
	if aspect >= 1 {
		return size, size / aspect
	}
	return size * aspect, size
}

// FitScale returns the factor that fits src inside max without upscaling.
func FitScale(srcW, srcH, maxW, maxH float64) float64 {
	if srcW <= 0 || srcH <= 0 {
		return 0
	}
	return math.Min(1, math.Min(maxW/srcW, maxH/srcH))
}

// Position is a quick-placement preset on a 3x3 grid. The first letter is
// the row (Top, Center, Bottom), the second the column (Left, Center, Right).
type Position string

const (
	TopLeft      Position = "TL"
	TopCenter    Position = "TC"
	TopRight     Position = "TR"
	CenterLeft   Position = "CL"
	Center       Position = "CC"
	CenterRight  Position = "CR"
	BottomLeft   Position = "BL"
	BottomCenter Position = "BC"
	BottomRight  Position = "BR"
)

// Positions lists every preset in grid order.
var Positions = []Position{
	TopLeft, TopCenter, TopRight,
	CenterLeft, Center, CenterRight,
	BottomLeft, BottomCenter, BottomRight,
}

var positionNames = map[string]Position{
	"top-left":      TopLeft,
	"top-center":    TopCenter,
	"top":           TopCenter,
	"top-right":     TopRight,
	"center-left":   CenterLeft,
	"left":          CenterLeft,
	"center":        Center,
	"center-right":  CenterRight,
	"right":         CenterRight,
	"bottom-left":   BottomLeft,
	"bottom-center": BottomCenter,
	"bottom":        BottomCenter,
	"bottom-right":  BottomRight,
}

// ParsePosition accepts both grid codes ("BR") and names ("bottom-right").
func ParsePosition(s string) (Position, bool) {
	s = strings.TrimSpace(s)
	if p, ok := positionNames[strings.ToLower(s)]; ok {
		return p, true
	}
	p := Position(strings.ToUpper(s))
	for _, known := range Positions {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Place computes the rounded anchor that puts a boxW×boxH layer at pos on a
// surfaceW×surfaceH surface, keeping pad pixels from the edges.
func Place(pos Position, boxW, boxH float64, surfaceW, surfaceH int, pad float64) (x, y float64) {
	sw, sh := float64(surfaceW), float64(surfaceH)
	x, y = pad, pad
	if len(pos) == 2 {
		switch pos[0] {
		case 'C':
			y = (sh - boxH) / 2
		case 'B':
			y = sh - boxH - pad
		}
		switch pos[1] {
		case 'C':
			x = (sw - boxW) / 2
		case 'R':
			x = sw - boxW - pad
		}
	}
	return math.Round(x), math.Round(y)
}

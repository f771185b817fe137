// Package interaction turns pointer gestures on the preview surface into
// composition edits.
//
// Hit-testing uses estimated boxes: text size comes from a per-glyph
// heuristic, not real metrics, and by default boxes ignore layer rotation.
// The boxes only decide what can be grabbed; rendering is unaffected.
package interaction

import (
	"errors"
	"fmt"

	"watermarkstudio/pkg/composition"
	"watermarkstudio/pkg/geometry"
	"watermarkstudio/pkg/history"
)

// Layer identifies a draggable watermark layer.
type Layer int

const (
	LayerNone Layer = iota
	LayerText
	LayerLogo
)

func (l Layer) String() string {
	switch l {
	case LayerText:
		return "text"
	case LayerLogo:
		return "logo"
	}
	return "none"
}

var (
	// ErrNoLogo is returned when placing a logo that has not been loaded.
	ErrNoLogo = errors.New("no logo loaded")
	// ErrNoSurface is returned when no preview surface size is known.
	ErrNoSurface = errors.New("no preview surface")
)

// Anchors are kept this many pixels inside the right and bottom edges so a
// dragged layer can always be grabbed again.
const edgeGrip = 5

// DefaultPadding is the margin quick positions keep from the surface edge.
const DefaultPadding = 16

// Option configures a Controller.
type Option func(*Controller)

// WithRotationAwareHitTest makes hit boxes the envelope of the rotated
// layer instead of the unrotated box.
func WithRotationAwareHitTest(on bool) Option {
	return func(c *Controller) { c.rotationAware = on }
}

// WithPadding sets the quick-position margin.
func WithPadding(px float64) Option {
	return func(c *Controller) { c.padding = px }
}

type drag struct {
	layer          Layer
	startX, startY float64
	origX, origY   float64
}

// Controller is the drag state machine: Idle until a pointer-down lands on a
// layer, then Dragging that layer until pointer-up or pointer-leave, which
// commits one history entry for the whole gesture.
type Controller struct {
	hist          *history.Manager
	surfaceW      int
	surfaceH      int
	padding       float64
	rotationAware bool
	drag          drag
}

// New returns an idle controller editing the state behind h.
func New(h *history.Manager, opts ...Option) *Controller {
	c := &Controller{hist: h, padding: DefaultPadding}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSurface records the size of the preview surface pointer coordinates
// refer to.
func (c *Controller) SetSurface(w, h int) {
	c.surfaceW, c.surfaceH = w, h
}

// Surface returns the current preview surface size.
func (c *Controller) Surface() (w, h int) {
	return c.surfaceW, c.surfaceH
}

// Dragging reports the grabbed layer, if a drag is in progress.
func (c *Controller) Dragging() (Layer, bool) {
	return c.drag.layer, c.drag.layer != LayerNone
}

// Box returns the hit box of layer on the current surface.
func (c *Controller) Box(layer Layer) (geometry.Box, bool) {
	s := c.hist.State()
	var b geometry.Box
	var deg float64
	switch layer {
	case LayerText:
		t := s.TextWatermark()
		if t.Text == "" {
			return geometry.Box{}, false
		}
		w, h := geometry.TextSize(t.Text, t.FontSizePx)
		b, deg = geometry.Box{X: t.AnchorX, Y: t.AnchorY, W: w, H: h}, t.RotationDeg
	case LayerLogo:
		l := s.LogoWatermark()
		if !l.Present() {
			return geometry.Box{}, false
		}
		lw, lh := l.Mark.Size()
		w, h := geometry.LogoSize(l.RelativeScale, c.surfaceW, c.surfaceH, lw, lh)
		b, deg = geometry.Box{X: l.AnchorX, Y: l.AnchorY, W: w, H: h}, l.RotationDeg
	default:
		return geometry.Box{}, false
	}
	if c.rotationAware {
		b = b.Rotated(deg)
	}
	return b, true
}

// HitTest returns the topmost layer under (x, y). The logo is drawn last, so
// it wins when both boxes contain the point.
func (c *Controller) HitTest(x, y float64) Layer {
	for _, l := range []Layer{LayerLogo, LayerText} {
		if b, ok := c.Box(l); ok && b.Contains(x, y) {
			return l
		}
	}
	return LayerNone
}

// OnDragStart grabs the layer under the pointer. A press outside both
// layers, or while a drag is already running, does nothing.
func (c *Controller) OnDragStart(x, y float64) Layer {
	if c.drag.layer != LayerNone {
		return c.drag.layer
	}
	layer := c.HitTest(x, y)
	if layer == LayerNone {
		return LayerNone
	}
	ox, oy := c.anchor(layer)
	c.drag = drag{layer: layer, startX: x, startY: y, origX: ox, origY: oy}
	return layer
}

// OnDragMove moves the grabbed layer by the pointer delta since the drag
// started. The edit is transient: nothing is committed.
func (c *Controller) OnDragMove(x, y float64) bool {
	if c.drag.layer == LayerNone {
		return false
	}
	nx := clampAnchor(c.drag.origX+x-c.drag.startX, c.surfaceW)
	ny := clampAnchor(c.drag.origY+y-c.drag.startY, c.surfaceH)
	s := c.hist.State()
	switch c.drag.layer {
	case LayerText:
		s.SetTextWatermark(composition.TextPatch{AnchorX: &nx, AnchorY: &ny})
	case LayerLogo:
		s.SetLogoWatermark(composition.LogoPatch{AnchorX: &nx, AnchorY: &ny})
	}
	return true
}

// OnDragEnd finishes the gesture and commits it as one history entry.
func (c *Controller) OnDragEnd() bool {
	if c.drag.layer == LayerNone {
		return false
	}
	c.drag = drag{}
	c.hist.Commit("drag")
	return true
}

// OnPointerLeave ends a drag the same way a pointer-up does.
func (c *Controller) OnPointerLeave() bool {
	return c.OnDragEnd()
}

// QuickPosition snaps layer to a preset on the current surface and commits.
func (c *Controller) QuickPosition(layer Layer, pos geometry.Position) error {
	if c.surfaceW <= 0 || c.surfaceH <= 0 {
		return ErrNoSurface
	}
	s := c.hist.State()
	switch layer {
	case LayerText:
		t := s.TextWatermark()
		w, h := geometry.TextSize(t.Text, t.FontSizePx)
		x, y := geometry.Place(pos, w, h, c.surfaceW, c.surfaceH, c.padding)
		s.SetTextWatermark(composition.TextPatch{AnchorX: &x, AnchorY: &y})
	case LayerLogo:
		l := s.LogoWatermark()
		if !l.Present() {
			return ErrNoLogo
		}
		lw, lh := l.Mark.Size()
		w, h := geometry.LogoSize(l.RelativeScale, c.surfaceW, c.surfaceH, lw, lh)
		x, y := geometry.Place(pos, w, h, c.surfaceW, c.surfaceH, c.padding)
		s.SetLogoWatermark(composition.LogoPatch{AnchorX: &x, AnchorY: &y})
	default:
		return fmt.Errorf("quick position: unknown layer %v", layer)
	}
	c.hist.Commit("quick-pos")
	return nil
}

func (c *Controller) anchor(l Layer) (x, y float64) {
	s := c.hist.State()
	if l == LayerLogo {
		lw := s.LogoWatermark()
		return lw.AnchorX, lw.AnchorY
	}
	t := s.TextWatermark()
	return t.AnchorX, t.AnchorY
}

func clampAnchor(v float64, size int) float64 {
	if size <= 0 {
		return max(0, v)
	}
	return geometry.Clamp(v, 0, max(0, float64(size-edgeGrip)))
}

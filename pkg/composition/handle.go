package composition

import "image"

// Handle owns a decoded bitmap. Renders borrow it through Image and must
// not modify the pixels. After Release, Image returns nil.
type Handle struct {
	img image.Image
}

// NewHandle wraps an already decoded image.
func NewHandle(img image.Image) *Handle {
	return &Handle{img: img}
}

// Image borrows the bitmap. It is nil for a released or nil handle.
func (h *Handle) Image() image.Image {
	if h == nil {
		return nil
	}
	return h.img
}

// Size returns the bitmap dimensions, or zero once released.
func (h *Handle) Size() (w, ht int) {
	img := h.Image()
	if img == nil {
		return 0, 0
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

// Release drops the bitmap. It is safe to call more than once.
func (h *Handle) Release() {
	if h != nil {
		h.img = nil
	}
}

// Released reports whether the bitmap has been dropped.
func (h *Handle) Released() bool {
	return h == nil || h.img == nil
}

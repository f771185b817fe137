package composition

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngFile(t *testing.T, name string, w, h int) File {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 10, G: 120, B: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return File{Name: name, Data: buf.Bytes(), MIMEType: "image/png"}
}

func loaded(t *testing.T, files ...File) *State {
	t.Helper()
	s := NewState()
	rep, err := s.AddImages(context.Background(), files)
	require.NoError(t, err)
	require.Empty(t, rep.Failures)
	return s
}

func TestDecode(t *testing.T) {
	img, err := Decode(pngFile(t, "a.png", 30, 20))
	require.NoError(t, err)
	assert.NotEmpty(t, img.ID)
	assert.Equal(t, "a.png", img.DisplayName)
	assert.Equal(t, 30, img.PixelWidth)
	assert.Equal(t, 20, img.PixelHeight)
	assert.Equal(t, image.Rect(0, 0, 30, 20), img.Handle.Image().Bounds())
}

func TestDecodeFailures(t *testing.T) {
	good := pngFile(t, "a.png", 4, 4)
	cases := map[string]File{
		"garbage":   {Name: "x.png", Data: []byte("not an image")},
		"empty":     {Name: "e.png"},
		"wrongMIME": {Name: "doc.pdf", Data: good.Data, MIMEType: "application/pdf"},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(f)
			assert.ErrorIs(t, err, ErrDecode)
			assert.Contains(t, err.Error(), f.Name)
		})
	}
}

func TestAddImagesContinuesPastFailures(t *testing.T) {
	s := NewState(WithDecodeWorkers(2))
	files := []File{
		pngFile(t, "one.png", 8, 6),
		{Name: "broken.jpg", Data: []byte{0xff, 0xd8, 0x00}},
		pngFile(t, "three.png", 12, 9),
	}
	rep, err := s.AddImages(context.Background(), files)
	require.NoError(t, err)

	require.Len(t, rep.Added, 2)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, 1, rep.Failures[0].Index)
	assert.Equal(t, "broken.jpg", rep.Failures[0].Name)
	assert.ErrorIs(t, rep.Failures[0], ErrDecode)

	imgs := s.Images()
	require.Len(t, imgs, 2)
	assert.Equal(t, "one.png", imgs[0].DisplayName)
	assert.Equal(t, "three.png", imgs[1].DisplayName)
	assert.Equal(t, imgs[0].ID, s.ActiveImageID())
}

func TestAddImagesKeepsExistingActive(t *testing.T) {
	s := loaded(t, pngFile(t, "a.png", 4, 4))
	first := s.ActiveImageID()
	_, err := s.AddImages(context.Background(), []File{pngFile(t, "b.png", 4, 4)})
	require.NoError(t, err)
	assert.Equal(t, first, s.ActiveImageID())
}

func TestAddImagesCancelled(t *testing.T) {
	s := NewState()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.AddImages(ctx, []File{pngFile(t, "a.png", 4, 4)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Images())
	assert.Empty(t, s.ActiveImageID())
}

func TestRemoveImageReassignsActive(t *testing.T) {
	s := loaded(t, pngFile(t, "a.png", 4, 4), pngFile(t, "b.png", 4, 4), pngFile(t, "c.png", 4, 4))
	imgs := s.Images()

	require.NoError(t, s.SetActiveImage(imgs[1].ID))
	require.NoError(t, s.RemoveImage(imgs[1].ID))
	assert.Equal(t, imgs[0].ID, s.ActiveImageID())
	assert.True(t, imgs[1].Handle.Released())

	require.NoError(t, s.RemoveImage(imgs[2].ID))
	assert.Equal(t, imgs[0].ID, s.ActiveImageID(), "removing an inactive image keeps the selection")

	require.NoError(t, s.RemoveImage(imgs[0].ID))
	assert.Empty(t, s.ActiveImageID())
	_, ok := s.ActiveImage()
	assert.False(t, ok)
}

func TestRemoveImageInvariantHoldsForEveryOrder(t *testing.T) {
	s := loaded(t, pngFile(t, "a.png", 4, 4), pngFile(t, "b.png", 4, 4), pngFile(t, "c.png", 4, 4), pngFile(t, "d.png", 4, 4))
	for _, img := range []int{2, 0, 1, 0} {
		imgs := s.Images()
		require.NoError(t, s.SetActiveImage(imgs[img].ID))
		require.NoError(t, s.RemoveImage(imgs[img].ID))
		if len(s.Images()) == 0 {
			assert.Empty(t, s.ActiveImageID())
			continue
		}
		_, ok := s.ActiveImage()
		assert.True(t, ok, "active id must reference a remaining image")
	}
}

func TestUnknownImage(t *testing.T) {
	s := loaded(t, pngFile(t, "a.png", 4, 4))
	assert.ErrorIs(t, s.RemoveImage("nope"), ErrUnknownImage)
	assert.ErrorIs(t, s.SetActiveImage("nope"), ErrUnknownImage)
	assert.ErrorIs(t, s.SetActiveImage(""), ErrUnknownImage)
}

func TestPatchesMerge(t *testing.T) {
	s := NewState()
	s.SetTextWatermark(TextPatch{Text: Ptr("SAMPLE"), AnchorX: Ptr(10.0)})
	tw := s.TextWatermark()
	assert.Equal(t, "SAMPLE", tw.Text)
	assert.Equal(t, 10.0, tw.AnchorX)
	assert.Equal(t, float64(DefaultTextAnchorY), tw.AnchorY)
	assert.Equal(t, float64(DefaultFontSizePx), tw.FontSizePx)

	s.SetFilters(FilterPatch{BlurPx: Ptr(2.0)})
	f := s.Filters()
	assert.Equal(t, 2.0, f.BlurPx)
	assert.Equal(t, 100.0, f.BrightnessPct)
	assert.False(t, f.Identity())
}

func TestPatchesClamp(t *testing.T) {
	s := NewState()
	s.SetTextWatermark(TextPatch{Opacity: Ptr(1.7), FontSizePx: Ptr(-4.0), RotationDeg: Ptr(270.0)})
	tw := s.TextWatermark()
	assert.Equal(t, 1.0, tw.Opacity)
	assert.Equal(t, 1.0, tw.FontSizePx)
	assert.Equal(t, -90.0, tw.RotationDeg)

	s.SetLogoWatermark(LogoPatch{RelativeScale: Ptr(3.0), Opacity: Ptr(-1.0), RotationDeg: Ptr(-180.0)})
	lw := s.LogoWatermark()
	assert.Equal(t, MaxLogoScale, lw.RelativeScale)
	assert.Equal(t, 0.0, lw.Opacity)
	assert.Equal(t, 180.0, lw.RotationDeg)

	s.SetFilters(FilterPatch{BrightnessPct: Ptr(500.0), GrayscalePct: Ptr(-3.0), BlurPx: Ptr(99.0)})
	f := s.Filters()
	assert.Equal(t, 200.0, f.BrightnessPct)
	assert.Equal(t, 0.0, f.GrayscalePct)
	assert.Equal(t, 10.0, f.BlurPx)
}

func TestLogoImageLifecycle(t *testing.T) {
	s := NewState()
	assert.False(t, s.LogoWatermark().Present())

	require.NoError(t, s.SetLogoImage(pngFile(t, "logo.png", 20, 10)))
	first := s.LogoWatermark().Mark
	assert.True(t, s.LogoWatermark().Present())

	err := s.SetLogoImage(File{Name: "bad.png", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrDecode)
	assert.Same(t, first, s.LogoWatermark().Mark, "failed replacement keeps the old logo")

	require.NoError(t, s.SetLogoImage(pngFile(t, "logo2.png", 10, 10)))
	assert.True(t, first.Released())

	s.ClearLogo()
	assert.False(t, s.LogoWatermark().Present())
}

func TestResetToDefaultsKeepsImagesAndLogo(t *testing.T) {
	s := loaded(t, pngFile(t, "a.png", 4, 4))
	require.NoError(t, s.SetLogoImage(pngFile(t, "logo.png", 4, 4)))
	mark := s.LogoWatermark().Mark
	active := s.ActiveImageID()

	s.SetTextWatermark(TextPatch{Text: Ptr("x"), AnchorX: Ptr(1.0)})
	s.SetLogoWatermark(LogoPatch{RelativeScale: Ptr(0.5)})
	s.SetFilters(FilterPatch{ContrastPct: Ptr(150.0)})
	s.ResetToDefaults()

	assert.Equal(t, DefaultTextWatermark(), s.TextWatermark())
	assert.Equal(t, DefaultFilters(), s.Filters())
	assert.Equal(t, DefaultLogoScale, s.LogoWatermark().RelativeScale)
	assert.Same(t, mark, s.LogoWatermark().Mark)
	assert.Equal(t, active, s.ActiveImageID())
	assert.Len(t, s.Images(), 1)
}

func TestRestoreFallsBackForRemovedActive(t *testing.T) {
	s := loaded(t, pngFile(t, "a.png", 4, 4), pngFile(t, "b.png", 4, 4))
	imgs := s.Images()
	require.NoError(t, s.SetActiveImage(imgs[1].ID))
	saved := s.Params()

	require.NoError(t, s.RemoveImage(imgs[1].ID))
	s.Restore(saved)
	assert.Equal(t, imgs[0].ID, s.ActiveImageID())
}

func TestCloseReleasesEverything(t *testing.T) {
	s := loaded(t, pngFile(t, "a.png", 4, 4))
	require.NoError(t, s.SetLogoImage(pngFile(t, "logo.png", 4, 4)))
	img := s.Images()[0]
	mark := s.LogoWatermark().Mark

	s.Close()
	assert.True(t, img.Handle.Released())
	assert.True(t, mark.Released())
	assert.Empty(t, s.Images())
	assert.Empty(t, s.ActiveImageID())
}

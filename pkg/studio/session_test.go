package studio

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watermarkstudio/pkg/composition"
	"watermarkstudio/pkg/config"
	"watermarkstudio/pkg/export"
	"watermarkstudio/pkg/geometry"
	"watermarkstudio/pkg/interaction"
)

func pngFile(t *testing.T, name string, w, h int) composition.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 40, G: 90, B: 160, A: 255}), imaging.PNG))
	return composition.File{Name: name, Data: buf.Bytes(), MIMEType: "image/png"}
}

type recorder struct {
	mu     sync.Mutex
	items  []composition.ItemFailure
	errors []error
}

func (r *recorder) ItemFailed(_ string, f composition.ItemFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, f)
}

func (r *recorder) Failed(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func newSession(t *testing.T, opts ...Option) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := New(config.Default(), append([]Option{WithNotifier(rec)}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s, rec
}

func TestAddImagesNotifiesFailures(t *testing.T) {
	s, rec := newSession(t)
	rep, err := s.AddImages(context.Background(), []composition.File{
		pngFile(t, "a.png", 40, 30),
		{Name: "notes.txt", Data: []byte("hello"), MIMEType: "text/plain"},
		pngFile(t, "b.png", 20, 10),
	})
	require.NoError(t, err)
	assert.Len(t, rep.Added, 2)
	require.Len(t, rec.items, 1)
	assert.Equal(t, "notes.txt", rec.items[0].Name)
	assert.ErrorIs(t, rec.items[0], composition.ErrDecode)

	imgs := s.Images()
	require.Len(t, imgs, 2)
	assert.Equal(t, imgs[0].ID, s.Params().ActiveImageID)
}

func TestEditCommitAndUndo(t *testing.T) {
	s, _ := newSession(t)
	s.EditText(composition.TextPatch{Opacity: composition.Ptr(0.1)}, false)
	s.EditText(composition.TextPatch{Opacity: composition.Ptr(0.6)}, true)
	assert.Equal(t, LabelText, s.UndoLabel())

	s.EditFilters(composition.FilterPatch{BlurPx: composition.Ptr(3.0)}, true)
	require.True(t, s.Undo())
	assert.Equal(t, 0.0, s.Params().Filters.BlurPx)
	assert.Equal(t, 0.6, s.Params().Text.Opacity)
	assert.Equal(t, LabelFilters, s.RedoLabel())

	require.True(t, s.Undo())
	assert.Equal(t, composition.DefaultOpacity, s.Params().Text.Opacity)
	assert.False(t, s.Undo())
	assert.False(t, s.CanUndo())
	assert.True(t, s.CanRedo())

	require.True(t, s.Redo())
	assert.Equal(t, 0.6, s.Params().Text.Opacity)
}

func TestResetIsUndoable(t *testing.T) {
	s, _ := newSession(t)
	s.EditText(composition.TextPatch{Text: composition.Ptr("mine")}, true)
	s.Reset()
	assert.Equal(t, composition.DefaultText, s.Params().Text.Text)
	assert.Equal(t, LabelReset, s.UndoLabel())
	require.True(t, s.Undo())
	assert.Equal(t, "mine", s.Params().Text.Text)
}

func TestPreviewFitsConfiguredBox(t *testing.T) {
	s, _ := newSession(t)
	_, err := s.Preview()
	assert.ErrorIs(t, err, ErrNoActiveImage)

	_, err = s.AddImages(context.Background(), []composition.File{pngFile(t, "wide.png", 1920, 960)})
	require.NoError(t, err)

	f, err := s.Preview()
	require.NoError(t, err)
	assert.Equal(t, 960, f.Width)
	assert.Equal(t, 480, f.Height)
	assert.InDelta(t, 0.5, f.Scale, 1e-9)

	img, err := imaging.Decode(bytes.NewReader(f.PNG))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 960, 480), img.Bounds())
}

func TestPreviewNeverUpscales(t *testing.T) {
	s, _ := newSession(t)
	_, err := s.AddImages(context.Background(), []composition.File{pngFile(t, "small.png", 100, 50)})
	require.NoError(t, err)
	f, err := s.Preview()
	require.NoError(t, err)
	assert.Equal(t, 100, f.Width)
	assert.Equal(t, 50, f.Height)
}

func TestPointerDragThroughSession(t *testing.T) {
	s, _ := newSession(t)
	_, err := s.AddImages(context.Background(), []composition.File{pngFile(t, "a.png", 800, 600)})
	require.NoError(t, err)
	_, err = s.Preview()
	require.NoError(t, err)

	text := s.Params().Text
	layer := s.PointerDown(text.AnchorX+5, text.AnchorY+5)
	require.Equal(t, interaction.LayerText, layer)
	assert.True(t, s.PointerMove(text.AnchorX+45, text.AnchorY+25))
	assert.True(t, s.PointerUp())

	assert.Equal(t, text.AnchorX+40, s.Params().Text.AnchorX)
	assert.Equal(t, "drag", s.UndoLabel())

	require.NoError(t, s.QuickPosition(interaction.LayerText, geometry.TopLeft))
	assert.Equal(t, 16.0, s.Params().Text.AnchorX)
	assert.Equal(t, 16.0, s.Params().Text.AnchorY)
}

func TestQuickPositionNeedsPreview(t *testing.T) {
	s, _ := newSession(t)
	assert.ErrorIs(t, s.QuickPosition(interaction.LayerText, geometry.Center), interaction.ErrNoSurface)
}

func TestExportAll(t *testing.T) {
	s, rec := newSession(t)
	_, err := s.AddImages(context.Background(), []composition.File{
		pngFile(t, "a.png", 80, 60),
		pngFile(t, "b.png", 120, 90),
	})
	require.NoError(t, err)

	art, rep, err := s.Export(context.Background(), export.ScopeAll, export.FormatRaster)
	require.NoError(t, err)
	assert.Equal(t, "watermarked_images.zip", art.Name)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Empty(t, rec.items)
	assert.False(t, s.Exporting())

	art, _, err = s.Export(context.Background(), export.ScopeSelected, export.FormatRaster)
	require.NoError(t, err)
	assert.Equal(t, "a_watermarked.png", art.Name)
}

func TestExportWithoutImages(t *testing.T) {
	s, _ := newSession(t)
	_, _, err := s.Export(context.Background(), export.ScopeAll, export.FormatRaster)
	assert.ErrorIs(t, err, export.ErrNoImages)
}

// brokenEncoder fails every encode.
type brokenEncoder struct{ export.PNGEncoder }

func (brokenEncoder) Encode(io.Writer, image.Image) error {
	return errors.New("disk full")
}

func TestExportItemFailureNotifiedOnce(t *testing.T) {
	s, rec := newSession(t, WithExportOptions(export.WithRasterEncoder(brokenEncoder{})))
	_, err := s.AddImages(context.Background(), []composition.File{pngFile(t, "a.png", 40, 30)})
	require.NoError(t, err)

	_, rep, err := s.Export(context.Background(), export.ScopeAll, export.FormatRaster)
	require.Error(t, err)
	assert.Len(t, rep.Failures, 1)
	require.Len(t, rec.items, 1)
	assert.Equal(t, "a.png", rec.items[0].Name)
	assert.Empty(t, rec.errors)

	_, err = s.AddImages(context.Background(), []composition.File{pngFile(t, "b.png", 20, 10)})
	require.NoError(t, err)
	_, _, err = s.Export(context.Background(), export.ScopeAll, export.FormatRaster)
	assert.ErrorIs(t, err, export.ErrNothingExported)
	assert.Len(t, rec.items, 3)
	assert.Empty(t, rec.errors)
}

// gate blocks the first encode until released.
type gate struct {
	export.PNGEncoder
	started chan struct{}
	release chan struct{}
	once    *sync.Once
}

func (g gate) Encode(w io.Writer, img image.Image) error {
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return g.PNGEncoder.Encode(w, img)
}

func TestCollectionIsLockedDuringExport(t *testing.T) {
	g := gate{started: make(chan struct{}), release: make(chan struct{}), once: &sync.Once{}}
	s, _ := newSession(t, WithExportOptions(export.WithRasterEncoder(g)))
	_, err := s.AddImages(context.Background(), []composition.File{pngFile(t, "a.png", 40, 30)})
	require.NoError(t, err)
	id := s.Images()[0].ID

	done := make(chan error, 1)
	go func() {
		_, _, err := s.Export(context.Background(), export.ScopeAll, export.FormatRaster)
		done <- err
	}()
	<-g.started

	assert.True(t, s.Exporting())
	assert.ErrorIs(t, s.RemoveImage(id), ErrExportInProgress)
	assert.ErrorIs(t, s.SetLogo(pngFile(t, "logo.png", 10, 10)), ErrExportInProgress)
	_, err = s.AddImages(context.Background(), []composition.File{pngFile(t, "b.png", 10, 10)})
	assert.ErrorIs(t, err, ErrExportInProgress)
	_, _, err = s.Export(context.Background(), export.ScopeAll, export.FormatRaster)
	assert.ErrorIs(t, err, export.ErrBusy)

	// parameter edits stay available and do not reach the running export
	s.EditText(composition.TextPatch{Text: composition.Ptr("later")}, true)

	close(g.release)
	require.NoError(t, <-done)
	assert.False(t, s.Exporting())
	require.NoError(t, s.RemoveImage(id))
}

func TestSetLogoFailureKeepsPrevious(t *testing.T) {
	s, rec := newSession(t)
	require.NoError(t, s.SetLogo(pngFile(t, "logo.png", 20, 10)))
	mark := s.Params().Logo.Mark

	assert.Error(t, s.SetLogo(composition.File{Name: "bad.png", Data: []byte("nope"), MIMEType: "image/png"}))
	assert.Same(t, mark, s.Params().Logo.Mark)
	assert.Len(t, rec.errors, 1)

	require.NoError(t, s.ClearLogo())
	assert.False(t, s.Params().Logo.Present())
}

func TestCloseEmptiesSession(t *testing.T) {
	s, _ := newSession(t)
	_, err := s.AddImages(context.Background(), []composition.File{pngFile(t, "a.png", 10, 10)})
	require.NoError(t, err)
	h := s.Images()[0].Handle
	require.NoError(t, s.Close())
	assert.Empty(t, s.Images())
	assert.True(t, h.Released())
	assert.Empty(t, s.UndoLabel())
}

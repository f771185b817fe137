// Package studio is the session facade a front end talks to. It wires the
// composition state, history, renderer, pointer controller and export
// coordinator together and serializes access to them.
package studio

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"

	"watermarkstudio/pkg/composition"
	"watermarkstudio/pkg/config"
	"watermarkstudio/pkg/export"
	"watermarkstudio/pkg/geometry"
	"watermarkstudio/pkg/history"
	"watermarkstudio/pkg/interaction"
	"watermarkstudio/pkg/watermark"
)

var (
	// ErrExportInProgress is returned by operations that would release
	// bitmaps a running export still reads.
	ErrExportInProgress = errors.New("export in progress")
	// ErrNoActiveImage is returned by Preview when no image is loaded.
	ErrNoActiveImage = errors.New("no active image")
)

// History labels.
const (
	LabelText    = "text"
	LabelLogo    = "logo"
	LabelFilters = "filters"
	LabelReset   = "reset"
)

// Notifier receives failures that do not abort an operation, such as one
// bad file in a batch.
type Notifier interface {
	ItemFailed(op string, f composition.ItemFailure)
	Failed(op string, err error)
}

type logNotifier struct{ logger *slog.Logger }

func (n logNotifier) ItemFailed(op string, f composition.ItemFailure) {
	n.logger.Warn("studio: item failed", "op", op, "image", f.Name, "error", f.Err)
}

func (n logNotifier) Failed(op string, err error) {
	n.logger.Error("studio: operation failed", "op", op, "error", err)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNotifier replaces the default log notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithExportOptions passes options to the export coordinator.
func WithExportOptions(opts ...export.Option) Option {
	return func(s *Session) { s.exportOpts = append(s.exportOpts, opts...) }
}

// Frame is a rendered preview.
type Frame struct {
	PNG    []byte
	Width  int
	Height int
	// Scale is preview pixels per source pixel.
	Scale float64
}

// Session is one editing session. All methods are safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	cfg        *config.Config
	state      *composition.State
	hist       *history.Manager
	renderer   *watermark.Renderer
	ctrl       *interaction.Controller
	exports    *export.Coordinator
	exportOpts []export.Option
	exporting  bool
	notifier   Notifier
	logger     *slog.Logger
}

// New returns an empty session. A nil cfg means config.Default().
func New(cfg *config.Config, opts ...Option) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Session{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = logNotifier{logger: s.logger}
	}

	s.state = composition.NewState(
		composition.WithDecodeWorkers(cfg.DecodeWorkers),
		composition.WithLogger(s.logger),
	)
	s.hist = history.New(s.state, s.logger)
	s.renderer = watermark.NewRenderer(cfg.FontPath, s.logger)
	s.ctrl = interaction.New(s.hist,
		interaction.WithPadding(cfg.QuickPositionPadding),
		interaction.WithRotationAwareHitTest(cfg.RotationAwareHitTest),
	)
	base := []export.Option{
		export.WithLogger(s.logger),
		export.WithPageEncoder(export.JPEGEncoder{Quality: cfg.PageJPEGQuality}),
		export.WithDocumentWriter(export.PDFWriter{PageSize: cfg.PageSize}),
	}
	s.exports = export.NewCoordinator(s.renderer, append(base, s.exportOpts...)...)
	return s
}

// AddImages decodes files into the collection. Per-file failures go to the
// notifier and the report; they do not make the call fail.
func (s *Session) AddImages(ctx context.Context, files []composition.File) (composition.AddReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return composition.AddReport{}, ErrExportInProgress
	}
	rep, err := s.state.AddImages(ctx, files)
	if err != nil {
		s.notifier.Failed("add-images", err)
		return rep, err
	}
	for _, f := range rep.Failures {
		s.notifier.ItemFailed("add-images", f)
	}
	return rep, nil
}

// RemoveImage drops an image from the collection.
func (s *Session) RemoveImage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return ErrExportInProgress
	}
	return s.state.RemoveImage(id)
}

// SelectImage makes id the previewed image. Selection is not recorded in
// history on its own.
func (s *Session) SelectImage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SetActiveImage(id)
}

// SetLogo decodes f and uses it as the logo bitmap.
func (s *Session) SetLogo(f composition.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return ErrExportInProgress
	}
	if err := s.state.SetLogoImage(f); err != nil {
		s.notifier.Failed("set-logo", err)
		return err
	}
	return nil
}

// ClearLogo removes the logo bitmap.
func (s *Session) ClearLogo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return ErrExportInProgress
	}
	s.state.ClearLogo()
	return nil
}

// EditText applies p. With commit false the edit is transient, as while a
// slider is being dragged; commit true records it.
func (s *Session) EditText(p composition.TextPatch, commit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SetTextWatermark(p)
	s.commitIf(commit, LabelText)
}

// EditLogo applies p to the logo layer.
func (s *Session) EditLogo(p composition.LogoPatch, commit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SetLogoWatermark(p)
	s.commitIf(commit, LabelLogo)
}

// EditFilters applies p to the base-image filters.
func (s *Session) EditFilters(p composition.FilterPatch, commit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SetFilters(p)
	s.commitIf(commit, LabelFilters)
}

// Commit records the current parameters under label, e.g. on slider
// release after transient edits.
func (s *Session) Commit(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hist.Commit(label)
}

// Reset restores default parameters and records the reset, so it can be
// undone.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ResetToDefaults()
	s.hist.Commit(LabelReset)
}

func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.Undo()
}

func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.Redo()
}

// CanUndo and CanRedo report whether Undo or Redo would change anything.
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.CanRedo()
}

// UndoLabel and RedoLabel name the edit the next Undo or Redo affects.
func (s *Session) UndoLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.UndoLabel()
}

func (s *Session) RedoLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.RedoLabel()
}

// QuickPosition snaps a layer to a preset on the last previewed surface.
func (s *Session) QuickPosition(layer interaction.Layer, pos geometry.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.QuickPosition(layer, pos)
}

// PointerDown, PointerMove, PointerUp and PointerLeave take preview surface
// coordinates.
func (s *Session) PointerDown(x, y float64) interaction.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.OnDragStart(x, y)
}

func (s *Session) PointerMove(x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.OnDragMove(x, y)
}

func (s *Session) PointerUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.OnDragEnd()
}

func (s *Session) PointerLeave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.OnPointerLeave()
}

// Params returns a copy of the current parameters.
func (s *Session) Params() composition.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Params()
}

// Images returns the loaded images in order.
func (s *Session) Images() []composition.SourceImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Images()
}

// Preview renders the active image scaled down to fit the configured
// preview box and makes that surface the pointer coordinate space.
func (s *Session) Preview() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.state.ActiveImage()
	if !ok {
		s.ctrl.SetSurface(0, 0)
		return Frame{}, ErrNoActiveImage
	}
	scale := geometry.FitScale(
		float64(img.PixelWidth), float64(img.PixelHeight),
		float64(s.cfg.PreviewMaxWidth), float64(s.cfg.PreviewMaxHeight),
	)
	w := max(1, int(math.Round(float64(img.PixelWidth)*scale)))
	h := max(1, int(math.Round(float64(img.PixelHeight)*scale)))

	out, err := s.renderer.Render(img.Handle.Image(), watermark.SceneOf(s.state.Params()), w, h)
	if err != nil {
		return Frame{}, err
	}
	data, err := watermark.EncodePNG(out)
	if err != nil {
		return Frame{}, err
	}
	s.ctrl.SetSurface(w, h)
	return Frame{PNG: data, Width: w, Height: h, Scale: scale}, nil
}

// Export renders every image in scope at native resolution. The scene is
// captured when the call starts; edits made meanwhile are allowed and do
// not reach the output. Operations that would release captured bitmaps
// fail with ErrExportInProgress until it returns.
func (s *Session) Export(ctx context.Context, scope export.Scope, format export.Format) (export.Artifact, export.Report, error) {
	s.mu.Lock()
	if s.exporting {
		s.mu.Unlock()
		return export.Artifact{}, export.Report{}, export.ErrBusy
	}
	snap, err := export.Capture(s.state, scope)
	if err != nil {
		s.mu.Unlock()
		return export.Artifact{}, export.Report{}, err
	}
	s.exporting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.exporting = false
		s.mu.Unlock()
	}()

	art, rep, err := s.exports.Export(ctx, snap, format)
	for _, f := range rep.Failures {
		s.notifier.ItemFailed("export", f)
	}
	if err != nil {
		if !itemFailure(err) {
			s.notifier.Failed("export", err)
		}
		return art, rep, err
	}
	s.logger.Info("studio: export finished", "artifact", art.Name, "bytes", len(art.Data), "failed", len(rep.Failures))
	return art, rep, nil
}

// Exporting reports whether an export is running.
func (s *Session) Exporting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exporting
}

// Close releases every bitmap. The session is empty afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return ErrExportInProgress
	}
	s.state.Close()
	s.hist.Clear()
	return nil
}

// itemFailure reports whether err only restates failures already listed
// in the export report.
func itemFailure(err error) bool {
	var f composition.ItemFailure
	return errors.As(err, &f) || errors.Is(err, export.ErrNothingExported)
}

func (s *Session) commitIf(commit bool, label string) {
	if commit {
		s.hist.Commit(label)
	}
}

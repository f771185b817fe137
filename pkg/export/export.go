// Package export renders a composition at each image's native resolution
// and packs the results as a single raster file, a zip of raster files, or
// a paginated document.
//
// Exports work on a Snapshot taken when the export starts, so edits made
// while it runs are not seen. Only one export runs at a time per
// Coordinator.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"watermarkstudio/pkg/composition"
	"watermarkstudio/pkg/watermark"
)

var (
	// ErrBusy is returned when an export is requested while one is running.
	ErrBusy = errors.New("export already in progress")
	// ErrNoImages is returned when there is nothing to export.
	ErrNoImages = errors.New("no images to export")
	// ErrNoActiveImage is returned for a selected-scope export without an
	// active image.
	ErrNoActiveImage = errors.New("no active image")
	// ErrEncode marks an item whose container encoding failed.
	ErrEncode = errors.New("encode failed")
	// ErrNothingExported is returned when every item of a batch failed.
	ErrNothingExported = errors.New("every item failed to export")
	// ErrDocumentSetup marks a document writer that could not be set up.
	ErrDocumentSetup = errors.New("document writer setup failed")
)

// Scope selects which images an export covers.
type Scope string

const (
	ScopeSelected Scope = "selected"
	ScopeAll      Scope = "all"
)

// Format selects the output container.
type Format string

const (
	// FormatRaster yields one raster file, or a zip when there are several.
	FormatRaster Format = "raster"
	// FormatDocument yields one paginated document.
	FormatDocument Format = "document"
)

const (
	batchName    = "watermarked_images"
	nameSuffix   = "_watermarked"
	fallbackBase = "image"
)

// Item is one image to export, with its bitmap borrowed at capture time.
type Item struct {
	ID    string
	Name  string
	Image image.Image
}

// Snapshot is everything an export reads, frozen at capture time.
type Snapshot struct {
	Scene watermark.Scene
	Items []Item
}

// Capture snapshots the parameters and the images covered by scope.
func Capture(s *composition.State, scope Scope) (Snapshot, error) {
	snap := Snapshot{Scene: watermark.SceneOf(s.Params())}
	var imgs []composition.SourceImage
	switch scope {
	case ScopeSelected:
		img, ok := s.ActiveImage()
		if !ok {
			return Snapshot{}, ErrNoActiveImage
		}
		imgs = []composition.SourceImage{img}
	case ScopeAll:
		imgs = s.Images()
	default:
		return Snapshot{}, fmt.Errorf("unknown export scope %q", scope)
	}
	if len(imgs) == 0 {
		return Snapshot{}, ErrNoImages
	}
	for _, img := range imgs {
		bmp := img.Handle.Image()
		if bmp == nil {
			return Snapshot{}, fmt.Errorf("image %q: %w", img.DisplayName, watermark.ErrReleased)
		}
		snap.Items = append(snap.Items, Item{ID: img.ID, Name: img.DisplayName, Image: bmp})
	}
	return snap, nil
}

// Artifact is an export result ready to hand to a save/download step.
type Artifact struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Report counts per-item outcomes of a multi-item export.
type Report struct {
	Succeeded int
	Failures  []composition.ItemFailure
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRasterEncoder sets the encoder for single and zipped exports.
func WithRasterEncoder(e RasterEncoder) Option {
	return func(c *Coordinator) { c.raster = e }
}

// WithPageEncoder sets the encoder for page images of documents.
func WithPageEncoder(e RasterEncoder) Option {
	return func(c *Coordinator) { c.page = e }
}

// WithDocumentWriter sets the paginated document writer.
func WithDocumentWriter(d DocumentWriter) Option {
	return func(c *Coordinator) { c.doc = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// Coordinator drives the render pipeline over a snapshot.
type Coordinator struct {
	renderer *watermark.Renderer
	raster   RasterEncoder
	page     RasterEncoder
	doc      DocumentWriter
	logger   *slog.Logger
	busy     atomic.Bool
}

// NewCoordinator returns a Coordinator writing PNG files and A4 PDFs with
// JPEG pages unless configured otherwise.
func NewCoordinator(r *watermark.Renderer, opts ...Option) *Coordinator {
	c := &Coordinator{
		renderer: r,
		raster:   PNGEncoder{},
		page:     JPEGEncoder{Quality: 92},
		doc:      PDFWriter{PageSize: "A4"},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Busy reports whether an export is running.
func (c *Coordinator) Busy() bool {
	return c.busy.Load()
}

// Export dispatches on format.
func (c *Coordinator) Export(ctx context.Context, snap Snapshot, format Format) (Artifact, Report, error) {
	switch format {
	case FormatRaster:
		return c.ExportBatch(ctx, snap)
	case FormatDocument:
		return c.ExportPaginated(ctx, snap)
	}
	return Artifact{}, Report{}, fmt.Errorf("unknown export format %q", format)
}

// ExportSingle renders one item at native resolution and encodes it. Any
// failure aborts.
func (c *Coordinator) ExportSingle(ctx context.Context, sc watermark.Scene, it Item) (Artifact, error) {
	if err := c.acquire(); err != nil {
		return Artifact{}, err
	}
	defer c.release()
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	return c.single(sc, it)
}

// ExportBatch exports one raster file for a single item, or a zip of all
// items otherwise. Items that fail are reported and left out of the zip.
// A lone item that fails is returned as its composition.ItemFailure.
func (c *Coordinator) ExportBatch(ctx context.Context, snap Snapshot) (Artifact, Report, error) {
	if err := c.acquire(); err != nil {
		return Artifact{}, Report{}, err
	}
	defer c.release()

	switch len(snap.Items) {
	case 0:
		return Artifact{}, Report{}, ErrNoImages
	case 1:
		if err := ctx.Err(); err != nil {
			return Artifact{}, Report{}, err
		}
		it := snap.Items[0]
		data, err := c.renderEncode(snap.Scene, it, c.raster)
		if err != nil {
			f := c.failure(0, it, err)
			return Artifact{}, Report{Failures: []composition.ItemFailure{f}}, f
		}
		art := Artifact{Name: outputName(it.Name, c.raster.Extension()), MIMEType: c.raster.MIMEType(), Data: data}
		return art, Report{Succeeded: 1}, nil
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := map[string]int{}
	var rep Report
	for i, it := range snap.Items {
		if err := ctx.Err(); err != nil {
			return Artifact{}, rep, err
		}
		data, err := c.renderEncode(snap.Scene, it, c.raster)
		if err != nil {
			rep.Failures = append(rep.Failures, c.failure(i, it, err))
			continue
		}
		name := uniqueName(names, outputName(it.Name, c.raster.Extension()))
		fw, err := zw.Create(name)
		if err != nil {
			return Artifact{}, rep, fmt.Errorf("zip %s: %w", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return Artifact{}, rep, fmt.Errorf("zip %s: %w", name, err)
		}
		rep.Succeeded++
	}
	if err := zw.Close(); err != nil {
		return Artifact{}, rep, fmt.Errorf("zip: %w", err)
	}
	if rep.Succeeded == 0 {
		return Artifact{}, rep, ErrNothingExported
	}
	c.logger.Info("export: batch written", "entries", rep.Succeeded, "failed", len(rep.Failures))
	return Artifact{Name: batchName + ".zip", MIMEType: "application/zip", Data: buf.Bytes()}, rep, nil
}

// ExportPaginated writes one page per item. Each page image is rendered at
// the item's native resolution; fitting it to the page is the document
// writer's job. Items that fail are reported and left out. A document
// writer failure aborts the whole export.
func (c *Coordinator) ExportPaginated(ctx context.Context, snap Snapshot) (Artifact, Report, error) {
	if err := c.acquire(); err != nil {
		return Artifact{}, Report{}, err
	}
	defer c.release()

	if len(snap.Items) == 0 {
		return Artifact{}, Report{}, ErrNoImages
	}
	var rep Report
	var pages []io.Reader
	for i, it := range snap.Items {
		if err := ctx.Err(); err != nil {
			return Artifact{}, rep, err
		}
		data, err := c.renderEncode(snap.Scene, it, c.page)
		if err != nil {
			rep.Failures = append(rep.Failures, c.failure(i, it, err))
			continue
		}
		pages = append(pages, bytes.NewReader(data))
		rep.Succeeded++
	}
	if rep.Succeeded == 0 {
		return Artifact{}, rep, ErrNothingExported
	}

	var buf bytes.Buffer
	if err := c.doc.WriteDocument(&buf, pages); err != nil {
		return Artifact{}, rep, fmt.Errorf("write document: %w", err)
	}
	c.logger.Info("export: document written", "pages", rep.Succeeded, "failed", len(rep.Failures))
	return Artifact{Name: batchName + c.doc.Extension(), MIMEType: c.doc.MIMEType(), Data: buf.Bytes()}, rep, nil
}

func (c *Coordinator) single(sc watermark.Scene, it Item) (Artifact, error) {
	data, err := c.renderEncode(sc, it, c.raster)
	if err != nil {
		return Artifact{}, fmt.Errorf("%s: %w", it.Name, err)
	}
	return Artifact{
		Name:     outputName(it.Name, c.raster.Extension()),
		MIMEType: c.raster.MIMEType(),
		Data:     data,
	}, nil
}

func (c *Coordinator) renderEncode(sc watermark.Scene, it Item, enc RasterEncoder) ([]byte, error) {
	if it.Image == nil {
		return nil, watermark.ErrReleased
	}
	b := it.Image.Bounds()
	out, err := c.renderer.Render(it.Image, sc, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

func (c *Coordinator) failure(i int, it Item, err error) composition.ItemFailure {
	c.logger.Warn("export: item failed", "image", it.Name, "error", err)
	return composition.ItemFailure{Index: i, Name: it.Name, Err: err}
}

func (c *Coordinator) acquire() error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (c *Coordinator) release() {
	c.busy.Store(false)
}

// outputName turns "photo.jpg" into "photo_watermarked.png".
func outputName(name, ext string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = fallbackBase
	}
	return base + nameSuffix + ext
}

// uniqueName suffixes repeated names: "a.png", "a (2).png", "a (3).png".
func uniqueName(seen map[string]int, name string) string {
	seen[name]++
	n := seen[name]
	if n == 1 {
		return name
	}
	ext := filepath.Ext(name)
	candidate := fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
	return uniqueName(seen, candidate)
}

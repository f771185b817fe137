// Package composition holds the canonical description of a watermark
// session: the loaded images, the text and logo layers, the base-image
// filters and which image is active. It owns no rendering logic.
package composition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"
)

// ErrUnknownImage is returned for an image id that is not in the collection.
var ErrUnknownImage = errors.New("unknown image")

// AddReport summarizes an AddImages call.
type AddReport struct {
	Added    []SourceImage
	Failures []ItemFailure
}

// Option configures a State.
type Option func(*State)

// WithDecodeWorkers bounds how many inputs are decoded at once.
func WithDecodeWorkers(n int) Option {
	return func(s *State) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger used for collection changes.
func WithLogger(l *slog.Logger) Option {
	return func(s *State) {
		if l != nil {
			s.logger = l
		}
	}
}

// State is the mutable session. ActiveImageID is empty iff Images is empty,
// otherwise it names an element of Images.
type State struct {
	images  []SourceImage
	params  Params
	workers int
	logger  *slog.Logger
}

// NewState returns an empty session with default parameters.
func NewState(opts ...Option) *State {
	s := &State{
		params: Params{
			Text:    DefaultTextWatermark(),
			Logo:    DefaultLogoWatermark(),
			Filters: DefaultFilters(),
		},
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Images returns the collection in insertion order.
func (s *State) Images() []SourceImage {
	return slices.Clone(s.images)
}

// Image looks up an image by id.
func (s *State) Image(id string) (SourceImage, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return SourceImage{}, false
	}
	return s.images[i], true
}

// ActiveImageID returns the active image id, or "" when there are no images.
func (s *State) ActiveImageID() string {
	return s.params.ActiveImageID
}

// ActiveImage returns the active image, if any.
func (s *State) ActiveImage() (SourceImage, bool) {
	return s.Image(s.params.ActiveImageID)
}

// TextWatermark returns the text layer.
func (s *State) TextWatermark() TextWatermark { return s.params.Text }

// LogoWatermark returns the logo layer.
func (s *State) LogoWatermark() LogoWatermark { return s.params.Logo }

// Filters returns the base-image filters.
func (s *State) Filters() Filters { return s.params.Filters }

// Params returns a copy of the undoable parameters.
func (s *State) Params() Params { return s.params }

// AddImages decodes files and appends the successes in input order. A file
// that fails to decode is reported and skipped; the rest still load. The
// only error is cancellation, in which case nothing is added.
func (s *State) AddImages(ctx context.Context, files []File) (AddReport, error) {
	decoded := make([]SourceImage, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			decoded[i], errs[i] = Decode(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, img := range decoded {
			img.Handle.Release()
		}
		return AddReport{}, err
	}
	if err := ctx.Err(); err != nil {
		for _, img := range decoded {
			img.Handle.Release()
		}
		return AddReport{}, err
	}

	var rep AddReport
	for i, img := range decoded {
		if errs[i] != nil {
			rep.Failures = append(rep.Failures, ItemFailure{Index: i, Name: files[i].Name, Err: errs[i]})
			s.logger.Warn("composition: decode failed", "file", files[i].Name, "error", errs[i])
			continue
		}
		s.images = append(s.images, img)
		rep.Added = append(rep.Added, img)
	}
	if s.params.ActiveImageID == "" && len(s.images) > 0 {
		s.params.ActiveImageID = s.images[0].ID
	}
	s.logger.Debug("composition: images added", "added", len(rep.Added), "failed", len(rep.Failures))
	return rep, nil
}

// RemoveImage drops an image and releases its bitmap. If it was active, the
// first remaining image becomes active.
func (s *State) RemoveImage(id string) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownImage, id)
	}
	s.images[i].Handle.Release()
	s.images = slices.Delete(s.images, i, i+1)
	if s.params.ActiveImageID == id {
		s.params.ActiveImageID = s.firstImageID()
	}
	return nil
}

// SetActiveImage selects the image shown in the single-image preview.
func (s *State) SetActiveImage(id string) error {
	if s.indexOf(id) < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownImage, id)
	}
	s.params.ActiveImageID = id
	return nil
}

// SetTextWatermark merges p into the text layer.
func (s *State) SetTextWatermark(p TextPatch) {
	s.params.Text = p.apply(s.params.Text)
}

// SetLogoWatermark merges p into the logo layer.
func (s *State) SetLogoWatermark(p LogoPatch) {
	s.params.Logo = p.apply(s.params.Logo)
}

// SetFilters merges p into the filter set.
func (s *State) SetFilters(p FilterPatch) {
	s.params.Filters = p.apply(s.params.Filters)
}

// SetLogoImage decodes f and makes it the logo bitmap, releasing the
// previous one. On failure the current logo is kept.
func (s *State) SetLogoImage(f File) error {
	img, err := Decode(f)
	if err != nil {
		return err
	}
	s.params.Logo.Mark.Release()
	s.params.Logo.Mark = img.Handle
	return nil
}

// ClearLogo releases the logo bitmap. Logo parameters are kept.
func (s *State) ClearLogo() {
	s.params.Logo.Mark.Release()
	s.params.Logo.Mark = nil
}

// ResetToDefaults restores default layer and filter parameters. Images, the
// active image and the logo bitmap are left alone.
func (s *State) ResetToDefaults() {
	mark := s.params.Logo.Mark
	s.params.Text = DefaultTextWatermark()
	s.params.Logo = DefaultLogoWatermark()
	s.params.Logo.Mark = mark
	s.params.Filters = DefaultFilters()
}

// Restore replaces the parameters with p. The current logo bitmap is kept,
// and an active id that is no longer in the collection falls back to the
// first image.
func (s *State) Restore(p Params) {
	p.Logo.Mark = s.params.Logo.Mark
	if s.indexOf(p.ActiveImageID) < 0 {
		p.ActiveImageID = s.firstImageID()
	}
	s.params = p
}

// Close releases every bitmap and empties the collection.
func (s *State) Close() {
	for _, img := range s.images {
		img.Handle.Release()
	}
	s.images = nil
	s.params.ActiveImageID = ""
	s.ClearLogo()
}

func (s *State) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.images, func(img SourceImage) bool { return img.ID == id })
}

func (s *State) firstImageID() string {
	if len(s.images) == 0 {
		return ""
	}
	return s.images[0].ID
}

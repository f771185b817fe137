package export

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// DocumentWriter assembles encoded page images into a paginated document,
// one image per page.
type DocumentWriter interface {
	WriteDocument(w io.Writer, pages []io.Reader) error
	Extension() string
	MIMEType() string
}

var disablePDFConfigDir sync.Once

// PDFWriter writes a PDF with each image centered on its own page and
// scaled to fit it, aspect ratio preserved.
type PDFWriter struct {
	// PageSize is a paper name pdfcpu understands, e.g. "A4" or "Letter".
	PageSize string
}

func (p PDFWriter) WriteDocument(w io.Writer, pages []io.Reader) error {
	// pdfcpu would otherwise create a config directory under $HOME.
	disablePDFConfigDir.Do(api.DisableConfigDir)

	size := strings.TrimSpace(p.PageSize)
	if size == "" {
		size = "A4"
	}
	imp, err := api.Import(fmt.Sprintf("form:%s, pos:c, sc:1.0 rel", size), types.POINTS)
	if err != nil {
		return fmt.Errorf("%w: page layout %q: %v", ErrDocumentSetup, size, err)
	}
	return api.ImportImages(nil, w, pages, imp, model.NewDefaultConfiguration())
}

func (PDFWriter) Extension() string { return ".pdf" }
func (PDFWriter) MIMEType() string  { return "application/pdf" }

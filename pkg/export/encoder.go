package export

import (
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/disintegration/imaging"
)

// RasterEncoder writes one rendered image in a raster container.
type RasterEncoder interface {
	Encode(w io.Writer, img image.Image) error
	Extension() string
	MIMEType() string
}

// PNGEncoder keeps transparency and is lossless.
type PNGEncoder struct{}

func (PNGEncoder) Encode(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

func (PNGEncoder) Extension() string { return ".png" }
func (PNGEncoder) MIMEType() string  { return "image/png" }

// JPEGEncoder flattens alpha onto Background before encoding, since JPEG
// has no alpha channel. A zero Background means white.
type JPEGEncoder struct {
	Quality    int
	Background color.NRGBA
}

func (e JPEGEncoder) Encode(w io.Writer, img image.Image) error {
	q := e.Quality
	if q <= 0 || q > 100 {
		q = 92
	}
	bg := e.Background
	if bg == (color.NRGBA{}) {
		bg = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return imaging.Encode(w, flattenToRGB(img, bg), imaging.JPEG, imaging.JPEGQuality(q))
}

func (JPEGEncoder) Extension() string { return ".jpg" }
func (JPEGEncoder) MIMEType() string  { return "image/jpeg" }

func flattenToRGB(img image.Image, bg color.NRGBA) image.Image {
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, &image.Uniform{C: bg}, image.Point{}, draw.Src)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Over)
	return rgba
}

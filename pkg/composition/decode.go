package composition

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode marks an input that could not be interpreted as an image.
var ErrDecode = errors.New("decode failed")

// File is one acquired input: its name, raw bytes and declared MIME type.
// An empty MIMEType means "unknown" and the bytes are sniffed.
type File struct {
	Name     string
	Data     []byte
	MIMEType string
}

// SourceImage is a decoded input. It is immutable once created; the
// collection owns its Handle.
type SourceImage struct {
	ID          string
	DisplayName string
	PixelWidth  int
	PixelHeight int
	Handle      *Handle
}

// ItemFailure names one input of a batch that failed and why.
type ItemFailure struct {
	Index int
	Name  string
	Err   error
}

func (f ItemFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Name, f.Err)
}

func (f ItemFailure) Unwrap() error { return f.Err }

// Decode turns f into a SourceImage with a fresh id. EXIF orientation is
// applied so pixel dimensions match what a viewer shows.
func Decode(f File) (SourceImage, error) {
	if mt := strings.TrimSpace(f.MIMEType); mt != "" && !strings.HasPrefix(strings.ToLower(mt), "image/") {
		return SourceImage{}, fmt.Errorf("%w: %s: unsupported type %q", ErrDecode, f.Name, mt)
	}
	if len(f.Data) == 0 {
		return SourceImage{}, fmt.Errorf("%w: %s: empty input", ErrDecode, f.Name)
	}
	img, err := imaging.Decode(bytes.NewReader(f.Data), imaging.AutoOrientation(true))
	if err != nil {
		return SourceImage{}, fmt.Errorf("%w: %s: %v", ErrDecode, f.Name, err)
	}
	b := img.Bounds()
	if b.Empty() {
		return SourceImage{}, fmt.Errorf("%w: %s: empty image", ErrDecode, f.Name)
	}
	return SourceImage{
		ID:          uuid.NewString(),
		DisplayName: f.Name,
		PixelWidth:  b.Dx(),
		PixelHeight: b.Dy(),
		Handle:      NewHandle(img),
	}, nil
}

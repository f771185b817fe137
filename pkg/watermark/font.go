package watermark

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var builtinFonts = map[string][]byte{
	"goregular": goregular.TTF,
	"gobold":    gobold.TTF,
	"goitalic":  goitalic.TTF,
	"gomono":    gomono.TTF,
}

// fontFace returns a cached face for family at sizePx. Callers hold r.mu.
func (r *Renderer) fontFace(family string, sizePx float64) (font.Face, error) {
	key := family + "@" + strconv.FormatFloat(sizePx, 'f', 2, 64)
	if f, ok := r.faces[key]; ok {
		return f, nil
	}
	f, err := r.loadFontFaceWithFallback(family, sizePx)
	if err != nil {
		return nil, err
	}
	r.faces[key] = f
	return f, nil
}

// loadFontFaceWithFallback resolves family as a font file path, a built-in
// Go font name or a generic name, and falls back to the configured default
// font and then to Go Regular.
func (r *Renderer) loadFontFaceWithFallback(family string, sizePx float64) (font.Face, error) {
	family = strings.TrimSpace(family)
	if isFontPath(family) {
		face, err := loadFontFile(family, sizePx)
		if err == nil {
			return face, nil
		}
		r.logger.Warn("watermark: font load failed, falling back", "font", family, "error", err)
	} else if data, ok := builtinFonts[builtinName(family)]; ok {
		return newFace(data, sizePx)
	} else if family != "" {
		r.logger.Warn("watermark: unknown font family, falling back", "font", family)
	}
	if r.fontPath != "" {
		face, err := loadFontFile(r.fontPath, sizePx)
		if err == nil {
			return face, nil
		}
		r.logger.Warn("watermark: default font load failed, using Go Regular", "font", r.fontPath, "error", err)
	}
	return newFace(goregular.TTF, sizePx)
}

func isFontPath(family string) bool {
	switch strings.ToLower(filepath.Ext(family)) {
	case ".ttf", ".otf":
		return true
	}
	return false
}

// builtinName maps generic family names onto the Go fonts.
func builtinName(family string) string {
	f := strings.ToLower(family)
	if _, ok := builtinFonts[f]; ok {
		return f
	}
	switch {
	case strings.Contains(f, "mono"):
		return "gomono"
	case strings.Contains(f, "bold"):
		return "gobold"
	case strings.Contains(f, "italic"):
		return "goitalic"
	case f == "sans-serif", f == "serif", f == "go", strings.HasPrefix(f, "system-ui"):
		return "goregular"
	}
	return ""
}

func loadFontFile(path string, sizePx float64) (font.Face, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("font path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newFace(data, sizePx)
}

func newFace(data []byte, sizePx float64) (font.Face, error) {
	fnt, err := opentype.Parse(data)
	if err != nil {
		return nil, err
	}
	// At 72 DPI one point is one pixel.
	return opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    sizePx,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"watermarkstudio/pkg/composition"
	"watermarkstudio/pkg/config"
	"watermarkstudio/pkg/export"
	"watermarkstudio/pkg/geometry"
	"watermarkstudio/pkg/interaction"
	"watermarkstudio/pkg/studio"
	"watermarkstudio/pkg/watermark"
)

type options struct {
	out     string
	preview string
	format  string
	scope   string
	jpeg    bool
	jpgBG   string

	text     string
	font     string
	fontSize float64
	color    string
	opacity  float64
	angle    float64
	x, y     float64
	position string

	logo         string
	logoScale    float64
	logoOpacity  float64
	logoAngle    float64
	logoX, logoY float64
	logoPosition string

	brightness, contrast, saturation, grayscale, blur float64
}

func main() {
	os.Exit(run())
}

func run() int {
	var o options
	flag.StringVar(&o.out, "out", "", "output directory (required)")
	flag.StringVar(&o.preview, "preview", "", "also write the preview of the first image to this path")
	flag.StringVar(&o.format, "format", "raster", "export format: raster (one file, or a zip for several) or pdf")
	flag.StringVar(&o.scope, "scope", "all", "export scope: all or selected (the first image)")
	flag.BoolVar(&o.jpeg, "jpeg", false, "raster: write JPEG instead of PNG")
	flag.StringVar(&o.jpgBG, "jpg-bg", "255,255,255", "jpeg background RGB, e.g. 255,255,255")

	flag.StringVar(&o.text, "text", composition.DefaultText, "watermark text, empty for none")
	flag.StringVar(&o.font, "font", composition.DefaultFontFamily, "font family (goregular, gobold, goitalic, gomono) or .ttf/.otf path")
	flag.Float64Var(&o.fontSize, "font-size", composition.DefaultFontSizePx, "font size in px")
	flag.StringVar(&o.color, "color", "#ffffff", "text color hex")
	flag.Float64Var(&o.opacity, "opacity", composition.DefaultOpacity, "text opacity 0..1")
	flag.Float64Var(&o.angle, "angle", 0, "text rotation in degrees, clockwise")
	flag.Float64Var(&o.x, "x", composition.DefaultTextAnchorX, "text anchor x in px")
	flag.Float64Var(&o.y, "y", composition.DefaultTextAnchorY, "text anchor y in px")
	flag.StringVar(&o.position, "position", "", "text preset: TL TC TR CL CC CR BL BC BR or top-left, center, ... (overrides -x/-y)")

	flag.StringVar(&o.logo, "logo", "", "logo image path")
	flag.Float64Var(&o.logoScale, "logo-scale", composition.DefaultLogoScale, "logo size relative to the shorter image side")
	flag.Float64Var(&o.logoOpacity, "logo-opacity", composition.DefaultOpacity, "logo opacity 0..1")
	flag.Float64Var(&o.logoAngle, "logo-angle", 0, "logo rotation in degrees, clockwise")
	flag.Float64Var(&o.logoX, "logo-x", composition.DefaultLogoAnchorX, "logo anchor x in px")
	flag.Float64Var(&o.logoY, "logo-y", composition.DefaultLogoAnchorY, "logo anchor y in px")
	flag.StringVar(&o.logoPosition, "logo-position", "", "logo preset, as -position")

	flag.Float64Var(&o.brightness, "brightness", 100, "brightness percent 0..200")
	flag.Float64Var(&o.contrast, "contrast", 100, "contrast percent 0..200")
	flag.Float64Var(&o.saturation, "saturation", 100, "saturation percent 0..200")
	flag.Float64Var(&o.grayscale, "grayscale", 0, "grayscale percent 0..100")
	flag.Float64Var(&o.blur, "blur", 0, "blur radius in px 0..10")

	flag.Parse()

	if err := validateRequired(o.out, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		return 2
	}
	format, scope, err := parseExport(o.format, o.scope)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	textColor, err := watermark.ParseHexColor(o.color)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid -color:", err)
		return 2
	}
	bg, err := parseRGB(o.jpgBG)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid -jpg-bg:", err)
		return 2
	}
	textPos, err := parsePosition(o.position)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid -position:", err)
		return 2
	}
	logoPos, err := parsePosition(o.logoPosition)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid -logo-position:", err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var sessOpts []studio.Option
	sessOpts = append(sessOpts, studio.WithLogger(logger))
	if o.jpeg {
		sessOpts = append(sessOpts, studio.WithExportOptions(
			export.WithRasterEncoder(export.JPEGEncoder{Quality: cfg.PageJPEGQuality, Background: bg}),
		))
	}
	sess := studio.New(cfg, sessOpts...)
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	files, unread := readFiles(flag.Args())
	for _, f := range unread {
		logger.Warn("skipping input", "path", f.Name, "error", f.Err)
	}
	rep, err := sess.AddImages(ctx, files)
	if err != nil {
		logger.Error("load images", "error", err)
		return 1
	}
	failed := len(unread) + len(rep.Failures)
	if len(rep.Added) == 0 {
		logger.Error("no input could be loaded", "failed", failed)
		return 1
	}

	if o.logo != "" {
		lf, unread := readFiles([]string{o.logo})
		if len(unread) > 0 {
			logger.Error("read logo", "error", unread[0])
			return 1
		}
		if err := sess.SetLogo(lf[0]); err != nil {
			logger.Error("load logo", "error", err)
			return 1
		}
	}

	sess.EditText(composition.TextPatch{
		Text:        &o.text,
		FontFamily:  &o.font,
		FontSizePx:  &o.fontSize,
		Color:       &textColor,
		Opacity:     &o.opacity,
		RotationDeg: &o.angle,
		AnchorX:     &o.x,
		AnchorY:     &o.y,
	}, false)
	sess.EditLogo(composition.LogoPatch{
		RelativeScale: &o.logoScale,
		Opacity:       &o.logoOpacity,
		RotationDeg:   &o.logoAngle,
		AnchorX:       &o.logoX,
		AnchorY:       &o.logoY,
	}, false)
	sess.EditFilters(composition.FilterPatch{
		BrightnessPct: &o.brightness,
		ContrastPct:   &o.contrast,
		SaturationPct: &o.saturation,
		GrayscalePct:  &o.grayscale,
		BlurPx:        &o.blur,
	}, true)
	logger.Debug("parameters set", "text", o.text, "color", watermark.FormatHexColor(textColor), "font", o.font)

	// Presets are laid out on the preview surface, like in the editor.
	frame, err := sess.Preview()
	if err != nil {
		logger.Error("render preview", "error", err)
		return 1
	}
	if textPos != "" {
		if err := sess.QuickPosition(interaction.LayerText, textPos); err != nil {
			logger.Error("position text", "error", err)
			return 1
		}
	}
	if logoPos != "" && o.logo != "" {
		if err := sess.QuickPosition(interaction.LayerLogo, logoPos); err != nil {
			logger.Error("position logo", "error", err)
			return 1
		}
	}
	if o.preview != "" {
		if textPos != "" || logoPos != "" {
			if frame, err = sess.Preview(); err != nil {
				logger.Error("render preview", "error", err)
				return 1
			}
		}
		if err := os.WriteFile(o.preview, frame.PNG, 0o644); err != nil {
			logger.Error("write preview", "error", err)
			return 1
		}
	}

	art, exp, err := sess.Export(ctx, scope, format)
	if err != nil {
		logger.Error("export", "error", err)
		return 1
	}
	if err := os.MkdirAll(o.out, 0o755); err != nil {
		logger.Error("create output directory", "error", err)
		return 1
	}
	dst := filepath.Join(o.out, art.Name)
	if err := os.WriteFile(dst, art.Data, 0o644); err != nil {
		logger.Error("write output", "error", err)
		return 1
	}
	logger.Info("export written", "path", dst, "images", exp.Succeeded, "failed", len(exp.Failures)+failed)
	return 0
}

func validateRequired(out string, inputs []string) error {
	if strings.TrimSpace(out) == "" {
		return errors.New("missing -out")
	}
	if len(inputs) == 0 {
		return errors.New("missing input images")
	}
	return nil
}

func parseExport(format, scope string) (export.Format, export.Scope, error) {
	var f export.Format
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "raster", "png", "zip":
		f = export.FormatRaster
	case "pdf", "document":
		f = export.FormatDocument
	default:
		return "", "", fmt.Errorf("unsupported format: %s", format)
	}
	var s export.Scope
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "all":
		s = export.ScopeAll
	case "selected":
		s = export.ScopeSelected
	default:
		return "", "", fmt.Errorf("unsupported scope: %s", scope)
	}
	return f, s, nil
}

func parsePosition(raw string) (geometry.Position, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	p, ok := geometry.ParsePosition(raw)
	if !ok {
		return "", fmt.Errorf("unknown position %q", raw)
	}
	return p, nil
}

// readFiles reads every path it can. Unreadable paths come back as
// failures indexed by their position in paths.
func readFiles(paths []string) ([]composition.File, []composition.ItemFailure) {
	files := make([]composition.File, 0, len(paths))
	var failures []composition.ItemFailure
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			failures = append(failures, composition.ItemFailure{Index: i, Name: p, Err: err})
			continue
		}
		files = append(files, composition.File{Name: filepath.Base(p), Data: data})
	}
	return files, failures
}

func parseRGB(raw string) (color.NRGBA, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return color.NRGBA{}, errors.New("expected format r,g,b")
	}
	vals := [3]uint8{}
	for i := 0; i < 3; i++ {
		p := strings.TrimSpace(parts[i])
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return color.NRGBA{}, fmt.Errorf("invalid channel: %q", p)
		}
		vals[i] = uint8(v)
	}
	return color.NRGBA{R: vals[0], G: vals[1], B: vals[2], A: 255}, nil
}

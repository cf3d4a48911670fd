// Package imageproc implements the deterministic crop/scale/pad/encode
// pipeline applied to raw captures, plus the byte-ceiling recompression
// pass used by publishers.
package imageproc

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyCrop marks a crop whose result would have zero or negative
// area. It is a hard failure: silently clamping would hide a config bug.
var ErrEmptyCrop = errors.New("crop produces empty image")

// Crop holds fixed pixel insets removed from each edge.
type Crop struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

// Options parameterize Normalize. Zero values disable the optional steps.
type Options struct {
	Crop       *Crop
	MaxWidth   int
	MaxHeight  int
	PadToWidth int
	PadFill    color.Color
	Quality    int
}

// Normalize runs the deterministic pipeline in order: flatten transparency
// onto a solid background, optional inset crop, downscale into the max
// bounding box, optional symmetric pad to a minimum width, JPEG encode.
// On step failure it falls back to the unmodified input if that still
// exists on disk; it never returns a path to a nonexistent file. A
// zero-area crop is the exception: that error is returned directly.
func Normalize(rawPath string, opts Options, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 85
	}
	if opts.PadFill == nil {
		opts.PadFill = color.White
	}

	src, err := imaging.Open(rawPath)
	if err != nil {
		return fallback(rawPath, fmt.Errorf("open raw image: %w", err), logger)
	}

	img := flatten(src, opts.PadFill)

	if opts.Crop != nil {
		img, err = applyCrop(img, *opts.Crop)
		if err != nil {
			return "", err
		}
	}

	if opts.MaxWidth > 0 && opts.MaxHeight > 0 {
		b := img.Bounds()
		if b.Dx() > opts.MaxWidth || b.Dy() > opts.MaxHeight {
			img = imaging.Fit(img, opts.MaxWidth, opts.MaxHeight, imaging.Lanczos)
		}
	}

	if opts.PadToWidth > 0 && img.Bounds().Dx() < opts.PadToWidth {
		img = pad(img, opts.PadToWidth, opts.PadFill)
	}

	out := strings.TrimSuffix(rawPath, filepath.Ext(rawPath)) + "_normalized.jpg"
	if err := imaging.Save(img, out, imaging.JPEGQuality(opts.Quality)); err != nil {
		// a failed save can leave a partially written output behind
		if rmErr := os.Remove(out); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("remove partial output", zap.String("path", out), zap.Error(rmErr))
		}
		return fallback(rawPath, fmt.Errorf("encode jpeg: %w", err), logger)
	}
	return out, nil
}

// Recompress writes one aggressively compressed copy of path into a
// distinct temporary file and returns its path. The caller owns the temp
// file and must remove it on every exit path.
func Recompress(path string, quality int) (string, error) {
	if quality <= 0 || quality > 100 {
		return "", fmt.Errorf("invalid recompress quality %d", quality)
	}
	img, err := imaging.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for recompress: %w", err)
	}
	out := fmt.Sprintf("%s_compressed_%s.jpg",
		strings.TrimSuffix(path, filepath.Ext(path)), uuid.NewString()[:8])
	if err := imaging.Save(img, out, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("save recompressed: %w", err)
	}
	return out, nil
}

// flatten draws the image over an opaque background. JPEG has no alpha
// channel, so transparency must go before encoding.
func flatten(src image.Image, fill color.Color) *image.NRGBA {
	b := src.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), fill)
	return imaging.Overlay(bg, src, image.Pt(0, 0), 1.0)
}

func applyCrop(img *image.NRGBA, c Crop) (*image.NRGBA, error) {
	b := img.Bounds()
	width := b.Dx() - c.Left - c.Right
	height := b.Dy() - c.Top - c.Bottom
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%dx%d minus insets {top:%d right:%d bottom:%d left:%d}: %w",
			b.Dx(), b.Dy(), c.Top, c.Right, c.Bottom, c.Left, ErrEmptyCrop)
	}
	rect := image.Rect(c.Left, c.Top, b.Dx()-c.Right, b.Dy()-c.Bottom)
	return imaging.Crop(img, rect), nil
}

// pad centers the image on a wider canvas filled with the pad color.
func pad(img *image.NRGBA, width int, fill color.Color) *image.NRGBA {
	bg := imaging.New(width, img.Bounds().Dy(), fill)
	return imaging.OverlayCenter(bg, img, 1.0)
}

func fallback(rawPath string, cause error, logger *zap.Logger) (string, error) {
	if _, statErr := os.Stat(rawPath); statErr == nil {
		logger.Warn("normalization failed, returning original image", zap.Error(cause))
		return rawPath, nil
	}
	return "", fmt.Errorf("normalization failed and input is gone: %w", cause)
}

package imageproc

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writePNG(t *testing.T, dir string, width, height int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, "raw.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func dimensions(t *testing.T, path string) (int, int) {
	t.Helper()
	img, err := imaging.Open(path)
	require.NoError(t, err)
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestNormalizeCropExactInsets(t *testing.T) {
	t.Parallel()

	raw := writePNG(t, t.TempDir(), 1000, 800)
	out, err := Normalize(raw, Options{
		Crop:    &Crop{Top: 50, Right: 30, Bottom: 50, Left: 0},
		Quality: 85,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NotEqual(t, raw, out)

	w, h := dimensions(t, out)
	require.Equal(t, 970, w)
	require.Equal(t, 700, h)
}

func TestNormalizeEmptyCropIsHardFailure(t *testing.T) {
	t.Parallel()

	raw := writePNG(t, t.TempDir(), 100, 100)
	_, err := Normalize(raw, Options{
		Crop: &Crop{Top: 60, Bottom: 60},
	}, zap.NewNop())
	require.ErrorIs(t, err, ErrEmptyCrop)

	_, err = Normalize(raw, Options{
		Crop: &Crop{Left: 50, Right: 50},
	}, zap.NewNop())
	require.ErrorIs(t, err, ErrEmptyCrop, "zero width must be rejected, never clamped")
}

func TestNormalizeDownscalesToBoundingBox(t *testing.T) {
	t.Parallel()

	raw := writePNG(t, t.TempDir(), 1920, 1080)
	out, err := Normalize(raw, Options{MaxWidth: 1280, MaxHeight: 1280, Quality: 85}, zap.NewNop())
	require.NoError(t, err)

	w, h := dimensions(t, out)
	require.LessOrEqual(t, w, 1280)
	require.LessOrEqual(t, h, 1280)
	// Aspect ratio preserved.
	require.Equal(t, 1280, w)
	require.Equal(t, 720, h)
}

func TestNormalizePadsToMinimumWidth(t *testing.T) {
	t.Parallel()

	raw := writePNG(t, t.TempDir(), 400, 300)
	out, err := Normalize(raw, Options{PadToWidth: 600, Quality: 85}, zap.NewNop())
	require.NoError(t, err)

	w, h := dimensions(t, out)
	require.Equal(t, 600, w)
	require.Equal(t, 300, h)
}

func TestNormalizeFallsBackToOriginalOnOpenFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "not-an-image.png")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o600))

	out, err := Normalize(path, Options{Quality: 85}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, path, out, "original must be returned when it still exists")
}

func TestNormalizeEncodeFailureLeavesNoOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raw := writePNG(t, dir, 100, 100)

	// a directory squatting on the output path makes the save fail
	outPath := filepath.Join(dir, "raw_normalized.jpg")
	require.NoError(t, os.Mkdir(outPath, 0o755))

	out, err := Normalize(raw, Options{Quality: 85}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, raw, out, "original must be returned when the encode fails")

	_, statErr := os.Stat(outPath)
	require.True(t, os.IsNotExist(statErr), "failed encode must not leave the output path behind")
}

func TestNormalizeFailsWhenInputMissing(t *testing.T) {
	t.Parallel()

	_, err := Normalize(filepath.Join(t.TempDir(), "missing.png"), Options{}, zap.NewNop())
	require.Error(t, err)
}

func TestRecompressProducesDistinctSmallerFile(t *testing.T) {
	t.Parallel()

	raw := writePNG(t, t.TempDir(), 800, 600)
	normalized, err := Normalize(raw, Options{Quality: 95}, zap.NewNop())
	require.NoError(t, err)

	compressed, err := Recompress(normalized, 50)
	require.NoError(t, err)
	require.NotEqual(t, normalized, compressed)

	orig, err := os.Stat(normalized)
	require.NoError(t, err)
	small, err := os.Stat(compressed)
	require.NoError(t, err)
	require.Less(t, small.Size(), orig.Size())
}

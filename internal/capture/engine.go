// Package capture drives a headless Chrome session to turn a configured
// page into a normalized screenshot artifact.
package capture

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/cryptoradar/radarshot/internal/imageproc"
	"github.com/cryptoradar/radarshot/internal/radar"
	"github.com/cryptoradar/radarshot/internal/workdir"
)

// ImageDefaults are the normalization knobs shared by every source.
type ImageDefaults struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	PadFill   color.Color
}

// Config controls the behavior of the capture engine.
type Config struct {
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	NavTimeout     time.Duration
	BaseDelay      time.Duration
	WaitForTimeout time.Duration
	RegionPadding  int
	Retry          radar.RetryPolicy
	Image          ImageDefaults
}

// Engine implements radar.Capturer using chromedp. It owns one browser
// allocator for its lifetime; Close must run on every exit path, since a
// leaked browser process silently exhausts the host across repeated runs.
type Engine struct {
	cfg         Config
	dir         *workdir.Dir
	clock       radar.Clock
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates an Engine backed by a fresh headless Chrome allocator.
func New(cfg Config, dir *workdir.Dir, clock radar.Clock, logger *zap.Logger) (*Engine, error) {
	if dir == nil {
		return nil, fmt.Errorf("workdir is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1920
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 1080
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.WaitForTimeout <= 0 {
		cfg.WaitForTimeout = 15 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Engine{
		cfg:         cfg,
		dir:         dir,
		clock:       clock,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close tears down the browser allocator and every process under it.
func (e *Engine) Close() {
	e.allocCancel()
}

// Capture produces a normalized screenshot for src, retrying failed
// attempts under the configured policy. Navigation failures are
// retryable; deterministic normalization failures are not.
func (e *Engine) Capture(ctx context.Context, src radar.SourceDescriptor) (radar.CaptureResult, error) {
	var result radar.CaptureResult
	err := e.cfg.Retry.Run(ctx, func(attempt int) error {
		if attempt > 1 {
			e.logger.Info("retrying capture",
				zap.String("source", src.ID), zap.Int("attempt", attempt))
		}
		path, err := e.attempt(ctx, src)
		if err != nil {
			return err
		}
		result = radar.CaptureResult{
			SourceID:   src.ID,
			SourceName: src.Name,
			Path:       path,
			CapturedAt: e.clock.Now(),
		}
		return nil
	})
	if err != nil {
		return radar.CaptureResult{}, err
	}
	return result, nil
}

// attempt runs one full capture pass in a fresh browser tab. On failure
// every file the attempt created is removed; on success only the final
// normalized artifact survives.
func (e *Engine) attempt(ctx context.Context, src radar.SourceDescriptor) (finalPath string, err error) {
	taskCtx, taskCancel := chromedp.NewContext(e.allocator)
	defer taskCancel()

	rawPath := e.dir.TempPath(src.ID, ".png")
	defer func() {
		// Raw capture is always intermediate; the normalized artifact is
		// the only file allowed to survive a successful attempt.
		if rawPath != finalPath {
			removeQuietly(rawPath, e.logger)
		}
		if err != nil && finalPath != "" {
			removeQuietly(finalPath, e.logger)
			finalPath = ""
		}
	}()

	if err := e.navigate(taskCtx, ctx, src.URL); err != nil {
		return "", fmt.Errorf("navigate %s: %w", src.URL, err)
	}

	e.dismissOverlays(taskCtx)
	e.settle(taskCtx, src)
	e.adjustDOM(taskCtx, src)

	raw, err := e.screenshot(taskCtx, src)
	if err != nil {
		return "", fmt.Errorf("screenshot %s: %w", src.ID, err)
	}
	if err := os.WriteFile(rawPath, raw, 0o600); err != nil {
		return "", fmt.Errorf("write raw capture: %w", err)
	}

	finalPath, err = imageproc.Normalize(rawPath, e.normalizeOptions(src), e.logger)
	if err != nil {
		// Zero-area crops and missing inputs are deterministic; retrying
		// them would repeat the same bug.
		return "", radar.Permanent(fmt.Errorf("normalize %s: %w", src.ID, err))
	}
	return finalPath, nil
}

// navigate loads the page under the navigation timeout. A timeout here is
// fatal for the attempt (and retryable), unlike the readiness waits below.
func (e *Engine) navigate(taskCtx, parent context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(taskCtx, e.cfg.NavTimeout)
	defer cancel()
	go func() {
		// Propagate caller cancellation into the browser task.
		select {
		case <-parent.Done():
			cancel()
		case <-navCtx.Done():
		}
	}()

	return chromedp.Run(navCtx,
		emulation.SetDeviceMetricsOverride(
			int64(e.cfg.ViewportWidth), int64(e.cfg.ViewportHeight), 1, false),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// settle waits for the page to finish rendering: fixed base delay, the
// per-source extra delay, then the optional readiness selector. A
// readiness timeout is logged and ignored; the capture proceeds.
func (e *Engine) settle(taskCtx context.Context, src radar.SourceDescriptor) {
	delay := e.cfg.BaseDelay + src.ExtraDelay
	if delay > 0 {
		if err := chromedp.Run(taskCtx, chromedp.Sleep(delay)); err != nil {
			e.logger.Warn("settle delay interrupted", zap.Error(err))
			return
		}
	}
	if src.WaitFor == "" {
		return
	}
	waitCtx, cancel := context.WithTimeout(taskCtx, e.cfg.WaitForTimeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(src.WaitFor, chromedp.ByQuery)); err != nil {
		e.logger.Warn("readiness selector did not appear, capturing anyway",
			zap.String("source", src.ID),
			zap.String("selector", src.WaitFor),
			zap.Error(err))
	}
}

func (e *Engine) screenshot(taskCtx context.Context, src radar.SourceDescriptor) ([]byte, error) {
	if src.FullPage {
		var buf []byte
		if err := chromedp.Run(taskCtx, chromedp.FullScreenshot(&buf, 100)); err != nil {
			return nil, fmt.Errorf("full-page screenshot: %w", err)
		}
		return buf, nil
	}
	if src.Selector != "" {
		if buf, ok := e.elementRegionScreenshot(taskCtx, src); ok {
			return buf, nil
		}
		// Missing element falls back to the viewport rather than failing.
		e.logger.Warn("selector not found, falling back to viewport capture",
			zap.String("source", src.ID),
			zap.String("selector", src.Selector))
	}
	var buf []byte
	if err := chromedp.Run(taskCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("viewport screenshot: %w", err)
	}
	return buf, nil
}

// elementRegionScreenshot captures a padded region around the selected
// element, clipped to viewport bounds.
func (e *Engine) elementRegionScreenshot(taskCtx context.Context, src radar.SourceDescriptor) ([]byte, bool) {
	rect, err := elementRect(taskCtx, src.Selector)
	if err != nil || !rect.Found {
		return nil, false
	}

	clip := clipRegion(rect, float64(e.cfg.RegionPadding),
		float64(e.cfg.ViewportWidth), float64(e.cfg.ViewportHeight))
	if clip.Width <= 0 || clip.Height <= 0 {
		return nil, false
	}

	var buf []byte
	err = chromedp.Run(taskCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var capErr error
		buf, capErr = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(&clip).
			Do(ctx)
		return capErr
	}))
	if err != nil {
		e.logger.Warn("region capture failed",
			zap.String("source", src.ID), zap.Error(err))
		return nil, false
	}
	return buf, true
}

func (e *Engine) normalizeOptions(src radar.SourceDescriptor) imageproc.Options {
	opts := imageproc.Options{
		MaxWidth:   e.cfg.Image.MaxWidth,
		MaxHeight:  e.cfg.Image.MaxHeight,
		Quality:    e.cfg.Image.Quality,
		PadFill:    e.cfg.Image.PadFill,
		PadToWidth: src.PadToWidth,
	}
	if src.Crop != nil {
		opts.Crop = &imageproc.Crop{
			Top:    src.Crop.Top,
			Right:  src.Crop.Right,
			Bottom: src.Crop.Bottom,
			Left:   src.Crop.Left,
		}
	}
	return opts
}

// clipRegion expands an element rectangle by padding and clamps it to the
// viewport.
func clipRegion(r elementBox, padding, viewportW, viewportH float64) page.Viewport {
	x := r.X - padding
	y := r.Y - padding
	w := r.Width + 2*padding
	h := r.Height + 2*padding

	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > viewportW {
		w = viewportW - x
	}
	if y+h > viewportH {
		h = viewportH - y
	}

	return page.Viewport{X: x, Y: y, Width: w, Height: h, Scale: 1}
}

func removeQuietly(path string, logger *zap.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("cleanup failed", zap.String("path", path), zap.Error(err))
	}
}

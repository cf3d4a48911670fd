package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/cryptoradar/radarshot/internal/radar"
)

// dismissTexts is the ordered list of consent-button labels tried before
// falling back to a CSS hide. Site-specific labels come first.
var dismissTexts = []string{
	"Accept Cookies and Continue",
	"Accept All Cookies",
	"Accept All",
	"Accept",
	"Agree",
	"OK",
	"×",
}

const hideOverlayCSS = `
[class*="cookie"],
[class*="consent"],
[id*="cookie"],
[id*="consent"],
[class*="cookie-banner"],
[role="dialog"],
[class*="modal"] {
	display: none !important;
	visibility: hidden !important;
}`

// dismissOverlays tries to close consent banners and interstitials. Every
// step is best effort; a page without overlays must not slow the capture
// down, and a stubborn overlay must not fail it.
func (e *Engine) dismissOverlays(taskCtx context.Context) {
	clickCtx, cancel := context.WithTimeout(taskCtx, 5*time.Second)
	defer cancel()

	var clicked bool
	script := clickByTextScript(dismissTexts)
	if err := chromedp.Run(clickCtx, chromedp.Evaluate(script, &clicked)); err != nil {
		e.logger.Debug("overlay click pass failed", zap.Error(err))
	}
	if clicked {
		e.logger.Debug("consent overlay dismissed by click")
		// Give the banner's dismiss animation time to finish.
		if err := chromedp.Run(taskCtx, chromedp.Sleep(2*time.Second)); err != nil {
			return
		}
		return
	}

	// Last resort: hide anything overlay-shaped with injected CSS.
	if err := chromedp.Run(taskCtx, chromedp.Evaluate(injectStyleScript(hideOverlayCSS), nil)); err != nil {
		e.logger.Debug("overlay css hide failed", zap.Error(err))
		return
	}
	e.logger.Debug("overlays hidden via css")
}

// adjustDOM applies per-source tweaks before the shot: scroll reset,
// removal of leftover banners, hiding configured patterns, and the
// optional transform scale of the target element.
func (e *Engine) adjustDOM(taskCtx context.Context, src radar.SourceDescriptor) {
	actions := []chromedp.Action{
		chromedp.Evaluate(`window.scrollTo(0, 0); undefined`, nil),
		chromedp.Evaluate(removeBannersScript, nil),
	}
	if len(src.HidePatterns) > 0 {
		css := hidePatternsCSS(src.HidePatterns)
		actions = append(actions, chromedp.Evaluate(injectStyleScript(css), nil))
	}
	if src.ScalePercent > 0 && src.ScalePercent != 100 && src.Selector != "" {
		actions = append(actions,
			chromedp.Evaluate(scaleElementScript(src.Selector, src.ScalePercent), nil))
	}
	actions = append(actions, chromedp.Sleep(time.Second))

	adjCtx, cancel := context.WithTimeout(taskCtx, 10*time.Second)
	defer cancel()
	if err := chromedp.Run(adjCtx, actions...); err != nil {
		e.logger.Warn("dom adjustments failed, capturing as-is",
			zap.String("source", src.ID), zap.Error(err))
	}
}

// elementBox is the bounding rectangle reported by the page.
type elementBox struct {
	Found  bool    `json:"found"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// elementRect asks the page for the bounding box of the first element
// matching selector.
func elementRect(taskCtx context.Context, selector string) (elementBox, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return {found: false};
		const r = el.getBoundingClientRect();
		return {found: true, x: r.x, y: r.y, width: r.width, height: r.height};
	})()`, jsString(selector))

	rectCtx, cancel := context.WithTimeout(taskCtx, 5*time.Second)
	defer cancel()

	var box elementBox
	if err := chromedp.Run(rectCtx, chromedp.Evaluate(script, &box)); err != nil {
		return elementBox{}, fmt.Errorf("query element rect: %w", err)
	}
	return box, nil
}

// clickByTextScript builds a script that clicks the first button or link
// whose trimmed text equals one of the candidates, in candidate order.
func clickByTextScript(texts []string) string {
	encoded, _ := json.Marshal(texts)
	return fmt.Sprintf(`(() => {
		const wanted = %s;
		const nodes = Array.from(document.querySelectorAll('button, a, [role="button"]'));
		for (const text of wanted) {
			const hit = nodes.find(n => n.textContent.trim() === text);
			if (hit) { hit.click(); return true; }
		}
		return false;
	})()`, string(encoded))
}

const removeBannersScript = `(() => {
	const candidates = [
		...document.querySelectorAll('[class*="cookie"]'),
		...document.querySelectorAll('[class*="consent"]'),
		...document.querySelectorAll('[role="dialog"]'),
		...document.querySelectorAll('[class*="modal"]'),
		...document.querySelectorAll('div[style*="position: fixed"]'),
	];
	for (const el of candidates) {
		const text = (el.textContent || '').toLowerCase();
		if (text.includes('cookie') || text.includes('consent') ||
			text.includes('by using') || text.includes('agree')) {
			el.remove();
		}
	}
	return undefined;
})()`

func injectStyleScript(css string) string {
	return fmt.Sprintf(`(() => {
		const style = document.createElement('style');
		style.textContent = %s;
		document.head.appendChild(style);
		return undefined;
	})()`, jsString(css))
}

func hidePatternsCSS(patterns []string) string {
	return strings.Join(patterns, ",\n") +
		" {\n\tdisplay: none !important;\n\tvisibility: hidden !important;\n}"
}

func scaleElementScript(selector string, percent int) string {
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (el) {
			el.style.transform = 'scale(' + (%d / 100) + ')';
			el.style.transformOrigin = 'top left';
		}
		return undefined;
	})()`, jsString(selector), percent)
}

// jsString safely embeds a Go string as a JavaScript string literal.
func jsString(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}

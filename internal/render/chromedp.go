package render

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultIdleTimeout       = 10 * time.Second
	defaultViewportWidth     = 1920
	defaultViewportHeight    = 3080
)

// collectElementsJS lists every element with its whitespace-collapsed text,
// descendants included, its depth below <body> and its border box translated
// to document coordinates, in document order. Script-like subtrees contribute
// no text. Unrendered elements are kept with an empty box so every listed
// element's ancestors are listed too.
const collectElementsJS = `(() => {
  const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE']);
  const sx = window.scrollX, sy = window.scrollY;
  const textOf = (el) => {
    let s = '';
    for (const n of el.childNodes) {
      if (n.nodeType === Node.TEXT_NODE) s += n.textContent;
      else if (n.nodeType === Node.ELEMENT_NODE && !skip.has(n.tagName.toUpperCase())) s += textOf(n);
    }
    return s;
  };
  const depthOf = (el) => {
    let d = 0;
    for (let p = el.parentElement; p && p !== document.body; p = p.parentElement) d++;
    return d;
  };
  const out = [];
  for (const el of document.body.querySelectorAll('*')) {
    if (skip.has(el.tagName.toUpperCase())) continue;
    const text = textOf(el).replace(/\s+/g, ' ').trim();
    if (!text) continue;
    const r = el.getBoundingClientRect();
    out.push({tag: el.tagName.toLowerCase(), text: text, depth: depthOf(el),
      box: {x: r.left + sx, y: r.top + sy, width: r.width, height: r.height}});
  }
  return out;
})()`

// Config controls the behavior of the chromedp renderer.
type Config struct {
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	// IdleTimeout caps the wait for the network-idle lifecycle event.
	IdleTimeout time.Duration
	// SettleDelay is an extra pause after network idle for late scripts.
	SettleDelay time.Duration
	UserAgent   string
	ExecPath    string
	NoSandbox   bool
}

// Chromedp implements Renderer with a headless Chrome driven by chromedp.
// Each Render call owns a fresh browser process that is torn down before the
// call returns.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromedp creates a renderer backed by chromedp.
func NewChromedp(cfg Config, logger *zap.Logger) (*Chromedp, error) {
	if cfg.ViewportWidth < 0 || cfg.ViewportHeight < 0 {
		return nil, fmt.Errorf("viewport dimensions must be >= 0")
	}
	if cfg.ViewportWidth == 0 {
		cfg.ViewportWidth = defaultViewportWidth
	}
	if cfg.ViewportHeight == 0 {
		cfg.ViewportHeight = defaultViewportHeight
	}
	if cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("settle delay must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chromedp{cfg: cfg, logger: logger}, nil
}

// Viewport returns the emulated window size.
func (r *Chromedp) Viewport() Viewport {
	return Viewport{Width: r.cfg.ViewportWidth, Height: r.cfg.ViewportHeight}
}

// Render navigates to url and captures the DOM, element geometry and a
// full-page PNG in a single session.
func (r *Chromedp) Render(ctx context.Context, url string) (*Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	taskCtx, cancel := context.WithTimeout(tabCtx, r.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	out := &Page{URL: url, Viewport: r.Viewport()}
	var finalURL string
	actions := []chromedp.Action{
		r.setupAction(),
		chromedp.Navigate(url),
		meta.waitIdle(r.idleTimeout()),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.SettleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &out.HTML, chromedp.ByQuery),
		chromedp.Evaluate(collectElementsJS, &out.Elements),
		chromedp.FullScreenshot(&out.Screenshot, 100),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}

	out.StatusCode, out.FinalURL = meta.snapshotWithFallbacks(url, finalURL)
	if out.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("render %s: document status %d", url, out.StatusCode)
	}
	r.logger.Debug("page rendered",
		zap.String("url", out.FinalURL),
		zap.Int("status", out.StatusCode),
		zap.Int("html_bytes", len(out.HTML)),
		zap.Int("elements", len(out.Elements)),
		zap.Int("screenshot_bytes", len(out.Screenshot)),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func (r *Chromedp) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(r.cfg.ViewportWidth, r.cfg.ViewportHeight),
	)
	if r.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.cfg.UserAgent))
	}
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	if r.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	return opts
}

func (r *Chromedp) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(int64(r.cfg.ViewportWidth), int64(r.cfg.ViewportHeight), 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (r *Chromedp) navTimeout() time.Duration {
	if r.cfg.NavigationTimeout > 0 {
		return r.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (r *Chromedp) idleTimeout() time.Duration {
	if r.cfg.IdleTimeout > 0 {
		return r.cfg.IdleTimeout
	}
	return defaultIdleTimeout
}

type responseMeta struct {
	mu       sync.Mutex
	status   int
	url      string
	loaderID string
	idle     chan struct{}
}

func newResponseMeta() *responseMeta {
	return &responseMeta{idle: make(chan struct{}, 1)}
}

func (m *responseMeta) captureEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		m.mu.Lock()
		m.status = int(e.Response.Status)
		m.url = e.Response.URL
		m.loaderID = string(e.LoaderID)
		m.mu.Unlock()
	case *page.EventLifecycleEvent:
		m.lifecycle(string(e.LoaderID), e.Name)
	}
}

// lifecycle signals idle once the loader that fetched the main document
// reports networkIdle. The initial about:blank loader never received a
// document response, so its idle event is ignored.
func (m *responseMeta) lifecycle(loaderID, name string) {
	if name != "networkIdle" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaderID == "" || loaderID != m.loaderID {
		return
	}
	select {
	case m.idle <- struct{}{}:
	default:
	}
}

// waitIdle blocks until network idle or max elapses. Hitting max is not an
// error: long-polling pages never go idle.
func (m *responseMeta) waitIdle(max time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		timer := time.NewTimer(max)
		defer timer.Stop()
		select {
		case <-m.idle:
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("wait network idle: %w", ctx.Err())
		}
		return nil
	})
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.Lock()
	status, url := m.status, m.url
	m.mu.Unlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

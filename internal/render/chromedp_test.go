package render

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{ViewportWidth: -1}, nil); err == nil {
		t.Fatal("expected error for negative viewport")
	}
	if _, err := NewChromedp(Config{SettleDelay: -time.Second}, nil); err == nil {
		t.Fatal("expected error for negative settle delay")
	}
	r, err := NewChromedp(Config{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.Viewport(); got.Width != 1920 || got.Height != 3080 {
		t.Fatalf("expected default viewport 1920x3080, got %+v", got)
	}
}

func TestTimeoutDefaults(t *testing.T) {
	t.Parallel()

	r := &Chromedp{}
	if got := r.navTimeout(); got != 30*time.Second {
		t.Fatalf("expected default nav timeout, got %v", got)
	}
	if got := r.idleTimeout(); got != 10*time.Second {
		t.Fatalf("expected default idle timeout, got %v", got)
	}
	r.cfg.NavigationTimeout = time.Second
	r.cfg.IdleTimeout = 2 * time.Second
	if r.navTimeout() != time.Second || r.idleTimeout() != 2*time.Second {
		t.Fatal("expected overrides to be used")
	}
}

func TestAllocatorOptionsIncludeOverrides(t *testing.T) {
	t.Parallel()

	base, _ := NewChromedp(Config{}, nil)
	custom, _ := NewChromedp(Config{UserAgent: "pagewatch", ExecPath: "/usr/bin/chromium", NoSandbox: true}, nil)
	if len(custom.allocatorOptions()) != len(base.allocatorOptions())+3 {
		t.Fatalf("expected three extra allocator options, got %d vs %d",
			len(custom.allocatorOptions()), len(base.allocatorOptions()))
	}
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		LoaderID: cdp.LoaderID("L1"),
		Response: &network.Response{Status: 203, URL: "https://example.com/rendered"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://example.com/logo.png"},
	})
	status, url := meta.snapshotWithFallbacks("https://req", "")
	if status != 203 || url != "https://example.com/rendered" {
		t.Fatalf("unexpected snapshot values: status=%d url=%s", status, url)
	}

	meta = newResponseMeta()
	status, url = meta.snapshotWithFallbacks("https://req", "https://final")
	if status != http.StatusOK || url != "https://final" {
		t.Fatalf("expected fallback values, got status=%d url=%s", status, url)
	}
}

func TestWaitIdleSignalsOnlyForDocumentLoader(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	// about:blank goes idle before any document response.
	meta.captureEvent(&page.EventLifecycleEvent{LoaderID: cdp.LoaderID("blank"), Name: "networkIdle"})
	select {
	case <-meta.idle:
		t.Fatal("idle from the blank loader must be ignored")
	default:
	}

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		LoaderID: cdp.LoaderID("doc"),
		Response: &network.Response{Status: 200, URL: "https://example.com"},
	})
	meta.captureEvent(&page.EventLifecycleEvent{LoaderID: cdp.LoaderID("doc"), Name: "load"})
	meta.captureEvent(&page.EventLifecycleEvent{LoaderID: cdp.LoaderID("doc"), Name: "networkIdle"})

	err := meta.waitIdle(time.Second).Do(context.Background())
	require.NoError(t, err)
}

func TestWaitIdleTimesOutQuietly(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	start := time.Now()
	require.NoError(t, meta.waitIdle(20*time.Millisecond).Do(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, meta.waitIdle(time.Minute).Do(ctx))
}

func TestBoxBottom(t *testing.T) {
	t.Parallel()

	if got := (Box{Y: 100.5, Height: 20}).Bottom(); got != 120.5 {
		t.Fatalf("expected 120.5, got %v", got)
	}
}

// TestRenderAgainstChrome drives a real browser; it only runs when
// PAGEWATCH_CHROME_TESTS is set because CI images rarely ship Chrome.
func TestRenderAgainstChrome(t *testing.T) {
	if os.Getenv("PAGEWATCH_CHROME_TESTS") == "" {
		t.Skip("set PAGEWATCH_CHROME_TESTS=1 to run against a local Chrome")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body style="margin:0">
<div style="height:200px">header</div>
<p>Дата оновлення інформації: 01.02.2025</p>
<div style="height:300px">графік</div>
<p>Кінець робіт</p>
</body></html>`)
	}))
	defer srv.Close()

	r, err := NewChromedp(Config{ViewportWidth: 800, ViewportHeight: 600, NoSandbox: true, IdleTimeout: 2 * time.Second}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	p, err := r.Render(ctx, srv.URL)
	require.NoError(t, err)
	assert.Contains(t, p.HTML, "Дата оновлення інформації")
	assert.NotEmpty(t, p.Screenshot)

	var found bool
	for _, el := range p.Elements {
		if el.Tag == "p" && el.Box.Y >= 200 {
			found = true
		}
	}
	assert.True(t, found, "expected paragraph geometry below the header")
}

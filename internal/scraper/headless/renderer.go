// Package headless implements the primary extraction path with chromedp.
package headless

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/gameprice/scraper/internal/archive"
	"github.com/gameprice/scraper/internal/scraper"
)

// heavyResources are suppressed during rendered fetches to bound latency.
var heavyResources = map[network.ResourceType]struct{}{
	network.ResourceTypeImage:      {},
	network.ResourceTypeStylesheet: {},
	network.ResourceTypeFont:       {},
	network.ResourceTypeMedia:      {},
}

// Config controls the renderer.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	ScrollDelay       time.Duration

	// Archive, when set, receives every rendered snapshot. Failures are
	// logged, never propagated.
	Archive archive.Provider
	Logger  *zap.Logger
}

// Renderer implements scraper.Renderer using headless Chrome. Each Render
// call owns exactly one tab, released on every exit path.
type Renderer struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New creates a Renderer backed by a shared exec allocator.
func New(cfg Config) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.ScrollDelay <= 0 {
		cfg.ScrollDelay = time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("no-first-run", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Renderer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Render navigates with a headless browser and returns the rendered DOM.
// Navigation carries the configured timeout; the required element carries its
// own shorter bound, and missing it is an error, not a hang.
func (r *Renderer) Render(ctx context.Context, url string, opts scraper.RenderOptions) (string, error) {
	if err := r.acquire(ctx); err != nil {
		return "", err
	}
	defer r.release()

	tabCtx, cancelTab := chromedp.NewContext(r.allocator)
	defer cancelTab()

	navCtx, cancelNav := context.WithTimeout(tabCtx, r.cfg.NavigationTimeout)
	defer cancelNav()

	stopForward := forwardCancel(ctx, cancelNav)
	defer stopForward()

	blockHeavyResources(tabCtx)

	actions := []chromedp.Action{
		fetch.Enable(),
		network.Enable(),
	}
	if r.cfg.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(r.cfg.UserAgent))
	}
	actions = append(actions,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err := chromedp.Run(navCtx, actions...); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}

	if opts.WaitSelector != "" {
		waitCtx, cancelWait := context.WithTimeout(navCtx, opts.SelectorTimeout)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery))
		cancelWait()
		if err != nil {
			return "", fmt.Errorf("wait for %q: %w", opts.WaitSelector, err)
		}
	}

	scrolls := opts.ScrollPasses
	if scrolls > 5 {
		scrolls = 5
	}
	for i := 0; i < scrolls; i++ {
		err := chromedp.Run(navCtx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(r.cfg.ScrollDelay),
		)
		if err != nil {
			return "", fmt.Errorf("scroll pass %d: %w", i+1, err)
		}
	}

	var html string
	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("snapshot dom: %w", err)
	}
	r.archiveSnapshot(ctx, url, html)
	return html, nil
}

// archiveSnapshot saves the rendered DOM for post-hoc breakage diagnosis.
func (r *Renderer) archiveSnapshot(ctx context.Context, pageURL, html string) {
	if r.cfg.Archive == nil {
		return
	}
	host := "unknown"
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		host = u.Host
	}
	sum := sha256.Sum256([]byte(pageURL))
	name := fmt.Sprintf("%s/%s/%s.html",
		host,
		time.Now().UTC().Format("2006-01-02"),
		hex.EncodeToString(sum[:8]),
	)
	uri, err := r.cfg.Archive.Save(ctx, name, "text/html; charset=utf-8", []byte(html))
	if err != nil {
		r.logger.Warn("archive snapshot failed", zap.String("url", pageURL), zap.Error(err))
		return
	}
	r.logger.Debug("snapshot archived", zap.String("uri", uri))
}

// blockHeavyResources intercepts paused requests and fails the heavyweight
// ones before they hit the network.
func blockHeavyResources(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(tabCtx)
			execCtx := cdp.WithExecutor(tabCtx, c.Target)
			if _, heavy := heavyResources[paused.ResourceType]; heavy {
				_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
				return
			}
			_ = fetch.ContinueRequest(paused.RequestID).Do(execCtx)
		}()
	})
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
)

// ErrStaleElement is returned when a previously queried element is no longer on the page
var ErrStaleElement = errors.New("element no longer present")

// ErrClosed is returned for calls after Close
var ErrClosed = errors.New("browser surface closed")

const clickScript = `(function(sel, idx) {
	var nodes = document.querySelectorAll(sel);
	if (idx >= nodes.length) { return false; }
	nodes[idx].scrollIntoView({block: "center"});
	nodes[idx].click();
	return true;
})(%s, %d)`

// ChromeSurface drives a single headless Chrome tab through chromedp.
// It is owned by one harvest session at a time and is not safe for concurrent use.
type ChromeSurface struct {
	config          common.BrowserConfig
	logger          arbor.ILogger
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	limiter         *rate.Limiter
	pageWait        time.Duration
	clickSettle     time.Duration
	navTimeout      time.Duration
	mu              sync.Mutex
	closed          bool
}

var _ interfaces.BrowserSurface = (*ChromeSurface)(nil)

// NewChromeSurface launches Chrome and verifies it responds
func NewChromeSurface(config common.BrowserConfig, logger arbor.ILogger) (*ChromeSurface, error) {
	startTime := time.Now()

	s := &ChromeSurface{
		config:      config,
		logger:      logger,
		pageWait:    common.ParseDuration(config.PageWait, 3*time.Second),
		clickSettle: common.ParseDuration(config.ClickSettle, 2*time.Second),
		navTimeout:  common.ParseDuration(config.NavigationTimeout, 60*time.Second),
		limiter:     rate.NewLimiter(rate.Inf, 1),
	}
	if config.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	logger.Info().
		Bool("headless", config.Headless).
		Str("user_agent", config.UserAgent).
		Dur("page_wait", s.pageWait).
		Dur("navigation_timeout", s.navTimeout).
		Msg("Starting Chrome browser")

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), s.buildAllocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logger.Debug().Msgf("chromedp: "+format, args...)
		}),
	)
	s.allocatorCancel = allocatorCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel

	// The first Run starts Chrome under its context, so it must not carry a deadline
	if err := chromedp.Run(browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	headers := network.Headers{}
	if config.AcceptLanguage != "" {
		headers["Accept-Language"] = config.AcceptLanguage
	}
	if len(headers) > 0 {
		if err := chromedp.Run(testCtx, network.Enable(), network.SetExtraHTTPHeaders(headers)); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to set request headers: %w", err)
		}
	}

	logger.Debug().
		Dur("startup_time", time.Since(startTime)).
		Msg("Chrome browser started")

	return s, nil
}

// buildAllocatorOptions creates Chrome allocator options from config
func (s *ChromeSurface) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.config.Headless),
		chromedp.Flag("disable-gpu", s.config.DisableGPU),
		chromedp.Flag("no-sandbox", s.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("start-maximized", true),
	)
	if s.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.config.UserAgent))
	}
	if s.config.WindowWidth > 0 && s.config.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(s.config.WindowWidth, s.config.WindowHeight))
	}
	return opts
}

// run executes actions on the browser tab, bounded by timeout and by the caller's ctx
func (s *ChromeSurface) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits for it to settle
func (s *ChromeSurface) Navigate(ctx context.Context, url string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	s.logger.Debug().Str("url", url).Msg("Navigating")
	if err := s.run(ctx, s.navTimeout+s.pageWait, chromedp.Navigate(url), chromedp.Sleep(s.pageWait)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Reload performs a cache-bypassing reload of the current page
func (s *ChromeSurface) Reload(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	s.logger.Debug().Msg("Reloading page")
	err := s.run(ctx, s.navTimeout+s.pageWait,
		page.Reload().WithIgnoreCache(true),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.pageWait),
	)
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

// Markup returns the current rendered document
func (s *ChromeSurface) Markup(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.navTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page markup: %w", err)
	}
	return html, nil
}

// Query evaluates selector against the current rendered document
func (s *ChromeSurface) Query(ctx context.Context, selector string) ([]interfaces.Element, error) {
	markup, err := s.Markup(ctx)
	if err != nil {
		return nil, err
	}
	return QueryMarkup(markup, selector)
}

// Click clicks the element addressed by its selector and match index, then
// waits for the page to react
func (s *ChromeSurface) Click(ctx context.Context, element interfaces.Element) error {
	quoted, err := json.Marshal(element.Selector)
	if err != nil {
		return fmt.Errorf("failed to encode selector: %w", err)
	}

	var clicked bool
	script := fmt.Sprintf(clickScript, quoted, element.Index)
	if err := s.run(ctx, s.navTimeout, chromedp.Evaluate(script, &clicked)); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	if !clicked {
		return fmt.Errorf("%w: %s[%d]", ErrStaleElement, element.Selector, element.Index)
	}

	return s.run(ctx, s.clickSettle+time.Second, chromedp.Sleep(s.clickSettle))
}

// WaitFor blocks until selector is ready or timeout elapses. A timeout is a
// negative result, not an error.
func (s *ChromeSurface) WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	err := s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, fmt.Errorf("wait for %s failed: %w", selector, err)
	}
}

// Close shuts the browser down
func (s *ChromeSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocatorCancel != nil {
		s.allocatorCancel()
	}

	s.logger.Info().Msg("Chrome browser closed")
	return nil
}

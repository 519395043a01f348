package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

var (
	// ErrNavigationTimeout means no settled page state within the bound.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrTransientNetwork is a retryable network-level fault.
	ErrTransientNetwork = errors.New("transient network error")
)

// PageState is the observable outcome of a navigation or interaction.
// It is a value threaded through the state machine, never process-wide
// mutable state.
type PageState struct {
	URL   string
	Title string
	HTML  string
	Class PageClass
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgents     []string
	ProxyServer    string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        60 * time.Second,
		ViewportWidth:  1400,
		ViewportHeight: 900,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "Africa/Casablanca",
		Locale:         "en-US",
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		},
	}
}

// Browser owns the playwright runtime and the launched chromium. One
// Browser serves the whole run; each target gets its own context via
// NewSession.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
	rng     *rand.Rand
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-features=Translate,TranslateUI,LanguageSettings",
			"--disable-dev-shm-usage",
			"--disable-infobars",
			"--disable-extensions",
			"--no-first-run",
			"--no-sandbox",
			"--lang=en-US",
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: b,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

// NewSession opens an isolated browser context pinned to one target.
func (b *Browser) NewSession(targetID string) (*Session, error) {
	ua := b.opts.UserAgents[b.rng.Intn(len(b.opts.UserAgents))]

	context, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &ua,
		Locale:            &b.opts.Locale,
		TimezoneId:        &b.opts.TimezoneID,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: map[string]string{
			"Accept-Language": b.opts.AcceptLanguage,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	rng := rand.New(rand.NewSource(b.rng.Int63()))
	return &Session{
		context: context,
		page:    page,
		human:   NewHumanizer(page, rng),
		rng:     rng,
		timeout: b.opts.Timeout,
		logger:  b.logger.With("target", targetID),
	}, nil
}

// Session wraps one browser context and exposes the navigate/interact
// surface the state machine drives. All interaction goes through the
// Humanizer.
type Session struct {
	context playwright.BrowserContext
	page    playwright.Page
	human   *Humanizer
	rng     *rand.Rand
	timeout time.Duration
	logger  *slog.Logger
}

func (s *Session) Close() error {
	if s.context == nil {
		return nil
	}
	return s.context.Close()
}

// Navigate loads the URL, settles the page, dismisses interstitial
// dialogs, and classifies what came back.
func (s *Session) Navigate(ctx context.Context, url string) (*PageState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		if isTimeoutErr(err) {
			return nil, fmt.Errorf("%w: %s", ErrNavigationTimeout, url)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}

	s.human.Dwell(600*time.Millisecond, 1800*time.Millisecond)
	s.dismissPopups()

	return s.snapshot()
}

// Scroll performs one humanized wheel step and returns the new state.
func (s *Session) Scroll(ctx context.Context) (*PageState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := s.human.ScrollBy(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}

	return s.snapshot()
}

// Click moves the pointer to the element along a curved path before
// pressing, falling back to a plain locator click when the element has
// no box.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	loc := s.page.Locator(selector).First()
	box, err := loc.BoundingBox()
	if err != nil || box == nil {
		return loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(4000)})
	}

	x := box.X + box.Width*(0.3+s.rng.Float64()*0.4)
	y := box.Y + box.Height*(0.3+s.rng.Float64()*0.4)
	return s.human.Click(x, y)
}

// WaitVisible blocks until the selector is visible or the bounded wait
// elapses.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		if isTimeoutErr(err) {
			return fmt.Errorf("%w: selector %q", ErrNavigationTimeout, selector)
		}
		return fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}
	return nil
}

func (s *Session) snapshot() (*PageState, error) {
	title, err := s.page.Title()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}

	html, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}

	st := &PageState{
		URL:   s.page.URL(),
		Title: title,
		HTML:  html,
		Class: ClassifyPage(s.page.URL(), title, html),
	}

	if st.Class != PageNormal {
		s.logger.Warn("block signal on page", "class", st.Class.String(), "url", st.URL)
	}

	return st, nil
}

var popupSelectors = []string{
	`div[role="dialog"] button[aria-label="Close"]`,
	`button:has-text("Got it")`,
	`button:has-text("No thanks")`,
	`button:has-text("Not now")`,
	`button:has-text("Dismiss")`,
	`[data-testid="modal-container"] button[aria-label="Close"]`,
}

// dismissPopups clears translation banners and consent dialogs that sit
// over the content. Failures are ignored; the dialogs are optional.
func (s *Session) dismissPopups() {
	for attempt := 0; attempt < 3; attempt++ {
		dismissed := false
		for _, sel := range popupSelectors {
			loc := s.page.Locator(sel).First()
			visible, err := loc.IsVisible()
			if err != nil || !visible {
				continue
			}
			if err := loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(3000)}); err == nil {
				s.logger.Debug("dismissed popup", "selector", sel)
				dismissed = true
				s.human.Dwell(300*time.Millisecond, 700*time.Millisecond)
				break
			}
		}
		if !dismissed {
			return
		}
	}
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, playwright.ErrTimeout) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/hazyhaar/recwatch/recorder/internal/instrument"
)

// PlaywrightLauncher launches instrumented pages through a shared
// Playwright driver process. The driver is started lazily on the first
// Launch and reused for every session after that.
type PlaywrightLauncher struct {
	logger *slog.Logger

	once   sync.Once
	pw     *playwright.Playwright
	runErr error
}

// NewPlaywrightLauncher builds a launcher. The driver process is not
// started until the first session launches.
func NewPlaywrightLauncher(logger *slog.Logger) *PlaywrightLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaywrightLauncher{logger: logger}
}

// InstallBrowsers downloads the Playwright driver and the three browser
// engines. Meant for first-run setup, typically behind a CLI flag.
func InstallBrowsers() error {
	return playwright.Install(&playwright.RunOptions{
		Browsers: []string{BrowserChromium, BrowserFirefox, BrowserWebkit},
	})
}

func (l *PlaywrightLauncher) driver() (*playwright.Playwright, error) {
	l.once.Do(func() {
		l.pw, l.runErr = playwright.Run()
	})
	if l.runErr != nil {
		return nil, fmt.Errorf("playwright driver: %w", l.runErr)
	}
	return l.pw, nil
}

// Launch starts a browser of the requested engine, wires the capture
// binding and init script into a fresh context and opens the page. The
// page is returned un-navigated; the engine performs the first Goto.
func (l *PlaywrightLauncher) Launch(ctx context.Context, spec LaunchSpec) (Page, error) {
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}

	var bt playwright.BrowserType
	switch spec.BrowserType {
	case BrowserFirefox:
		bt = pw.Firefox
	case BrowserWebkit:
		bt = pw.WebKit
	default:
		bt = pw.Chromium
	}

	browser, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(spec.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", spec.BrowserType, err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: spec.Viewport.Width, Height: spec.Viewport.Height},
	}
	if spec.VideoDir != "" {
		ctxOpts.RecordVideo = &playwright.RecordVideo{Dir: spec.VideoDir}
	}
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("browser context: %w", err)
	}

	logger := spec.Logger
	if logger == nil {
		logger = l.logger
	}

	// Payloads from every document in the context land here. Decoding is
	// host-side so a compromised page cannot fabricate selectors beyond
	// what the descriptor facts allow.
	err = bctx.ExposeBinding(instrument.BindingName, func(source *playwright.BindingSource, args ...any) any {
		if spec.OnAction == nil || len(args) == 0 {
			return nil
		}
		raw, ok := args[0].(string)
		if !ok {
			return nil
		}
		a, err := instrument.Decode(raw)
		if err != nil {
			logger.Warn("capture payload rejected", "error", err)
			return nil
		}
		spec.OnAction(a)
		return nil
	})
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("expose binding: %w", err)
	}

	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(instrument.JS())}); err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("init script: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}

	pp := &playwrightPage{page: page, bctx: bctx, browser: browser}

	page.OnFrameNavigated(func(frame playwright.Frame) {
		// Sub-frame churn is noise; only the top document counts.
		if frame.ParentFrame() != nil {
			return
		}
		if spec.OnNavigate != nil {
			spec.OnNavigate(frame.URL())
		}
	})
	page.OnClose(func(playwright.Page) {
		if spec.OnDisconnect != nil {
			spec.OnDisconnect()
		}
	})
	browser.OnDisconnected(func(playwright.Browser) {
		if spec.OnDisconnect != nil {
			spec.OnDisconnect()
		}
	})

	return pp, nil
}

// Close shuts down the shared driver. Call after every session is done.
func (l *PlaywrightLauncher) Close() error {
	if l.pw == nil {
		return nil
	}
	return l.pw.Stop()
}

// playwrightPage adapts one playwright page, with its owning context and
// browser, to the Page interface.
type playwrightPage struct {
	page    playwright.Page
	bctx    playwright.BrowserContext
	browser playwright.Browser
}

func (p *playwrightPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) Screenshot(ctx context.Context, path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	return nil
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	html, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return html, nil
}

func (p *playwrightPage) Close(ctx context.Context) error {
	// Context close stops video recording; browser close reaps the
	// engine process.
	pageErr := p.page.Close()
	ctxErr := p.bctx.Close()
	browserErr := p.browser.Close()
	if pageErr != nil {
		return pageErr
	}
	if ctxErr != nil {
		return ctxErr
	}
	return browserErr
}

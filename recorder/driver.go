package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/recwatch/action"
)

// Browser engine names accepted by Start.
const (
	BrowserChromium = "chromium"
	BrowserFirefox  = "firefox"
	BrowserWebkit   = "webkit"
)

// Viewport is the page dimensions a session's browser is created with.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// LaunchSpec carries everything a Launcher needs to bring up an
// instrumented page for one session. The callbacks are invoked from the
// driver's event goroutines; the engine serialises behind them.
type LaunchSpec struct {
	SessionID   string
	BrowserType string
	Viewport    Viewport
	Headless    bool
	VideoDir    string

	// OnAction receives a decoded capture payload. ID and Timestamp are
	// unset; the engine stamps them on append.
	OnAction func(a action.Action)
	// OnNavigate receives top-level frame navigations.
	OnNavigate func(url string)
	// OnDisconnect fires once when the page or browser goes away outside
	// an engine-initiated close.
	OnDisconnect func()

	Logger *slog.Logger
}

// Page is the slice of browser-page behaviour the engine drives.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Screenshot(ctx context.Context, path string) error
	Content(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Launcher creates instrumented pages. The production implementation is
// PlaywrightLauncher; tests substitute fakes.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Page, error)
}

package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Defaults match the desktop layout of the /week page.
const (
	DefaultWidth      = 1280
	DefaultHeight     = 900
	DefaultTimeoutSec = 30
)

// ReadySelector is exposed by the /week page once the board is painted.
const ReadySelector = `[data-ready="true"]`

// Options defines a headless Chromium capture of the week page.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/week".
	URL string

	// Width and Height are the viewport in pixels; zero means the defaults.
	Width  int
	Height int

	// Username / Password are sent as Basic Auth when the UI is protected.
	Username string
	Password string

	// Timeout bounds the whole capture; zero means DefaultTimeoutSec.
	Timeout time.Duration
}

// WeekPNG opens opts.URL in headless Chromium, waits until the page marks
// itself ready and returns a full-page PNG.
func WeekPNG(parentCtx context.Context, opts Options) ([]byte, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("capture: URL is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
	}
	if opts.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		tasks = append(tasks,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Authorization": "Basic " + token}),
		)
	}
	tasks = append(tasks,
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		// Let web fonts settle.
		chromedp.Sleep(300*time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	)

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return png, nil
}

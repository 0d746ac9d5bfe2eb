package claude

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/rmax-ai/claude-usage/pkg/cookies"
	"github.com/rmax-ai/claude-usage/pkg/provider"
)

// hideWebdriver removes the most common automation marker before any page
// script runs.
const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

// BrowserLauncher opens Chrome sessions through the DevTools protocol.
type BrowserLauncher struct {
	// ExecPath overrides the Chrome binary lookup when set.
	ExecPath string
}

func (l *BrowserLauncher) allocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	ua := opts.UserAgent
	if ua == "" {
		ua = UserAgent
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(ua),
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)
	if l.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.ExecPath))
	}
	return allocOpts
}

// Launch starts a browser, installs the automation-hiding script and the
// session cookies. The browser lives until Close or until ctx is done.
func (l *BrowserLauncher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, l.allocatorOptions(opts)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	s := &browserSession{
		ctx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}

	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx)
			return err
		}),
		network.SetCookies(cookieParams(opts.Cookies)),
	)
	if err != nil {
		s.Close()
		if isMissingBrowser(err) {
			return nil, fmt.Errorf("%w: install Chrome or Chromium, or use the http transport", provider.ErrAutomationUnavailable)
		}
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return s, nil
}

type browserSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (s *browserSession) Load(ctx context.Context, url string) (Page, error) {
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	resp, err := chromedp.RunResponse(s.ctx, chromedp.Navigate(url))
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, err
	}
	if resp == nil {
		return Page{}, errors.New("no response received from API")
	}

	var text string
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text)); err != nil {
		if ctx.Err() != nil {
			return Page{Status: int(resp.Status)}, ctx.Err()
		}
		return Page{Status: int(resp.Status)}, fmt.Errorf("failed to read page body: %w", err)
	}
	return Page{Status: int(resp.Status), Body: []byte(text)}, nil
}

func (s *browserSession) Close() error {
	s.once.Do(s.cancel)
	return nil
}

func cookieParams(in []cookies.Cookie) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(in))
	for _, c := range in {
		out = append(out, &network.CookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			Secure: true,
		})
	}
	return out
}

func isMissingBrowser(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "executable file not found") || strings.Contains(msg, "no such file or directory")
}

package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/claude-usage/pkg/cookies"
)

const (
	loginURL          = DefaultBaseURL + "/login"
	loginPollInterval = time.Second
)

// ErrLoginAbandoned is returned when the login window goes away before an
// authenticated page was reached.
var ErrLoginAbandoned = errors.New("login failed or cancelled")

// LoginFlow opens a visible browser, waits for the user to sign in and
// stores the session cookies as credential material.
type LoginFlow struct {
	CookieFile string
	ExecPath   string
}

// Run blocks until the user reaches a chat page, ctx is cancelled or the
// browser is closed. There is no timeout of its own.
func (f *LoginFlow) Run(ctx context.Context) error {
	launcher := &BrowserLauncher{ExecPath: f.ExecPath}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, launcher.allocatorOptions(LaunchOptions{Headless: false})...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(loginURL)); err != nil {
		if isMissingBrowser(err) {
			return fmt.Errorf("failed to open login window: %w", err)
		}
		return fmt.Errorf("%w: %v", ErrLoginAbandoned, err)
	}

	log.Info("login: waiting for the user to complete sign-in")
	if err := waitForChat(ctx, browserCtx); err != nil {
		return err
	}

	log.Info("login: session detected, capturing cookies")
	var raw []*network.Cookie
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = cookieRequest().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to read browser cookies: %w", err)
	}

	captured := captureCookies(raw)
	if err := cookies.WriteFile(f.CookieFile, captured); err != nil {
		return err
	}
	log.Infof("login: saved %d cookies to %s", len(captured), f.CookieFile)
	return nil
}

func waitForChat(ctx, browserCtx context.Context) error {
	ticker := time.NewTicker(loginPollInterval)
	defer ticker.Stop()
	for {
		var location string
		if err := chromedp.Run(browserCtx, chromedp.Location(&location)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrLoginAbandoned, err)
		}
		if isChatURL(location) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// isChatURL matches both /chats and /chat/<id>.
func isChatURL(location string) bool {
	return strings.Contains(location, "/chat")
}

// captureCookies keeps the cookies that belong to claude.ai.
// cookieRequest asks the browser for the cookies sent to claude.ai only.
func cookieRequest() *network.GetCookiesParams {
	return network.GetCookies().WithUrls([]string{DefaultBaseURL})
}

func captureCookies(raw []*network.Cookie) []cookies.Cookie {
	out := make([]cookies.Cookie, 0, len(raw))
	for _, c := range raw {
		if c == nil || c.Name == "" {
			continue
		}
		domain := strings.TrimPrefix(c.Domain, ".")
		if domain != cookies.Domain && !strings.HasSuffix(domain, "."+cookies.Domain) {
			continue
		}
		out = append(out, cookies.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: cookies.Domain,
			Path:   cookies.Path,
		})
	}
	return out
}

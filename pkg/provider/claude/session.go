package claude

import (
	"context"

	"github.com/rmax-ai/claude-usage/pkg/cookies"
)

const (
	// UserAgent is sent by every session so requests look like a desktop browser.
	UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	viewportWidth  = 1920
	viewportHeight = 1080
)

// Page is the outcome of loading a URL.
type Page struct {
	Status int
	Body   []byte
}

// Session is an open browsing session. Close must be called on every path.
type Session interface {
	Load(ctx context.Context, url string) (Page, error)
	Close() error
}

// LaunchOptions configures a new session.
type LaunchOptions struct {
	Cookies   []cookies.Cookie
	UserAgent string
	Headless  bool
}

// Launcher opens sessions.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

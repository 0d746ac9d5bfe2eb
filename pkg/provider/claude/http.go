package claude

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rmax-ai/claude-usage/pkg/cookies"
)

const maxBodyBytes = 1 << 20

// HTTPLauncher opens sessions backed by a plain HTTP client. It does not get
// past bot protection, but works where no browser is installed and against
// test servers.
type HTTPLauncher struct {
	Client *http.Client
}

// NewHTTPLauncher returns a launcher using client, or a private client when
// nil. Sessions close the idle connections of the client they use.
func NewHTTPLauncher(client *http.Client) *HTTPLauncher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPLauncher{Client: client}
}

func (l *HTTPLauncher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	ua := opts.UserAgent
	if ua == "" {
		ua = UserAgent
	}
	return &httpSession{client: l.Client, cookies: opts.Cookies, userAgent: ua}, nil
}

type httpSession struct {
	client    *http.Client
	cookies   []cookies.Cookie
	userAgent string
}

func (s *httpSession) Load(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")
	if len(s.cookies) > 0 {
		req.Header.Set("Cookie", cookies.Format(s.cookies))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{Status: resp.StatusCode}, fmt.Errorf("failed to read response body: %w", err)
	}
	return Page{Status: resp.StatusCode, Body: body}, nil
}

func (s *httpSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

package claude

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/claude-usage/pkg/provider"
)

const validPayload = `{"five_hour":{"utilization":42,"resets_at":"2025-03-01T15:00:00Z"},"seven_day":{"utilization":71,"resets_at":"2025-03-05T09:30:00Z"}}`

func writeCookies(t *testing.T, line string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte(line), 0o600))
	return path
}

type fakeSession struct {
	page    Page
	err     error
	closed  int
	loadURL string
}

func (s *fakeSession) Load(ctx context.Context, url string) (Page, error) {
	s.loadURL = url
	return s.page, s.err
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeLauncher struct {
	session   *fakeSession
	launchErr error
	opts      LaunchOptions
	launches  int
}

func (l *fakeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	l.launches++
	l.opts = opts
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return l.session, nil
}

func TestPoll_NoCredentials(t *testing.T) {
	launcher := &fakeLauncher{session: &fakeSession{}}

	t.Run("missing file", func(t *testing.T) {
		p := New(Options{CookieFile: filepath.Join(t.TempDir(), "none.txt"), Launcher: launcher})
		res := p.Poll(context.Background())
		assert.Equal(t, provider.StatusNotAttempted, res.Status)
		assert.ErrorIs(t, res.Error, provider.ErrCredentialsMissing)
	})

	t.Run("empty file", func(t *testing.T) {
		p := New(Options{CookieFile: writeCookies(t, ""), Launcher: launcher})
		res := p.Poll(context.Background())
		assert.Equal(t, provider.StatusNotAttempted, res.Status)
	})

	assert.Equal(t, 0, launcher.launches, "no session may be opened without credentials")
}

func TestPoll_NoOrganization(t *testing.T) {
	launcher := &fakeLauncher{session: &fakeSession{}}
	p := New(Options{CookieFile: writeCookies(t, "sessionKey=abc"), Launcher: launcher})

	res := p.Poll(context.Background())

	assert.Equal(t, provider.StatusError, res.Status)
	assert.Contains(t, res.Message(), "organization id")
	assert.Equal(t, 0, launcher.launches)
}

func TestPoll_Classification(t *testing.T) {
	tests := []struct {
		name       string
		page       Page
		loadErr    error
		wantStatus provider.Status
		wantErr    error
		wantMsg    string
	}{
		{"success", Page{Status: 200, Body: []byte(validPayload)}, nil, provider.StatusSuccess, nil, ""},
		{"expired", Page{Status: 401}, nil, provider.StatusError, provider.ErrCredentialsExpired, "expired"},
		{"forbidden", Page{Status: 403}, nil, provider.StatusError, provider.ErrAccessDenied, "access denied"},
		{"server error", Page{Status: 502}, nil, provider.StatusError, provider.ErrUnexpectedStatus, "502"},
		{"cloudflare html", Page{Status: 200, Body: []byte("<html>Just a moment...</html>")}, nil, provider.StatusError, provider.ErrMalformedResponse, "Just a moment"},
		{"unknown object", Page{Status: 200, Body: []byte(`{"type":"error"}`)}, nil, provider.StatusError, provider.ErrMalformedResponse, ""},
		{"deadline", Page{}, context.DeadlineExceeded, provider.StatusError, provider.ErrTimeout, "timeout"},
		{"load error", Page{}, errors.New("net::ERR_NAME_NOT_RESOLVED"), provider.StatusError, nil, "ERR_NAME_NOT_RESOLVED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{page: tt.page, err: tt.loadErr}
			launcher := &fakeLauncher{session: session}
			p := New(Options{
				CookieFile: writeCookies(t, "sessionKey=abc; lastActiveOrg=org-1"),
				Launcher:   launcher,
			})

			res := p.Poll(context.Background())

			assert.Equal(t, tt.wantStatus, res.Status)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Error, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, res.Message(), tt.wantMsg)
			}
			if tt.wantStatus == provider.StatusSuccess {
				assert.JSONEq(t, validPayload, string(res.Payload))
			}
			assert.Equal(t, 1, session.closed, "session must be closed exactly once")
			assert.Equal(t, "https://claude.ai/api/organizations/org-1/usage", session.loadURL)
			assert.Equal(t, UserAgent, launcher.opts.UserAgent)
			assert.Len(t, launcher.opts.Cookies, 2)
		})
	}
}

func TestPoll_ConfiguredOrgWins(t *testing.T) {
	session := &fakeSession{page: Page{Status: 200, Body: []byte(validPayload)}}
	p := New(Options{
		CookieFile: writeCookies(t, "sessionKey=abc; lastActiveOrg=org-cookie"),
		OrgID:      "org-config",
		Launcher:   &fakeLauncher{session: session},
	})

	p.Poll(context.Background())

	assert.True(t, strings.Contains(session.loadURL, "/org-config/"))
}

func TestPoll_AutomationUnavailable(t *testing.T) {
	launcher := &fakeLauncher{launchErr: provider.ErrAutomationUnavailable}
	p := New(Options{CookieFile: writeCookies(t, "lastActiveOrg=org-1"), Launcher: launcher})

	res := p.Poll(context.Background())

	assert.Equal(t, provider.StatusError, res.Status)
	assert.ErrorIs(t, res.Error, provider.ErrAutomationUnavailable)
}

func TestPoll_HTTPTransport(t *testing.T) {
	var gotCookie, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/api/organizations/org-ok/usage":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(validPayload))
		case "/api/organizations/org-expired/usage":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	poll := func(org string) provider.PollResult {
		p := New(Options{
			CookieFile: writeCookies(t, "sessionKey=abc; lastActiveOrg="+org),
			BaseURL:    server.URL + "/",
			Launcher:   NewHTTPLauncher(server.Client()),
		})
		return p.Poll(context.Background())
	}

	res := poll("org-ok")
	require.Equal(t, provider.StatusSuccess, res.Status, res.Message())
	assert.Equal(t, "sessionKey=abc; lastActiveOrg=org-ok", gotCookie)
	assert.Equal(t, UserAgent, gotUA)

	res = poll("org-expired")
	assert.True(t, provider.IsExpired(res.Error))

	res = poll("org-missing")
	assert.ErrorIs(t, res.Error, provider.ErrUnexpectedStatus)
}

func TestPoll_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	p := New(Options{
		CookieFile: writeCookies(t, "lastActiveOrg=org-1"),
		BaseURL:    server.URL,
		Timeout:    50 * time.Millisecond,
		Launcher:   NewHTTPLauncher(server.Client()),
	})

	res := p.Poll(context.Background())

	assert.Equal(t, provider.StatusError, res.Status)
	assert.ErrorIs(t, res.Error, provider.ErrTimeout)
}

func TestCaptureCookies(t *testing.T) {
	raw := []*network.Cookie{
		{Name: "sessionKey", Value: "abc", Domain: ".claude.ai"},
		{Name: "lastActiveOrg", Value: "org-1", Domain: "claude.ai"},
		{Name: "_ga", Value: "x", Domain: ".google.com"},
		nil,
	}

	got := captureCookies(raw)

	require.Len(t, got, 2)
	assert.Equal(t, "sessionKey", got[0].Name)
	assert.Equal(t, "claude.ai", got[0].Domain)
}

func TestCookieRequest(t *testing.T) {
	assert.Equal(t, []string{DefaultBaseURL}, cookieRequest().Urls)
}

func TestNewHTTPLauncher_PrivateClient(t *testing.T) {
	l := NewHTTPLauncher(nil)
	require.NotNil(t, l.Client)
	assert.NotSame(t, http.DefaultClient, l.Client, "closing a session must not touch the shared default client")

	session, err := l.Launch(context.Background(), LaunchOptions{})
	require.NoError(t, err)
	assert.Same(t, l.Client, session.(*httpSession).client)
	require.NoError(t, session.Close())
}

func TestIsChatURL(t *testing.T) {
	assert.True(t, isChatURL("https://claude.ai/chats"))
	assert.True(t, isChatURL("https://claude.ai/chat/0b1c"))
	assert.False(t, isChatURL("https://claude.ai/login"))
}

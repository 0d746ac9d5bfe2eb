// Package claude fetches claude.ai usage through an authenticated page load.
package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/claude-usage/pkg/cookies"
	"github.com/rmax-ai/claude-usage/pkg/provider"
	"github.com/rmax-ai/claude-usage/pkg/usage"
)

const (
	// ID is the provider id of the claude.ai usage source.
	ID provider.ProviderID = "claude"

	// DefaultBaseURL is the claude.ai origin.
	DefaultBaseURL = "https://claude.ai"

	// DefaultTimeout bounds a whole fetch, browser start-up included.
	DefaultTimeout = 90 * time.Second

	// SettingsURL is the page showing usage in the web UI.
	SettingsURL = DefaultBaseURL + "/settings/usage"
)

var errNoOrg = errors.New("organization id unknown: set org_id or export the lastActiveOrg cookie")

// Options configures a Provider.
type Options struct {
	CookieFile string
	OrgID      string
	BaseURL    string
	Timeout    time.Duration
	Headless   bool
	Launcher   Launcher
}

// Provider fetches usage from claude.ai using exported session cookies.
type Provider struct {
	cookieFile string
	orgID      string
	baseURL    string
	timeout    time.Duration
	headless   bool
	launcher   Launcher
}

// New creates a claude.ai provider. A nil Launcher means Chrome via chromedp.
func New(opts Options) *Provider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Launcher == nil {
		opts.Launcher = &BrowserLauncher{}
	}
	return &Provider{
		cookieFile: opts.CookieFile,
		orgID:      opts.OrgID,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		timeout:    opts.Timeout,
		headless:   opts.Headless,
		launcher:   opts.Launcher,
	}
}

func (p *Provider) ID() provider.ProviderID {
	return ID
}

// UsageURL returns the usage endpoint for an organization.
func (p *Provider) UsageURL(orgID string) string {
	return fmt.Sprintf("%s/api/organizations/%s/usage", p.baseURL, orgID)
}

// Poll loads the usage endpoint once and classifies the outcome.
func (p *Provider) Poll(ctx context.Context) provider.PollResult {
	jar, err := cookies.ReadFile(p.cookieFile)
	if err != nil {
		if errors.Is(err, cookies.ErrNoCredentials) {
			return provider.NotAttempted(ID, fmt.Errorf("%w: save cookies to %s or run login", provider.ErrCredentialsMissing, p.cookieFile))
		}
		return provider.Failure(ID, err)
	}

	orgID := p.orgID
	if orgID == "" {
		orgID = cookies.OrgID(jar)
	}
	if orgID == "" {
		return provider.Failure(ID, errNoOrg)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	page, err := p.load(ctx, jar, p.UsageURL(orgID))
	if err != nil {
		return provider.Failure(ID, p.classifyError(ctx, err))
	}
	log.Debugf("claude: usage page loaded (status=%d bytes=%d elapsed=%s)", page.Status, len(page.Body), time.Since(start))
	return classifyPage(page)
}

// load runs a single page load inside a scoped session.
func (p *Provider) load(ctx context.Context, jar []cookies.Cookie, url string) (Page, error) {
	session, err := p.launcher.Launch(ctx, LaunchOptions{
		Cookies:   jar,
		UserAgent: UserAgent,
		Headless:  p.headless,
	})
	if err != nil {
		return Page{}, err
	}
	defer func() {
		if errClose := session.Close(); errClose != nil {
			log.WithError(errClose).Warn("claude: failed to close session")
		}
	}()
	return session.Load(ctx, url)
}

func (p *Provider) classifyError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w (after %s)", provider.ErrTimeout, p.timeout)
	case errors.Is(err, provider.ErrAutomationUnavailable):
		return err
	default:
		return fmt.Errorf("failed to load usage page: %w", err)
	}
}

func classifyPage(page Page) provider.PollResult {
	switch {
	case page.Status == http.StatusUnauthorized:
		return provider.Failure(ID, fmt.Errorf("%w (401 Unauthorized)", provider.ErrCredentialsExpired))
	case page.Status == http.StatusForbidden:
		return provider.Failure(ID, fmt.Errorf("%w (403 Forbidden): renew cookies or org_id", provider.ErrAccessDenied))
	case page.Status < http.StatusOK || page.Status >= http.StatusMultipleChoices:
		return provider.Failure(ID, fmt.Errorf("%w: %d", provider.ErrUnexpectedStatus, page.Status))
	}
	if err := usage.ValidatePayload(page.Body); err != nil {
		return provider.Failure(ID, fmt.Errorf("%w: %s", provider.ErrMalformedResponse, summarizePayload(page.Body)))
	}
	return provider.Success(ID, page.Body)
}

func summarizePayload(payload []byte) string {
	const limit = 80
	text := strings.Join(strings.Fields(string(payload)), " ")
	if text == "" {
		return "empty body"
	}
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}

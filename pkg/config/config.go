// Package config resolves the settings shared by the claude-usage binaries.
//
// Values are layered: built-in defaults, then settings.yaml in the config
// directory, then a .env file next to it, then CLAUDE_USAGE_* environment
// variables. Binaries may apply flags on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/claude-usage/pkg/provider/claude"
)

const (
	// AppName names the config directory and the log file.
	AppName = "claude-usage"

	CookieFileName   = "cookies.txt"
	StateFileName    = "config.json"
	HistoryFileName  = "history.db"
	SettingsFileName = "settings.yaml"
	EnvFileName      = ".env"
	LogFileName      = AppName + ".log"

	TransportBrowser = "browser"
	TransportHTTP    = "http"

	defaultPollInterval = 5 * time.Minute
	defaultListenAddr   = "127.0.0.1:8787"
	defaultLogLevel     = "info"
	defaultRetention    = 30 * 24 * time.Hour
	minPollInterval     = 10 * time.Second

	envPrefix = "CLAUDE_USAGE_"
)

// Duration is a time.Duration read from strings such as "5m".
type Duration time.Duration

// UnmarshalYAML accepts duration strings and plain seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// RedisSettings configures the optional snapshot mirror.
type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Enabled reports whether a Redis address was configured.
func (r RedisSettings) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// Settings holds the resolved configuration.
type Settings struct {
	Dir string `yaml:"-"`

	CookieFile string `yaml:"cookie_file"`
	StateFile  string `yaml:"state_file"`
	HistoryDB  string `yaml:"history_db"`
	LogFile    string `yaml:"log_file"`
	LogLevel   string `yaml:"log_level"`

	OrgID        string   `yaml:"org_id"`
	PollInterval Duration `yaml:"poll_interval"`
	FetchTimeout Duration `yaml:"fetch_timeout"`
	Transport    string   `yaml:"transport"`
	ShowBrowser  bool     `yaml:"show_browser"`
	ChromePath   string   `yaml:"chrome_path"`

	ListenAddr       string        `yaml:"listen_addr"`
	HistoryRetention Duration      `yaml:"history_retention"`
	Redis            RedisSettings `yaml:"redis"`
}

// DefaultDir returns ~/.config/claude-usage, or $CLAUDE_USAGE_HOME when set.
func DefaultDir() (string, error) {
	if dir := os.Getenv(envPrefix + "HOME"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", fmt.Errorf("failed to locate config directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, AppName), nil
}

// Load resolves settings rooted at dir; an empty dir means DefaultDir.
func Load(dir string) (Settings, error) {
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return Settings{}, err
		}
	}

	cfg := Settings{Dir: dir}

	settingsPath := filepath.Join(dir, SettingsFileName)
	data, err := os.ReadFile(settingsPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Settings{}, fmt.Errorf("failed to parse %s: %w", settingsPath, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return Settings{}, fmt.Errorf("failed to read %s: %w", settingsPath, err)
	}
	cfg.Dir = dir

	envPath := filepath.Join(dir, EnvFileName)
	if _, err := os.Stat(envPath); err == nil {
		// Variables already present in the environment win over the file.
		if err := godotenv.Load(envPath); err != nil {
			return Settings{}, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Settings{}, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Settings) applyEnv() error {
	strVars := map[string]*string{
		"COOKIE_FILE":    &c.CookieFile,
		"STATE_FILE":     &c.StateFile,
		"HISTORY_DB":     &c.HistoryDB,
		"LOG_FILE":       &c.LogFile,
		"LOG_LEVEL":      &c.LogLevel,
		"ORG_ID":         &c.OrgID,
		"TRANSPORT":      &c.Transport,
		"CHROME_PATH":    &c.ChromePath,
		"LISTEN_ADDR":    &c.ListenAddr,
		"REDIS_ADDR":     &c.Redis.Addr,
		"REDIS_PASSWORD": &c.Redis.Password,
		"REDIS_PREFIX":   &c.Redis.Prefix,
	}
	for key, dst := range strVars {
		if value, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = strings.TrimSpace(value)
		}
	}

	durVars := map[string]*Duration{
		"POLL_INTERVAL":     &c.PollInterval,
		"FETCH_TIMEOUT":     &c.FetchTimeout,
		"HISTORY_RETENTION": &c.HistoryRetention,
	}
	for key, dst := range durVars {
		value := os.Getenv(envPrefix + key)
		if value == "" {
			continue
		}
		parsed, err := parseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
		}
		*dst = Duration(parsed)
	}

	if value := os.Getenv(envPrefix + "SHOW_BROWSER"); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %sSHOW_BROWSER: %w", envPrefix, err)
		}
		c.ShowBrowser = parsed
	}
	if value := os.Getenv(envPrefix + "REDIS_DB"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %sREDIS_DB: %w", envPrefix, err)
		}
		c.Redis.DB = parsed
	}
	return nil
}

// ApplyDefaults fills empty fields and resolves relative paths against Dir.
func (c *Settings) ApplyDefaults() {
	c.CookieFile = c.resolve(c.CookieFile, CookieFileName)
	c.StateFile = c.resolve(c.StateFile, StateFileName)
	c.HistoryDB = c.resolve(c.HistoryDB, HistoryFileName)
	c.LogFile = c.resolve(c.LogFile, LogFileName)

	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.PollInterval <= 0 {
		c.PollInterval = Duration(defaultPollInterval)
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = Duration(claude.DefaultTimeout)
	}
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if c.Transport == "" {
		c.Transport = TransportBrowser
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.HistoryRetention <= 0 {
		c.HistoryRetention = Duration(defaultRetention)
	}
}

// Validate checks the resolved settings.
func (c *Settings) Validate() error {
	if time.Duration(c.PollInterval) < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, time.Duration(c.PollInterval))
	}
	switch c.Transport {
	case TransportBrowser, TransportHTTP:
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", TransportBrowser, TransportHTTP, c.Transport)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative, got %d", c.Redis.DB)
	}
	return nil
}

// ProviderOptions returns the claude provider options these settings describe.
func (c Settings) ProviderOptions() claude.Options {
	opts := claude.Options{
		CookieFile: c.CookieFile,
		OrgID:      c.OrgID,
		Timeout:    time.Duration(c.FetchTimeout),
		Headless:   !c.ShowBrowser,
	}
	if c.Transport == TransportHTTP {
		opts.Launcher = claude.NewHTTPLauncher(nil)
	} else {
		opts.Launcher = &claude.BrowserLauncher{ExecPath: c.ChromePath}
	}
	return opts
}

func (c *Settings) resolve(path, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return filepath.Join(c.Dir, fallback)
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// parseDuration accepts Go duration strings and bare seconds.
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(value)
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rmax-ai/claude-usage/pkg/config"
)

// Config is the daemon's view of the shared settings plus its own flags.
type Config struct {
	config.Settings
	JSONLogs bool
}

// LoadConfig resolves the shared settings, then applies command line flags.
func LoadConfig(args []string) (Config, error) {
	flagSet := flag.NewFlagSet("claude-usage-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDir := flagSet.String("config-dir", os.Getenv("CLAUDE_USAGE_HOME"), "configuration directory")
	flagAddr := flagSet.String("addr", "", "HTTP listen address")
	flagPollInterval := flagSet.String("poll-interval", "", "usage poll interval")
	flagDB := flagSet.String("db", "", "path to the SQLite history database")
	flagStateFile := flagSet.String("state-file", "", "path to the usage state file")
	flagLogLevel := flagSet.String("log-level", "", "log level")
	flagJSON := flagSet.Bool("json-logs", false, "log as JSON")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
		}
		return Config{}, err
	}

	settings, err := config.Load(strings.TrimSpace(*flagDir))
	if err != nil {
		return Config{}, err
	}

	if addr := strings.TrimSpace(*flagAddr); addr != "" {
		settings.ListenAddr = addr
	}
	if *flagPollInterval != "" {
		parsed, err := time.ParseDuration(*flagPollInterval)
		if err != nil {
			return Config{}, fmt.Errorf("invalid poll interval: %w", err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("poll interval must be positive, got %s", parsed)
		}
		settings.PollInterval = config.Duration(parsed)
	}
	if *flagDB != "" {
		settings.HistoryDB = *flagDB
	}
	if *flagStateFile != "" {
		settings.StateFile = *flagStateFile
	}
	if *flagLogLevel != "" {
		settings.LogLevel = *flagLogLevel
	}

	// Flag values may be relative; re-resolve and re-check them.
	settings.ApplyDefaults()
	if err := settings.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return Config{Settings: settings, JSONLogs: *flagJSON}, nil
}

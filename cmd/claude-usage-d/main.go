// Command claude-usage-d polls claude.ai usage in the background and serves
// it over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/claude-usage/pkg/api"
	"github.com/rmax-ai/claude-usage/pkg/engine"
	"github.com/rmax-ai/claude-usage/pkg/logging"
	"github.com/rmax-ai/claude-usage/pkg/provider/claude"
	"github.com/rmax-ai/claude-usage/pkg/store"
	mirror "github.com/rmax-ai/claude-usage/pkg/store/redis"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "claude-usage-d: %v\n", err)
		os.Exit(2)
	}

	closer, err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, JSON: cfg.JSONLogs})
	if err != nil {
		fmt.Fprintf(os.Stderr, "claude-usage-d: %v\n", err)
		os.Exit(2)
	}
	defer closer.Close()

	if err := run(cfg); err != nil {
		log.WithError(err).Error("claude-usage-d exited")
		os.Exit(1)
	}
}

func run(cfg Config) error {
	log.WithFields(log.Fields{"dir": cfg.Dir, "transport": cfg.Transport}).Info("system_started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := store.NewStateFile(cfg.StateFile)
	poller := engine.NewPoller(claude.New(cfg.ProviderOptions()), state, time.Duration(cfg.PollInterval))

	history, err := store.NewStore(cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer func() {
		if err := history.Close(); err != nil {
			log.WithError(err).Error("Failed to close history store")
		}
	}()
	poller.AddSink(history)

	if cfg.Redis.Enabled() {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warnf("Redis at %s is not reachable; mirroring anyway", cfg.Redis.Addr)
		}
		poller.AddSink(mirror.NewMirror(rdb, cfg.Redis.Prefix))
	}

	if _, err := poller.Reload(ctx); err != nil {
		log.WithError(err).Warn("Failed to read persisted usage")
	}

	server := api.NewServer(poller, history, cfg.ListenAddr)
	server.SetBaseContext(ctx)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	pruner := engine.NewPruneWorker(history, retention(cfg))
	go pruner.Run(ctx)

	watcher := engine.NewStateWatcher(state.Path(), state, poller)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.WithError(err).Warn("State file watcher stopped")
		}
	}()

	pollerDone := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(pollerDone)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	for {
		select {
		case err := <-serverErr:
			cancel()
			<-pollerDone
			if err != nil {
				return fmt.Errorf("failed to serve API: %w", err)
			}
			return nil
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				reload(ctx, poller, pruner)
				continue
			}
			log.WithField("signal", sig.String()).Info("shutdown_initiated")
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := server.Stop(shutdownCtx); err != nil {
				log.WithError(err).Error("Failed to stop API server")
			}
			shutdownCancel()

			<-pollerDone
			log.Info("shutdown_complete")
			return nil
		}
	}
}

// reload re-reads settings and the state file after SIGHUP. Only the
// retention policy is applied live; other settings need a restart.
func reload(ctx context.Context, poller *engine.Poller, pruner *engine.PruneWorker) {
	log.Info("Received SIGHUP, reloading")
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		log.WithError(err).Error("Failed to reload settings")
	} else {
		pruner.UpdateConfig(retention(cfg))
	}
	if _, err := poller.Reload(ctx); err != nil {
		log.WithError(err).Warn("Failed to reload persisted usage")
	}
}

func retention(cfg Config) engine.RetentionConfig {
	return engine.RetentionConfig{
		Enabled:       cfg.HistoryRetention > 0,
		MaxAge:        time.Duration(cfg.HistoryRetention),
		CheckInterval: time.Hour,
	}
}

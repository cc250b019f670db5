package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/tabsync/errors"
	"github.com/teranos/tabsync/internal/agent"
	"github.com/teranos/tabsync/internal/config"
	"github.com/teranos/tabsync/internal/hostio"
	"github.com/teranos/tabsync/internal/scheduler"
	"github.com/teranos/tabsync/internal/state"
	"github.com/teranos/tabsync/internal/transport"
	"github.com/teranos/tabsync/logger"
)

// RunCmd starts the sync agent: it reads browser events as
// newline-delimited JSON from stdin, writes the resulting tab
// mutations as newline-delimited JSON to stdout (see internal/hostio
// for the wire shapes), and exchanges CRDT operations with the
// configured sync server on the adaptive schedule. It runs until
// interrupted.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync agent, reading browser events from stdin",
	RunE:  runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	log := logger.Logger

	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	db, err := state.OpenWithMigrations(cfg.State.Path, log)
	if err != nil {
		return errors.Wrap(err, "failed to open state database")
	}
	defer db.Close()
	store := state.New(db, log)

	bearer := os.Getenv(cfg.Server.CredentialEnvVar)
	client := transport.New(cfg.Server.URL, bearer, time.Duration(cfg.Server.TimeoutSeconds)*time.Second, log)

	br := hostio.NewStdoutBrowser(os.Stdout, log)
	es := hostio.NewStdinEventSource(os.Stdin, log)

	schedCfg := schedulerConfigFromSettings(cfg.Scheduler)

	a, err := agent.New(schedCfg, store, br, es, client, log)
	if err != nil {
		return errors.Wrap(err, "failed to construct agent")
	}

	log.Infow("tabsync-agent starting", "device_id", a.DeviceID(), "server_url", cfg.Server.URL)
	a.Start()
	defer a.Stop()

	// The watcher only runs when --config names an explicit file; the
	// default system/user/project search path has no single file to watch.
	// It re-reads and logs that file on change. No reload callback is
	// registered, so the running agent keeps the settings it started with.
	if watchPath := configWatchPath(cmd); watchPath != "" {
		watcher, err := config.NewWatcher(watchPath, log)
		if err != nil {
			log.Warnw("failed to start config watcher", "error", err)
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("tabsync-agent shutting down")
	return nil
}

func configWatchPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

// schedulerConfigFromSettings overlays non-zero overrides from the
// loaded configuration onto scheduler.DefaultConfig.
func schedulerConfigFromSettings(s config.SchedulerConfig) scheduler.Config {
	cfg := scheduler.DefaultConfig()
	if s.ActiveIntervalMS > 0 {
		cfg.ActiveIntervalMS = s.ActiveIntervalMS
	}
	if s.IdleIntervalMS > 0 {
		cfg.IdleIntervalMS = s.IdleIntervalMS
	}
	if s.ErrorBackoffMS > 0 {
		cfg.ErrorBackoffMS = s.ErrorBackoffMS
	}
	if s.MaxBackoffMS > 0 {
		cfg.MaxBackoffMS = s.MaxBackoffMS
	}
	if s.ActivityThresholdMS > 0 {
		cfg.ActivityThresholdMS = s.ActivityThresholdMS
	}
	if s.QueueSizeThreshold > 0 {
		cfg.QueueSizeThreshold = s.QueueSizeThreshold
	}
	if s.MaxQueueSize > 0 {
		cfg.MaxQueueSize = s.MaxQueueSize
	}
	return cfg
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harrison/docrouter/internal/filelock"
	"github.com/harrison/docrouter/internal/ingest"
	"github.com/harrison/docrouter/internal/logger"
	"github.com/harrison/docrouter/internal/watcher"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep routing files until interrupted",
		Long: `Serve runs the ingestion loop on a schedule. A run starts at startup,
every poll interval, and shortly after new *.tif files appear in the watch
folder. Runs never overlap: the schedule restarts once a run finishes, and
the lock file keeps a separate "docrouter run" from working at the same
time.

The metadata tables are reloaded at the start of every run.

Examples:
  docrouter serve
  docrouter serve --poll-interval 1m
  docrouter serve --no-watch`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("watch-folder", "", "Folder to scan for *.tif files (overrides config)")
	cmd.Flags().Duration("poll-interval", 0, "Time between scheduled runs (overrides config)")
	cmd.Flags().Bool("no-watch", false, "Disable file notifications and rely on the schedule only")
	cmd.Flags().Duration("settle", watcher.DefaultSettleDelay, "Quiet period after new files before a run starts")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	a, err := openApp(cmd, cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wake <-chan struct{}
	noWatch, _ := cmd.Flags().GetBool("no-watch")
	if !noWatch && cfg.WatchFolder != "" {
		fw, err := watcher.New(cfg.WatchFolder, ".tif")
		if err != nil {
			a.log.LogWarn(fmt.Sprintf("file notifications unavailable for %s, polling only: %v", cfg.WatchFolder, err))
		} else {
			defer fw.Close()
			settle, _ := cmd.Flags().GetDuration("settle")
			fw.SetSettleDelay(settle)
			wake = fw.Wake()
			a.log.LogDebug(fmt.Sprintf("watching %s for new files", fw.Dir()))
			go logWatchErrors(ctx, fw, a.log)
		}
	}

	lock := filelock.NewRunLock(cfg.LockFile)
	a.log.LogInfo(fmt.Sprintf("serving %s every %s", cfg.WatchFolder, cfg.PollInterval))

	s := &scheduler{
		interval: cfg.PollInterval,
		wake:     wake,
		log:      a.log,
		run: func(ctx context.Context) error {
			return a.runOnce(ctx, lock, 0)
		},
	}
	s.loop(ctx)
	a.log.LogInfo("shutting down")
	return nil
}

func logWatchErrors(ctx context.Context, fw *watcher.FolderWatcher, log logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-fw.Errors():
			if !ok {
				return
			}
			log.LogWarn(fmt.Sprintf("file watcher: %v", err))
		}
	}
}

// scheduler starts runs on a timer and on wakeups, one at a time
type scheduler struct {
	interval time.Duration
	wake     <-chan struct{}
	run      func(ctx context.Context) error
	log      logger.Logger
}

// loop runs once immediately and then until ctx is cancelled. The timer is
// restarted after each run so a long run is not followed by a burst of
// queued ticks.
func (s *scheduler) loop(ctx context.Context) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	s.runOnce(ctx, "startup")
	resetTimer(timer, s.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runOnce(ctx, "schedule")
		case <-s.wake:
			s.runOnce(ctx, "new files")
		}
		resetTimer(timer, s.interval)
	}
}

func (s *scheduler) runOnce(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	s.log.LogDebug("run triggered by " + trigger)

	err := s.run(ctx)
	var batchErr *ingest.BatchError
	switch {
	case err == nil:
	case errors.Is(err, errRunSkipped):
		s.log.LogWarn(fmt.Sprintf("%v, skipping %s run", err, trigger))
	case errors.Is(err, context.Canceled):
	case errors.As(err, &batchErr):
		s.log.LogWarn(fmt.Sprintf("run finished with failures: %v", err))
	default:
		s.log.LogError(fmt.Sprintf("run failed: %v", err))
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

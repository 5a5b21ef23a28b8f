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
	"github.com/spf13/cobra"
)

// errRunSkipped reports that another process held the run lock
var errRunSkipped = errors.New("another docrouter run is in progress")

// lockRetryDelay is how often a waiting run retries the lock
const lockRetryDelay = 250 * time.Millisecond

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Route every file waiting in the watch folder, then exit",
		Long: `Run performs one ingestion run: every *.tif file in the watch folder is
parsed, looked up in the metadata tables and either stored in the index
engine or archived into the unknown tree. Files that arrive while the run
is working are picked up before it exits.

Run is meant to be started by an external scheduler. When another run
still holds the lock file the new one exits without doing anything, unless
--wait gives it time to wait for the lock.

Exit code: 0 when every file was handled, 1 when a file failed or the
metadata tables could not be loaded.

Examples:
  docrouter run
  docrouter run --watch-folder /scans/inbound
  docrouter run --wait 2m
  docrouter run --config /etc/docrouter/config.yaml --log-level debug`,
		Args: cobra.NoArgs,
		RunE: runCommand,
	}

	cmd.Flags().String("watch-folder", "", "Folder to scan for *.tif files (overrides config)")
	cmd.Flags().Duration("wait", 0, "How long to wait for a run already in progress (0 = skip immediately)")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
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

	wait, _ := cmd.Flags().GetDuration("wait")
	lock := filelock.NewRunLock(cfg.LockFile)
	if err := a.runOnce(ctx, lock, wait); err != nil {
		if errors.Is(err, errRunSkipped) {
			a.log.LogWarn(fmt.Sprintf("%v (lock %s), skipping", err, lock.Path()))
			return nil
		}
		return err
	}
	return nil
}

// runOnce drains the watch folder while holding the run lock. With a
// positive wait the lock is retried until wait elapses.
func (a *app) runOnce(ctx context.Context, lock *filelock.RunLock, wait time.Duration) error {
	if err := acquire(ctx, lock, wait); err != nil {
		return err
	}
	defer lock.Release()

	_, err := a.newLoop().Run(ctx, a.cfg.WatchFolder)
	return err
}

func acquire(ctx context.Context, lock *filelock.RunLock, wait time.Duration) error {
	if wait <= 0 {
		ok, err := lock.TryAcquire()
		if err != nil {
			return err
		}
		if !ok {
			return errRunSkipped
		}
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := lock.Acquire(waitCtx, lockRetryDelay); err != nil {
		if errors.Is(err, filelock.ErrLockHeld) && ctx.Err() == nil {
			return errRunSkipped
		}
		return err
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

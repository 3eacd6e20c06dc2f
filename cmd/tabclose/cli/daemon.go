package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/majorcontext/tabclose/internal/config"
	"github.com/majorcontext/tabclose/internal/daemon"
	"github.com/majorcontext/tabclose/internal/kv"
	"github.com/majorcontext/tabclose/internal/log"
	"github.com/majorcontext/tabclose/internal/notify"
	"github.com/majorcontext/tabclose/internal/schedule"
	"github.com/majorcontext/tabclose/internal/tabs"
	"github.com/majorcontext/tabclose/internal/timer"
)

var daemonDir string

var daemonCmd = &cobra.Command{
	Use:    "_daemon",
	Hidden: true,
	Short:  "Run the timer daemon (internal use)",
	Args:   cobra.NoArgs,
	RunE:   runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&daemonDir, "dir", "", "daemon working directory")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	if daemonDir == "" {
		daemonDir = config.Home()
	}
	cfg, _ := config.Load()

	store, err := kv.Open(cfg.Storage.Backend, daemonDir)
	if err != nil {
		return err
	}
	defer store.Close()

	browser := tabs.NewBrowser(tabs.Options{
		CDPEndpoint: cfg.Browser.CDPEndpoint,
		Headless:    cfg.Browser.Headless,
		Store:       store,
	})
	defer func() {
		if err := browser.Close(); err != nil {
			log.Warn("closing browser", "error", err)
		}
	}()

	var notifier timer.Notifier = notify.Nop{}
	if cfg.Notifications.Enabled {
		notifier = notify.NewDesktop()
	}

	sched := schedule.New(store, nil)
	hub := daemon.NewHub()
	coord := timer.New(timer.Options{
		Store:        timer.NewKVStore(store),
		Scheduler:    sched,
		Tabs:         browser,
		Notifier:     notifier,
		Publisher:    hub,
		TickInterval: cfg.Daemon.TickInterval,
	})
	sched.SetHandler(coord.HandleWake)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Idle shutdown only runs while no timer is pending.
	idle := daemon.NewIdleTimer(cfg.Daemon.IdleTimeout, func() {
		log.Info("daemon idle timeout, shutting down")
		cancel()
	})
	coord.SetOnActive(idle.Cancel)
	coord.SetOnIdle(idle.Reset)

	sockPath := daemon.SockPath(daemonDir)
	apiServer := daemon.NewServer(sockPath, coord, browser, hub)
	apiServer.SetOnShutdown(cancel)

	// Write the lock file before the socket is up so a concurrent
	// EnsureRunning never spawns a second daemon.
	if err := daemon.WriteLockFile(daemonDir, daemon.LockInfo{
		PID:      os.Getpid(),
		SockPath: sockPath,
	}); err != nil {
		return err
	}
	defer daemon.RemoveLockFile(daemonDir)

	// Restore before Reconcile so Reconcile sees the re-armed wake-up.
	if err := sched.Restore(ctx, timer.WakeName); err != nil {
		log.Error("failed to restore wake-ups", "error", err)
	}
	if err := coord.Reconcile(ctx); err != nil {
		log.Error("failed to reconcile timer", "error", err)
	}

	if err := apiServer.Start(); err != nil {
		return err
	}
	log.Info("daemon started", "pid", os.Getpid(), "sock", sockPath, "storage", cfg.Storage.Backend)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Attach to the browser up front; failures are retried on first use.
		if err := browser.Connect(gctx); err != nil {
			log.Warn("browser not available yet", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("daemon shutting down")
		idle.Cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := apiServer.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("stopping API server", "error", err)
		}
		return nil
	})
	return g.Wait()
}

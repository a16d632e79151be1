package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/coordinatordb/coord/internal/cacher"
	"github.com/coordinatordb/coord/internal/catalog"
	"github.com/coordinatordb/coord/internal/config"
	"github.com/coordinatordb/coord/internal/coordinator"
	"github.com/coordinatordb/coord/internal/daemonctl"
	"github.com/coordinatordb/coord/internal/frontier"
	"github.com/coordinatordb/coord/internal/lockfile"
	"github.com/coordinatordb/coord/internal/rpc"
	"github.com/coordinatordb/coord/internal/sinkbuilder"
	"github.com/coordinatordb/coord/internal/tsoracle"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the coordinator daemon",
	Long: `Start the coordinator daemon in the foreground: opens the catalog,
starts the event loop, and listens for client connections on a Unix socket.

Run it under a process supervisor (systemd, launchd, a container
entrypoint) rather than backgrounding it yourself — unlike the teacher's
bd daemon, coord does not self-daemonize.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, _ []string) error {
	if err := initConfig(cmd); err != nil {
		return err
	}
	logger := newLogger()

	dataDir, err := resolveDataDir()
	if err != nil {
		return err
	}

	lock, err := lockfile.AcquireDaemon(dataDir)
	if err != nil {
		return fmt.Errorf("acquire daemon lock (is a coordinator already running against %s?): %w", dataDir, err)
	}
	defer func() { _ = lock.Unlock() }()

	catalogPath := filepath.Join(dataDir, "catalog", "catalog.db")
	if err := os.MkdirAll(filepath.Dir(catalogPath), 0o750); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}
	cat, err := catalog.Open(catalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = cat.Close() }()

	tracker := frontier.NewTracker()
	oracle := tsoracle.New(tsoracle.SystemClock{})
	shipper := coordinator.NewLocalShipper()

	loop := coordinator.New(cat, tracker, oracle, shipper, logger)
	if interval := config.GetDuration("timestamper-interval"); interval > 0 {
		loop.TimestamperInterval = interval
	}

	sourceCacher, err := cacher.NewDirCacher(filepath.Join(dataDir, "cache"), logger)
	if err != nil {
		return fmt.Errorf("start source cacher: %w", err)
	}
	loop.SetCacher(sourceCacher)

	socketPath := config.GetString("socket-path")
	if socketPath == "" {
		socketPath = rpc.ShortSocketPath(dataDir)
	}
	rpc.ServerVersion = Version

	server := rpc.NewServer(socketPath, dataDir, loop, logger)
	server.SetSinkBuilder(sinkbuilder.FileBuilder{Dir: filepath.Join(dataDir, "sinks")})

	registry, err := daemonctl.NewRegistry()
	if err != nil {
		return fmt.Errorf("open daemon registry: %w", err)
	}
	entry := daemonctl.RegistryEntry{
		DataDir:    dataDir,
		SocketPath: socketPath,
		PID:        os.Getpid(),
		Version:    Version,
		StartedAt:  time.Now(),
	}
	if err := registry.Register(entry); err != nil {
		return fmt.Errorf("register daemon: %w", err)
	}
	defer func() { _ = registry.Unregister(dataDir, os.Getpid()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return sourceCacher.Start(gctx) })
	g.Go(func() error {
		if err := server.Start(); err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	})

	select {
	case <-server.Ready():
		logger.Info("coordinator ready", "data_dir", dataDir, "socket", socketPath, "pid", os.Getpid())
	case <-time.After(5 * time.Second):
		logger.Warn("rpc server did not report ready within 5s")
	}

	<-gctx.Done()
	logger.Info("shutting down coordinator")
	loop.Shutdown()
	_ = server.Stop()

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

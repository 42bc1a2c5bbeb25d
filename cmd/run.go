package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/throwbridge/throwbridge/internal/config"
	"github.com/throwbridge/throwbridge/internal/container"
)

var (
	runPort  int
	runDebug bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bridge",
	RunE:  runBridge,
}

func init() {
	runCmd.Flags().IntVarP(&runPort, "port", "p", 0, "Item Service port (overrides config)")
	runCmd.Flags().BoolVarP(&runDebug, "debug", "d", false, "Debug logging")
}

func runBridge(_ *cobra.Command, _ []string) error {
	path := configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runPort != 0 {
		cfg.ItemService.Port = runPort
	}
	if runDebug {
		cfg.DebugLogging = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c, err := container.New(cfg, path)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer c.Sink().Close()
	log := c.Sink().Logger()

	fmt.Printf("%s Starting throwbridge (control host %s, item service %s)...\n",
		logo, cfg.ControlHost.Addr(), cfg.ItemService.URL(cfg.ItemService.Port))

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.Controller().Run(gctx) })
	g.Go(func() error { return c.Scheduler().Start(gctx) })
	if w := c.Watcher(); w != nil {
		g.Go(func() error { return w.Start(gctx) })
	}
	if addr := cfg.Metrics.Addr; addr != "" {
		g.Go(func() error { return c.Metrics().Serve(gctx, addr, log) })
	}

	log.Info("bridge: started", "version", version, "dataDir", cfg.DataPath())
	fmt.Printf("%s Bridge running. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "bridge error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

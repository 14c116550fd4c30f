package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/devatlas/devatlas/internal/common/logtrace"
	"github.com/devatlas/devatlas/internal/inboxsrv"
	"github.com/devatlas/devatlas/internal/inboxsrv/config"
	"github.com/devatlas/devatlas/internal/inboxsrv/flows"
)

// daemonLoop is one long-running poll loop. It must return promptly once
// the context is cancelled.
type daemonLoop func(ctx context.Context, rt *inboxsrv.Runtime, status *flows.LoopStatus) error

// runDaemon wires the shared clients, the ops listener and signal handling
// around one loop, and blocks until the loop ends or a signal arrives.
func runDaemon(name string, cfg *config.Config, loop daemonLoop) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the loops log through the context
	logger := logtrace.Component(name)
	ctx = logger.WithContext(ctx)

	rt, err := inboxsrv.NewRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting clients: %w", err)
	}
	defer rt.Close()

	status := flows.NewLoopStatus(name)

	// serverErrors stays nil when no listener is configured, and a nil
	// channel never fires in the select below
	var serverErrors chan error
	var shutdownOps func()
	if cfg.Flows.ListenAddress != "" {
		ops := flows.NewOpsServer(status)
		serverErrors, shutdownOps = ops.Start(ctx, cfg.Flows.ListenAddress)
	}

	loopErrors := make(chan error, 1)
	go func() {
		loopErrors <- loop(ctx, rt, status)
	}()

	// Channel to listen for an interrupt or terminate signal from the OS.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-loopErrors:
		if shutdownOps != nil {
			shutdownOps()
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

	case err := <-serverErrors:
		cancel()
		<-loopErrors
		return fmt.Errorf("ops listener: %w", err)

	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
		<-loopErrors
		if shutdownOps != nil {
			shutdownOps()
		}
	}

	logger.Info().Msg("daemon stopped")
	return nil
}

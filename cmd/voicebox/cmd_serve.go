package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/book-expert/voicebox/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the voice and synthesis HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, addr string) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	err = a.checkRegistry()
	if err != nil {
		return err
	}

	healthErr := a.engine.CheckHealth(ctx)
	if healthErr != nil {
		a.log.Warn("Model service is not ready yet: %v", healthErr)
	}

	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	srv := server.New(a.manager, a.orchestrator, server.Options{
		UploadLimitMB: a.cfg.Server.UploadLimitMB,
		DefaultSpeed:  a.cfg.Model.DefaultSpeed,
	}, a.log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)

	go func() {
		listenErr <- srv.Listen(addr)
	}()

	a.log.System("voicebox serving on %s (voices in %s)", addr, a.cfg.VoicesPath())

	select {
	case err = <-listenErr:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	a.log.System("voicebox stopped")

	return nil
}

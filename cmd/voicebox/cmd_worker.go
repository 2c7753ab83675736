package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/book-expert/voicebox/internal/objectstore"
	"github.com/book-expert/voicebox/internal/worker"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Answer synthesis requests from NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), opts)
		},
	}
}

func runWorker(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	err = a.checkRegistry()
	if err != nil {
		return err
	}

	natsConnection, err := nats.Connect(a.cfg.NATS.URL, nats.Name("voicebox-worker"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", a.cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, a.cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	natsWorker := worker.NewNatsWorker(natsConnection, store, a.orchestrator, worker.Options{
		Subject:    a.cfg.NATS.SynthesisSubject,
		Speed:      a.cfg.Model.DefaultSpeed,
		JobTimeout: a.cfg.ModelTimeout(),
	}, a.log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.log.System("voicebox worker listening on %s (bucket %s)", a.cfg.NATS.SynthesisSubject, store.Bucket())

	return natsWorker.Run(ctx)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	payoutApp "github.com/mashughuli/escrow/internal/application/payout"
	"github.com/mashughuli/escrow/internal/bootstrap"
	"github.com/mashughuli/escrow/internal/infrastructure/daraja"
	infraRedis "github.com/mashughuli/escrow/internal/infrastructure/redis"
	"github.com/mashughuli/escrow/internal/repository/postgres"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "escrow-worker", "escrow_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Redis == nil {
		app.Logger.Fatal().Msg("worker requires Redis for the disbursement stream")
	}

	payoutRepo := postgres.NewPayoutRepository(app.Pool)
	darajaClient := daraja.NewClient(app.Config.Mpesa, app.Logger)

	workerCfg := app.Config.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.PayoutStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	producer := infraRedis.NewStreamProducer(app.Redis)

	worker := payoutApp.NewWorker(
		consumer, producer, payoutRepo,
		&bootstrap.B2CDisburser{Client: darajaClient},
		app.Logger, app.Metrics,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Run(gCtx)
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

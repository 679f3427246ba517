package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	payoutApp "github.com/mashughuli/escrow/internal/application/payout"
	"github.com/mashughuli/escrow/internal/application/settlement"
	"github.com/mashughuli/escrow/internal/bootstrap"
	"github.com/mashughuli/escrow/internal/controller"
	"github.com/mashughuli/escrow/internal/infrastructure/daraja"
	infraRedis "github.com/mashughuli/escrow/internal/infrastructure/redis"
	"github.com/mashughuli/escrow/internal/realtime"
	"github.com/mashughuli/escrow/internal/repository/postgres"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "escrow-api", "escrow")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	transactionRepo := postgres.NewTransactionRepository(app.Pool)
	payoutRepo := postgres.NewPayoutRepository(app.Pool)
	errandRepo := postgres.NewErrandRepository(app.Pool)
	notificationRepo := postgres.NewNotificationRepository(app.Pool)
	messageRepo := postgres.NewMessageRepository(app.Pool)
	userRepo := postgres.NewUserRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Realtime layer ---
	registry := realtime.NewRegistry()
	bridge := realtime.NewBridge(registry, app.Redis, app.Config.Realtime.ChannelPrefix, app.Logger, app.Metrics)
	bridge.Start(ctx)
	defer bridge.Close()

	gateway := realtime.NewGateway(registry, bridge, messageRepo, app.Config.Realtime, app.Logger, app.Metrics)

	// --- Provider and use cases ---
	darajaClient := daraja.NewClient(app.Config.Mpesa, app.Logger)

	engine := settlement.NewEngine(
		transactionRepo, payoutRepo, errandRepo, notificationRepo,
		txManager, bridge, app.Logger, app.Metrics,
	)
	initiation := settlement.NewPaymentInitiation(
		transactionRepo, errandRepo,
		&bootstrap.StkInitiator{Client: darajaClient},
		app.Logger, app.Metrics,
	)

	var producer payoutApp.EventProducer
	if app.Redis != nil {
		producer = infraRedis.NewStreamProducer(app.Redis)
	} else {
		producer = noopProducer{logger: app.Logger}
	}
	approval := payoutApp.NewApproval(
		errandRepo, payoutRepo, userRepo, notificationRepo,
		txManager, producer, app.Logger,
	)

	// --- Router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:             app.Pool,
		RedisClient:      app.Redis,
		Engine:           engine,
		Initiation:       initiation,
		Approval:         approval,
		TransactionRepo:  transactionRepo,
		NotificationRepo: notificationRepo,
		MessageRepo:      messageRepo,
		MessageRelay:     bridge,
		Gateway:          gateway,
		Metrics:          app.Metrics,
		Logger:           app.Logger,
		CORSConfig:       app.Config.Server.CORS,
		JWTSecret:        app.Config.Auth.JWTSecret,
	})

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	cancel()
	app.Logger.Info().Msg("Server exited")
}

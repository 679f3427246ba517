package controller

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mashughuli/escrow/internal/application/payout"
	"github.com/mashughuli/escrow/internal/application/settlement"
	"github.com/mashughuli/escrow/internal/domain/escrow"
	"github.com/mashughuli/escrow/internal/domain/message"
	"github.com/mashughuli/escrow/internal/domain/notification"
	"github.com/mashughuli/escrow/internal/infrastructure/config"
	"github.com/mashughuli/escrow/internal/infrastructure/observability"
	customMW "github.com/mashughuli/escrow/internal/middleware"
)

type RouterDeps struct {
	Pool             *pgxpool.Pool
	RedisClient      *redis.Client
	Engine           *settlement.Engine
	Initiation       *settlement.PaymentInitiation
	Approval         *payout.Approval
	TransactionRepo  escrow.TransactionRepository
	NotificationRepo notification.Repository
	MessageRepo      message.Repository
	MessageRelay     ConversationRelay
	Gateway          http.Handler
	Metrics          *observability.Metrics
	Logger           zerolog.Logger
	CORSConfig       config.CORSConfig
	JWTSecret        string
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	callbackH := NewCallbackController(deps.Engine, deps.Logger, deps.Metrics)
	paymentH := NewPaymentController(deps.Initiation, deps.TransactionRepo)
	errandH := NewErrandController(deps.Approval)
	notificationH := NewNotificationController(deps.NotificationRepo)
	messageH := NewMessageController(deps.MessageRepo, deps.MessageRelay, deps.Logger)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	// The gateway does its own frame-level auth, so no middleware here.
	r.Handle("/ws", deps.Gateway)

	r.Route("/api/v1", func(r chi.Router) {
		// Provider callback: authenticated by obscurity of the callback
		// URL plus the pending-reference check, per the provider's model.
		r.Post("/payments/callback", callbackH.StkCallback)

		r.Group(func(r chi.Router) {
			r.Use(customMW.RequireAuth(deps.JWTSecret))

			r.Post("/payments/stk", paymentH.InitiatePayment)
			r.Get("/transactions/{id}", paymentH.GetTransaction)

			r.Post("/errands/{id}/approve", errandH.Approve)

			r.Get("/notifications", notificationH.List)
			r.Post("/notifications/{id}/read", notificationH.MarkRead)
			r.Post("/notifications/read-all", notificationH.MarkAllRead)

			r.Post("/messages", messageH.Create)
			r.Get("/messages/{otherUserId}", messageH.History)
			r.Post("/messages/{otherUserId}/read", messageH.MarkConversationRead)
		})
	})

	return r
}

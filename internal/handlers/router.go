package handlers

import (
	"net/http"
	"strings"

	"bettabuckz/internal/config"
	"bettabuckz/internal/idempotency"
	"bettabuckz/internal/logging"
	"bettabuckz/internal/metrics"
	"bettabuckz/internal/middleware"
	"bettabuckz/internal/models"
	"bettabuckz/internal/validator"
	"bettabuckz/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Config      config.Config
	Ledger      LedgerService
	Payments    PaymentService
	Reconciler  Reconciler
	Operators   middleware.OperatorStore
	Idempotency idempotency.Store
	Hub         *websocket.Hub
	Validator   *validator.Validator
	Metrics     *metrics.Metrics
	Logger      logging.Logger
}

type Handler struct {
	cfg         config.Config
	ledger      LedgerService
	payments    PaymentService
	reconciler  Reconciler
	operators   middleware.OperatorStore
	idempotency idempotency.Store
	hub         *websocket.Hub
	validate    *validator.Validator
	metrics     *metrics.Metrics
	logger      logging.Logger
}

func New(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	validate := deps.Validator
	if validate == nil {
		validate = validator.New(nil)
	}
	return &Handler{
		cfg:         deps.Config,
		ledger:      deps.Ledger,
		payments:    deps.Payments,
		reconciler:  deps.Reconciler,
		operators:   deps.Operators,
		idempotency: deps.Idempotency,
		hub:         deps.Hub,
		validate:    validate,
		metrics:     deps.Metrics,
		logger:      logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.AccessLog(h.logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(h.metrics.Middleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(h.cfg.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", middleware.IdempotencyHeader},
		ExposedHeaders:   []string{"Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authed := middleware.Auth(h.cfg.JWTSecret)
	idem := h.idempotent()

	router.Route("/currency", func(r chi.Router) {
		r.Use(authed)
		r.With(idem).Post("/transfer", h.Transfer)
		r.With(idem).Post("/purchase", h.Purchase)
		r.With(middleware.RequireAdmin(h.operators, models.RoleRefund)).Post("/refund", h.RefundPurchase)
		r.Get("/balance", h.GetBalance)
		r.Get("/transactions", h.ListTransactions)
	})
	router.Route("/tournaments/{id}", func(r chi.Router) {
		r.Use(authed)
		r.Post("/entry", h.EnterTournament)
		r.With(middleware.RequireAdmin(h.operators, models.RoleRefund)).Post("/refund", h.RefundTournamentEntry)
	})
	router.Route("/payments", func(r chi.Router) {
		r.Post("/card/webhook", h.CardWebhook)
		r.Put("/cashapp", h.CashAppWebhook)

		r.Group(func(r chi.Router) {
			r.Use(authed)
			r.With(idem).Post("/card/intent", h.CreateCardIntent)
			r.With(idem).Post("/cashapp", h.CreateCashAppPayment)
			r.With(idem).Post("/btc-transfer", h.BTCTransfer)
			r.Post("/bitcoin", h.StartBitcoinPurchase)
			r.Get("/{id}", h.GetPayment)
		})
	})
	router.With(middleware.QueryAuth(h.cfg.JWTSecret)).Get("/ws/balances", h.WSBalances)

	router.Route("/admin", func(r chi.Router) {
		r.Use(authed)
		r.Use(middleware.RequireAdmin(h.operators, models.RoleReconcile))
		r.Get("/reconcile", h.ReconcileReport)
		r.Post("/reconcile/run", h.RunReconcile)
		r.Get("/alerts", h.ListAlerts)
		r.Post("/alerts/{id}/resolve", h.ResolveAlert)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	return router
}

func (h *Handler) idempotent() func(http.Handler) http.Handler {
	if h.idempotency == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.Idempotency(h.idempotency, h.logger)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bettabuckz/internal/config"
	"bettabuckz/internal/db"
	"bettabuckz/internal/handlers"
	"bettabuckz/internal/idempotency"
	"bettabuckz/internal/logging"
	"bettabuckz/internal/metrics"
	"bettabuckz/internal/models"
	"bettabuckz/internal/payments"
	"bettabuckz/internal/payments/bitcoin"
	"bettabuckz/internal/payments/card"
	"bettabuckz/internal/payments/cashapp"
	"bettabuckz/internal/services"
	"bettabuckz/internal/store"
	"bettabuckz/internal/validator"
	"bettabuckz/internal/watcher"
	"bettabuckz/internal/websocket"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	network, err := bitcoin.NetParams(cfg.BTCNetwork)
	if err != nil {
		return err
	}
	database, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	m := metrics.New()
	txRunner := db.NewTxRunner(database)
	accounts := store.NewAccountStore(database)
	ledgerStore := store.NewLedgerStore(database)
	paymentStore := store.NewPaymentStore(database)
	alerts := store.NewAlertStore(database)
	operators := store.NewAdminStore(database)
	watchStore := store.NewWatchStore(database)
	hub := websocket.NewHub(cfg.AllowedOrigins, logger)

	records := idempotencyStore(ctx, cfg, logger)

	var indexes bitcoin.IndexSource
	if cfg.BTCXPub != "" {
		wallet := store.NewWalletStore(database)
		if err := wallet.Init(ctx, cfg.BTCXPub); err != nil {
			return err
		}
		indexes = wallet
	}
	httpClient := payments.NewClient(payments.DefaultClientConfig())
	deposits := bitcoin.NewDepositAddresses(indexes, cfg.BTCDepositAddress, network)
	feed := bitcoin.NewPushFeed(cfg.BTCPushFeedURL, cfg.BTCConfirmations, logger)

	ledger := services.NewLedgerService(txRunner, accounts, ledgerStore, store.NewUserStore(database),
		store.NewTournamentStore(database), alerts, hub, m, logger)

	var paymentService *services.PaymentService
	var subscriber watcher.Subscriber
	if feed.Enabled() {
		subscriber = feed
	}
	var staticAddresses []string
	if static := deposits.Static(); static != "" {
		staticAddresses = append(staticAddresses, static)
	}
	chainWatcher := watcher.New(watcher.Config{
		Chain:    bitcoin.NewChainClient(httpClient, cfg.BTCChainAPIURL, cfg.BTCChainAPIToken),
		Store:    watchStore,
		Payments: paymentStore,
		Settler: watcher.SettleFunc(func(ctx context.Context, payment models.Payment, txHash string, amountSats int64, confirmations int) (bool, error) {
			return paymentService.SettleBitcoinDeposit(ctx, payment, txHash, amountSats, confirmations)
		}),
		Feed:            subscriber,
		Alerts:          alerts,
		Confirmations:   cfg.BTCConfirmations,
		PollInterval:    cfg.BTCPollInterval,
		StaticAddresses: staticAddresses,
		Metrics:         m,
		Logger:          logger,
	})
	paymentService = services.NewPaymentService(services.PaymentServiceConfig{
		Payments: paymentStore,
		Ledger:   ledger,
		Catalog:  payments.NewCatalog(cfg.Packages),
		Card: card.NewClient(card.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			Logger:        logger,
		}),
		CashApp: cashapp.NewClient(httpClient, cashapp.Config{
			BaseURL:       cfg.CashAppAPIURL,
			APIKey:        cfg.CashAppAPIKey,
			WebhookSecret: cfg.CashAppWebhookSecret,
		}),
		Prices:                bitcoin.NewPriceFeed(httpClient, cfg.BTCPriceURL, cfg.BTCPriceCacheTTL),
		Deposits:              deposits,
		Sender:                bitcoin.NewSender(httpClient, cfg.BTCWalletAPIURL, cfg.BTCWalletAPIKey),
		Watcher:               chainWatcher,
		Network:               network,
		CashAppFeePercent:     cfg.CashAppPurchaseFeePercent,
		BTCTransferFeePercent: cfg.BTCTransferFeePercent,
		QuoteTTL:              cfg.BTCQuoteTTL,
		Metrics:               m,
		Logger:                logger,
	})
	reconciler := services.NewReconciler(ledger, txRunner, accounts, ledgerStore, alerts, paymentStore, m, logger)

	handler := handlers.New(handlers.Deps{
		Config:      cfg,
		Ledger:      ledger,
		Payments:    paymentService,
		Reconciler:  reconciler,
		Operators:   operators,
		Idempotency: records,
		Hub:         hub,
		Validator:   validator.New(network),
		Metrics:     m,
		Logger:      logger,
	})
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.WithFields(logging.Fields{"addr": server.Addr, "env": cfg.AppEnv, "network": network.Name}).Info("bettabuckz API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return chainWatcher.Run(gctx)
	})
	group.Go(func() error {
		logWatcherEvents(gctx, chainWatcher.Events(), logger)
		return nil
	})
	if feed.Enabled() {
		group.Go(func() error {
			return feed.Run(gctx, chainWatcher.Addresses, func(ctx context.Context, tx bitcoin.ChainTx) {
				if err := chainWatcher.Observe(ctx, watcher.FromChainTx(tx)); err != nil {
					logger.WithError(err).WithField("tx_hash", tx.Hash).Warn("push feed observation failed")
				}
			})
		})
	}
	group.Go(func() error {
		return reconciler.Start(gctx, cfg.ReconcileInterval)
	})
	return group.Wait()
}

// idempotencyStore prefers Redis so the window is shared across instances.
func idempotencyStore(ctx context.Context, cfg config.Config, logger logging.Logger) idempotency.Store {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set; idempotency keys are kept in process memory")
		return idempotency.NewMemoryStore(cfg.IdempotencyTTL)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("redis unreachable; idempotency keys are kept in process memory")
		_ = client.Close()
		return idempotency.NewMemoryStore(cfg.IdempotencyTTL)
	}
	return idempotency.NewRedisStore(client, cfg.IdempotencyTTL)
}

func logWatcherEvents(ctx context.Context, events <-chan watcher.Event, logger logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			logger.WithFields(logging.Fields{
				"event":         event.Type,
				"tx_hash":       event.TxHash,
				"address":       event.Address,
				"confirmations": event.Confirmations,
				"payment_id":    event.PaymentID,
			}).Info("bitcoin watcher event")
		}
	}
}

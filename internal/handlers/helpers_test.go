package handlers

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"bettabuckz/internal/auth"
	"bettabuckz/internal/config"
	"bettabuckz/internal/idempotency"
	"bettabuckz/internal/models"
	"bettabuckz/internal/payments"
	"bettabuckz/internal/payments/card"
	"bettabuckz/internal/services"
	"bettabuckz/internal/store"
)

type stubLedger struct {
	transferFn    func(ctx context.Context, req services.TransferRequest) (services.TransferResult, error)
	purchaseFn    func(ctx context.Context, req services.PurchaseRequest) (services.ApplyResult, error)
	refundFn      func(ctx context.Context, userID, entryID, reason string) (services.ApplyResult, error)
	enterFn       func(ctx context.Context, userID, tournamentID string) (services.ApplyResult, error)
	refundEntryFn func(ctx context.Context, userID, tournamentID string) (services.ApplyResult, error)
	balanceFn     func(ctx context.Context, userID string) (int64, error)
	historyFn     func(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error)
}

func (s stubLedger) Transfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, error) {
	if s.transferFn == nil {
		return services.TransferResult{}, nil
	}
	return s.transferFn(ctx, req)
}

func (s stubLedger) Purchase(ctx context.Context, req services.PurchaseRequest) (services.ApplyResult, error) {
	if s.purchaseFn == nil {
		return services.ApplyResult{}, nil
	}
	return s.purchaseFn(ctx, req)
}

func (s stubLedger) RefundPurchase(ctx context.Context, userID, entryID, reason string) (services.ApplyResult, error) {
	if s.refundFn == nil {
		return services.ApplyResult{}, nil
	}
	return s.refundFn(ctx, userID, entryID, reason)
}

func (s stubLedger) EnterTournament(ctx context.Context, userID, tournamentID string) (services.ApplyResult, error) {
	if s.enterFn == nil {
		return services.ApplyResult{}, nil
	}
	return s.enterFn(ctx, userID, tournamentID)
}

func (s stubLedger) RefundTournamentEntry(ctx context.Context, userID, tournamentID string) (services.ApplyResult, error) {
	if s.refundEntryFn == nil {
		return services.ApplyResult{}, nil
	}
	return s.refundEntryFn(ctx, userID, tournamentID)
}

func (s stubLedger) Balance(ctx context.Context, userID string) (int64, error) {
	if s.balanceFn == nil {
		return 0, nil
	}
	return s.balanceFn(ctx, userID)
}

func (s stubLedger) History(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	if s.historyFn == nil {
		return nil, nil
	}
	return s.historyFn(ctx, userID, limit, offset)
}

type stubPayments struct {
	cardIntentFn     func(ctx context.Context, req services.CardIntentRequest) (card.Intent, error)
	cardWebhookFn    func(ctx context.Context, payload []byte, signature string) error
	cashAppFn        func(ctx context.Context, req services.CashAppPaymentRequest) (payments.Result, error)
	cashAppWebhookFn func(ctx context.Context, body []byte, signature string) error
	bitcoinFn        func(ctx context.Context, req services.BitcoinPurchaseRequest) (payments.Result, error)
	btcTransferFn    func(ctx context.Context, req services.BTCTransferRequest) (payments.Result, error)
	getPaymentFn     func(ctx context.Context, userID, paymentID string) (models.Payment, error)
}

func (s stubPayments) CreateCardIntent(ctx context.Context, req services.CardIntentRequest) (card.Intent, error) {
	if s.cardIntentFn == nil {
		return card.Intent{}, nil
	}
	return s.cardIntentFn(ctx, req)
}

func (s stubPayments) HandleCardWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.cardWebhookFn == nil {
		return nil
	}
	return s.cardWebhookFn(ctx, payload, signature)
}

func (s stubPayments) CreateCashAppPayment(ctx context.Context, req services.CashAppPaymentRequest) (payments.Result, error) {
	if s.cashAppFn == nil {
		return payments.Result{}, nil
	}
	return s.cashAppFn(ctx, req)
}

func (s stubPayments) HandleCashAppWebhook(ctx context.Context, body []byte, signature string) error {
	if s.cashAppWebhookFn == nil {
		return nil
	}
	return s.cashAppWebhookFn(ctx, body, signature)
}

func (s stubPayments) StartBitcoinPurchase(ctx context.Context, req services.BitcoinPurchaseRequest) (payments.Result, error) {
	if s.bitcoinFn == nil {
		return payments.Result{}, nil
	}
	return s.bitcoinFn(ctx, req)
}

func (s stubPayments) ProcessExternalBTCTransfer(ctx context.Context, req services.BTCTransferRequest) (payments.Result, error) {
	if s.btcTransferFn == nil {
		return payments.Result{}, nil
	}
	return s.btcTransferFn(ctx, req)
}

func (s stubPayments) GetPayment(ctx context.Context, userID, paymentID string) (models.Payment, error) {
	if s.getPaymentFn == nil {
		return models.Payment{}, nil
	}
	return s.getPaymentFn(ctx, userID, paymentID)
}

type stubReconciler struct {
	reportFn  func(ctx context.Context) ([]models.BalanceDrift, error)
	runFn     func(ctx context.Context) (services.ReconcileReport, error)
	alertsFn  func(ctx context.Context, limit, offset int) ([]models.ReconciliationAlert, error)
	resolveFn func(ctx context.Context, req services.ResolveAlertRequest) (models.ReconciliationAlert, error)
}

func (s stubReconciler) Report(ctx context.Context) ([]models.BalanceDrift, error) {
	if s.reportFn == nil {
		return nil, nil
	}
	return s.reportFn(ctx)
}

func (s stubReconciler) Run(ctx context.Context) (services.ReconcileReport, error) {
	if s.runFn == nil {
		return services.ReconcileReport{}, nil
	}
	return s.runFn(ctx)
}

func (s stubReconciler) ListAlerts(ctx context.Context, limit, offset int) ([]models.ReconciliationAlert, error) {
	if s.alertsFn == nil {
		return nil, nil
	}
	return s.alertsFn(ctx, limit, offset)
}

func (s stubReconciler) ResolveAlert(ctx context.Context, req services.ResolveAlertRequest) (models.ReconciliationAlert, error) {
	if s.resolveFn == nil {
		return models.ReconciliationAlert{}, nil
	}
	return s.resolveFn(ctx, req)
}

type stubOperatorStore struct {
	getOperatorFn func(ctx context.Context, userID string) (models.Operator, error)
}

func (s stubOperatorStore) GetOperator(ctx context.Context, userID string) (models.Operator, error) {
	if s.getOperatorFn == nil {
		return models.Operator{}, store.ErrNotFound
	}
	return s.getOperatorFn(ctx, userID)
}

func newTestHandler(ledger LedgerService, payments PaymentService, reconciler Reconciler, operators stubOperatorStore) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		AllowedOrigins: "*",
	}
	return New(Deps{
		Config:      cfg,
		Ledger:      ledger,
		Payments:    payments,
		Reconciler:  reconciler,
		Operators:   operators,
		Idempotency: idempotency.NewMemoryStore(time.Hour),
	})
}

// serve routes a request through the full router. An empty userID sends no
// token.
func serve(t *testing.T, handler *Handler, method, path, userID string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if userID != "" {
		token, err := auth.GenerateToken("secret", userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func superOperator() stubOperatorStore {
	return stubOperatorStore{getOperatorFn: func(_ context.Context, userID string) (models.Operator, error) {
		return models.Operator{UserID: userID, IsSuper: true}, nil
	}}
}

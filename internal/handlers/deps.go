package handlers

import (
	"context"

	"bettabuckz/internal/models"
	"bettabuckz/internal/payments"
	"bettabuckz/internal/payments/card"
	"bettabuckz/internal/services"
)

type LedgerService interface {
	Transfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, error)
	Purchase(ctx context.Context, req services.PurchaseRequest) (services.ApplyResult, error)
	RefundPurchase(ctx context.Context, userID, entryID, reason string) (services.ApplyResult, error)
	EnterTournament(ctx context.Context, userID, tournamentID string) (services.ApplyResult, error)
	RefundTournamentEntry(ctx context.Context, userID, tournamentID string) (services.ApplyResult, error)
	Balance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error)
}

type PaymentService interface {
	CreateCardIntent(ctx context.Context, req services.CardIntentRequest) (card.Intent, error)
	HandleCardWebhook(ctx context.Context, payload []byte, signature string) error
	CreateCashAppPayment(ctx context.Context, req services.CashAppPaymentRequest) (payments.Result, error)
	HandleCashAppWebhook(ctx context.Context, body []byte, signature string) error
	StartBitcoinPurchase(ctx context.Context, req services.BitcoinPurchaseRequest) (payments.Result, error)
	ProcessExternalBTCTransfer(ctx context.Context, req services.BTCTransferRequest) (payments.Result, error)
	GetPayment(ctx context.Context, userID, paymentID string) (models.Payment, error)
}

type Reconciler interface {
	Report(ctx context.Context) ([]models.BalanceDrift, error)
	Run(ctx context.Context) (services.ReconcileReport, error)
	ListAlerts(ctx context.Context, limit, offset int) ([]models.ReconciliationAlert, error)
	ResolveAlert(ctx context.Context, req services.ResolveAlertRequest) (models.ReconciliationAlert, error)
}

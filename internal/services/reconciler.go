package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bettabuckz/internal/db"
	"bettabuckz/internal/logging"
	"bettabuckz/internal/metrics"
	"bettabuckz/internal/models"
	"bettabuckz/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type DriftStore interface {
	ListDrift(ctx context.Context) ([]models.BalanceDrift, error)
	GetForUpdate(ctx context.Context, tx store.Getter, userID string) (models.Account, error)
	SetBalance(ctx context.Context, tx store.Execer, userID string, balance int64) error
}

type LedgerSummer interface {
	SumByUser(ctx context.Context, q store.Getter, userID string) (int64, error)
}

type AlertBook interface {
	Create(ctx context.Context, alert models.ReconciliationAlert) error
	GetByID(ctx context.Context, alertID string) (models.ReconciliationAlert, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.ReconciliationAlert, error)
	Resolve(ctx context.Context, tx store.Execer, alertID, resolvedBy string) (bool, error)
}

type PaymentSweeper interface {
	ListStale(ctx context.Context, rail models.Rail, olderThan time.Time) ([]models.Payment, error)
	ExpireBitcoinQuotes(ctx context.Context, now time.Time) (int64, error)
}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Drift          []models.BalanceDrift `json:"drift"`
	Healed         int                   `json:"healed"`
	ExpiredQuotes  int64                 `json:"expiredQuotes"`
	StalePayments  int                   `json:"stalePayments"`
	StartedAt      time.Time             `json:"startedAt"`
	CompletedAfter string                `json:"duration"`
}

// Reconciler treats the ledger log as the source of truth and brings stored
// balances back in line with it.
type Reconciler struct {
	ledger   *LedgerService
	txRunner db.TxRunner
	accounts DriftStore
	sums     LedgerSummer
	alerts   AlertBook
	payments PaymentSweeper
	metrics  *metrics.Metrics
	logger   logging.Logger
	now      func() time.Time

	staleAfter time.Duration
}

func NewReconciler(ledger *LedgerService, txRunner db.TxRunner, accounts DriftStore, sums LedgerSummer, alerts AlertBook, payments PaymentSweeper, m *metrics.Metrics, logger logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reconciler{
		ledger:     ledger,
		txRunner:   txRunner,
		accounts:   accounts,
		sums:       sums,
		alerts:     alerts,
		payments:   payments,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
		staleAfter: time.Hour,
	}
}

// Report lists drifted accounts without touching them.
func (r *Reconciler) Report(ctx context.Context) ([]models.BalanceDrift, error) {
	return r.accounts.ListDrift(ctx)
}

// Run heals every drifted balance, expires stale bitcoin quotes and reports
// card and Cash App payments stuck in pending.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	started := r.now()
	report := ReconcileReport{StartedAt: started.UTC()}

	drift, err := r.accounts.ListDrift(ctx)
	if err != nil {
		return report, fmt.Errorf("list drift: %w", err)
	}
	report.Drift = drift
	for _, d := range drift {
		log := r.logger.WithFields(logging.Fields{
			"user_id":        d.UserID,
			"stored_balance": d.StoredBalance,
			"ledger_balance": d.LedgerBalance,
			"difference":     d.Difference,
		})
		healed, err := r.heal(ctx, d.UserID)
		if err != nil {
			log.WithError(err).Error("balance heal failed")
			continue
		}
		if !healed {
			continue
		}
		report.Healed++
		log.Warn("balance drift healed from ledger")
		r.raise(ctx, models.ReconciliationAlert{
			Kind:      "balance_drift",
			UserID:    d.UserID,
			Amount:    d.Difference,
			RootCause: fmt.Sprintf("stored balance %d, ledger sum %d", d.StoredBalance, d.LedgerBalance),
		})
	}
	r.metrics.BalanceDrift(len(drift))

	expired, err := r.payments.ExpireBitcoinQuotes(ctx, started)
	if err != nil {
		r.logger.WithError(err).Error("expire bitcoin quotes")
	} else {
		report.ExpiredQuotes = expired
	}

	for _, rail := range []models.Rail{models.RailCard, models.RailCashApp} {
		stale, err := r.payments.ListStale(ctx, rail, started.Add(-r.staleAfter))
		if err != nil {
			r.logger.WithError(err).WithField("rail", rail).Error("list stale payments")
			continue
		}
		for _, p := range stale {
			r.logger.WithFields(logging.Fields{
				"payment_id": p.ID,
				"user_id":    p.UserID,
				"rail":       p.Rail,
				"created_at": p.CreatedAt,
			}).Warn("payment still pending")
		}
		report.StalePayments += len(stale)
	}

	report.CompletedAfter = r.now().Sub(started).String()
	r.logger.WithFields(logging.Fields{
		"drift":          len(drift),
		"healed":         report.Healed,
		"expired_quotes": report.ExpiredQuotes,
		"stale_payments": report.StalePayments,
	}).Info("reconciliation pass finished")
	return report, nil
}

// heal sets one stored balance to its ledger sum under the user's lock.
func (r *Reconciler) heal(ctx context.Context, userID string) (bool, error) {
	unlock := r.ledger.locks.Lock(userID)
	defer unlock()
	healed := false
	err := r.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := r.accounts.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		sum, err := r.sums.SumByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if sum == account.Balance {
			return nil
		}
		if sum < 0 {
			return fmt.Errorf("ledger sum for %s is negative (%d)", userID, sum)
		}
		healed = true
		return r.accounts.SetBalance(ctx, tx, userID, sum)
	})
	return healed, err
}

func (r *Reconciler) raise(ctx context.Context, alert models.ReconciliationAlert) {
	alert.ID = uuid.NewString()
	r.metrics.ReconciliationRequired()
	if err := r.alerts.Create(ctx, alert); err != nil {
		r.logger.WithError(err).WithField("alert_id", alert.ID).Error("persist reconciliation alert")
	}
}

func (r *Reconciler) ListAlerts(ctx context.Context, limit, offset int) ([]models.ReconciliationAlert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return r.alerts.ListOpen(ctx, limit, offset)
}

type ResolveAlertRequest struct {
	AlertID    string
	OperatorID string
	Adjustment int64
	Note       string
}

// ResolveAlert closes an alert, optionally posting a signed
// reconciliation_adjustment on the alert's user first. The adjustment is
// keyed by alert so repeating the call cannot apply it twice.
func (r *Reconciler) ResolveAlert(ctx context.Context, req ResolveAlertRequest) (models.ReconciliationAlert, error) {
	alert, err := r.alerts.GetByID(ctx, req.AlertID)
	if errors.Is(err, store.ErrNotFound) {
		return models.ReconciliationAlert{}, ErrResourceNotFound
	}
	if err != nil {
		return models.ReconciliationAlert{}, err
	}
	if alert.ResolvedAt != nil {
		return models.ReconciliationAlert{}, ErrDuplicateRequest
	}
	if req.Adjustment != 0 {
		key := "alert:" + alert.ID
		description := req.Note
		if description == "" {
			description = "Reconciliation adjustment for " + alert.Kind
		}
		_, err := r.ledger.ApplyTransaction(ctx, ApplyRequest{
			UserID:         alert.UserID,
			Kind:           models.KindReconciliationAdjustment,
			Amount:         req.Adjustment,
			Reference:      &alert.ID,
			Description:    description,
			IdempotencyKey: &key,
		})
		if err != nil && !errors.Is(err, ErrDuplicateRequest) {
			return models.ReconciliationAlert{}, err
		}
	}
	var resolved bool
	err = r.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		resolved, err = r.alerts.Resolve(ctx, tx, alert.ID, req.OperatorID)
		return err
	})
	if err != nil {
		return models.ReconciliationAlert{}, err
	}
	if !resolved {
		return models.ReconciliationAlert{}, ErrDuplicateRequest
	}
	now := r.now().UTC()
	alert.ResolvedAt = &now
	alert.ResolvedBy = &req.OperatorID
	r.logger.WithFields(logging.Fields{
		"alert_id":    alert.ID,
		"operator_id": req.OperatorID,
		"adjustment":  req.Adjustment,
	}).Info("reconciliation alert resolved")
	return alert, nil
}

// Start runs a pass every interval until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
				r.logger.WithError(err).Error("reconciliation pass failed")
			}
		}
	}
}

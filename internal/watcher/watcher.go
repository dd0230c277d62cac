// Package watcher follows inbound bitcoin deposits from first sighting to
// ledger credit. Polling and the push feed both go through Observe.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bettabuckz/internal/logging"
	"bettabuckz/internal/metrics"
	"bettabuckz/internal/models"
	"bettabuckz/internal/money"
	"bettabuckz/internal/payments/bitcoin"
	"bettabuckz/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventNewTransaction = "newTransaction"
	EventConfirmed      = "confirmed"
)

type Event struct {
	Type          string `json:"type"`
	TxHash        string `json:"txHash"`
	Address       string `json:"address"`
	AmountSats    int64  `json:"amountSats"`
	Confirmations int    `json:"confirmations"`
	PaymentID     string `json:"paymentId,omitempty"`
}

// Observation is one sighting of a transaction paying a watched address.
type Observation struct {
	TxHash        string
	Address       string
	AmountSats    int64
	Confirmations int
}

func FromChainTx(tx bitcoin.ChainTx) Observation {
	return Observation{TxHash: tx.Hash, Address: tx.Address, AmountSats: tx.AmountSats, Confirmations: tx.Confirmations}
}

type ChainClient interface {
	AddressTransactions(ctx context.Context, address string) ([]bitcoin.ChainTx, error)
	Confirmations(ctx context.Context, txHash string) (int, error)
}

type WatchStore interface {
	InsertIfNew(ctx context.Context, tx models.WatchedTransaction) (bool, error)
	Get(ctx context.Context, txHash string) (models.WatchedTransaction, error)
	ListByStatus(ctx context.Context, statuses ...models.WatchStatus) ([]models.WatchedTransaction, error)
	UpdateConfirmations(ctx context.Context, txHash string, confirmations int) error
	MarkConfirmed(ctx context.Context, txHash, paymentID string, confirmations int) (bool, error)
	BindPayment(ctx context.Context, txHash, paymentID string) (bool, error)
	MarkCredited(ctx context.Context, txHash string) (bool, error)
	MarkUnmatched(ctx context.Context, txHash string) (bool, error)
	MarkFlagged(ctx context.Context, txHash string) (bool, error)
}

type PaymentLookup interface {
	ListPendingAddresses(ctx context.Context) ([]string, error)
	ListPendingByAddress(ctx context.Context, address string) ([]models.Payment, error)
	LatestByAddress(ctx context.Context, address string) (models.Payment, error)
	GetByID(ctx context.Context, paymentID string) (models.Payment, error)
}

type AlertRecorder interface {
	Create(ctx context.Context, alert models.ReconciliationAlert) error
}

const AlertUnmatchedDeposit = "unmatched_deposit"

type Settler interface {
	SettleBitcoinDeposit(ctx context.Context, payment models.Payment, txHash string, amountSats int64, confirmations int) (bool, error)
}

// SettleFunc adapts a function to Settler.
type SettleFunc func(ctx context.Context, payment models.Payment, txHash string, amountSats int64, confirmations int) (bool, error)

func (f SettleFunc) SettleBitcoinDeposit(ctx context.Context, payment models.Payment, txHash string, amountSats int64, confirmations int) (bool, error) {
	return f(ctx, payment, txHash, amountSats, confirmations)
}

type Subscriber interface {
	Subscribe(address string)
}

type Config struct {
	Chain         ChainClient
	Store         WatchStore
	Payments      PaymentLookup
	Settler       Settler
	Feed          Subscriber
	Alerts        AlertRecorder
	Confirmations int
	PollInterval  time.Duration
	// StaticAddresses are always watched, e.g. the shared deposit address.
	StaticAddresses []string
	Metrics         *metrics.Metrics
	Logger          logging.Logger
}

type Watcher struct {
	chain     ChainClient
	store     WatchStore
	payments  PaymentLookup
	settler   Settler
	feed      Subscriber
	alerts    AlertRecorder
	threshold int
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    logging.Logger

	static    []string
	mu        sync.Mutex
	addresses map[string]struct{}

	// observeMu serializes Observe so the poller and push feed never race
	// on the same transaction row.
	observeMu sync.Mutex
	events    chan Event
}

func New(cfg Config) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	threshold := cfg.Confirmations
	if threshold <= 0 {
		threshold = 2
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	w := &Watcher{
		chain:     cfg.Chain,
		store:     cfg.Store,
		payments:  cfg.Payments,
		settler:   cfg.Settler,
		feed:      cfg.Feed,
		alerts:    cfg.Alerts,
		threshold: threshold,
		interval:  interval,
		metrics:   cfg.Metrics,
		logger:    logger,
		addresses: make(map[string]struct{}),
		events:    make(chan Event, 64),
	}
	for _, address := range cfg.StaticAddresses {
		if address != "" {
			w.static = append(w.static, address)
			w.addresses[address] = struct{}{}
		}
	}
	return w
}

// Events delivers newTransaction and confirmed notifications. Events are
// dropped when nobody drains the channel.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Watch adds an address to the poll set and the push feed until the next
// rebuild drops it.
func (w *Watcher) Watch(address string) {
	if address == "" {
		return
	}
	w.mu.Lock()
	w.addresses[address] = struct{}{}
	w.mu.Unlock()
	if w.feed != nil {
		w.feed.Subscribe(address)
	}
}

// Addresses rebuilds the watch set from the static addresses and every
// address with a pending inbound payment.
func (w *Watcher) Addresses(ctx context.Context) ([]string, error) {
	pending, err := w.payments.ListPendingAddresses(ctx)
	if err != nil {
		return nil, err
	}
	addresses := make(map[string]struct{}, len(w.static)+len(pending))
	for _, address := range w.static {
		addresses[address] = struct{}{}
	}
	for _, address := range pending {
		addresses[address] = struct{}{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addresses = addresses
	out := make([]string, 0, len(w.addresses))
	for address := range w.addresses {
		out = append(out, address)
	}
	return out, nil
}

// Run reloads persisted state, then polls every interval until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Reload(ctx); err != nil {
		w.logger.WithError(err).Error("watcher reload failed")
	}
	w.Poll(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Reload finishes transactions that were confirmed but not yet credited when
// the process last stopped.
func (w *Watcher) Reload(ctx context.Context) error {
	if _, err := w.Addresses(ctx); err != nil {
		return err
	}
	rows, err := w.store.ListByStatus(ctx, models.WatchConfirmed)
	if err != nil {
		return err
	}
	for _, row := range rows {
		obs := Observation{TxHash: row.TxHash, Address: row.Address, AmountSats: row.AmountSats, Confirmations: row.Confirmations}
		if err := w.Observe(ctx, obs); err != nil {
			w.logger.WithError(err).WithField("tx_hash", row.TxHash).Error("resume confirmed deposit")
		}
	}
	w.logger.WithFields(logging.Fields{"resumed": len(rows)}).Info("watcher state reloaded")
	return nil
}

// Poll runs one pass over every watched address, then re-checks pending
// transactions the address scan did not report.
func (w *Watcher) Poll(ctx context.Context) {
	addresses, err := w.Addresses(ctx)
	if err != nil {
		w.logger.WithError(err).Error("list watched addresses")
		return
	}
	seen := make(map[string]struct{})
	for _, address := range addresses {
		if ctx.Err() != nil {
			return
		}
		txs, err := w.chain.AddressTransactions(ctx, address)
		if err != nil {
			w.logger.WithError(err).WithField("address", address).Warn("address lookup failed")
			continue
		}
		for _, tx := range txs {
			seen[tx.Hash] = struct{}{}
			if err := w.Observe(ctx, FromChainTx(tx)); err != nil {
				w.logger.WithError(err).WithField("tx_hash", tx.Hash).Error("observe transaction")
			}
		}
	}

	pending, err := w.store.ListByStatus(ctx, models.WatchPending)
	if err != nil {
		w.logger.WithError(err).Error("list pending transactions")
		return
	}
	for _, row := range pending {
		if _, ok := seen[row.TxHash]; ok {
			continue
		}
		confirmations, err := w.chain.Confirmations(ctx, row.TxHash)
		if err != nil {
			w.logger.WithError(err).WithField("tx_hash", row.TxHash).Warn("confirmation lookup failed")
			continue
		}
		obs := Observation{TxHash: row.TxHash, Address: row.Address, AmountSats: row.AmountSats, Confirmations: confirmations}
		if err := w.Observe(ctx, obs); err != nil {
			w.logger.WithError(err).WithField("tx_hash", row.TxHash).Error("observe transaction")
		}
	}
}

// Observe records a sighting and, once the transaction has enough
// confirmations, matches it to a payment and credits it. Observing the same
// confirmation again is a no-op.
func (w *Watcher) Observe(ctx context.Context, obs Observation) error {
	if obs.TxHash == "" || obs.AmountSats <= 0 {
		return nil
	}
	w.observeMu.Lock()
	defer w.observeMu.Unlock()

	inserted, err := w.store.InsertIfNew(ctx, models.WatchedTransaction{
		TxHash:        obs.TxHash,
		Address:       obs.Address,
		AmountSats:    obs.AmountSats,
		Confirmations: obs.Confirmations,
		Status:        models.WatchPending,
	})
	if err != nil {
		return err
	}
	if inserted {
		w.metrics.WatcherEvent("new")
		w.emit(Event{Type: EventNewTransaction, TxHash: obs.TxHash, Address: obs.Address, AmountSats: obs.AmountSats, Confirmations: obs.Confirmations})
	}

	row, err := w.store.Get(ctx, obs.TxHash)
	if err != nil {
		return err
	}
	if obs.Confirmations > row.Confirmations {
		row.Confirmations = obs.Confirmations
	}
	switch row.Status {
	case models.WatchCredited, models.WatchUnmatched, models.WatchFlagged:
		return nil
	case models.WatchPending:
		if row.PaymentID == nil {
			if err := w.bind(ctx, &row); err != nil {
				return err
			}
		}
		if row.Confirmations < w.threshold {
			return w.store.UpdateConfirmations(ctx, row.TxHash, row.Confirmations)
		}
		return w.confirm(ctx, row)
	case models.WatchConfirmed:
		if row.PaymentID == nil {
			return nil
		}
		payment, err := w.payments.GetByID(ctx, *row.PaymentID)
		if errors.Is(err, store.ErrNotFound) {
			w.logger.WithFields(logging.Fields{"tx_hash": row.TxHash, "payment_id": *row.PaymentID}).Error("confirmed deposit references a missing payment")
			return nil
		}
		if err != nil {
			return err
		}
		return w.credit(ctx, row, payment)
	}
	return nil
}

// bind claims the payment a first-seen transaction most likely pays, so the
// quote cannot expire while the transaction confirms.
func (w *Watcher) bind(ctx context.Context, row *models.WatchedTransaction) error {
	candidates, err := w.payments.ListPendingByAddress(ctx, row.Address)
	if err != nil {
		return err
	}
	payment, ok := matchPayment(candidates, row.AmountSats)
	if !ok {
		return nil
	}
	bound, err := w.store.BindPayment(ctx, row.TxHash, payment.ID)
	if err != nil {
		return err
	}
	if bound {
		row.PaymentID = &payment.ID
		return nil
	}
	current, err := w.store.Get(ctx, row.TxHash)
	if err != nil {
		return err
	}
	row.PaymentID = current.PaymentID
	return nil
}

// target picks the payment a confirmed transaction settles: its bound payment
// while that is still pending, otherwise the best pending match.
func (w *Watcher) target(ctx context.Context, row models.WatchedTransaction) (models.Payment, bool, error) {
	if row.PaymentID != nil {
		payment, err := w.payments.GetByID(ctx, *row.PaymentID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return models.Payment{}, false, err
		}
		if err == nil && payment.Status == models.PaymentPending {
			return payment, true, nil
		}
	}
	candidates, err := w.payments.ListPendingByAddress(ctx, row.Address)
	if err != nil {
		return models.Payment{}, false, err
	}
	payment, ok := matchPayment(candidates, row.AmountSats)
	return payment, ok, nil
}

func (w *Watcher) confirm(ctx context.Context, row models.WatchedTransaction) error {
	payment, ok, err := w.target(ctx, row)
	if err != nil {
		return err
	}
	if !ok {
		return w.unmatched(ctx, row)
	}
	marked, err := w.store.MarkConfirmed(ctx, row.TxHash, payment.ID, row.Confirmations)
	if err != nil {
		return err
	}
	if !marked {
		current, err := w.store.Get(ctx, row.TxHash)
		if err != nil {
			return err
		}
		if current.Status != models.WatchConfirmed || current.PaymentID == nil || *current.PaymentID != payment.ID {
			return nil
		}
	}
	w.metrics.WatcherEvent("confirmed")
	return w.credit(ctx, row, payment)
}

// unmatched parks a confirmed deposit no pending payment accounts for and
// raises an alert so an operator can credit it by hand.
func (w *Watcher) unmatched(ctx context.Context, row models.WatchedTransaction) error {
	marked, err := w.store.MarkUnmatched(ctx, row.TxHash)
	if err != nil || !marked {
		return err
	}
	w.metrics.WatcherEvent("unmatched")
	alert := models.ReconciliationAlert{
		ID:        uuid.NewString(),
		Kind:      AlertUnmatchedDeposit,
		Reference: &row.TxHash,
		RootCause: fmt.Sprintf("confirmed deposit of %d sats to %s matches no pending payment", row.AmountSats, row.Address),
	}
	latest, err := w.payments.LatestByAddress(ctx, row.Address)
	switch {
	case err == nil:
		alert.UserID = latest.UserID
		alert.Amount = latest.CreditAmount
		alert.RootCause += fmt.Sprintf(" (last quote %s is %s)", latest.ID, latest.Status)
	case !errors.Is(err, store.ErrNotFound):
		w.logger.WithError(err).WithField("address", row.Address).Warn("look up last quote for address")
	}
	log := w.logger.WithFields(logging.Fields{
		"tx_hash":     row.TxHash,
		"address":     row.Address,
		"amount_sats": row.AmountSats,
		"alert_id":    alert.ID,
		"user_id":     alert.UserID,
	})
	log.Error("confirmed deposit matches no pending payment")
	if w.alerts == nil {
		return nil
	}
	w.metrics.ReconciliationRequired()
	if err := w.alerts.Create(ctx, alert); err != nil {
		log.WithError(err).Error("persist unmatched deposit alert")
	}
	return nil
}

func (w *Watcher) credit(ctx context.Context, row models.WatchedTransaction, payment models.Payment) error {
	credited, err := w.settler.SettleBitcoinDeposit(ctx, payment, row.TxHash, row.AmountSats, row.Confirmations)
	if err != nil {
		return err
	}
	if !credited {
		flagged, err := w.store.MarkFlagged(ctx, row.TxHash)
		if err != nil {
			return err
		}
		if flagged {
			w.metrics.WatcherEvent("flagged")
			w.logger.WithFields(logging.Fields{"tx_hash": row.TxHash, "payment_id": payment.ID}).Warn("bitcoin deposit held for verification")
		}
		return nil
	}
	marked, err := w.store.MarkCredited(ctx, row.TxHash)
	if err != nil {
		return err
	}
	if !marked {
		return nil
	}
	w.metrics.WatcherEvent("credited")
	w.logger.WithFields(logging.Fields{
		"tx_hash":    row.TxHash,
		"payment_id": payment.ID,
		"user_id":    payment.UserID,
		"amount":     row.AmountSats,
	}).Info("bitcoin deposit credited")
	w.emit(Event{
		Type:          EventConfirmed,
		TxHash:        row.TxHash,
		Address:       row.Address,
		AmountSats:    row.AmountSats,
		Confirmations: row.Confirmations,
		PaymentID:     payment.ID,
	})
	return nil
}

func (w *Watcher) emit(event Event) {
	select {
	case w.events <- event:
	default:
		w.logger.WithField("tx_hash", event.TxHash).Debug("watcher event dropped")
	}
}

var matchTolerance = decimal.RequireFromString("0.01")

// matchPayment prefers the oldest payment whose quote the deposit covers
// within 1%; otherwise the oldest pending payment on the address.
func matchPayment(candidates []models.Payment, amountSats int64) (models.Payment, bool) {
	if len(candidates) == 0 {
		return models.Payment{}, false
	}
	received := money.SatsToBTC(amountSats)
	for _, p := range candidates {
		if p.AmountCrypto == nil {
			continue
		}
		expected, err := decimal.NewFromString(*p.AmountCrypto)
		if err != nil || !expected.IsPositive() {
			continue
		}
		if received.Sub(expected).Abs().LessThanOrEqual(expected.Mul(matchTolerance)) {
			return p, true
		}
	}
	return candidates[0], true
}

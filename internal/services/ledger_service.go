package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"bettabuckz/internal/db"
	"bettabuckz/internal/logging"
	"bettabuckz/internal/metrics"
	"bettabuckz/internal/models"
	"bettabuckz/internal/money"
	"bettabuckz/internal/store"
	"bettabuckz/internal/websocket"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type AccountStore interface {
	Ensure(ctx context.Context, tx store.Execer, userID string) error
	GetForUpdate(ctx context.Context, tx store.Getter, userID string) (models.Account, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	AdjustBalance(ctx context.Context, tx store.Execer, userID string, delta int64) (int64, error)
}

type LedgerStore interface {
	Append(ctx context.Context, tx store.Execer, entry models.LedgerEntry) error
	GetByID(ctx context.Context, entryID string) (models.LedgerEntry, error)
	GetByIdempotencyKey(ctx context.Context, userID, key string) (models.LedgerEntry, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error)
}

type UserStore interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

type TournamentStore interface {
	GetByID(ctx context.Context, tournamentID string) (models.Tournament, error)
}

type AlertStore interface {
	Create(ctx context.Context, alert models.ReconciliationAlert) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

// LedgerService is the only writer of balances and ledger entries.
type LedgerService struct {
	txRunner    db.TxRunner
	accounts    AccountStore
	ledger      LedgerStore
	users       UserStore
	tournaments TournamentStore
	alerts      AlertStore
	hub         BalanceHub
	metrics     *metrics.Metrics
	logger      logging.Logger
	locks       *keyLocker

	compensationRetry retrypolicy.RetryPolicy[ApplyResult]
}

func NewLedgerService(txRunner db.TxRunner, accounts AccountStore, ledger LedgerStore, users UserStore, tournaments TournamentStore, alerts AlertStore, hub BalanceHub, m *metrics.Metrics, logger logging.Logger) *LedgerService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LedgerService{
		txRunner:          txRunner,
		accounts:          accounts,
		ledger:            ledger,
		users:             users,
		tournaments:       tournaments,
		alerts:            alerts,
		hub:               hub,
		metrics:           m,
		logger:            logger,
		locks:             newKeyLocker(),
		compensationRetry: newCompensationRetry(50 * time.Millisecond),
	}
}

func newCompensationRetry(delay time.Duration) retrypolicy.RetryPolicy[ApplyResult] {
	return retrypolicy.NewBuilder[ApplyResult]().
		HandleIf(func(_ ApplyResult, err error) bool {
			return err != nil && !errors.Is(err, ErrDuplicateRequest) && !errors.Is(err, ErrInvalidInput)
		}).
		WithMaxAttempts(3).
		WithDelay(delay).
		ReturnLastFailure().
		Build()
}

type ApplyRequest struct {
	UserID             string
	Kind               models.EntryKind
	Amount             int64
	Reference          *string
	Description        string
	CounterpartyUserID *string
	IdempotencyKey     *string
}

type ApplyResult struct {
	EntryID    string `json:"entryId"`
	NewBalance int64  `json:"balance"`
}

// ApplyTransaction moves one user's balance by a signed amount and appends
// the matching log entry in the same transaction.
func (s *LedgerService) ApplyTransaction(ctx context.Context, req ApplyRequest) (ApplyResult, error) {
	unlock := s.locks.Lock(req.UserID)
	defer unlock()
	return s.apply(ctx, req)
}

// apply assumes the caller holds the user's lock.
func (s *LedgerService) apply(ctx context.Context, req ApplyRequest) (ApplyResult, error) {
	if req.UserID == "" || req.Amount == 0 || !req.Kind.Valid() {
		return ApplyResult{}, ErrInvalidInput
	}
	if req.IdempotencyKey != nil && *req.IdempotencyKey == "" {
		req.IdempotencyKey = nil
	}
	entry := models.LedgerEntry{
		ID:                 uuid.NewString(),
		UserID:             req.UserID,
		Kind:               req.Kind,
		Amount:             req.Amount,
		CounterpartyUserID: req.CounterpartyUserID,
		Reference:          req.Reference,
		Description:        req.Description,
		IdempotencyKey:     req.IdempotencyKey,
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.accounts.Ensure(ctx, tx, req.UserID); err != nil {
			return err
		}
		account, err := s.accounts.GetForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if req.Amount > 0 && account.Balance > math.MaxInt64-req.Amount {
			return ErrInvalidInput
		}
		next := account.Balance + req.Amount
		if next < 0 {
			return ErrInsufficientBalance
		}
		entry.BalanceAfter = next
		if err := s.ledger.Append(ctx, tx, entry); err != nil {
			return err
		}
		rows, err := s.accounts.AdjustBalance(ctx, tx, req.UserID, req.Amount)
		if err != nil {
			return err
		}
		if rows != 1 {
			return ErrInsufficientBalance
		}
		return nil
	})
	if err != nil {
		err = translateStoreError(err)
		s.metrics.LedgerOperation(string(req.Kind), resultLabel(err))
		return ApplyResult{}, err
	}
	s.metrics.LedgerOperation(string(req.Kind), "ok")
	if s.hub != nil {
		s.hub.BroadcastBalance(req.UserID, websocket.BalanceUpdate{
			UserID:  req.UserID,
			Balance: entry.BalanceAfter,
			Display: money.Format(entry.BalanceAfter),
			EntryID: entry.ID,
		})
	}
	return ApplyResult{EntryID: entry.ID, NewBalance: entry.BalanceAfter}, nil
}

func translateStoreError(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInvalidInput):
		return err
	case errors.Is(err, store.ErrNotFound), db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", ErrResourceNotFound, err)
	case db.IsUniqueViolation(err):
		return ErrDuplicateRequest
	case db.IsCheckViolation(err):
		return ErrInsufficientBalance
	}
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrResourceNotFound):
		return "rejected"
	}
	return "error"
}

type TransferRequest struct {
	FromUserID     string
	ToUserID       string
	Amount         int64
	Description    string
	IdempotencyKey string
}

type TransferResult struct {
	DebitEntryID  string `json:"debitEntryId"`
	CreditEntryID string `json:"creditEntryId"`
	FromBalance   int64  `json:"balance"`
	ToBalance     int64  `json:"-"`
}

// Transfer debits the sender and credits the recipient. The two writes are
// separate transactions; a failed credit is reversed with a
// transfer_rollback entry on the sender.
func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if req.Amount <= 0 || req.FromUserID == "" || req.ToUserID == "" || req.FromUserID == req.ToUserID {
		return TransferResult{}, ErrInvalidInput
	}
	exists, err := s.users.Exists(ctx, req.ToUserID)
	if err != nil {
		return TransferResult{}, err
	}
	if !exists {
		return TransferResult{}, ErrRecipientNotFound
	}

	unlock := s.locks.Lock(req.FromUserID, req.ToUserID)
	defer unlock()

	debit, err := s.apply(ctx, ApplyRequest{
		UserID:             req.FromUserID,
		Kind:               models.KindTransferOut,
		Amount:             -req.Amount,
		Description:        req.Description,
		CounterpartyUserID: &req.ToUserID,
		IdempotencyKey:     scopedKey(req.IdempotencyKey, "out"),
	})
	if err != nil {
		return TransferResult{}, err
	}
	credit, err := s.apply(ctx, ApplyRequest{
		UserID:             req.ToUserID,
		Kind:               models.KindTransferIn,
		Amount:             req.Amount,
		Reference:          &debit.EntryID,
		Description:        req.Description,
		CounterpartyUserID: &req.FromUserID,
		IdempotencyKey:     scopedKey(req.IdempotencyKey, "in"),
	})
	if err != nil {
		return TransferResult{}, s.compensate(ctx, Compensation{
			Operation:          "transfer",
			UserID:             req.FromUserID,
			Kind:               models.KindTransferRollback,
			Amount:             req.Amount,
			DebitEntryID:       debit.EntryID,
			CounterpartyUserID: &req.ToUserID,
			RootCause:          err,
		})
	}
	return TransferResult{
		DebitEntryID:  debit.EntryID,
		CreditEntryID: credit.EntryID,
		FromBalance:   debit.NewBalance,
		ToBalance:     credit.NewBalance,
	}, nil
}

func scopedKey(key, scope string) *string {
	if key == "" {
		return nil
	}
	scoped := key + ":" + scope
	return &scoped
}

// Compensation describes the credit that reverses an earlier debit.
type Compensation struct {
	Operation          string
	UserID             string
	Kind               models.EntryKind
	Amount             int64
	DebitEntryID       string
	Reference          *string
	CounterpartyUserID *string
	RootCause          error
}

// Compensate reverses a debit after a later step failed. It returns a
// *PartialFailureError when the reversal landed and a *ReconciliationError
// when it did not.
func (s *LedgerService) Compensate(ctx context.Context, c Compensation) error {
	unlock := s.locks.Lock(c.UserID)
	defer unlock()
	return s.compensate(ctx, c)
}

func (s *LedgerService) compensate(ctx context.Context, c Compensation) error {
	// The reversal must run even if the client went away.
	ctx = context.WithoutCancel(ctx)
	reference := c.Reference
	if reference == nil {
		reference = &c.DebitEntryID
	}
	key := "compensate:" + c.DebitEntryID
	req := ApplyRequest{
		UserID:             c.UserID,
		Kind:               c.Kind,
		Amount:             c.Amount,
		Reference:          reference,
		Description:        fmt.Sprintf("%s reversal of %s", c.Operation, c.DebitEntryID),
		CounterpartyUserID: c.CounterpartyUserID,
		IdempotencyKey:     &key,
	}
	res, err := failsafe.With[ApplyResult](s.compensationRetry).WithContext(ctx).Get(func() (ApplyResult, error) {
		return s.apply(ctx, req)
	})
	if errors.Is(err, ErrDuplicateRequest) {
		if existing, lookupErr := s.ledger.GetByIdempotencyKey(ctx, c.UserID, key); lookupErr == nil {
			res, err = ApplyResult{EntryID: existing.ID, NewBalance: existing.BalanceAfter}, nil
		}
	}
	if err == nil {
		s.metrics.Compensation(c.Operation, "compensated")
		s.logger.WithFields(logging.Fields{
			"operation":          c.Operation,
			"user_id":            c.UserID,
			"amount":             c.Amount,
			"debit_entry_id":     c.DebitEntryID,
			"compensation_entry": res.EntryID,
			"root_cause":         c.RootCause.Error(),
		}).Warn("compound operation rolled back")
		return &PartialFailureError{Operation: c.Operation, RootCause: c.RootCause, CompensationEntryID: res.EntryID}
	}

	s.metrics.Compensation(c.Operation, "failed")
	s.metrics.ReconciliationRequired()
	compErr := err.Error()
	alert := models.ReconciliationAlert{
		ID:                 uuid.NewString(),
		Kind:               c.Operation,
		UserID:             c.UserID,
		CounterpartyUserID: c.CounterpartyUserID,
		Amount:             c.Amount,
		Reference:          &c.DebitEntryID,
		RootCause:          c.RootCause.Error(),
		CompensationError:  &compErr,
	}
	fields := logging.Fields{
		"alert":              "reconciliation_required",
		"alert_id":           alert.ID,
		"operation":          c.Operation,
		"user_id":            c.UserID,
		"amount":             c.Amount,
		"debit_entry_id":     c.DebitEntryID,
		"root_cause":         c.RootCause.Error(),
		"compensation_error": compErr,
	}
	if s.alerts != nil {
		if alertErr := s.alerts.Create(ctx, alert); alertErr != nil {
			fields["alert_persist_error"] = alertErr.Error()
		}
	}
	s.logger.WithFields(fields).Error("compensation failed; ledger needs reconciliation")
	return &ReconciliationError{
		Operation:         c.Operation,
		AlertID:           alert.ID,
		DebitEntryID:      c.DebitEntryID,
		RootCause:         c.RootCause,
		CompensationError: err,
	}
}

type PurchaseRequest struct {
	UserID         string
	Amount         int64
	Description    string
	Reference      string
	IdempotencyKey string
}

// Purchase spends BettaBuckZ in the in-game store.
func (s *LedgerService) Purchase(ctx context.Context, req PurchaseRequest) (ApplyResult, error) {
	if req.Amount <= 0 {
		return ApplyResult{}, ErrInvalidInput
	}
	var reference *string
	if req.Reference != "" {
		reference = &req.Reference
	}
	var key *string
	if req.IdempotencyKey != "" {
		key = &req.IdempotencyKey
	}
	return s.ApplyTransaction(ctx, ApplyRequest{
		UserID:         req.UserID,
		Kind:           models.KindStorePurchase,
		Amount:         -req.Amount,
		Reference:      reference,
		Description:    req.Description,
		IdempotencyKey: key,
	})
}

// RefundPurchase credits back a store purchase once.
func (s *LedgerService) RefundPurchase(ctx context.Context, userID, entryID, reason string) (ApplyResult, error) {
	original, err := s.ledger.GetByID(ctx, entryID)
	if errors.Is(err, store.ErrNotFound) {
		return ApplyResult{}, ErrResourceNotFound
	}
	if err != nil {
		return ApplyResult{}, err
	}
	if original.UserID != userID || original.Kind != models.KindStorePurchase || original.Amount >= 0 {
		return ApplyResult{}, ErrInvalidInput
	}
	key := "refund:" + original.ID
	return s.ApplyTransaction(ctx, ApplyRequest{
		UserID:         userID,
		Kind:           models.KindPurchaseRefund,
		Amount:         -original.Amount,
		Reference:      &original.ID,
		Description:    reason,
		IdempotencyKey: &key,
	})
}

func tournamentEntryKey(tournamentID string) string {
	return "tournament:" + tournamentID + ":entry"
}

// EnterTournament debits the entry fee. A user enters a tournament once.
func (s *LedgerService) EnterTournament(ctx context.Context, userID, tournamentID string) (ApplyResult, error) {
	tournament, err := s.tournaments.GetByID(ctx, tournamentID)
	if errors.Is(err, store.ErrNotFound) {
		return ApplyResult{}, ErrResourceNotFound
	}
	if err != nil {
		return ApplyResult{}, err
	}
	if tournament.Status != "open" || tournament.EntryFee <= 0 {
		return ApplyResult{}, ErrInvalidInput
	}
	key := tournamentEntryKey(tournament.ID)
	return s.ApplyTransaction(ctx, ApplyRequest{
		UserID:         userID,
		Kind:           models.KindTournamentEntry,
		Amount:         -tournament.EntryFee,
		Reference:      &tournament.ID,
		Description:    "Entry fee: " + tournament.Name,
		IdempotencyKey: &key,
	})
}

// RefundTournamentEntry returns the fee actually charged at entry, once.
func (s *LedgerService) RefundTournamentEntry(ctx context.Context, userID, tournamentID string) (ApplyResult, error) {
	entry, err := s.ledger.GetByIdempotencyKey(ctx, userID, tournamentEntryKey(tournamentID))
	if errors.Is(err, store.ErrNotFound) {
		return ApplyResult{}, ErrResourceNotFound
	}
	if err != nil {
		return ApplyResult{}, err
	}
	key := "tournament:" + tournamentID + ":refund"
	return s.ApplyTransaction(ctx, ApplyRequest{
		UserID:         userID,
		Kind:           models.KindTournamentRefund,
		Amount:         -entry.Amount,
		Reference:      &entry.ID,
		Description:    "Entry fee refund",
		IdempotencyKey: &key,
	})
}

// CreditPayment credits a settled external payment. key makes the credit
// happen at most once per settlement event.
func (s *LedgerService) CreditPayment(ctx context.Context, payment models.Payment, key string) (ApplyResult, error) {
	if payment.CreditAmount <= 0 {
		return ApplyResult{}, ErrInvalidInput
	}
	if key == "" {
		key = "payment:" + payment.ID
	}
	description := payment.Description
	if description == "" {
		description = fmt.Sprintf("%s purchase", payment.Rail)
	}
	return s.ApplyTransaction(ctx, ApplyRequest{
		UserID:         payment.UserID,
		Kind:           models.KindPurchase,
		Amount:         payment.CreditAmount,
		Reference:      &payment.ID,
		Description:    description,
		IdempotencyKey: &key,
	})
}

func (s *LedgerService) Balance(ctx context.Context, userID string) (int64, error) {
	return s.accounts.GetBalance(ctx, userID)
}

func (s *LedgerService) History(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.ListByUser(ctx, userID, limit, offset)
}

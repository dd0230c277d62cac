package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bettabuckz/internal/fees"
	"bettabuckz/internal/logging"
	"bettabuckz/internal/metrics"
	"bettabuckz/internal/models"
	"bettabuckz/internal/money"
	"bettabuckz/internal/payments"
	"bettabuckz/internal/payments/bitcoin"
	"bettabuckz/internal/payments/card"
	"bettabuckz/internal/payments/cashapp"
	"bettabuckz/internal/store"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStore interface {
	Create(ctx context.Context, p models.Payment) error
	GetByID(ctx context.Context, paymentID string) (models.Payment, error)
	GetByProviderReference(ctx context.Context, rail models.Rail, reference string) (models.Payment, error)
	SetProviderReference(ctx context.Context, paymentID, reference string) error
	Transition(ctx context.Context, paymentID string, to models.PaymentStatus) (bool, error)
	UpdateConfirmations(ctx context.Context, paymentID string, confirmations int) error
}

type Ledger interface {
	ApplyTransaction(ctx context.Context, req ApplyRequest) (ApplyResult, error)
	CreditPayment(ctx context.Context, payment models.Payment, key string) (ApplyResult, error)
	Compensate(ctx context.Context, c Compensation) error
}

type CardProvider interface {
	CreatePaymentIntent(ctx context.Context, req card.IntentRequest) (card.Intent, error)
	ParseWebhook(payload []byte, signature string) (card.WebhookEvent, error)
}

type CashAppProvider interface {
	CreateCharge(ctx context.Context, req cashapp.ChargeRequest) (cashapp.Charge, error)
	ParseWebhook(body []byte, signature string) (cashapp.WebhookEvent, error)
}

type PriceSource interface {
	BTCPriceUSD(ctx context.Context) (decimal.Decimal, error)
}

type DepositAddressSource interface {
	Next(ctx context.Context) (string, error)
}

type BitcoinSender interface {
	Send(ctx context.Context, reference, address string, amountBTC decimal.Decimal) (string, error)
}

type AddressWatcher interface {
	Watch(address string)
}

type PaymentServiceConfig struct {
	Payments PaymentStore
	Ledger   Ledger
	Catalog  payments.Catalog
	Card     CardProvider
	CashApp  CashAppProvider
	Prices   PriceSource
	Deposits DepositAddressSource
	Sender   BitcoinSender
	Watcher  AddressWatcher
	Network  *chaincfg.Params

	CashAppFeePercent     decimal.Decimal
	BTCTransferFeePercent decimal.Decimal
	QuoteTTL              time.Duration

	Metrics *metrics.Metrics
	Logger  logging.Logger
}

// PaymentService runs the lifecycle of external payments and hands settled
// money to the ledger.
type PaymentService struct {
	cfg    PaymentServiceConfig
	logger logging.Logger
	now    func() time.Time
}

func NewPaymentService(cfg PaymentServiceConfig) *PaymentService {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Network == nil {
		cfg.Network = &chaincfg.MainNetParams
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = 30 * time.Minute
	}
	return &PaymentService{cfg: cfg, logger: logger, now: time.Now}
}

func (s *PaymentService) newPayment(userID string, rail models.Rail, direction models.Direction) models.Payment {
	return models.Payment{
		ID:        uuid.NewString(),
		UserID:    userID,
		Rail:      rail,
		Direction: direction,
		Status:    models.PaymentPending,
		FeeAmount: "0",
	}
}

func (s *PaymentService) resolvePackage(p *models.Payment, packageID string, amountCents int64) error {
	price, credits, err := s.cfg.Catalog.Resolve(packageID, amountCents)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	p.AmountUSDCents = price
	p.CreditAmount = credits
	if packageID != "" {
		p.PackageID = &packageID
	}
	return nil
}

// fail marks a payment failed and logs the cause; the original error is what
// the caller reports.
func (s *PaymentService) fail(ctx context.Context, paymentID string, cause error) {
	if _, err := s.cfg.Payments.Transition(ctx, paymentID, models.PaymentFailed); err != nil {
		s.logger.WithError(err).WithField("payment_id", paymentID).Error("mark payment failed")
	}
	s.logger.WithFields(logging.Fields{"payment_id": paymentID, "cause": cause.Error()}).Warn("payment failed")
}

type CardIntentRequest struct {
	UserID         string
	PackageID      string
	AmountCents    int64
	Currency       string
	Methods        []string
	IdempotencyKey string
}

// CreateCardIntent opens a Stripe payment intent. The ledger is untouched
// until the succeeded webhook.
func (s *PaymentService) CreateCardIntent(ctx context.Context, req CardIntentRequest) (card.Intent, error) {
	payment := s.newPayment(req.UserID, models.RailCard, models.DirectionInbound)
	if err := s.resolvePackage(&payment, req.PackageID, req.AmountCents); err != nil {
		return card.Intent{}, err
	}
	if err := s.cfg.Payments.Create(ctx, payment); err != nil {
		return card.Intent{}, err
	}
	intent, err := s.cfg.Card.CreatePaymentIntent(ctx, card.IntentRequest{
		UserID:         req.UserID,
		PaymentID:      payment.ID,
		PackageID:      req.PackageID,
		AmountCents:    payment.AmountUSDCents,
		Currency:       req.Currency,
		Methods:        req.Methods,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.fail(ctx, payment.ID, err)
		return card.Intent{}, providerError(err)
	}
	if err := s.cfg.Payments.SetProviderReference(ctx, payment.ID, intent.ID); err != nil {
		return card.Intent{}, err
	}
	return intent, nil
}

// HandleCardWebhook applies a verified Stripe event. Errors other than a bad
// signature are returned so Stripe redelivers.
func (s *PaymentService) HandleCardWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.cfg.Card.ParseWebhook(payload, signature)
	if err != nil {
		s.cfg.Metrics.Webhook(string(models.RailCard), "invalid_signature")
		return err
	}
	switch event.Type {
	case card.EventSucceeded, card.EventFailed:
	default:
		s.cfg.Metrics.Webhook(string(models.RailCard), "ignored")
		return nil
	}
	payment, err := s.findPayment(ctx, models.RailCard, event.PaymentIntentID, event.PaymentID)
	if err != nil {
		s.cfg.Metrics.Webhook(string(models.RailCard), "error")
		return err
	}
	if event.Type == card.EventFailed {
		// A declined attempt leaves the intent open for another try, so the
		// payment stays pending until it succeeds or goes stale.
		s.logger.WithFields(logging.Fields{
			"payment_id":        payment.ID,
			"payment_intent_id": event.PaymentIntentID,
			"cause":             event.FailureMessage,
		}).Warn("card payment attempt failed")
		s.cfg.Metrics.Webhook(string(models.RailCard), "failed")
		return nil
	}
	if err := s.settle(ctx, payment, "payment:"+payment.ID); err != nil {
		s.cfg.Metrics.Webhook(string(models.RailCard), "error")
		return err
	}
	s.cfg.Metrics.Webhook(string(models.RailCard), "credited")
	return nil
}

func (s *PaymentService) findPayment(ctx context.Context, rail models.Rail, providerRef, paymentID string) (models.Payment, error) {
	if providerRef != "" {
		payment, err := s.cfg.Payments.GetByProviderReference(ctx, rail, providerRef)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return models.Payment{}, err
		}
	}
	if paymentID == "" {
		return models.Payment{}, ErrResourceNotFound
	}
	payment, err := s.cfg.Payments.GetByID(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && payment.Rail != rail) {
		return models.Payment{}, ErrResourceNotFound
	}
	return payment, err
}

// settle credits a payment once and marks it confirmed. A redelivered event
// finds the credit already applied and only repeats the status change.
func (s *PaymentService) settle(ctx context.Context, payment models.Payment, key string) error {
	switch payment.Status {
	case models.PaymentConfirmed:
		return nil
	case models.PaymentFailed, models.PaymentVerificationRequired:
		s.logger.WithFields(logging.Fields{"payment_id": payment.ID, "status": payment.Status}).Warn("settlement for non-pending payment ignored")
		return nil
	}
	_, err := s.cfg.Ledger.CreditPayment(ctx, payment, key)
	if err != nil && !errors.Is(err, ErrDuplicateRequest) {
		return err
	}
	if _, err := s.cfg.Payments.Transition(ctx, payment.ID, models.PaymentConfirmed); err != nil {
		return err
	}
	s.logger.WithFields(logging.Fields{
		"payment_id": payment.ID,
		"user_id":    payment.UserID,
		"rail":       payment.Rail,
		"credit":     payment.CreditAmount,
	}).Info("payment settled")
	return nil
}

type CashAppPaymentRequest struct {
	UserID      string
	PackageID   string
	AmountCents int64
	Description string
}

// CreateCashAppPayment records the payment and opens the Cash App charge. The
// configured fee is recorded on the payment and absorbed by the platform.
func (s *PaymentService) CreateCashAppPayment(ctx context.Context, req CashAppPaymentRequest) (payments.Result, error) {
	payment := s.newPayment(req.UserID, models.RailCashApp, models.DirectionInbound)
	if err := s.resolvePackage(&payment, req.PackageID, req.AmountCents); err != nil {
		return payments.Result{}, err
	}
	fee := fees.CashAppFee(payment.AmountUSDCents, s.cfg.CashAppFeePercent)
	payment.FeeAmount = money.Format(fee)
	payment.Description = req.Description
	if err := s.cfg.Payments.Create(ctx, payment); err != nil {
		return payments.Result{}, err
	}
	charge, err := s.cfg.CashApp.CreateCharge(ctx, cashapp.ChargeRequest{
		PaymentID:   payment.ID,
		UserID:      req.UserID,
		AmountCents: payment.AmountUSDCents,
		Description: req.Description,
	})
	if err != nil {
		s.fail(ctx, payment.ID, err)
		return payments.Result{}, providerError(err)
	}
	if err := s.cfg.Payments.SetProviderReference(ctx, payment.ID, charge.ID); err != nil {
		return payments.Result{}, err
	}
	return payments.Result{
		PaymentID:         payment.ID,
		Rail:              payment.Rail,
		Status:            payment.Status,
		ProviderReference: charge.ID,
		AmountUSDCents:    payment.AmountUSDCents,
		CreditAmount:      payment.CreditAmount,
		Fee:               payment.FeeAmount,
	}, nil
}

// HandleCashAppWebhook returns an error only for a bad signature. Once the
// event is authentic it is acknowledged; processing failures are logged and
// the payment stays pending for the reconciliation sweep.
func (s *PaymentService) HandleCashAppWebhook(ctx context.Context, body []byte, signature string) error {
	event, err := s.cfg.CashApp.ParseWebhook(body, signature)
	if errors.Is(err, cashapp.ErrInvalidSignature) {
		s.cfg.Metrics.Webhook(string(models.RailCashApp), "invalid_signature")
		return err
	}
	if err != nil {
		s.logger.WithError(err).Error("undecodable cash app webhook")
		s.cfg.Metrics.Webhook(string(models.RailCashApp), "error")
		return nil
	}
	result := s.processCashAppEvent(ctx, event)
	s.cfg.Metrics.Webhook(string(models.RailCashApp), result)
	return nil
}

func (s *PaymentService) processCashAppEvent(ctx context.Context, event cashapp.WebhookEvent) string {
	if event.Type != cashapp.EventCompleted && event.Type != cashapp.EventFailed {
		return "ignored"
	}
	log := s.logger.WithFields(logging.Fields{"event_id": event.ID, "type": event.Type, "provider_reference": event.ProviderReference})
	payment, err := s.findPayment(ctx, models.RailCashApp, event.ProviderReference, event.PaymentID)
	if err != nil {
		log.WithError(err).Error("cash app webhook payment lookup failed")
		return "error"
	}
	if event.Type == cashapp.EventFailed {
		s.fail(ctx, payment.ID, errors.New("cash app reported failure"))
		return "failed"
	}
	if event.AmountCents > 0 && event.AmountCents < payment.AmountUSDCents {
		log.WithFields(logging.Fields{"expected": payment.AmountUSDCents, "received": event.AmountCents}).Warn("cash app underpayment")
		if _, err := s.cfg.Payments.Transition(ctx, payment.ID, models.PaymentVerificationRequired); err != nil {
			log.WithError(err).Error("flag cash app payment")
		}
		return "verification_required"
	}
	if err := s.settle(ctx, payment, "payment:"+payment.ID); err != nil {
		log.WithError(err).Error("cash app settlement deferred")
		return "error"
	}
	return "credited"
}

type BitcoinPurchaseRequest struct {
	UserID      string
	PackageID   string
	AmountCents int64
}

// StartBitcoinPurchase quotes the BTC amount, assigns a deposit address and
// hands it to the confirmation watcher.
func (s *PaymentService) StartBitcoinPurchase(ctx context.Context, req BitcoinPurchaseRequest) (payments.Result, error) {
	payment := s.newPayment(req.UserID, models.RailBitcoin, models.DirectionInbound)
	if err := s.resolvePackage(&payment, req.PackageID, req.AmountCents); err != nil {
		return payments.Result{}, err
	}
	price, err := s.cfg.Prices.BTCPriceUSD(ctx)
	if err != nil {
		return payments.Result{}, providerError(err)
	}
	amountBTC, err := fees.USDToBTC(money.CentsToUSD(payment.AmountUSDCents), price)
	if err != nil {
		return payments.Result{}, providerError(err)
	}
	address, err := s.cfg.Deposits.Next(ctx)
	if err != nil {
		return payments.Result{}, err
	}
	expiresAt := s.now().Add(s.cfg.QuoteTTL).UTC()
	crypto := amountBTC.StringFixed(8)
	payment.AmountCrypto = &crypto
	payment.Address = &address
	payment.ExpiresAt = &expiresAt
	if err := s.cfg.Payments.Create(ctx, payment); err != nil {
		return payments.Result{}, err
	}
	if s.cfg.Watcher != nil {
		s.cfg.Watcher.Watch(address)
	}
	s.logger.WithFields(logging.Fields{
		"payment_id": payment.ID,
		"address":    address,
		"amount_btc": crypto,
		"price_usd":  price.String(),
	}).Info("bitcoin purchase quoted")
	return payments.Result{
		PaymentID:      payment.ID,
		Rail:           payment.Rail,
		Status:         payment.Status,
		AmountUSDCents: payment.AmountUSDCents,
		CreditAmount:   payment.CreditAmount,
		AmountBTC:      &amountBTC,
		Address:        address,
		ExpiresAt:      &expiresAt,
	}, nil
}

// underpaymentTolerance accepts deposits down to 99% of the quote.
var underpaymentTolerance = decimal.RequireFromString("0.99")

// SettleBitcoinDeposit credits an inbound payment for a confirmed on-chain
// transaction. It reports whether the payment is credited; an underpaid
// deposit is flagged for verification instead.
func (s *PaymentService) SettleBitcoinDeposit(ctx context.Context, payment models.Payment, txHash string, amountSats int64, confirmations int) (bool, error) {
	switch payment.Status {
	case models.PaymentConfirmed:
		return true, nil
	case models.PaymentFailed, models.PaymentVerificationRequired:
		return false, nil
	}
	if err := s.cfg.Payments.UpdateConfirmations(ctx, payment.ID, confirmations); err != nil {
		return false, err
	}
	if payment.AmountCrypto != nil {
		expected, err := decimal.NewFromString(*payment.AmountCrypto)
		if err != nil {
			return false, fmt.Errorf("payment %s amount: %w", payment.ID, err)
		}
		received := money.SatsToBTC(amountSats)
		if received.LessThan(expected.Mul(underpaymentTolerance)) {
			s.logger.WithFields(logging.Fields{
				"payment_id": payment.ID,
				"tx_hash":    txHash,
				"expected":   expected.String(),
				"received":   received.String(),
			}).Warn("bitcoin deposit below quoted amount")
			if _, err := s.cfg.Payments.Transition(ctx, payment.ID, models.PaymentVerificationRequired); err != nil {
				return false, err
			}
			return false, nil
		}
	}
	if err := s.settle(ctx, payment, "btc:"+txHash); err != nil {
		return false, err
	}
	return true, nil
}

type BTCTransferRequest struct {
	UserID         string
	AmountBTC      decimal.Decimal
	Destination    string
	FeePercent     *decimal.Decimal
	IdempotencyKey string
}

// ProcessExternalBTCTransfer pays BTC out of a user's balance. The address is
// validated before anything is debited; a failed send is refunded.
func (s *PaymentService) ProcessExternalBTCTransfer(ctx context.Context, req BTCTransferRequest) (payments.Result, error) {
	if !req.AmountBTC.IsPositive() {
		return payments.Result{}, ErrInvalidInput
	}
	if _, err := money.BTCToSats(req.AmountBTC); err != nil {
		return payments.Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := bitcoin.ValidateAddress(req.Destination, s.cfg.Network); err != nil {
		return payments.Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	pct := s.cfg.BTCTransferFeePercent
	if req.FeePercent != nil {
		pct = *req.FeePercent
	}
	if pct.IsNegative() || pct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return payments.Result{}, ErrInvalidInput
	}
	fee := fees.BitcoinTransferFee(req.AmountBTC, pct)
	price, err := s.cfg.Prices.BTCPriceUSD(ctx)
	if err != nil {
		return payments.Result{}, providerError(err)
	}
	units, err := fees.BTCToLedgerUnits(req.AmountBTC.Add(fee), price)
	if errors.Is(err, fees.ErrAmountOutOfRange) {
		return payments.Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err != nil {
		return payments.Result{}, providerError(err)
	}
	if units <= 0 {
		return payments.Result{}, ErrInvalidInput
	}

	payment := s.newPayment(req.UserID, models.RailBitcoin, models.DirectionOutbound)
	crypto := req.AmountBTC.StringFixed(8)
	payment.AmountCrypto = &crypto
	payment.Address = &req.Destination
	payment.CreditAmount = units
	payment.AmountUSDCents = units
	payment.FeeAmount = fee.String()
	payment.Description = "BTC transfer to " + req.Destination
	if err := s.cfg.Payments.Create(ctx, payment); err != nil {
		return payments.Result{}, err
	}

	var key *string
	if req.IdempotencyKey != "" {
		key = &req.IdempotencyKey
	}
	debit, err := s.cfg.Ledger.ApplyTransaction(ctx, ApplyRequest{
		UserID:         req.UserID,
		Kind:           models.KindBTCTransferOut,
		Amount:         -units,
		Reference:      &payment.ID,
		Description:    payment.Description,
		IdempotencyKey: key,
	})
	if err != nil {
		s.fail(ctx, payment.ID, err)
		return payments.Result{}, err
	}

	txHash, sendErr := s.cfg.Sender.Send(ctx, payment.ID, req.Destination, req.AmountBTC)
	if sendErr != nil {
		compErr := s.cfg.Ledger.Compensate(ctx, Compensation{
			Operation:    "btc_transfer",
			UserID:       req.UserID,
			Kind:         models.KindBTCTransferRefund,
			Amount:       units,
			DebitEntryID: debit.EntryID,
			Reference:    &payment.ID,
			RootCause:    providerError(sendErr),
		})
		s.fail(context.WithoutCancel(ctx), payment.ID, sendErr)
		return payments.Result{}, compErr
	}

	if err := s.cfg.Payments.SetProviderReference(ctx, payment.ID, txHash); err != nil {
		s.logger.WithError(err).WithFields(logging.Fields{"payment_id": payment.ID, "tx_hash": txHash}).Error("record btc transfer hash")
	}
	if _, err := s.cfg.Payments.Transition(ctx, payment.ID, models.PaymentConfirmed); err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.ID).Error("confirm btc transfer")
	}
	amount := req.AmountBTC
	return payments.Result{
		PaymentID:         payment.ID,
		Rail:              payment.Rail,
		Status:            models.PaymentConfirmed,
		ProviderReference: txHash,
		CreditAmount:      units,
		Fee:               payment.FeeAmount,
		AmountBTC:         &amount,
		Address:           req.Destination,
	}, nil
}

// GetPayment returns a payment owned by userID.
func (s *PaymentService) GetPayment(ctx context.Context, userID, paymentID string) (models.Payment, error) {
	payment, err := s.cfg.Payments.GetByID(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Payment{}, ErrResourceNotFound
	}
	if err != nil {
		return models.Payment{}, err
	}
	if payment.UserID != userID {
		return models.Payment{}, ErrResourceNotFound
	}
	return payment, nil
}

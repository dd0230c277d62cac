package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bettabuckz/internal/config"
	"bettabuckz/internal/models"
	"bettabuckz/internal/payments"
	"bettabuckz/internal/payments/card"
	"bettabuckz/internal/payments/cashapp"
	"bettabuckz/internal/store"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
)

// memPayments mirrors the payment store: status changes only leave pending.
type memPayments struct {
	mu       sync.Mutex
	payments map[string]models.Payment
}

func newMemPayments() *memPayments {
	return &memPayments{payments: map[string]models.Payment{}}
}

func (m *memPayments) Create(_ context.Context, p models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.CreatedAt = time.Now()
	m.payments[p.ID] = p
	return nil
}

func (m *memPayments) GetByID(_ context.Context, id string) (models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return models.Payment{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memPayments) GetByProviderReference(_ context.Context, rail models.Rail, ref string) (models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Rail == rail && p.ProviderReference != nil && *p.ProviderReference == ref {
			return p, nil
		}
	}
	return models.Payment{}, store.ErrNotFound
}

func (m *memPayments) SetProviderReference(_ context.Context, id, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.payments[id]
	p.ProviderReference = &ref
	m.payments[id] = p
	return nil
}

func (m *memPayments) Transition(_ context.Context, id string, to models.PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = to
	m.payments[id] = p
	return true, nil
}

func (m *memPayments) UpdateConfirmations(_ context.Context, id string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.payments[id]
	p.Confirmations = n
	m.payments[id] = p
	return nil
}

func (m *memPayments) get(id string) models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id]
}

func (m *memPayments) only(t *testing.T) models.Payment {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.payments) != 1 {
		t.Fatalf("expected one payment, got %d", len(m.payments))
	}
	for _, p := range m.payments {
		return p
	}
	return models.Payment{}
}

type stubCard struct {
	createFn func(ctx context.Context, req card.IntentRequest) (card.Intent, error)
	parseFn  func(payload []byte, signature string) (card.WebhookEvent, error)
}

func (s stubCard) CreatePaymentIntent(ctx context.Context, req card.IntentRequest) (card.Intent, error) {
	return s.createFn(ctx, req)
}

func (s stubCard) ParseWebhook(payload []byte, signature string) (card.WebhookEvent, error) {
	return s.parseFn(payload, signature)
}

type stubCashApp struct {
	createFn func(ctx context.Context, req cashapp.ChargeRequest) (cashapp.Charge, error)
	parseFn  func(body []byte, signature string) (cashapp.WebhookEvent, error)
}

func (s stubCashApp) CreateCharge(ctx context.Context, req cashapp.ChargeRequest) (cashapp.Charge, error) {
	return s.createFn(ctx, req)
}

func (s stubCashApp) ParseWebhook(body []byte, signature string) (cashapp.WebhookEvent, error) {
	return s.parseFn(body, signature)
}

type stubPrice struct {
	price decimal.Decimal
	err   error
}

func (s stubPrice) BTCPriceUSD(context.Context) (decimal.Decimal, error) {
	return s.price, s.err
}

type stubDeposits struct {
	address string
}

func (s stubDeposits) Next(context.Context) (string, error) {
	return s.address, nil
}

type stubSender struct {
	sendFn func(ctx context.Context, reference, address string, amount decimal.Decimal) (string, error)
}

func (s stubSender) Send(ctx context.Context, reference, address string, amount decimal.Decimal) (string, error) {
	return s.sendFn(ctx, reference, address, amount)
}

type stubWatcher struct {
	watched []string
}

func (s *stubWatcher) Watch(address string) {
	s.watched = append(s.watched, address)
}

const testDestination = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"

type paymentFixture struct {
	book     *memBook
	payments *memPayments
	watcher  *stubWatcher
	svc      *PaymentService
}

func newPaymentFixture(cfg PaymentServiceConfig, balances map[string]int64) paymentFixture {
	book := newMemBook(balances)
	ledger := newTestLedger(book, nil, nil, nil)
	pays := newMemPayments()
	watcher := &stubWatcher{}
	cfg.Payments = pays
	cfg.Ledger = ledger
	cfg.Watcher = watcher
	cfg.Catalog = payments.NewCatalog([]config.Package{{ID: "starter", PriceCents: 499, Credits: 500}})
	cfg.Network = &chaincfg.MainNetParams
	if cfg.Prices == nil {
		cfg.Prices = stubPrice{price: decimal.NewFromInt(50000)}
	}
	if cfg.BTCTransferFeePercent.IsZero() {
		cfg.BTCTransferFeePercent = decimal.RequireFromString("2.5")
	}
	return paymentFixture{book: book, payments: pays, watcher: watcher, svc: NewPaymentService(cfg)}
}

func TestCreateCardIntentRecordsPayment(t *testing.T) {
	var got card.IntentRequest
	f := newPaymentFixture(PaymentServiceConfig{Card: stubCard{
		createFn: func(_ context.Context, req card.IntentRequest) (card.Intent, error) {
			got = req
			return card.Intent{ID: "pi_1", ClientSecret: "secret", Amount: req.AmountCents, Currency: "usd"}, nil
		},
	}}, nil)

	intent, err := f.svc.CreateCardIntent(context.Background(), CardIntentRequest{UserID: "u1", PackageID: "starter"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent.ID != "pi_1" || got.AmountCents != 499 {
		t.Fatalf("unexpected intent %#v / request %#v", intent, got)
	}
	p := f.payments.only(t)
	if p.Status != models.PaymentPending || p.CreditAmount != 500 || *p.ProviderReference != "pi_1" || got.PaymentID != p.ID {
		t.Fatalf("unexpected payment: %#v", p)
	}
	if f.book.balance("u1") != 0 {
		t.Fatalf("intent must not credit")
	}
}

func TestCreateCardIntentUnknownPackage(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{}, nil)
	if _, err := f.svc.CreateCardIntent(context.Background(), CardIntentRequest{UserID: "u1", PackageID: "nope"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateCardIntentProviderFailure(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{Card: stubCard{
		createFn: func(context.Context, card.IntentRequest) (card.Intent, error) {
			return card.Intent{}, errors.New("stripe down")
		},
	}}, nil)
	_, err := f.svc.CreateCardIntent(context.Background(), CardIntentRequest{UserID: "u1", AmountCents: 1000})
	if !errors.Is(err, ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}
	if f.payments.only(t).Status != models.PaymentFailed {
		t.Fatalf("payment should be failed")
	}
}

func TestCardWebhookCreditsOnce(t *testing.T) {
	event := card.WebhookEvent{Type: card.EventSucceeded, PaymentIntentID: "pi_1"}
	f := newPaymentFixture(PaymentServiceConfig{Card: stubCard{
		createFn: func(_ context.Context, req card.IntentRequest) (card.Intent, error) {
			return card.Intent{ID: "pi_1"}, nil
		},
		parseFn: func([]byte, string) (card.WebhookEvent, error) { return event, nil },
	}}, nil)
	if _, err := f.svc.CreateCardIntent(context.Background(), CardIntentRequest{UserID: "u1", PackageID: "starter"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := f.svc.HandleCardWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
			t.Fatalf("delivery %d: unexpected error: %v", i, err)
		}
	}
	if f.book.balance("u1") != 500 {
		t.Fatalf("expected one credit of 500, balance %d", f.book.balance("u1"))
	}
	if f.payments.only(t).Status != models.PaymentConfirmed {
		t.Fatalf("payment should be confirmed")
	}
}

func TestCardWebhookInvalidSignature(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{Card: stubCard{
		parseFn: func([]byte, string) (card.WebhookEvent, error) { return card.WebhookEvent{}, card.ErrInvalidSignature },
	}}, nil)
	if err := f.svc.HandleCardWebhook(context.Background(), nil, "bad"); !errors.Is(err, card.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestCardWebhookFailedAttemptKeepsPaymentOpen(t *testing.T) {
	events := []card.WebhookEvent{
		{Type: card.EventFailed, PaymentIntentID: "pi_2", FailureMessage: "declined"},
		{Type: card.EventSucceeded, PaymentIntentID: "pi_2"},
	}
	var delivered int
	f := newPaymentFixture(PaymentServiceConfig{Card: stubCard{
		createFn: func(context.Context, card.IntentRequest) (card.Intent, error) { return card.Intent{ID: "pi_2"}, nil },
		parseFn: func([]byte, string) (card.WebhookEvent, error) {
			event := events[delivered]
			delivered++
			return event, nil
		},
	}}, nil)
	if _, err := f.svc.CreateCardIntent(context.Background(), CardIntentRequest{UserID: "u1", PackageID: "starter"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.svc.HandleCardWebhook(context.Background(), nil, "sig"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.payments.only(t).Status != models.PaymentPending || f.book.balance("u1") != 0 {
		t.Fatalf("declined attempt must not credit or close the payment")
	}

	if err := f.svc.HandleCardWebhook(context.Background(), nil, "sig"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.payments.only(t).Status != models.PaymentConfirmed || f.book.balance("u1") != 500 {
		t.Fatalf("retry after decline must credit, balance %d", f.book.balance("u1"))
	}
}

func TestCashAppPaymentAndWebhook(t *testing.T) {
	var event cashapp.WebhookEvent
	f := newPaymentFixture(PaymentServiceConfig{
		CashAppFeePercent: decimal.RequireFromString("3"),
		CashApp: stubCashApp{
			createFn: func(_ context.Context, req cashapp.ChargeRequest) (cashapp.Charge, error) {
				return cashapp.Charge{ID: "ca_1", Status: "PENDING"}, nil
			},
			parseFn: func(body []byte, sig string) (cashapp.WebhookEvent, error) {
				if sig != "ok" {
					return cashapp.WebhookEvent{}, cashapp.ErrInvalidSignature
				}
				return event, nil
			},
		},
	}, nil)

	res, err := f.svc.CreateCashAppPayment(context.Background(), CashAppPaymentRequest{UserID: "u1", AmountCents: 1000, Description: "top up"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Fee != "0.30" || res.ProviderReference != "ca_1" || res.CreditAmount != 1000 {
		t.Fatalf("unexpected result: %#v", res)
	}

	if err := f.svc.HandleCashAppWebhook(context.Background(), nil, "bad"); !errors.Is(err, cashapp.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	event = cashapp.WebhookEvent{ID: "ev1", Type: cashapp.EventCompleted, ProviderReference: "ca_1", AmountCents: 1000}
	for i := 0; i < 2; i++ {
		if err := f.svc.HandleCashAppWebhook(context.Background(), nil, "ok"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if f.book.balance("u1") != 1000 {
		t.Fatalf("expected single credit, balance %d", f.book.balance("u1"))
	}
	if f.payments.get(res.PaymentID).Status != models.PaymentConfirmed {
		t.Fatalf("payment should be confirmed")
	}
}

func TestCashAppWebhookAcknowledgesUnknownPayment(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{CashApp: stubCashApp{
		parseFn: func([]byte, string) (cashapp.WebhookEvent, error) {
			return cashapp.WebhookEvent{Type: cashapp.EventCompleted, ProviderReference: "ca_missing"}, nil
		},
	}}, nil)
	if err := f.svc.HandleCashAppWebhook(context.Background(), nil, "ok"); err != nil {
		t.Fatalf("verified webhook must be acknowledged, got %v", err)
	}
}

func TestCashAppWebhookUnderpaymentNeedsVerification(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{CashApp: stubCashApp{
		createFn: func(context.Context, cashapp.ChargeRequest) (cashapp.Charge, error) { return cashapp.Charge{ID: "ca_2"}, nil },
		parseFn: func([]byte, string) (cashapp.WebhookEvent, error) {
			return cashapp.WebhookEvent{Type: cashapp.EventCompleted, ProviderReference: "ca_2", AmountCents: 400}, nil
		},
	}}, nil)
	res, err := f.svc.CreateCashAppPayment(context.Background(), CashAppPaymentRequest{UserID: "u1", PackageID: "starter"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.HandleCashAppWebhook(context.Background(), nil, "ok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.payments.get(res.PaymentID).Status != models.PaymentVerificationRequired || f.book.balance("u1") != 0 {
		t.Fatalf("underpaid charge must not credit")
	}
}

func TestStartBitcoinPurchase(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{Deposits: stubDeposits{address: testDestination}, QuoteTTL: time.Minute}, nil)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	res, err := f.svc.StartBitcoinPurchase(context.Background(), BitcoinPurchaseRequest{UserID: "u1", AmountCents: 10000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AmountBTC == nil || res.AmountBTC.String() != "0.002" {
		t.Fatalf("unexpected BTC amount %v", res.AmountBTC)
	}
	if res.Address != testDestination || !res.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected result: %#v", res)
	}
	if len(f.watcher.watched) != 1 || f.watcher.watched[0] != testDestination {
		t.Fatalf("address not watched: %#v", f.watcher.watched)
	}
	p := f.payments.only(t)
	if *p.AmountCrypto != "0.00200000" || p.CreditAmount != 10000 {
		t.Fatalf("unexpected payment: %#v", p)
	}
}

func TestStartBitcoinPurchaseWithoutPrice(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{Prices: stubPrice{err: errors.New("no feed")}, Deposits: stubDeposits{address: testDestination}}, nil)
	if _, err := f.svc.StartBitcoinPurchase(context.Background(), BitcoinPurchaseRequest{UserID: "u1", AmountCents: 100}); !errors.Is(err, ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}
}

func TestSettleBitcoinDepositToleranceAndIdempotency(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{Deposits: stubDeposits{address: testDestination}}, nil)
	res, err := f.svc.StartBitcoinPurchase(context.Background(), BitcoinPurchaseRequest{UserID: "u1", AmountCents: 10000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payment := f.payments.get(res.PaymentID)

	// 0.002 BTC quoted; 0.00198 is exactly 99%.
	credited, err := f.svc.SettleBitcoinDeposit(context.Background(), payment, "tx1", 198000, 2)
	if err != nil || !credited {
		t.Fatalf("expected credit within tolerance, got %v %v", credited, err)
	}
	credited, err = f.svc.SettleBitcoinDeposit(context.Background(), f.payments.get(res.PaymentID), "tx1", 198000, 3)
	if err != nil || !credited {
		t.Fatalf("repeat confirmation should report credited, got %v %v", credited, err)
	}
	credited, err = f.svc.SettleBitcoinDeposit(context.Background(), payment, "tx1", 198000, 3)
	if err != nil || !credited {
		t.Fatalf("stale payment copy should still settle idempotently, got %v %v", credited, err)
	}
	if f.book.balance("u1") != 10000 {
		t.Fatalf("expected single credit, balance %d", f.book.balance("u1"))
	}
}

func TestSettleBitcoinDepositUnderpaid(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{Deposits: stubDeposits{address: testDestination}}, nil)
	res, err := f.svc.StartBitcoinPurchase(context.Background(), BitcoinPurchaseRequest{UserID: "u1", AmountCents: 10000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	credited, err := f.svc.SettleBitcoinDeposit(context.Background(), f.payments.get(res.PaymentID), "tx2", 197999, 2)
	if err != nil || credited {
		t.Fatalf("expected no credit, got %v %v", credited, err)
	}
	if f.payments.get(res.PaymentID).Status != models.PaymentVerificationRequired || f.book.balance("u1") != 0 {
		t.Fatalf("underpaid deposit must be flagged")
	}
}

func TestExternalBTCTransferSuccess(t *testing.T) {
	var sentRef string
	f := newPaymentFixture(PaymentServiceConfig{Sender: stubSender{
		sendFn: func(_ context.Context, reference, address string, amount decimal.Decimal) (string, error) {
			sentRef = reference
			return "txhash", nil
		},
	}}, map[string]int64{"u1": 100000})

	res, err := f.svc.ProcessExternalBTCTransfer(context.Background(), BTCTransferRequest{
		UserID: "u1", AmountBTC: decimal.RequireFromString("0.01"), Destination: testDestination,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// (0.01 + 0.00025) * 50000 USD = 512.50
	if res.CreditAmount != 51250 || f.book.balance("u1") != 100000-51250 {
		t.Fatalf("unexpected debit %d, balance %d", res.CreditAmount, f.book.balance("u1"))
	}
	p := f.payments.get(res.PaymentID)
	if p.Status != models.PaymentConfirmed || *p.ProviderReference != "txhash" || sentRef != p.ID {
		t.Fatalf("unexpected payment: %#v", p)
	}
	entries := f.book.entriesFor("u1")
	if len(entries) != 1 || entries[0].Kind != models.KindBTCTransferOut || *entries[0].Reference != p.ID {
		t.Fatalf("unexpected entries: %#v", entries)
	}
}

func TestExternalBTCTransferInvalidAddressDebitsNothing(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{Sender: stubSender{
		sendFn: func(context.Context, string, string, decimal.Decimal) (string, error) {
			t.Fatalf("send must not be called")
			return "", nil
		},
	}}, map[string]int64{"u1": 100000})

	_, err := f.svc.ProcessExternalBTCTransfer(context.Background(), BTCTransferRequest{
		UserID: "u1", AmountBTC: decimal.RequireFromString("0.01"), Destination: "bc1notanaddress",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if f.book.balance("u1") != 100000 || len(f.payments.payments) != 0 {
		t.Fatalf("invalid address must not touch balance or payments")
	}
}

func TestExternalBTCTransferSendFailureRefunds(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{Sender: stubSender{
		sendFn: func(context.Context, string, string, decimal.Decimal) (string, error) {
			return "", errors.New("wallet offline")
		},
	}}, map[string]int64{"u1": 100000})

	_, err := f.svc.ProcessExternalBTCTransfer(context.Background(), BTCTransferRequest{
		UserID: "u1", AmountBTC: decimal.RequireFromString("0.01"), Destination: testDestination,
	})
	if !errors.Is(err, ErrPartialFailureCompensated) || !errors.Is(err, ErrProviderError) {
		t.Fatalf("expected compensated provider failure, got %v", err)
	}
	if f.book.balance("u1") != 100000 {
		t.Fatalf("refund missing, balance %d", f.book.balance("u1"))
	}
	entries := f.book.entriesFor("u1")
	if len(entries) != 2 || entries[1].Kind != models.KindBTCTransferRefund {
		t.Fatalf("unexpected entries: %#v", entries)
	}
	if f.payments.only(t).Status != models.PaymentFailed {
		t.Fatalf("payment should be failed")
	}
}

func TestExternalBTCTransferRejectsOversizedAmounts(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{
		Prices: stubPrice{price: decimal.RequireFromString("1000000000000")},
		Sender: stubSender{
			sendFn: func(context.Context, string, string, decimal.Decimal) (string, error) {
				t.Fatalf("send must not be called")
				return "", nil
			},
		},
	}, map[string]int64{"u1": 100000})

	for _, amount := range []string{"3599364697309.19080313", "20000000"} {
		_, err := f.svc.ProcessExternalBTCTransfer(context.Background(), BTCTransferRequest{
			UserID: "u1", AmountBTC: decimal.RequireFromString(amount), Destination: testDestination,
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("amount %s: expected ErrInvalidInput, got %v", amount, err)
		}
	}
	if f.book.balance("u1") != 100000 || len(f.payments.payments) != 0 {
		t.Fatalf("oversized transfer must not touch balance or payments")
	}
}

func TestExternalBTCTransferInsufficientBalance(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{Sender: stubSender{
		sendFn: func(context.Context, string, string, decimal.Decimal) (string, error) {
			t.Fatalf("send must not be called")
			return "", nil
		},
	}}, map[string]int64{"u1": 100})

	_, err := f.svc.ProcessExternalBTCTransfer(context.Background(), BTCTransferRequest{
		UserID: "u1", AmountBTC: decimal.RequireFromString("0.01"), Destination: testDestination,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if f.payments.only(t).Status != models.PaymentFailed {
		t.Fatalf("payment should be failed")
	}
}

func TestGetPaymentOwnerOnly(t *testing.T) {
	f := newPaymentFixture(PaymentServiceConfig{}, nil)
	_ = f.payments.Create(context.Background(), models.Payment{ID: "p1", UserID: "owner", Status: models.PaymentPending})

	if _, err := f.svc.GetPayment(context.Background(), "owner", "p1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.GetPayment(context.Background(), "other", "p1"); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
	if _, err := f.svc.GetPayment(context.Background(), "owner", "p2"); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

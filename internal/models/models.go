package models

import "time"

type EntryKind string

const (
	KindPurchase                 EntryKind = "purchase"
	KindTransferOut              EntryKind = "transfer_out"
	KindTransferIn               EntryKind = "transfer_in"
	KindTransferRollback         EntryKind = "transfer_rollback"
	KindTournamentEntry          EntryKind = "tournament_entry"
	KindTournamentRefund         EntryKind = "tournament_refund"
	KindStorePurchase            EntryKind = "store_purchase"
	KindPurchaseRefund           EntryKind = "purchase_refund"
	KindBTCTransferOut           EntryKind = "btc_transfer_out"
	KindBTCTransferRefund        EntryKind = "btc_transfer_refund"
	KindReconciliationAdjustment EntryKind = "reconciliation_adjustment"
)

func (k EntryKind) Valid() bool {
	switch k {
	case KindPurchase, KindTransferOut, KindTransferIn, KindTransferRollback,
		KindTournamentEntry, KindTournamentRefund, KindStorePurchase, KindPurchaseRefund,
		KindBTCTransferOut, KindBTCTransferRefund, KindReconciliationAdjustment:
		return true
	}
	return false
}

type Rail string

const (
	RailCard    Rail = "card"
	RailCashApp Rail = "cashapp"
	RailBitcoin Rail = "bitcoin"
)

type PaymentStatus string

const (
	PaymentPending              PaymentStatus = "pending"
	PaymentConfirmed            PaymentStatus = "confirmed"
	PaymentFailed               PaymentStatus = "failed"
	PaymentVerificationRequired PaymentStatus = "verification_required"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Account struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type LedgerEntry struct {
	ID                 string    `db:"id" json:"id"`
	UserID             string    `db:"user_id" json:"user_id"`
	Kind               EntryKind `db:"kind" json:"kind"`
	Amount             int64     `db:"amount" json:"amount"`
	BalanceAfter       int64     `db:"balance_after" json:"balance_after"`
	CounterpartyUserID *string   `db:"counterparty_user_id" json:"counterparty_user_id,omitempty"`
	Reference          *string   `db:"reference" json:"reference,omitempty"`
	Description        string    `db:"description" json:"description"`
	IdempotencyKey     *string   `db:"idempotency_key" json:"-"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

type Payment struct {
	ID                string        `db:"id" json:"id"`
	UserID            string        `db:"user_id" json:"user_id"`
	Rail              Rail          `db:"rail" json:"rail"`
	Direction         Direction     `db:"direction" json:"direction"`
	Status            PaymentStatus `db:"status" json:"status"`
	AmountUSDCents    int64         `db:"amount_usd_cents" json:"amount_usd_cents"`
	CreditAmount      int64         `db:"credit_amount" json:"credit_amount"`
	FeeAmount         string        `db:"fee_amount" json:"fee_amount"`
	AmountCrypto      *string       `db:"amount_crypto" json:"amount_crypto,omitempty"`
	Address           *string       `db:"address" json:"address,omitempty"`
	ProviderReference *string       `db:"provider_reference" json:"provider_reference,omitempty"`
	Confirmations     int           `db:"confirmations" json:"confirmations"`
	PackageID         *string       `db:"package_id" json:"package_id,omitempty"`
	Description       string        `db:"description" json:"description"`
	ExpiresAt         *time.Time    `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

type WatchStatus string

const (
	WatchPending   WatchStatus = "pending"
	WatchConfirmed WatchStatus = "confirmed"
	WatchCredited  WatchStatus = "credited"
	WatchUnmatched WatchStatus = "unmatched"
	WatchFlagged   WatchStatus = "flagged"
)

type WatchedTransaction struct {
	TxHash        string      `db:"tx_hash" json:"tx_hash"`
	Address       string      `db:"address" json:"address"`
	AmountSats    int64       `db:"amount_sats" json:"amount_sats"`
	Confirmations int         `db:"confirmations" json:"confirmations"`
	Status        WatchStatus `db:"status" json:"status"`
	PaymentID     *string     `db:"payment_id" json:"payment_id,omitempty"`
	FirstSeenAt   time.Time   `db:"first_seen_at" json:"first_seen_at"`
	ConfirmedAt   *time.Time  `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CreditedAt    *time.Time  `db:"credited_at" json:"credited_at,omitempty"`
}

type ReconciliationAlert struct {
	ID                 string     `db:"id" json:"id"`
	Kind               string     `db:"kind" json:"kind"`
	UserID             string     `db:"user_id" json:"user_id"`
	CounterpartyUserID *string    `db:"counterparty_user_id" json:"counterparty_user_id,omitempty"`
	Amount             int64      `db:"amount" json:"amount"`
	Reference          *string    `db:"reference" json:"reference,omitempty"`
	RootCause          string     `db:"root_cause" json:"root_cause"`
	CompensationError  *string    `db:"compensation_error" json:"compensation_error,omitempty"`
	ResolvedBy         *string    `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

type BalanceDrift struct {
	UserID        string `db:"user_id" json:"user_id"`
	StoredBalance int64  `db:"stored_balance" json:"stored_balance"`
	LedgerBalance int64  `db:"ledger_balance" json:"ledger_balance"`
	Difference    int64  `db:"difference" json:"difference"`
}

type Tournament struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	EntryFee int64  `db:"entry_fee" json:"entry_fee"`
	Status   string `db:"status" json:"status"`
}

const (
	RoleReconcile = "CanReconcile"
	RoleRefund    = "CanRefund"
)

type Operator struct {
	UserID  string
	IsSuper bool
	Roles   []string
}

func (o Operator) Can(role string) bool {
	if o.IsSuper || role == "" {
		return true
	}
	for _, granted := range o.Roles {
		if granted == role {
			return true
		}
	}
	return false
}

package handlers

import "github.com/shopspring/decimal"

type transferRequest struct {
	ToUserID    string `json:"toUserId" validate:"required,max=64"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	Description string `json:"description" validate:"max=255"`
}

type purchaseRequest struct {
	Amount      int64  `json:"amount" validate:"gt=0"`
	Description string `json:"description" validate:"required,max=255"`
	Reference   string `json:"reference" validate:"max=128"`
}

type refundRequest struct {
	UserID  string `json:"userId" validate:"required"`
	EntryID string `json:"entryId" validate:"required"`
	Reason  string `json:"reason" validate:"max=255"`
}

type tournamentRefundRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type cardIntentRequest struct {
	Amount         int64    `json:"amount" validate:"min=0"`
	Currency       string   `json:"currency" validate:"omitempty,len=3"`
	PaymentMethods []string `json:"paymentMethods" validate:"max=5"`
	PackageID      string   `json:"packageId" validate:"max=64"`
}

type cashAppPaymentRequest struct {
	PackageID   string `json:"packageId" validate:"max=64"`
	Amount      int64  `json:"amount" validate:"min=0"`
	Description string `json:"description" validate:"max=255"`
}

type bitcoinPurchaseRequest struct {
	PackageID string          `json:"packageId" validate:"max=64"`
	AmountUSD decimal.Decimal `json:"amountUsd"`
}

type btcTransferRequest struct {
	AmountBTC          decimal.Decimal  `json:"amountBTC" validate:"dpos"`
	DestinationAddress string           `json:"destinationAddress" validate:"required,btcaddr"`
	FeePercentage      *decimal.Decimal `json:"feePercentage"`
}

type resolveAlertRequest struct {
	Adjustment int64  `json:"adjustment"`
	Note       string `json:"note" validate:"max=255"`
}

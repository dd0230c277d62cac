// Package fees computes processing fees and currency conversions for the
// payment rails. Everything here is pure.
package fees

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice     = errors.New("invalid price")
	ErrAmountOutOfRange = errors.New("amount out of range")
)

var (
	hundred         = decimal.NewFromInt(100)
	DefaultBTCFee   = decimal.RequireFromString("2.5")
	ledgerUnitScale = int32(2)
	btcPlaces       = int32(8)
	maxLedgerUnits  = decimal.NewFromInt(math.MaxInt64)
)

// CashAppFee returns amount*pct/100 rounded half away from zero, so a 1.5
// unit fee becomes 2.
func CashAppFee(amount int64, feePercentage decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(feePercentage).Div(hundred).Round(0).IntPart()
}

// CashAppTotal is what a user pays for a user-initiated withdrawal.
func CashAppTotal(amount int64, feePercentage decimal.Decimal) int64 {
	return amount + CashAppFee(amount, feePercentage)
}

// BitcoinTransferFee is not rounded; BTC keeps eight places downstream.
func BitcoinTransferFee(amountBTC, feePercentage decimal.Decimal) decimal.Decimal {
	return amountBTC.Mul(feePercentage).Div(hundred)
}

func USDToBTC(amountUSD, btcPriceUSD decimal.Decimal) (decimal.Decimal, error) {
	if !btcPriceUSD.IsPositive() {
		return decimal.Zero, ErrInvalidPrice
	}
	return amountUSD.DivRound(btcPriceUSD, btcPlaces+4).Round(btcPlaces), nil
}

// BTCToLedgerUnits values amountBTC in BettaBuckZ smallest units (cents) at
// the given USD price.
func BTCToLedgerUnits(amountBTC, btcPriceUSD decimal.Decimal) (int64, error) {
	if !btcPriceUSD.IsPositive() {
		return 0, ErrInvalidPrice
	}
	units := amountBTC.Mul(btcPriceUSD).Shift(ledgerUnitScale).Round(0)
	if units.IsNegative() || units.GreaterThan(maxLedgerUnits) {
		return 0, ErrAmountOutOfRange
	}
	return units.IntPart(), nil
}

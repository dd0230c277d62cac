package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
	ErrAmountTooLarge  = errors.New("amount too large")
)

const (
	usdScale = 2
	btcScale = 8
)

// MaxBTC is the bitcoin supply cap.
var MaxBTC = decimal.NewFromInt(21_000_000)

var (
	satsPerBTC = decimal.New(1, btcScale)
	maxInt64   = decimal.NewFromInt(math.MaxInt64)
)

// Format renders a smallest-unit BettaBuckZ amount with two decimals.
func Format(units int64) string {
	negative := units < 0
	if negative {
		units = -units
	}
	formatted := fmt.Sprintf("%d.%02d", units/100, units%100)
	if negative {
		return "-" + formatted
	}
	return formatted
}

// USDToCents converts a positive dollar amount with at most two decimals.
func USDToCents(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(usdScale)) {
		return 0, ErrTooManyDecimals
	}
	cents := amount.Shift(usdScale)
	if cents.GreaterThan(maxInt64) {
		return 0, ErrAmountTooLarge
	}
	return cents.IntPart(), nil
}

func CentsToUSD(cents int64) decimal.Decimal {
	return decimal.New(cents, -usdScale)
}

// BTCToSats converts a positive BTC amount with at most eight decimals and
// no more than the supply cap.
func BTCToSats(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(btcScale)) {
		return 0, ErrTooManyDecimals
	}
	if amount.GreaterThan(MaxBTC) {
		return 0, ErrAmountTooLarge
	}
	return amount.Mul(satsPerBTC).IntPart(), nil
}

func SatsToBTC(sats int64) decimal.Decimal {
	return decimal.New(sats, -btcScale)
}

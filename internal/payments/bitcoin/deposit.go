package bitcoin

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

var ErrNoDepositAddress = errors.New("no bitcoin deposit address configured")

// IndexSource hands out derivation indexes; each index is used once.
type IndexSource interface {
	NextIndex(ctx context.Context) (uint32, string, error)
}

// DepositAddresses derives a fresh P2WPKH address per inbound payment from an
// extended public key. Private keys never reach this process. Without an
// index source it falls back to a single static address.
type DepositAddresses struct {
	indexes  IndexSource
	fallback string
	net      *chaincfg.Params
}

func NewDepositAddresses(indexes IndexSource, fallback string, net *chaincfg.Params) *DepositAddresses {
	if net == nil {
		net = &chaincfg.MainNetParams
	}
	return &DepositAddresses{indexes: indexes, fallback: fallback, net: net}
}

func (d *DepositAddresses) Next(ctx context.Context) (string, error) {
	if d.indexes == nil {
		if d.fallback == "" {
			return "", ErrNoDepositAddress
		}
		return d.fallback, nil
	}
	index, xpub, err := d.indexes.NextIndex(ctx)
	if err != nil {
		return "", fmt.Errorf("reserve derivation index: %w", err)
	}
	return DeriveAddress(xpub, index, d.net)
}

// Static reports the platform-wide deposit address, if any.
func (d *DepositAddresses) Static() string {
	return d.fallback
}

// DeriveAddress derives the native segwit address at xpub/index.
func DeriveAddress(xpub string, index uint32, net *chaincfg.Params) (string, error) {
	extKey, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return "", fmt.Errorf("invalid xpub: %w", err)
	}
	if extKey.IsPrivate() {
		return "", errors.New("expected xpub but got xprv")
	}
	if !extKey.IsForNet(net) {
		return "", fmt.Errorf("xpub is not for %s", net.Name)
	}
	child, err := extKey.Derive(index)
	if err != nil {
		return "", fmt.Errorf("derive child %d: %w", index, err)
	}
	pubKey, err := child.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("child public key: %w", err)
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubKey.SerializeCompressed()), net)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

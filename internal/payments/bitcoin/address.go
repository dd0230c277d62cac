package bitcoin

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

var ErrInvalidAddress = errors.New("invalid bitcoin address")

type AddressType string

const (
	AddressLegacy AddressType = "legacy"
	AddressSegwit AddressType = "segwit"
	AddressBech32 AddressType = "bech32"
)

var (
	mainnetPattern = regexp.MustCompile(`^(bc1|[13])[a-zA-HJ-NP-Z0-9]{25,62}$`)
	testnetPattern = regexp.MustCompile(`^(tb1|[mn2])[a-zA-HJ-NP-Z0-9]{25,62}$`)
)

// NetParams maps a BTC_NETWORK value to chain parameters.
func NetParams(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mainnet", "main":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	}
	return nil, fmt.Errorf("unknown bitcoin network %q", name)
}

// ValidateAddress checks the address shape for the network, then decodes it
// to verify the checksum. Shape alone is never trusted.
func ValidateAddress(address string, net *chaincfg.Params) (AddressType, error) {
	if net == nil {
		net = &chaincfg.MainNetParams
	}
	pattern := testnetPattern
	if net.Net == chaincfg.MainNetParams.Net {
		pattern = mainnetPattern
	}
	if !pattern.MatchString(address) {
		return "", ErrInvalidAddress
	}
	decoded, err := btcutil.DecodeAddress(address, net)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if !decoded.IsForNet(net) {
		return "", ErrInvalidAddress
	}
	switch decoded.(type) {
	case *btcutil.AddressPubKeyHash:
		return AddressLegacy, nil
	case *btcutil.AddressScriptHash:
		return AddressSegwit, nil
	case *btcutil.AddressWitnessPubKeyHash, *btcutil.AddressWitnessScriptHash, *btcutil.AddressTaproot:
		return AddressBech32, nil
	}
	return "", ErrInvalidAddress
}

package payments

import (
	"errors"
	"time"

	"bettabuckz/internal/config"
	"bettabuckz/internal/models"

	"github.com/shopspring/decimal"
)

var ErrUnknownPackage = errors.New("unknown package")

// Result is the rail-independent outcome of starting or settling a payment.
type Result struct {
	PaymentID         string               `json:"paymentId"`
	Rail              models.Rail          `json:"rail"`
	Status            models.PaymentStatus `json:"status"`
	ProviderReference string               `json:"providerReference,omitempty"`
	AmountUSDCents    int64                `json:"amountUsdCents,omitempty"`
	CreditAmount      int64                `json:"creditAmount,omitempty"`
	Fee               string               `json:"fee,omitempty"`
	AmountBTC         *decimal.Decimal     `json:"amountBTC,omitempty"`
	Address           string               `json:"walletAddress,omitempty"`
	ExpiresAt         *time.Time           `json:"expiresAt,omitempty"`
	ClientSecret      string               `json:"clientSecret,omitempty"`
}

// Catalog resolves package ids to prices and credit amounts.
type Catalog struct {
	byID map[string]config.Package
}

func NewCatalog(packages []config.Package) Catalog {
	byID := make(map[string]config.Package, len(packages))
	for _, p := range packages {
		byID[p.ID] = p
	}
	return Catalog{byID: byID}
}

func (c Catalog) Lookup(id string) (config.Package, error) {
	p, ok := c.byID[id]
	if !ok {
		return config.Package{}, ErrUnknownPackage
	}
	return p, nil
}

// Resolve returns the USD price and credits for a purchase. A known package
// wins; otherwise a custom USD amount buys credits one-for-one with cents.
func (c Catalog) Resolve(packageID string, amountCents int64) (priceCents, credits int64, err error) {
	if packageID != "" {
		p, err := c.Lookup(packageID)
		if err != nil {
			return 0, 0, err
		}
		return p.PriceCents, p.Credits, nil
	}
	if amountCents <= 0 {
		return 0, 0, ErrUnknownPackage
	}
	return amountCents, amountCents, nil
}

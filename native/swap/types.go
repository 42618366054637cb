package swap

import (
	"fmt"
	"math/big"
	"strings"
)

// Offer captures one outstanding escrow: a deposited amount of AssetIn held
// in the derived vault until a taker supplies AssetOut at the oracle rate.
// The identifier is the keccak256 hash of the input asset symbol and the
// depositor address, so at most one active offer can exist per pair. Offers
// are immutable once created; settlement and cancellation destroy the record
// instead of mutating it.
type Offer struct {
	ID              [32]byte
	AssetIn         string
	AssetOut        string
	DepositAmount   *big.Int
	Depositor       [20]byte
	Vault           [20]byte
	DerivationNonce uint64
	CreatedAt       int64
}

// Clone returns a deep copy of the offer so callers can safely mutate the
// copy without affecting the stored instance.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.DepositAmount != nil {
		clone.DepositAmount = new(big.Int).Set(o.DepositAmount)
	} else {
		clone.DepositAmount = big.NewInt(0)
	}
	return &clone
}

// Config is the singleton admin record naming the two assets allowed to
// participate in offers. It is written once and read-only thereafter.
type Config struct {
	BaseAsset  string
	QuoteAsset string
}

// Allows reports whether the given normalised symbol belongs to the
// configured pair.
func (c *Config) Allows(symbol string) bool {
	if c == nil {
		return false
	}
	return symbol == c.BaseAsset || symbol == c.QuoteAsset
}

// Settlement summarises the two-sided transfer performed by TakeOffer.
type Settlement struct {
	OfferID       [32]byte
	AssetIn       string
	AssetOut      string
	DepositAmount *big.Int
	CounterAmount *big.Int
	Price         *big.Int
	Depositor     [20]byte
	Taker         [20]byte
}

// NormalizeAsset trims and upper-cases an asset symbol. Symbols must be
// non-empty; membership in the allow-list is checked separately against the
// module config.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("swap: asset symbol required")
	}
	return trimmed, nil
}

// SanitizeOffer validates and normalises the supplied offer definition,
// returning a cloned instance with canonical symbol casing and a non-nil
// deposit amount. The function does not mutate the original value.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("swap: nil offer")
	}
	clone := o.Clone()
	assetIn, err := NormalizeAsset(clone.AssetIn)
	if err != nil {
		return nil, err
	}
	assetOut, err := NormalizeAsset(clone.AssetOut)
	if err != nil {
		return nil, err
	}
	if assetIn == assetOut {
		return nil, ErrSameToken
	}
	clone.AssetIn = assetIn
	clone.AssetOut = assetOut
	if clone.DepositAmount == nil || clone.DepositAmount.Sign() <= 0 {
		return nil, ErrAmountZero
	}
	if !clone.DepositAmount.IsUint64() {
		return nil, ErrAmountOverflow
	}
	if clone.Depositor == ([20]byte{}) {
		return nil, fmt.Errorf("swap: offer depositor required")
	}
	if clone.Vault == ([20]byte{}) {
		return nil, fmt.Errorf("swap: offer vault required")
	}
	return clone, nil
}

package swap

import (
	"encoding/hex"
	"strconv"

	"otcswap/core/types"
)

const (
	EventTypeOfferCreated      = "swap.offer.created"
	EventTypeOfferSettled      = "swap.offer.settled"
	EventTypeOfferCancelled    = "swap.offer.cancelled"
	EventTypeConfigInitialized = "swap.config.initialized"
)

// NewOfferCreatedEvent returns the canonical event payload for a newly
// created offer.
func NewOfferCreatedEvent(o *Offer) *types.Event {
	attrs := offerAttributes(o)
	return &types.Event{Type: EventTypeOfferCreated, Attributes: attrs}
}

// NewOfferSettledEvent returns the canonical event payload emitted when a
// taker settles an offer.
func NewOfferSettledEvent(o *Offer, s *Settlement) *types.Event {
	attrs := offerAttributes(o)
	if s != nil {
		if s.CounterAmount != nil {
			attrs["counterAmount"] = s.CounterAmount.String()
		}
		if s.Price != nil {
			attrs["price"] = s.Price.String()
		}
		attrs["taker"] = hex.EncodeToString(s.Taker[:])
	}
	return &types.Event{Type: EventTypeOfferSettled, Attributes: attrs}
}

// NewOfferCancelledEvent returns the canonical event payload emitted when the
// depositor withdraws an offer.
func NewOfferCancelledEvent(o *Offer) *types.Event {
	attrs := offerAttributes(o)
	return &types.Event{Type: EventTypeOfferCancelled, Attributes: attrs}
}

// NewConfigInitializedEvent returns the event payload emitted when the module
// configuration is first written.
func NewConfigInitializedEvent(c *Config) *types.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["baseAsset"] = c.BaseAsset
		attrs["quoteAsset"] = c.QuoteAsset
	}
	return &types.Event{Type: EventTypeConfigInitialized, Attributes: attrs}
}

func offerAttributes(o *Offer) map[string]string {
	attrs := make(map[string]string)
	if o == nil {
		return attrs
	}
	sanitized, err := SanitizeOffer(o)
	if err != nil {
		return attrs
	}
	attrs["id"] = hex.EncodeToString(sanitized.ID[:])
	attrs["assetIn"] = sanitized.AssetIn
	attrs["assetOut"] = sanitized.AssetOut
	attrs["depositAmount"] = sanitized.DepositAmount.String()
	attrs["depositor"] = hex.EncodeToString(sanitized.Depositor[:])
	attrs["vault"] = hex.EncodeToString(sanitized.Vault[:])
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	return attrs
}

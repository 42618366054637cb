package swap

import (
	"encoding/hex"
	"math/big"
	"testing"
)

func TestOfferCreatedEventAttributes(t *testing.T) {
	offer := validOffer()
	evt := NewOfferCreatedEvent(offer)
	if evt.Type != EventTypeOfferCreated {
		t.Fatalf("unexpected event type %s", evt.Type)
	}
	if evt.Attributes["id"] != hex.EncodeToString(offer.ID[:]) {
		t.Fatalf("id attribute mismatch")
	}
	if evt.Attributes["assetIn"] != "SOL" || evt.Attributes["assetOut"] != "USDC" {
		t.Fatalf("asset attributes mismatch: %v", evt.Attributes)
	}
	if evt.Attributes["depositAmount"] != "1000000" {
		t.Fatalf("deposit amount attribute mismatch: %v", evt.Attributes)
	}
}

func TestOfferSettledEventAttributes(t *testing.T) {
	offer := validOffer()
	settlement := &Settlement{
		OfferID:       offer.ID,
		AssetIn:       offer.AssetIn,
		AssetOut:      offer.AssetOut,
		DepositAmount: big.NewInt(1_000_000),
		CounterAmount: big.NewInt(100),
		Price:         big.NewInt(10_000_000_000),
		Depositor:     offer.Depositor,
		Taker:         newTestAddress(0x02),
	}
	evt := NewOfferSettledEvent(offer, settlement)
	if evt.Type != EventTypeOfferSettled {
		t.Fatalf("unexpected event type %s", evt.Type)
	}
	if evt.Attributes["counterAmount"] != "100" {
		t.Fatalf("counter amount attribute mismatch: %v", evt.Attributes)
	}
	if evt.Attributes["price"] != "10000000000" {
		t.Fatalf("price attribute mismatch: %v", evt.Attributes)
	}
	taker := newTestAddress(0x02)
	if evt.Attributes["taker"] != hex.EncodeToString(taker[:]) {
		t.Fatalf("taker attribute mismatch: %v", evt.Attributes)
	}
}

func TestEventAttributesForNilInput(t *testing.T) {
	evt := NewOfferCancelledEvent(nil)
	if evt.Type != EventTypeOfferCancelled || len(evt.Attributes) != 0 {
		t.Fatalf("nil offer must yield an empty attribute set")
	}
	cfgEvt := NewConfigInitializedEvent(nil)
	if cfgEvt.Type != EventTypeConfigInitialized || len(cfgEvt.Attributes) != 0 {
		t.Fatalf("nil config must yield an empty attribute set")
	}
}

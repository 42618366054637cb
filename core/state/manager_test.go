package state

import (
	"math/big"
	"testing"

	"otcswap/storage"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db)
}

func TestRegisterAsset(t *testing.T) {
	mgr := newManager(t)
	if err := mgr.RegisterAsset(AssetMetadata{Symbol: "usdc", Name: "USD Coin", Decimals: 6}); err != nil {
		t.Fatalf("RegisterAsset: %v", err)
	}
	meta, ok, err := mgr.AssetMetadata("USDC")
	if err != nil || !ok {
		t.Fatalf("AssetMetadata: ok=%v err=%v", ok, err)
	}
	if meta.Symbol != "USDC" || meta.Decimals != 6 {
		t.Fatalf("metadata not normalised: %+v", meta)
	}
	if err := mgr.RegisterAsset(AssetMetadata{Symbol: "USDC", Decimals: 8}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := mgr.RegisterAsset(AssetMetadata{Symbol: "  "}); err == nil {
		t.Fatalf("expected empty symbol to fail")
	}
}

func TestAssetList(t *testing.T) {
	mgr := newManager(t)
	list, err := mgr.AssetList()
	if err != nil {
		t.Fatalf("AssetList: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %v", list)
	}
	for _, symbol := range []string{"SOL", "USDC", "BTC"} {
		if err := mgr.RegisterAsset(AssetMetadata{Symbol: symbol, Decimals: 6}); err != nil {
			t.Fatalf("RegisterAsset %s: %v", symbol, err)
		}
	}
	list, err = mgr.AssetList()
	if err != nil {
		t.Fatalf("AssetList: %v", err)
	}
	if len(list) != 3 || list[0] != "BTC" || list[1] != "SOL" || list[2] != "USDC" {
		t.Fatalf("expected sorted symbols, got %v", list)
	}
}

func TestAssetDecimals(t *testing.T) {
	mgr := newManager(t)
	if _, ok, err := mgr.AssetDecimals("SOL"); err != nil || ok {
		t.Fatalf("unregistered asset: ok=%v err=%v", ok, err)
	}
	if err := mgr.RegisterAsset(AssetMetadata{Symbol: "SOL", Decimals: 9}); err != nil {
		t.Fatalf("RegisterAsset: %v", err)
	}
	decimals, ok, err := mgr.AssetDecimals("sol")
	if err != nil || !ok {
		t.Fatalf("AssetDecimals: ok=%v err=%v", ok, err)
	}
	if decimals != 9 {
		t.Fatalf("unexpected decimals: %d", decimals)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	mgr := newManager(t)
	addr := []byte{0x01, 0x02, 0x03}

	acc, err := mgr.GetAccount(addr)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acc.Balance("SOL").Sign() != 0 {
		t.Fatalf("fresh account must have zero balances")
	}

	acc.Nonce = 3
	acc.SetBalance("SOL", big.NewInt(1_000_000_000))
	acc.SetBalance("USDC", big.NewInt(42))
	if err := mgr.PutAccount(addr, acc); err != nil {
		t.Fatalf("PutAccount: %v", err)
	}

	stored, err := mgr.GetAccount(addr)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if stored.Nonce != 3 {
		t.Fatalf("nonce corrupted: %d", stored.Nonce)
	}
	if stored.Balance("SOL").Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Fatalf("SOL balance corrupted: %s", stored.Balance("SOL"))
	}
	if stored.Balance("USDC").Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("USDC balance corrupted: %s", stored.Balance("USDC"))
	}
}

func TestPutAccountNil(t *testing.T) {
	mgr := newManager(t)
	addr := []byte{0xAA}
	if err := mgr.PutAccount(addr, nil); err != nil {
		t.Fatalf("PutAccount nil: %v", err)
	}
	acc, err := mgr.GetAccount(addr)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acc == nil || acc.Nonce != 0 {
		t.Fatalf("expected empty account, got %+v", acc)
	}
}

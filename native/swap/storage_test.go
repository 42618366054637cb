package swap_test

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"otcswap/core/state"
	swappkg "otcswap/native/swap"
	"otcswap/storage"
)

func newTestManager(t *testing.T) *state.Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(db)
	if err := mgr.RegisterAsset(state.AssetMetadata{Symbol: "SOL", Name: "Wrapped SOL", Decimals: 9}); err != nil {
		t.Fatalf("register SOL: %v", err)
	}
	if err := mgr.RegisterAsset(state.AssetMetadata{Symbol: "USDC", Name: "USD Coin", Decimals: 6}); err != nil {
		t.Fatalf("register USDC: %v", err)
	}
	return mgr
}

func testOffer(depositor [20]byte) *swappkg.Offer {
	id := swappkg.OfferID("SOL", depositor)
	return &swappkg.Offer{
		ID:              id,
		AssetIn:         "SOL",
		AssetOut:        "USDC",
		DepositAmount:   big.NewInt(50_000_000),
		Depositor:       depositor,
		Vault:           swappkg.DeriveVault(id, 7),
		DerivationNonce: 7,
		CreatedAt:       1_700_000_000,
	}
}

func TestManagerOfferRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	var depositor [20]byte
	depositor[0] = 0x01
	offer := testOffer(depositor)

	if err := mgr.OfferInsert(offer); err != nil {
		t.Fatalf("OfferInsert: %v", err)
	}
	stored, ok, err := mgr.OfferGet(offer.ID)
	if err != nil {
		t.Fatalf("OfferGet: %v", err)
	}
	if !ok {
		t.Fatalf("expected offer to exist")
	}
	if stored.AssetIn != "SOL" || stored.AssetOut != "USDC" {
		t.Fatalf("asset symbols corrupted: %+v", stored)
	}
	if stored.DepositAmount.Cmp(offer.DepositAmount) != 0 {
		t.Fatalf("deposit amount corrupted: %s", stored.DepositAmount)
	}
	if stored.Vault != offer.Vault || stored.DerivationNonce != offer.DerivationNonce {
		t.Fatalf("vault binding corrupted")
	}
	if stored.CreatedAt != offer.CreatedAt {
		t.Fatalf("created timestamp corrupted: %d", stored.CreatedAt)
	}
}

func TestManagerOfferConditionalInsert(t *testing.T) {
	mgr := newTestManager(t)
	var depositor [20]byte
	depositor[0] = 0x01
	offer := testOffer(depositor)

	if err := mgr.OfferInsert(offer); err != nil {
		t.Fatalf("OfferInsert: %v", err)
	}
	if err := mgr.OfferInsert(offer); !errors.Is(err, state.ErrOfferExists) {
		t.Fatalf("expected ErrOfferExists, got %v", err)
	}
}

func TestManagerOfferConditionalDelete(t *testing.T) {
	mgr := newTestManager(t)
	var depositor [20]byte
	depositor[0] = 0x01
	offer := testOffer(depositor)

	if err := mgr.OfferDelete(offer.ID); !errors.Is(err, state.ErrOfferNotFound) {
		t.Fatalf("expected ErrOfferNotFound, got %v", err)
	}
	if err := mgr.OfferInsert(offer); err != nil {
		t.Fatalf("OfferInsert: %v", err)
	}
	if err := mgr.OfferDelete(offer.ID); err != nil {
		t.Fatalf("OfferDelete: %v", err)
	}
	if _, ok, err := mgr.OfferGet(offer.ID); err != nil || ok {
		t.Fatalf("offer must be gone after delete: ok=%v err=%v", ok, err)
	}
	// Deleting again surfaces the losing side of a settlement race.
	if err := mgr.OfferDelete(offer.ID); !errors.Is(err, state.ErrOfferNotFound) {
		t.Fatalf("expected ErrOfferNotFound after delete, got %v", err)
	}
}

func TestManagerSwapConfig(t *testing.T) {
	mgr := newTestManager(t)
	if _, ok, err := mgr.SwapConfigGet(); err != nil || ok {
		t.Fatalf("config must start empty: ok=%v err=%v", ok, err)
	}
	if err := mgr.SwapConfigPut(&swappkg.Config{BaseAsset: "sol", QuoteAsset: "usdc"}); err != nil {
		t.Fatalf("SwapConfigPut: %v", err)
	}
	cfg, ok, err := mgr.SwapConfigGet()
	if err != nil || !ok {
		t.Fatalf("SwapConfigGet: ok=%v err=%v", ok, err)
	}
	if cfg.BaseAsset != "SOL" || cfg.QuoteAsset != "USDC" {
		t.Fatalf("config not normalised: %+v", cfg)
	}
}

func TestManagerEngineEndToEnd(t *testing.T) {
	mgr := newTestManager(t)
	engine := swappkg.NewEngine()
	engine.SetState(mgr)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })

	if _, err := engine.InitConfig("SOL", "USDC"); err != nil {
		t.Fatalf("InitConfig: %v", err)
	}
	var depositor, taker [20]byte
	depositor[0] = 0x01
	taker[0] = 0x02

	fund := func(addr [20]byte, asset string, amount int64) {
		acc, err := mgr.GetAccount(addr[:])
		if err != nil {
			t.Fatalf("GetAccount: %v", err)
		}
		acc.SetBalance(asset, big.NewInt(amount))
		if err := mgr.PutAccount(addr[:], acc); err != nil {
			t.Fatalf("PutAccount: %v", err)
		}
	}
	fund(depositor, "SOL", 50_000_000)
	fund(taker, "USDC", 10_000_000)

	offer, err := engine.CreateOffer(depositor, "SOL", "USDC", big.NewInt(50_000_000))
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	sample := swappkg.PriceSample{Price: big.NewInt(10_000_000_000), Timestamp: now - 5}
	settlement, err := engine.TakeOffer(taker, "SOL", depositor, sample)
	if err != nil {
		t.Fatalf("TakeOffer: %v", err)
	}
	if settlement.CounterAmount.Cmp(big.NewInt(5_000_000)) != 0 {
		t.Fatalf("unexpected counter amount: %s", settlement.CounterAmount)
	}
	if _, ok, err := mgr.OfferGet(offer.ID); err != nil || ok {
		t.Fatalf("offer must be destroyed after settlement: ok=%v err=%v", ok, err)
	}
	takerAcc, err := mgr.GetAccount(taker[:])
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if takerAcc.Balance("SOL").Cmp(big.NewInt(50_000_000)) != 0 {
		t.Fatalf("taker deposit credit mismatch: %s", takerAcc.Balance("SOL"))
	}
	vaultAcc, err := mgr.GetAccount(offer.Vault[:])
	if err != nil {
		t.Fatalf("GetAccount vault: %v", err)
	}
	if vaultAcc.Balance("SOL").Sign() != 0 {
		t.Fatalf("vault must hold no residual balance: %s", vaultAcc.Balance("SOL"))
	}
}

// slowGetDB widens the read-check-act window so interleavings that would be
// rare in a fast in-memory store happen reliably.
type slowGetDB struct {
	storage.Database
}

func (d slowGetDB) Get(key []byte) ([]byte, error) {
	time.Sleep(2 * time.Millisecond)
	return d.Database.Get(key)
}

func fundThrough(t *testing.T, mgr *state.Manager, addr [20]byte, asset string, amount int64) {
	t.Helper()
	acc, err := mgr.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	acc.SetBalance(asset, big.NewInt(amount))
	if err := mgr.PutAccount(addr[:], acc); err != nil {
		t.Fatalf("PutAccount: %v", err)
	}
}

func TestTakeOfferConcurrentSingleWinner(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(slowGetDB{Database: db})
	if err := mgr.RegisterAsset(state.AssetMetadata{Symbol: "SOL", Decimals: 9}); err != nil {
		t.Fatalf("register SOL: %v", err)
	}
	if err := mgr.RegisterAsset(state.AssetMetadata{Symbol: "USDC", Decimals: 6}); err != nil {
		t.Fatalf("register USDC: %v", err)
	}
	engine := swappkg.NewEngine()
	engine.SetState(mgr)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })
	if _, err := engine.InitConfig("SOL", "USDC"); err != nil {
		t.Fatalf("InitConfig: %v", err)
	}

	var depositor, takerA, takerB [20]byte
	depositor[0] = 0x01
	takerA[0] = 0x02
	takerB[0] = 0x03
	fundThrough(t, mgr, depositor, "SOL", 50_000_000)
	fundThrough(t, mgr, takerA, "USDC", 10_000_000)
	fundThrough(t, mgr, takerB, "USDC", 10_000_000)

	if _, err := engine.CreateOffer(depositor, "SOL", "USDC", big.NewInt(50_000_000)); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	sample := swappkg.PriceSample{Price: big.NewInt(10_000_000_000), Timestamp: now - 5}
	takers := [][20]byte{takerA, takerB}
	results := make([]error, len(takers))
	var wg sync.WaitGroup
	for i := range takers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = engine.TakeOffer(takers[i], "SOL", depositor, sample)
		}(i)
	}
	wg.Wait()

	wins := 0
	for i, err := range results {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, swappkg.ErrOfferNotFound) {
			t.Fatalf("taker %d: expected ErrOfferNotFound for the loser, got %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one settlement, got %d", wins)
	}

	depositorAcc, err := mgr.GetAccount(depositor[:])
	if err != nil {
		t.Fatalf("GetAccount depositor: %v", err)
	}
	if depositorAcc.Balance("USDC").Cmp(big.NewInt(5_000_000)) != 0 {
		t.Fatalf("depositor must be credited exactly once: %s", depositorAcc.Balance("USDC"))
	}
	// The loser keeps its funds; the winner paid and holds the deposit.
	for i, taker := range takers {
		acc, err := mgr.GetAccount(taker[:])
		if err != nil {
			t.Fatalf("GetAccount taker %d: %v", i, err)
		}
		if results[i] == nil {
			if acc.Balance("USDC").Cmp(big.NewInt(5_000_000)) != 0 {
				t.Fatalf("winner USDC mismatch: %s", acc.Balance("USDC"))
			}
			if acc.Balance("SOL").Cmp(big.NewInt(50_000_000)) != 0 {
				t.Fatalf("winner SOL mismatch: %s", acc.Balance("SOL"))
			}
		} else {
			if acc.Balance("USDC").Cmp(big.NewInt(10_000_000)) != 0 {
				t.Fatalf("loser must keep its balance: %s", acc.Balance("USDC"))
			}
			if acc.Balance("SOL").Sign() != 0 {
				t.Fatalf("loser must not receive the deposit: %s", acc.Balance("SOL"))
			}
		}
	}
}

func TestCreateOfferConcurrentSingleWinner(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(slowGetDB{Database: db})
	if err := mgr.RegisterAsset(state.AssetMetadata{Symbol: "SOL", Decimals: 9}); err != nil {
		t.Fatalf("register SOL: %v", err)
	}
	if err := mgr.RegisterAsset(state.AssetMetadata{Symbol: "USDC", Decimals: 6}); err != nil {
		t.Fatalf("register USDC: %v", err)
	}
	engine := swappkg.NewEngine()
	engine.SetState(mgr)
	if _, err := engine.InitConfig("SOL", "USDC"); err != nil {
		t.Fatalf("InitConfig: %v", err)
	}

	var depositor [20]byte
	depositor[0] = 0x01
	fundThrough(t, mgr, depositor, "SOL", 50_000_000)

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = engine.CreateOffer(depositor, "SOL", "USDC", big.NewInt(25_000_000))
		}(i)
	}
	wg.Wait()

	wins := 0
	for i, err := range results {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, swappkg.ErrOfferExists) {
			t.Fatalf("create %d: expected ErrOfferExists for the loser, got %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one created offer, got %d", wins)
	}

	offer, ok, err := mgr.OfferGet(swappkg.OfferID("SOL", depositor))
	if err != nil || !ok {
		t.Fatalf("OfferGet: ok=%v err=%v", ok, err)
	}
	depositorAcc, err := mgr.GetAccount(depositor[:])
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if depositorAcc.Balance("SOL").Cmp(big.NewInt(25_000_000)) != 0 {
		t.Fatalf("depositor must be debited exactly once: %s", depositorAcc.Balance("SOL"))
	}
	vaultAcc, err := mgr.GetAccount(offer.Vault[:])
	if err != nil {
		t.Fatalf("GetAccount vault: %v", err)
	}
	if vaultAcc.Balance("SOL").Cmp(big.NewInt(25_000_000)) != 0 {
		t.Fatalf("vault must hold exactly one deposit: %s", vaultAcc.Balance("SOL"))
	}
}

func TestTakeOfferAbortCommitsNothing(t *testing.T) {
	mgr := newTestManager(t)
	engine := swappkg.NewEngine()
	engine.SetState(mgr)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })
	if _, err := engine.InitConfig("SOL", "USDC"); err != nil {
		t.Fatalf("InitConfig: %v", err)
	}

	var depositor, taker [20]byte
	depositor[0] = 0x01
	taker[0] = 0x02
	fundThrough(t, mgr, depositor, "SOL", 50_000_000)
	fundThrough(t, mgr, taker, "USDC", 10_000_000)

	offer, err := engine.CreateOffer(depositor, "SOL", "USDC", big.NewInt(50_000_000))
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	// Corrupt the vault so settlement fails after the counter transfer has
	// been staged; none of the staged writes may reach the store.
	fundThrough(t, mgr, offer.Vault, "SOL", 49_000_000)

	sample := swappkg.PriceSample{Price: big.NewInt(10_000_000_000), Timestamp: now - 5}
	if _, err := engine.TakeOffer(taker, "SOL", depositor, sample); err == nil {
		t.Fatalf("expected settlement against a corrupted vault to fail")
	}

	takerAcc, err := mgr.GetAccount(taker[:])
	if err != nil {
		t.Fatalf("GetAccount taker: %v", err)
	}
	if takerAcc.Balance("USDC").Cmp(big.NewInt(10_000_000)) != 0 {
		t.Fatalf("aborted settlement must not move taker funds: %s", takerAcc.Balance("USDC"))
	}
	depositorAcc, err := mgr.GetAccount(depositor[:])
	if err != nil {
		t.Fatalf("GetAccount depositor: %v", err)
	}
	if depositorAcc.Balance("USDC").Sign() != 0 {
		t.Fatalf("aborted settlement must not credit the depositor: %s", depositorAcc.Balance("USDC"))
	}
	if _, ok, err := mgr.OfferGet(offer.ID); err != nil || !ok {
		t.Fatalf("aborted settlement must leave the offer record: ok=%v err=%v", ok, err)
	}
}

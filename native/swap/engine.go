package swap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"otcswap/core/events"
	"otcswap/core/types"
)

var errNilState = errors.New("swap engine: state not configured")

// defaultMaxPriceAge bounds how old an oracle sample may be at the instant of
// settlement.
const defaultMaxPriceAge = 60 * time.Second

type engineState interface {
	SwapConfigPut(*Config) error
	SwapConfigGet() (*Config, bool, error)
	OfferInsert(*Offer) error
	OfferGet(id [32]byte) (*Offer, bool, error)
	OfferDelete(id [32]byte) error
	AssetDecimals(symbol string) (uint8, bool, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type swapEvent struct {
	evt *types.Event
}

func (e swapEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e swapEvent) Event() *types.Event { return e.evt }

// Engine implements the offer lifecycle: configuration, creation, settlement
// and cancellation. Each entry point is a single atomic state transition: a
// mutex serializes the mutating entry points and every transition stages its
// writes in an overlay that only flushes to the backing state once the whole
// transition has succeeded. Of two racing settlements exactly one observes
// the offer record; the loser fails before any of its writes commit.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	maxPriceAge time.Duration
	nowFn       func() int64

	mu sync.Mutex
}

// NewEngine creates a swap engine with a no-op emitter and the default price
// staleness bound. Callers can override both via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter:     events.NoopEmitter{},
		maxPriceAge: defaultMaxPriceAge,
		nowFn:       func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetMaxPriceAge overrides the staleness bound applied to oracle samples. A
// zero duration disables the check; negative values are ignored.
func (e *Engine) SetMaxPriceAge(maxAge time.Duration) {
	if e == nil || maxAge < 0 {
		return
	}
	e.maxPriceAge = maxAge
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(swapEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// OfferID derives the deterministic storage identifier for the offer a
// depositor may hold in the given input asset. Same inputs always yield the
// same identifier, which caps each (asset, depositor) pair at one active
// offer.
func OfferID(assetIn string, depositor [20]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte(assetIn), depositor[:])
}

// DeriveVault recomputes the custody account address controlled by the offer
// record. Only the engine itself exercises this authority; there is no key
// that can sign for the vault.
func DeriveVault(offerID [32]byte, nonce uint64) [20]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	hash := ethcrypto.Keccak256(offerID[:], buf[:], []byte("vault"))
	var vault [20]byte
	copy(vault[:], hash[12:])
	return vault
}

func derivationNonce(offerID [32]byte) uint64 {
	hash := ethcrypto.Keccak256(offerID[:], []byte("vault-authority"))
	return binary.BigEndian.Uint64(hash[:8])
}

func (e *Engine) loadConfig(st engineState) (*Config, error) {
	if st == nil {
		return nil, errNilState
	}
	cfg, ok, err := st.SwapConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConfigNotSet
	}
	return cfg, nil
}

// InitConfig writes the module configuration singleton naming the allowed
// asset pair. The operation is administrative and one-time: re-initialising
// with the identical pair is idempotent, any other pair fails.
func (e *Engine) InitConfig(baseAsset, quoteAsset string) (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	base, err := NormalizeAsset(baseAsset)
	if err != nil {
		return nil, err
	}
	quote, err := NormalizeAsset(quoteAsset)
	if err != nil {
		return nil, err
	}
	if base == quote {
		return nil, ErrSameToken
	}
	if _, ok, err := e.state.AssetDecimals(base); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("swap: base asset %s not registered", base)
	}
	if _, ok, err := e.state.AssetDecimals(quote); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("swap: quote asset %s not registered", quote)
	}
	existing, ok, err := e.state.SwapConfigGet()
	if err != nil {
		return nil, err
	}
	if ok {
		if existing.BaseAsset != base || existing.QuoteAsset != quote {
			return nil, fmt.Errorf("swap: config already initialised with different pair")
		}
		return existing, nil
	}
	cfg := &Config{BaseAsset: base, QuoteAsset: quote}
	if err := e.state.SwapConfigPut(cfg); err != nil {
		return nil, err
	}
	e.emit(NewConfigInitializedEvent(cfg))
	return cfg, nil
}

// CreateOffer validates the request, takes custody of the deposited amount in
// the derived vault and persists the offer record. The custody transfer and
// the record insert stage in an overlay and commit together; a failure at any
// point leaves no partial state behind.
func (e *Engine) CreateOffer(depositor [20]byte, assetIn, assetOut string, amount *big.Int) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	overlay := newStateOverlay(e.state)
	cfg, err := e.loadConfig(overlay)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil, ErrAmountZero
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("swap: negative deposit amount")
	}
	if !amount.IsUint64() {
		return nil, ErrAmountOverflow
	}
	tokenIn, err := NormalizeAsset(assetIn)
	if err != nil {
		return nil, err
	}
	tokenOut, err := NormalizeAsset(assetOut)
	if err != nil {
		return nil, err
	}
	if !cfg.Allows(tokenIn) {
		return nil, ErrInvalidTokenIn
	}
	if !cfg.Allows(tokenOut) {
		return nil, ErrInvalidTokenOut
	}
	if tokenIn == tokenOut {
		return nil, ErrSameToken
	}
	id := OfferID(tokenIn, depositor)
	if _, ok, err := overlay.OfferGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrOfferExists
	}
	nonce := derivationNonce(id)
	vault := DeriveVault(id, nonce)
	decimals, ok, err := overlay.AssetDecimals(tokenIn)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("swap: asset %s not registered", tokenIn)
	}
	if err := transferChecked(overlay, depositor, vault, tokenIn, amount, decimals); err != nil {
		return nil, err
	}
	offer := &Offer{
		ID:              id,
		AssetIn:         tokenIn,
		AssetOut:        tokenOut,
		DepositAmount:   new(big.Int).Set(amount),
		Depositor:       depositor,
		Vault:           vault,
		DerivationNonce: nonce,
		CreatedAt:       e.now(),
	}
	if err := overlay.OfferInsert(offer); err != nil {
		return nil, err
	}
	if err := overlay.commit(); err != nil {
		return nil, err
	}
	e.emit(NewOfferCreatedEvent(offer))
	return offer.Clone(), nil
}

// TakeOffer settles the offer held by depositor in assetIn: the taker pays
// the counter amount computed from the supplied price sample, receives the
// vault deposit under the offer's derived authority and the offer record is
// destroyed. The engine mutex serializes racing takers so exactly one
// observes the record, and the staged overlay guarantees the whole transition
// commits or none of it does.
func (e *Engine) TakeOffer(taker [20]byte, assetIn string, depositor [20]byte, sample PriceSample) (*Settlement, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	overlay := newStateOverlay(e.state)
	cfg, err := e.loadConfig(overlay)
	if err != nil {
		return nil, err
	}
	tokenIn, err := NormalizeAsset(assetIn)
	if err != nil {
		return nil, err
	}
	id := OfferID(tokenIn, depositor)
	offer, ok, err := overlay.OfferGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	if offer.Depositor != depositor || offer.AssetIn != tokenIn {
		return nil, fmt.Errorf("swap: offer binding mismatch")
	}
	if DeriveVault(offer.ID, offer.DerivationNonce) != offer.Vault {
		return nil, ErrVaultMismatch
	}
	if err := sample.Validate(e.now(), e.maxPriceAge); err != nil {
		return nil, err
	}
	var counter *big.Int
	switch {
	case offer.AssetIn == cfg.BaseAsset:
		counter, err = QuoteFromBase(offer.DepositAmount, sample.Price)
	case offer.AssetIn == cfg.QuoteAsset:
		counter, err = BaseFromQuote(offer.DepositAmount, sample.Price)
	default:
		return nil, ErrInvalidTokenIn
	}
	if err != nil {
		return nil, err
	}
	if counter.Sign() == 0 {
		return nil, fmt.Errorf("swap: computed counter amount is zero")
	}
	decimalsOut, ok, err := overlay.AssetDecimals(offer.AssetOut)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("swap: asset %s not registered", offer.AssetOut)
	}
	decimalsIn, ok, err := overlay.AssetDecimals(offer.AssetIn)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("swap: asset %s not registered", offer.AssetIn)
	}
	if err := transferChecked(overlay, taker, depositor, offer.AssetOut, counter, decimalsOut); err != nil {
		return nil, err
	}
	if err := releaseVault(overlay, offer, taker, decimalsIn); err != nil {
		return nil, err
	}
	if err := overlay.OfferDelete(id); err != nil {
		return nil, err
	}
	if err := overlay.commit(); err != nil {
		return nil, err
	}
	settlement := &Settlement{
		OfferID:       id,
		AssetIn:       offer.AssetIn,
		AssetOut:      offer.AssetOut,
		DepositAmount: new(big.Int).Set(offer.DepositAmount),
		CounterAmount: counter,
		Price:         new(big.Int).Set(sample.Price),
		Depositor:     depositor,
		Taker:         taker,
	}
	e.emit(NewOfferSettledEvent(offer, settlement))
	return settlement, nil
}

// CancelOffer lets the depositor withdraw an unsettled offer: the vault
// balance returns to the depositor and the record is destroyed, mirroring the
// destruction performed by TakeOffer.
func (e *Engine) CancelOffer(caller [20]byte, assetIn string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	overlay := newStateOverlay(e.state)
	tokenIn, err := NormalizeAsset(assetIn)
	if err != nil {
		return err
	}
	id := OfferID(tokenIn, caller)
	offer, ok, err := overlay.OfferGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOfferNotFound
	}
	if offer.Depositor != caller {
		return fmt.Errorf("swap: unauthorized cancel caller")
	}
	decimals, ok, err := overlay.AssetDecimals(offer.AssetIn)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("swap: asset %s not registered", offer.AssetIn)
	}
	if err := releaseVault(overlay, offer, offer.Depositor, decimals); err != nil {
		return err
	}
	if err := overlay.OfferDelete(id); err != nil {
		return err
	}
	if err := overlay.commit(); err != nil {
		return err
	}
	e.emit(NewOfferCancelledEvent(offer))
	return nil
}

// GetOffer loads the active offer for the given pair, if any.
func (e *Engine) GetOffer(assetIn string, depositor [20]byte) (*Offer, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	tokenIn, err := NormalizeAsset(assetIn)
	if err != nil {
		return nil, false, err
	}
	return e.state.OfferGet(OfferID(tokenIn, depositor))
}

// releaseVault drains the full deposit from the offer's vault to the
// recipient. The vault has no signing key; reaching this function through the
// engine is the only way its balance can move.
func releaseVault(st engineState, offer *Offer, to [20]byte, decimals uint8) error {
	if offer == nil {
		return fmt.Errorf("swap: nil offer")
	}
	vaultAcc, err := st.GetAccount(offer.Vault[:])
	if err != nil {
		return err
	}
	if vaultAcc.Balance(offer.AssetIn).Cmp(offer.DepositAmount) != 0 {
		return fmt.Errorf("swap: vault balance does not match deposit")
	}
	return transferChecked(st, offer.Vault, to, offer.AssetIn, offer.DepositAmount, decimals)
}

// transferChecked moves amount of asset between accounts, verifying the
// supplied decimal precision against the asset registry before touching
// balances. A mismatch means the caller bound the wrong asset metadata and is
// treated as fatal.
func transferChecked(st engineState, from, to [20]byte, asset string, amount *big.Int, decimals uint8) error {
	if st == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountZero
	}
	registered, ok, err := st.AssetDecimals(asset)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("swap: asset %s not registered", asset)
	}
	if registered != decimals {
		return fmt.Errorf("swap: decimals mismatch for %s: expected %d got %d", asset, registered, decimals)
	}
	fromAcc, err := st.GetAccount(from[:])
	if err != nil {
		return err
	}
	balance := fromAcc.Balance(asset)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("swap: insufficient %s balance", asset)
	}
	if from == to {
		return nil
	}
	toAcc, err := st.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc.SetBalance(asset, new(big.Int).Sub(balance, amount))
	toAcc.SetBalance(asset, new(big.Int).Add(toAcc.Balance(asset), amount))
	if err := st.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return st.PutAccount(to[:], toAcc)
}

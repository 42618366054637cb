package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"otcswap/core/types"
	"otcswap/native/swap"
	"otcswap/storage"
)

var (
	// ErrOfferExists is returned by OfferInsert when a record is already
	// present at the derived key. Conditional insertion is the concurrency
	// control primitive for the swap module.
	ErrOfferExists = errors.New("state: offer already exists")
	// ErrOfferNotFound is returned by OfferDelete when there is nothing to
	// remove at the derived key.
	ErrOfferNotFound = errors.New("state: offer not found")
)

// Manager provides keyed access to the persisted swap state: accounts, the
// asset registry, offer records and the module configuration singleton.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// AssetMetadata describes one registered fungible asset.
type AssetMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

var (
	assetPrefix   = []byte("asset:")
	assetListKey  = ethcrypto.Keccak256([]byte("asset-list"))
	accountPrefix = []byte("account:")
	offerPrefix   = []byte("swap/offer/")
	configKey     = ethcrypto.Keccak256([]byte("swap/config"))
)

func assetKey(symbol string) []byte {
	buf := make([]byte, len(assetPrefix)+len(symbol))
	copy(buf, assetPrefix)
	copy(buf[len(assetPrefix):], symbol)
	return ethcrypto.Keccak256(buf)
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func offerKey(id [32]byte) []byte {
	buf := make([]byte, len(offerPrefix)+len(id))
	copy(buf, offerPrefix)
	copy(buf[len(offerPrefix):], id[:])
	return ethcrypto.Keccak256(buf)
}

type storedBalance struct {
	Symbol string
	Amount *big.Int
}

type storedAccount struct {
	Nonce    uint64
	Balances []storedBalance
}

type storedOffer struct {
	ID              [32]byte
	AssetIn         string
	AssetOut        string
	DepositAmount   *big.Int
	Depositor       [20]byte
	Vault           [20]byte
	DerivationNonce uint64
	CreatedAt       uint64
}

type storedConfig struct {
	BaseAsset  string
	QuoteAsset string
}

// RegisterAsset records the metadata for a fungible asset and adds it to the
// asset index. Re-registering an existing symbol fails.
func (m *Manager) RegisterAsset(meta AssetMetadata) error {
	symbol := strings.ToUpper(strings.TrimSpace(meta.Symbol))
	if symbol == "" {
		return fmt.Errorf("state: asset symbol required")
	}
	existing, ok, err := m.AssetMetadata(symbol)
	if err != nil {
		return err
	}
	if ok && existing != nil {
		return fmt.Errorf("state: asset %s already registered", symbol)
	}
	meta.Symbol = symbol
	encoded, err := rlp.EncodeToBytes(&meta)
	if err != nil {
		return err
	}
	if err := m.db.Put(assetKey(symbol), encoded); err != nil {
		return err
	}
	list, err := m.AssetList()
	if err != nil {
		return err
	}
	list = append(list, symbol)
	sort.Strings(list)
	encodedList, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.db.Put(assetListKey, encodedList)
}

// AssetMetadata loads the metadata for a registered asset symbol.
func (m *Manager) AssetMetadata(symbol string) (*AssetMetadata, bool, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	data, err := m.db.Get(assetKey(normalized))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	meta := new(AssetMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

// AssetDecimals reports the decimal precision of a registered asset.
func (m *Manager) AssetDecimals(symbol string) (uint8, bool, error) {
	meta, ok, err := m.AssetMetadata(symbol)
	if err != nil || !ok {
		return 0, ok, err
	}
	return meta.Decimals, true, nil
}

// AssetList returns the sorted symbols of all registered assets.
func (m *Manager) AssetList() ([]string, error) {
	data, err := m.db.Get(assetListKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []string{}, nil
	}
	var list []string
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetAccount loads the account stored at the given address. Unknown addresses
// yield an empty account so callers can treat every address as existing with
// zero balances.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, err := m.db.Get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return types.NewAccount(), nil
	}
	stored := new(storedAccount)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, err
	}
	account := types.NewAccount()
	account.Nonce = stored.Nonce
	for _, entry := range stored.Balances {
		account.SetBalance(entry.Symbol, entry.Amount)
	}
	return account, nil
}

// PutAccount persists the account at the given address. Balances are stored
// sorted by symbol to keep the encoding deterministic.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		account = types.NewAccount()
	}
	stored := &storedAccount{Nonce: account.Nonce}
	symbols := make([]string, 0, len(account.Balances))
	for symbol := range account.Balances {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		stored.Balances = append(stored.Balances, storedBalance{Symbol: symbol, Amount: account.Balance(symbol)})
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}

// OfferInsert persists a new offer record. The insert is conditional: a
// record already present under the same identifier fails with ErrOfferExists,
// which gives offer creation its single-writer-wins semantics.
func (m *Manager) OfferInsert(offer *swap.Offer) error {
	sanitized, err := swap.SanitizeOffer(offer)
	if err != nil {
		return err
	}
	key := offerKey(sanitized.ID)
	existing, err := m.db.Get(key)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return ErrOfferExists
	}
	if sanitized.CreatedAt < 0 {
		return fmt.Errorf("state: offer created before epoch")
	}
	stored := &storedOffer{
		ID:              sanitized.ID,
		AssetIn:         sanitized.AssetIn,
		AssetOut:        sanitized.AssetOut,
		DepositAmount:   sanitized.DepositAmount,
		Depositor:       sanitized.Depositor,
		Vault:           sanitized.Vault,
		DerivationNonce: sanitized.DerivationNonce,
		CreatedAt:       uint64(sanitized.CreatedAt),
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// OfferGet loads the offer stored under the given identifier.
func (m *Manager) OfferGet(id [32]byte) (*swap.Offer, bool, error) {
	data, err := m.db.Get(offerKey(id))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	stored := new(storedOffer)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, err
	}
	offer := &swap.Offer{
		ID:              stored.ID,
		AssetIn:         stored.AssetIn,
		AssetOut:        stored.AssetOut,
		DepositAmount:   stored.DepositAmount,
		Depositor:       stored.Depositor,
		Vault:           stored.Vault,
		DerivationNonce: stored.DerivationNonce,
		CreatedAt:       int64(stored.CreatedAt),
	}
	sanitized, err := swap.SanitizeOffer(offer)
	if err != nil {
		return nil, false, err
	}
	return sanitized, true, nil
}

// OfferDelete removes the offer stored under the given identifier. Deleting a
// missing record fails with ErrOfferNotFound so a double settlement surfaces
// as a clean failure instead of a silent no-op.
func (m *Manager) OfferDelete(id [32]byte) error {
	key := offerKey(id)
	existing, err := m.db.Get(key)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return ErrOfferNotFound
	}
	return m.db.Delete(key)
}

// SwapConfigPut persists the module configuration singleton.
func (m *Manager) SwapConfigPut(cfg *swap.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil swap config")
	}
	stored := &storedConfig{
		BaseAsset:  strings.ToUpper(strings.TrimSpace(cfg.BaseAsset)),
		QuoteAsset: strings.ToUpper(strings.TrimSpace(cfg.QuoteAsset)),
	}
	if stored.BaseAsset == "" || stored.QuoteAsset == "" {
		return fmt.Errorf("state: swap config requires base and quote assets")
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return m.db.Put(configKey, encoded)
}

// SwapConfigGet loads the module configuration singleton.
func (m *Manager) SwapConfigGet() (*swap.Config, bool, error) {
	data, err := m.db.Get(configKey)
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	stored := new(storedConfig)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, err
	}
	return &swap.Config{BaseAsset: stored.BaseAsset, QuoteAsset: stored.QuoteAsset}, true, nil
}

package swap

import (
	"bytes"
	"fmt"
	"sort"

	"otcswap/core/types"
)

// stateOverlay buffers the mutations performed during one engine entry point
// so the backing state only changes once the whole transition has succeeded.
// Reads see staged writes first and fall through to the backend; commit
// flushes the staged writes in a deterministic order. An entry point that
// fails before commit leaves the backend untouched.
type stateOverlay struct {
	backend engineState

	accounts map[[20]byte]*types.Account
	inserted map[[32]byte]*Offer
	deleted  map[[32]byte]bool
	config   *Config
}

func newStateOverlay(backend engineState) *stateOverlay {
	return &stateOverlay{
		backend:  backend,
		accounts: make(map[[20]byte]*types.Account),
		inserted: make(map[[32]byte]*Offer),
		deleted:  make(map[[32]byte]bool),
	}
}

func overlayAccountKey(addr []byte) [20]byte {
	var key [20]byte
	copy(key[:], addr)
	return key
}

func (o *stateOverlay) SwapConfigPut(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("swap: nil config")
	}
	clone := *cfg
	o.config = &clone
	return nil
}

func (o *stateOverlay) SwapConfigGet() (*Config, bool, error) {
	if o.config != nil {
		clone := *o.config
		return &clone, true, nil
	}
	return o.backend.SwapConfigGet()
}

func (o *stateOverlay) OfferInsert(offer *Offer) error {
	sanitized, err := SanitizeOffer(offer)
	if err != nil {
		return err
	}
	if _, ok, err := o.OfferGet(sanitized.ID); err != nil {
		return err
	} else if ok {
		return ErrOfferExists
	}
	delete(o.deleted, sanitized.ID)
	o.inserted[sanitized.ID] = sanitized
	return nil
}

func (o *stateOverlay) OfferGet(id [32]byte) (*Offer, bool, error) {
	if o.deleted[id] {
		return nil, false, nil
	}
	if staged, ok := o.inserted[id]; ok {
		return staged.Clone(), true, nil
	}
	return o.backend.OfferGet(id)
}

func (o *stateOverlay) OfferDelete(id [32]byte) error {
	if o.deleted[id] {
		return ErrOfferNotFound
	}
	if _, ok := o.inserted[id]; ok {
		delete(o.inserted, id)
		return nil
	}
	if _, ok, err := o.backend.OfferGet(id); err != nil {
		return err
	} else if !ok {
		return ErrOfferNotFound
	}
	o.deleted[id] = true
	return nil
}

func (o *stateOverlay) AssetDecimals(symbol string) (uint8, bool, error) {
	return o.backend.AssetDecimals(symbol)
}

func (o *stateOverlay) GetAccount(addr []byte) (*types.Account, error) {
	if staged, ok := o.accounts[overlayAccountKey(addr)]; ok {
		return staged.Clone(), nil
	}
	return o.backend.GetAccount(addr)
}

func (o *stateOverlay) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		account = types.NewAccount()
	}
	o.accounts[overlayAccountKey(addr)] = account.Clone()
	return nil
}

// commit flushes the staged writes to the backend. Account writes flush in
// address order to keep the write sequence deterministic.
func (o *stateOverlay) commit() error {
	if o.config != nil {
		if err := o.backend.SwapConfigPut(o.config); err != nil {
			return err
		}
	}
	keys := make([][20]byte, 0, len(o.accounts))
	for key := range o.accounts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	for _, key := range keys {
		if err := o.backend.PutAccount(key[:], o.accounts[key]); err != nil {
			return err
		}
	}
	for id := range o.inserted {
		if err := o.backend.OfferInsert(o.inserted[id]); err != nil {
			return err
		}
	}
	for id := range o.deleted {
		if err := o.backend.OfferDelete(id); err != nil {
			return err
		}
	}
	return nil
}

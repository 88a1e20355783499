// Package registry hosts in-process asset registries for local networks and
// integration tests. Production deployments point the gateway's RegistrySet
// at real external registries instead; the trade engine never depends on this
// package.
package registry

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"tradevault/native/trade"
)

var (
	// ErrUnknownRegistry is returned when a resolved address has no
	// registered backing registry.
	ErrUnknownRegistry = errors.New("registry: unknown registry address")
	// ErrNotOwner is returned for item transfers not initiated by the
	// current owner or an approved operator.
	ErrNotOwner = errors.New("registry: caller does not own item")
)

// ItemRegistry is an in-memory non-fungible registry tracking per-item
// owners. Transfers through the registry assume the operator has been
// approved out of band, matching the pull-authorization precondition of the
// gateway contract.
type ItemRegistry struct {
	mu     sync.Mutex
	owners map[string][20]byte
}

// NewItemRegistry constructs an empty item registry.
func NewItemRegistry() *ItemRegistry {
	return &ItemRegistry{owners: make(map[string][20]byte)}
}

func itemKey(itemID *big.Int) string {
	if itemID == nil {
		return ""
	}
	return itemID.String()
}

// Mint assigns a fresh item to an owner.
func (r *ItemRegistry) Mint(owner [20]byte, itemID *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := itemKey(itemID)
	if _, ok := r.owners[key]; ok {
		return fmt.Errorf("registry: item %s already minted", key)
	}
	r.owners[key] = owner
	return nil
}

// OwnerOf returns the current owner of an item.
func (r *ItemRegistry) OwnerOf(itemID *big.Int) ([20]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[itemKey(itemID)]
	if !ok {
		return [20]byte{}, fmt.Errorf("registry: item %s not minted", itemKey(itemID))
	}
	return owner, nil
}

// TransferFrom moves an item between addresses.
func (r *ItemRegistry) TransferFrom(from, to [20]byte, itemID *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := itemKey(itemID)
	owner, ok := r.owners[key]
	if !ok {
		return fmt.Errorf("registry: item %s not minted", key)
	}
	if owner != from {
		return ErrNotOwner
	}
	r.owners[key] = to
	return nil
}

// FundRegistry is an in-memory fungible registry tracking per-address
// balances. Transfer debits the custody holder directly, TransferFrom
// performs the authorized pull.
type FundRegistry struct {
	mu       sync.Mutex
	holder   [20]byte
	balances map[[20]byte]*big.Int
}

// NewFundRegistry constructs an empty fund registry whose direct Transfer
// calls debit the given holder (the custody address).
func NewFundRegistry(holder [20]byte) *FundRegistry {
	return &FundRegistry{holder: holder, balances: make(map[[20]byte]*big.Int)}
}

// Mint credits an address with new units.
func (r *FundRegistry) Mint(addr [20]byte, amount *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credit(addr, amount)
}

func (r *FundRegistry) credit(addr [20]byte, amount *big.Int) {
	if amount == nil {
		return
	}
	bal, ok := r.balances[addr]
	if !ok {
		bal = big.NewInt(0)
	}
	r.balances[addr] = new(big.Int).Add(bal, amount)
}

func (r *FundRegistry) debit(addr [20]byte, amount *big.Int) bool {
	bal, ok := r.balances[addr]
	if !ok || amount == nil || bal.Cmp(amount) < 0 {
		return false
	}
	r.balances[addr] = new(big.Int).Sub(bal, amount)
	return true
}

// BalanceOf returns the units held by an address.
func (r *FundRegistry) BalanceOf(addr [20]byte) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal, ok := r.balances[addr]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

// Transfer pushes units from the holder to the recipient.
func (r *FundRegistry) Transfer(to [20]byte, amount *big.Int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.debit(r.holder, amount) {
		return false, nil
	}
	r.credit(to, amount)
	return true, nil
}

// TransferFrom pulls units from an address that authorized the holder.
func (r *FundRegistry) TransferFrom(from, to [20]byte, amount *big.Int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.debit(from, amount) {
		return false, nil
	}
	r.credit(to, amount)
	return true, nil
}

// Set is an address-keyed collection of in-process registries implementing
// trade.RegistrySet.
type Set struct {
	mu    sync.Mutex
	items map[[20]byte]*ItemRegistry
	funds map[[20]byte]*FundRegistry
}

// NewSet constructs an empty registry set.
func NewSet() *Set {
	return &Set{
		items: make(map[[20]byte]*ItemRegistry),
		funds: make(map[[20]byte]*FundRegistry),
	}
}

// AddItemRegistry registers an item registry under an address.
func (s *Set) AddItemRegistry(addr [20]byte, r *ItemRegistry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[addr] = r
}

// AddFundRegistry registers a fund registry under an address.
func (s *Set) AddFundRegistry(addr [20]byte, r *FundRegistry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funds[addr] = r
}

// NonFungible resolves an item registry by address.
func (s *Set) NonFungible(addr [20]byte) (trade.NonFungibleRegistry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[addr]
	if !ok {
		return nil, ErrUnknownRegistry
	}
	return r, nil
}

// Fungible resolves a fund registry by address.
func (s *Set) Fungible(addr [20]byte) (trade.FungibleRegistry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.funds[addr]
	if !ok {
		return nil, ErrUnknownRegistry
	}
	return r, nil
}

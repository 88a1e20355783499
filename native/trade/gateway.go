package trade

import (
	"fmt"
	"math/big"
)

// NonFungibleRegistry is the consumed contract of an external registry
// tracking uniquely identified items. Pull transfers require the owner to
// have pre-authorized the custody address.
type NonFungibleRegistry interface {
	OwnerOf(itemID *big.Int) ([20]byte, error)
	TransferFrom(from, to [20]byte, itemID *big.Int) error
}

// FungibleRegistry is the consumed contract of an external registry tracking
// interchangeable balances.
type FungibleRegistry interface {
	BalanceOf(addr [20]byte) (*big.Int, error)
	Transfer(to [20]byte, amount *big.Int) (bool, error)
	TransferFrom(from, to [20]byte, amount *big.Int) (bool, error)
}

// RegistrySet resolves registry addresses referenced by asset entries to
// live registry clients.
type RegistrySet interface {
	NonFungible(registry [20]byte) (NonFungibleRegistry, error)
	Fungible(registry [20]byte) (FungibleRegistry, error)
}

// Gateway is the only component that calls out to external asset registries.
// Every call either succeeds, moving exactly the one asset it names, or
// returns an error wrapping ErrExternalCall; the enclosing engine operation
// then aborts and reverts all of its ledger writes. The gateway itself holds
// no state beyond the custody address assets are parked at.
type Gateway struct {
	registries RegistrySet
	custody    [20]byte
}

// NewGateway constructs a gateway moving assets in and out of the given
// custody address.
func NewGateway(registries RegistrySet, custody [20]byte) *Gateway {
	return &Gateway{registries: registries, custody: custody}
}

// Custody returns the address assets are held at while deposited.
func (g *Gateway) Custody() [20]byte { return g.custody }

func (g *Gateway) nonFungible(registry [20]byte) (NonFungibleRegistry, error) {
	if g == nil || g.registries == nil {
		return nil, fmt.Errorf("%w: no registry set configured", ErrExternalCall)
	}
	client, err := g.registries.NonFungible(registry)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve item registry %x: %v", ErrExternalCall, registry, err)
	}
	return client, nil
}

func (g *Gateway) fungible(registry [20]byte) (FungibleRegistry, error) {
	if g == nil || g.registries == nil {
		return nil, fmt.Errorf("%w: no registry set configured", ErrExternalCall)
	}
	client, err := g.registries.Fungible(registry)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve fund registry %x: %v", ErrExternalCall, registry, err)
	}
	return client, nil
}

// PullItem moves an item from its owner into custody via an authorized pull.
func (g *Gateway) PullItem(registry, owner [20]byte, itemID *big.Int) error {
	client, err := g.nonFungible(registry)
	if err != nil {
		return err
	}
	if err := client.TransferFrom(owner, g.custody, itemID); err != nil {
		return fmt.Errorf("%w: pull item %s from %x: %v", ErrExternalCall, itemID, owner, err)
	}
	return nil
}

// PushItem moves an item out of custody to the recipient.
func (g *Gateway) PushItem(registry, recipient [20]byte, itemID *big.Int) error {
	client, err := g.nonFungible(registry)
	if err != nil {
		return err
	}
	if err := client.TransferFrom(g.custody, recipient, itemID); err != nil {
		return fmt.Errorf("%w: push item %s to %x: %v", ErrExternalCall, itemID, recipient, err)
	}
	return nil
}

// PullFunds moves a fungible quantity from its owner into custody via an
// authorized pull.
func (g *Gateway) PullFunds(registry, owner [20]byte, amount *big.Int) error {
	client, err := g.fungible(registry)
	if err != nil {
		return err
	}
	ok, err := client.TransferFrom(owner, g.custody, amount)
	if err != nil {
		return fmt.Errorf("%w: pull %s from %x: %v", ErrExternalCall, amount, owner, err)
	}
	if !ok {
		return fmt.Errorf("%w: pull %s from %x rejected", ErrExternalCall, amount, owner)
	}
	return nil
}

// PushFunds moves a fungible quantity out of custody to the recipient with a
// direct push.
func (g *Gateway) PushFunds(registry, recipient [20]byte, amount *big.Int) error {
	client, err := g.fungible(registry)
	if err != nil {
		return err
	}
	ok, err := client.Transfer(recipient, amount)
	if err != nil {
		return fmt.Errorf("%w: push %s to %x: %v", ErrExternalCall, amount, recipient, err)
	}
	if !ok {
		return fmt.Errorf("%w: push %s to %x rejected", ErrExternalCall, amount, recipient)
	}
	return nil
}

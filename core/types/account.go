package types

import "math/big"

// Account tracks the native-coin position of a single address known to the
// custody service. Trade assets never live here; they are owned by external
// registries and only referenced from trade records.
type Account struct {
	Nonce         uint64   `json:"nonce"`
	BalanceNative *big.Int `json:"balanceNative"`
}

// EnsureAccount returns a usable account value, replacing nil pointers with
// zeroed balances so callers can mutate the result directly.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{BalanceNative: big.NewInt(0)}
	}
	if acc.BalanceNative == nil {
		acc.BalanceNative = big.NewInt(0)
	}
	return acc
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{BalanceNative: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, BalanceNative: big.NewInt(0)}
	if a.BalanceNative != nil {
		clone.BalanceNative = new(big.Int).Set(a.BalanceNative)
	}
	return clone
}

package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"tradevault/core/types"
	"tradevault/native/trade"
	"tradevault/storage"
)

const (
	tradePrefix   = "trade/"
	accountPrefix = "acct/"
	nativePrefix  = "native/"
)

type nativeKey struct {
	trade [32]byte
	addr  [20]byte
}

// Manager is the state backend behind the trade engine. It keeps a working
// set of trades, accounts and native side balances in memory, journals every
// write so the engine can revert a failed operation wholesale, and persists
// the working set to the key-value store on Commit.
//
// Reads fall through to the store lazily, so a restarted daemon picks up
// exactly where the last committed operation left off.
type Manager struct {
	db storage.Database

	trades   map[[32]byte]*trade.Trade
	accounts map[[20]byte]*types.Account
	native   map[nativeKey]*big.Int

	journal []func(*Manager)

	dirtyTrades   map[[32]byte]struct{}
	dirtyAccounts map[[20]byte]struct{}
	dirtyNative   map[nativeKey]struct{}
}

// NewManager constructs a state manager over the given store.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:            db,
		trades:        make(map[[32]byte]*trade.Trade),
		accounts:      make(map[[20]byte]*types.Account),
		native:        make(map[nativeKey]*big.Int),
		dirtyTrades:   make(map[[32]byte]struct{}),
		dirtyAccounts: make(map[[20]byte]struct{}),
		dirtyNative:   make(map[nativeKey]struct{}),
	}
}

// Snapshot returns a revision token for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot unwinds every write journalled after the given revision.
func (m *Manager) RevertToSnapshot(rev int) {
	if rev < 0 || rev > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= rev; i-- {
		m.journal[i](m)
	}
	m.journal = m.journal[:rev]
}

func tradeKey(id [32]byte) []byte {
	return []byte(tradePrefix + hex.EncodeToString(id[:]))
}

func accountKey(addr []byte) []byte {
	return []byte(accountPrefix + hex.EncodeToString(addr))
}

func nativeDepositKey(k nativeKey) []byte {
	return []byte(nativePrefix + hex.EncodeToString(k.trade[:]) + "/" + hex.EncodeToString(k.addr[:]))
}

// TradePut stores a sanitized copy of the trade in the working set.
func (m *Manager) TradePut(t *trade.Trade) error {
	if t == nil {
		return fmt.Errorf("state: nil trade")
	}
	sanitized, err := trade.Sanitize(t)
	if err != nil {
		return err
	}
	prev, hadPrev := m.trades[sanitized.ID]
	id := sanitized.ID
	m.journal = append(m.journal, func(mgr *Manager) {
		if hadPrev {
			mgr.trades[id] = prev
		} else {
			delete(mgr.trades, id)
		}
	})
	m.trades[id] = sanitized.Clone()
	m.dirtyTrades[id] = struct{}{}
	return nil
}

// TradeGet returns the trade from the working set, falling back to the store.
func (m *Manager) TradeGet(id [32]byte) (*trade.Trade, bool) {
	if t, ok := m.trades[id]; ok {
		return t.Clone(), true
	}
	raw, err := m.db.Get(tradeKey(id))
	if err != nil {
		return nil, false
	}
	t := &trade.Trade{}
	if err := json.Unmarshal(raw, t); err != nil {
		return nil, false
	}
	m.trades[id] = t
	return t.Clone(), true
}

// GetAccount returns the account for an address, creating a zeroed record for
// unknown addresses.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) != 20 {
		return nil, fmt.Errorf("state: account address must be 20 bytes")
	}
	var key [20]byte
	copy(key[:], addr)
	if acc, ok := m.accounts[key]; ok {
		return acc.Clone(), nil
	}
	raw, err := m.db.Get(accountKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return &types.Account{BalanceNative: big.NewInt(0)}, nil
		}
		return nil, err
	}
	acc := &types.Account{}
	if err := json.Unmarshal(raw, acc); err != nil {
		return nil, err
	}
	acc = types.EnsureAccount(acc)
	m.accounts[key] = acc
	return acc.Clone(), nil
}

// PutAccount stores the account in the working set.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) != 20 {
		return fmt.Errorf("state: account address must be 20 bytes")
	}
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	var key [20]byte
	copy(key[:], addr)
	prev, hadPrev := m.accounts[key]
	m.journal = append(m.journal, func(mgr *Manager) {
		if hadPrev {
			mgr.accounts[key] = prev
		} else {
			delete(mgr.accounts, key)
		}
	})
	m.accounts[key] = account.Clone()
	m.dirtyAccounts[key] = struct{}{}
	return nil
}

func (m *Manager) nativeBalance(k nativeKey) (*big.Int, error) {
	if bal, ok := m.native[k]; ok {
		return bal, nil
	}
	raw, err := m.db.Get(nativeDepositKey(k))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	bal, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("state: corrupt native balance record")
	}
	m.native[k] = bal
	return bal, nil
}

func (m *Manager) setNativeBalance(k nativeKey, bal *big.Int) {
	prev, hadPrev := m.native[k]
	m.journal = append(m.journal, func(mgr *Manager) {
		if hadPrev {
			mgr.native[k] = prev
		} else {
			delete(mgr.native, k)
		}
	})
	m.native[k] = bal
	m.dirtyNative[k] = struct{}{}
}

// NativeDepositGet returns the recorded native side balance for an address on
// a trade.
func (m *Manager) NativeDepositGet(tradeID [32]byte, addr [20]byte) (*big.Int, error) {
	bal, err := m.nativeBalance(nativeKey{trade: tradeID, addr: addr})
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(bal), nil
}

// NativeDepositCredit increases the recorded native side balance.
func (m *Manager) NativeDepositCredit(tradeID [32]byte, addr [20]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: credit amount must be non-negative")
	}
	k := nativeKey{trade: tradeID, addr: addr}
	bal, err := m.nativeBalance(k)
	if err != nil {
		return err
	}
	m.setNativeBalance(k, new(big.Int).Add(bal, amt))
	return nil
}

// NativeDepositDebit decreases the recorded native side balance. Debiting
// below zero is a programming error surfaced as a hard failure.
func (m *Manager) NativeDepositDebit(tradeID [32]byte, addr [20]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: debit amount must be non-negative")
	}
	k := nativeKey{trade: tradeID, addr: addr}
	bal, err := m.nativeBalance(k)
	if err != nil {
		return err
	}
	if bal.Cmp(amt) < 0 {
		return fmt.Errorf("state: native balance underflow")
	}
	m.setNativeBalance(k, new(big.Int).Sub(bal, amt))
	return nil
}

// Commit persists every dirty record to the store and resets the journal.
// Callers invoke it after a successful engine operation; a failed operation
// is reverted by the engine before Commit is ever reached.
func (m *Manager) Commit() error {
	for id := range m.dirtyTrades {
		t, ok := m.trades[id]
		if !ok {
			// The write was reverted out of the working set.
			continue
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		if err := m.db.Put(tradeKey(id), raw); err != nil {
			return err
		}
	}
	for addr := range m.dirtyAccounts {
		acc, ok := m.accounts[addr]
		if !ok {
			continue
		}
		raw, err := json.Marshal(acc)
		if err != nil {
			return err
		}
		if err := m.db.Put(accountKey(addr[:]), raw); err != nil {
			return err
		}
	}
	for k := range m.dirtyNative {
		bal, ok := m.native[k]
		if !ok {
			continue
		}
		if err := m.db.Put(nativeDepositKey(k), []byte(bal.String())); err != nil {
			return err
		}
	}
	m.dirtyTrades = make(map[[32]byte]struct{})
	m.dirtyAccounts = make(map[[20]byte]struct{})
	m.dirtyNative = make(map[nativeKey]struct{})
	m.journal = m.journal[:0]
	return nil
}

package trade

import (
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tradevault/core/events"
	"tradevault/core/types"
)

// engineState is the narrow view of the state backend the engine needs. The
// Snapshot/RevertToSnapshot pair gives every public operation its
// all-or-nothing contract: a snapshot is taken on entry and reverted on any
// error, so partial ledger writes and phase transitions never persist.
type engineState interface {
	TradePut(*Trade) error
	TradeGet(id [32]byte) (*Trade, bool)
	NativeDepositGet(tradeID [32]byte, addr [20]byte) (*big.Int, error)
	NativeDepositCredit(tradeID [32]byte, addr [20]byte, amt *big.Int) error
	NativeDepositDebit(tradeID [32]byte, addr [20]byte, amt *big.Int) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	Snapshot() int
	RevertToSnapshot(int)
}

// Engine owns the trade state machine and authorization rules and drives the
// ledger and the transfer gateway through the configure/deposit/swap/cancel
// lifecycle. All mutating operations follow the same ordering: ledger flags
// are written first, the external registry is called second, and any failure
// reverts the whole operation.
//
// The engine assumes the caller serialises operations per trade; there is no
// internal locking.
type Engine struct {
	state   engineState
	gateway *Gateway
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a trade engine moving assets through the supplied
// gateway. Callers must configure a state backend via SetState before use.
func NewEngine(gateway *Gateway) *Engine {
	return &Engine{
		gateway: gateway,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
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

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// compensation undoes one external registry transfer made earlier in the same
// operation. External registries sit outside the state journal, so an
// aborting operation must move already-transferred assets back itself before
// the snapshot revert discards its ledger flags.
type compensation func() error

// runCompensations applies the recorded undo transfers in reverse order. Undo
// failures are ignored; the caller surfaces the original error.
func (e *Engine) runCompensations(steps []compensation) {
	for i := len(steps) - 1; i >= 0; i-- {
		_ = steps[i]()
	}
}

// withRollback runs fn against a state snapshot and reverts every write made
// by fn when it fails.
func (e *Engine) withRollback(fn func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	snap := e.state.Snapshot()
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	return nil
}

func (e *Engine) loadTrade(id [32]byte) (*Trade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	t, ok := e.state.TradeGet(id)
	if !ok {
		return nil, ErrTradeNotFound
	}
	return Sanitize(t)
}

// CreateTrade registers a new trade in its setup phase. The identifier is
// derived from the configurator, the two trader addresses and a
// caller-supplied nonce; re-creating an identical definition is idempotent.
func (e *Engine) CreateTrade(configurator, proposer, receiver [20]byte, nonce [32]byte) (*Trade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if configurator == ([20]byte{}) {
		return nil, fmt.Errorf("trade: configurator address required")
	}
	if proposer == ([20]byte{}) || receiver == ([20]byte{}) {
		return nil, fmt.Errorf("trade: both trader addresses required")
	}
	if proposer == receiver {
		return nil, fmt.Errorf("trade: proposer and receiver must differ")
	}
	id := ethcrypto.Keccak256Hash(configurator[:], proposer[:], receiver[:], nonce[:])
	if existing, ok := e.state.TradeGet(id); ok {
		if existing.Configurator != configurator || existing.Proposer.Address != proposer || existing.Receiver.Address != receiver {
			return nil, fmt.Errorf("trade: identifier already exists with different definition")
		}
		return existing.Clone(), nil
	}
	t := &Trade{
		ID:           id,
		Configurator: configurator,
		Proposer:     Participant{Address: proposer},
		Receiver:     Participant{Address: receiver},
		CreatedAt:    e.now(),
		State:        AssetSetup,
	}
	if err := e.state.TradePut(t); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(t))
	return t.Clone(), nil
}

// Get returns a copy of the stored trade.
func (e *Engine) Get(id [32]byte) (*Trade, error) {
	t, err := e.loadTrade(id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ConfigureParticipant extends one role's committed asset lists while the
// trade is in setup. The two item lists and the two fund lists are parallel:
// registries paired with item identifiers, registries paired with amounts.
// Repeated calls append rather than replace.
func (e *Engine) ConfigureParticipant(id [32]byte, caller [20]byte, role Role, itemRegistries [][20]byte, itemIDs []*big.Int, fundRegistries [][20]byte, amounts []*big.Int) error {
	return e.withRollback(func() error {
		t, err := e.loadTrade(id)
		if err != nil {
			return err
		}
		if caller != t.Configurator {
			return ErrUnauthorized
		}
		if t.State != AssetSetup {
			return ErrInvalidState
		}
		if !role.Valid() {
			return fmt.Errorf("trade: invalid role %d", role)
		}
		if len(itemRegistries) != len(itemIDs) || len(fundRegistries) != len(amounts) {
			return ErrLengthMismatch
		}
		for i, amount := range amounts {
			if amount == nil || amount.Sign() <= 0 {
				return fmt.Errorf("trade: fund amount %d must be positive", i)
			}
		}
		p := t.Participant(role)
		for i := range itemRegistries {
			p.appendItem(itemRegistries[i], itemIDs[i])
		}
		for i := range fundRegistries {
			p.appendFund(fundRegistries[i], amounts[i])
		}
		if err := e.state.TradePut(t); err != nil {
			return err
		}
		e.emit(NewConfiguredEvent(t, role))
		return nil
	})
}

// CloseSetup advances the trade from setup to the open-for-deposit phase.
// Empty asset lists are legal; no validation happens here.
func (e *Engine) CloseSetup(id [32]byte, caller [20]byte) error {
	return e.withRollback(func() error {
		t, err := e.loadTrade(id)
		if err != nil {
			return err
		}
		if caller != t.Configurator {
			return ErrUnauthorized
		}
		if t.State != AssetSetup {
			return ErrInvalidState
		}
		t.State = PendingOffer
		if err := e.state.TradePut(t); err != nil {
			return err
		}
		e.emit(NewSetupClosedEvent(t))
		return nil
	})
}

// DepositAssets pulls every not-yet-deposited asset of the caller's role into
// custody and recomputes the trade phase. Already-deposited entries are
// skipped, so repeated calls are safe and only move newly added or previously
// failed items. When the recomputation yields BothDeposited the two-way swap
// executes synchronously before the call returns. On any failure the assets
// already moved in this call are transferred back before the ledger reverts,
// so registries and ledger flags stay in agreement. Events are emitted only
// once nothing can fail anymore.
func (e *Engine) DepositAssets(id [32]byte, caller [20]byte) error {
	if e == nil || e.gateway == nil {
		return errNilGateway
	}
	return e.withRollback(func() error {
		t, err := e.loadTrade(id)
		if err != nil {
			return err
		}
		p, role, ok := t.participantByAddress(caller)
		if !ok {
			return ErrUnauthorized
		}
		switch t.State {
		case PendingOffer, ProposerDeposited, ReceiverDeposited:
		default:
			return ErrInvalidState
		}
		var undo []compensation
		abort := func(err error) error {
			e.runCompensations(undo)
			return err
		}
		for i := range p.Items {
			if p.Items[i].Deposited {
				continue
			}
			p.Items[i].Deposited = true
			registry, owner, itemID := p.Items[i].Registry, p.Address, p.Items[i].ItemID
			if err := e.gateway.PullItem(registry, owner, itemID); err != nil {
				return abort(err)
			}
			undo = append(undo, func() error { return e.gateway.PushItem(registry, owner, itemID) })
		}
		for i := range p.Funds {
			if p.Funds[i].Deposited {
				continue
			}
			p.Funds[i].Deposited = true
			registry, owner, amount := p.Funds[i].Registry, p.Address, p.Funds[i].Amount
			if err := e.gateway.PullFunds(registry, owner, amount); err != nil {
				return abort(err)
			}
			undo = append(undo, func() error { return e.gateway.PushFunds(registry, owner, amount) })
		}
		t.State = recomputeState(t.Proposer.Complete(), t.Receiver.Complete())
		emits := []events.Event{NewDepositedEvent(t, role)}
		if t.State == BothDeposited {
			if err := e.executeSwap(t, &undo); err != nil {
				return abort(err)
			}
			emits = append(emits, NewSwappedEvent(t))
		}
		if err := e.state.TradePut(t); err != nil {
			return abort(err)
		}
		for _, evt := range emits {
			e.emit(evt)
		}
		return nil
	})
}

// executeSwap moves every deposited asset to the counterparty and marks the
// trade terminal. It is invoked only by the BothDeposited recomputation,
// never directly from outside. Every transfer records its undo so the caller
// can compensate a partial swap.
func (e *Engine) executeSwap(t *Trade, undo *[]compensation) error {
	for _, role := range []Role{RoleProposer, RoleReceiver} {
		p := t.Participant(role)
		counterparty := t.Participant(role.Other()).Address
		for i := range p.Items {
			if !p.Items[i].Deposited {
				continue
			}
			p.Items[i].Deposited = false
			registry, itemID := p.Items[i].Registry, p.Items[i].ItemID
			if err := e.gateway.PushItem(registry, counterparty, itemID); err != nil {
				return err
			}
			*undo = append(*undo, func() error { return e.gateway.PullItem(registry, counterparty, itemID) })
		}
		for i := range p.Funds {
			if !p.Funds[i].Deposited {
				continue
			}
			p.Funds[i].Deposited = false
			registry, amount := p.Funds[i].Registry, p.Funds[i].Amount
			if err := e.gateway.PushFunds(registry, counterparty, amount); err != nil {
				return err
			}
			*undo = append(*undo, func() error { return e.gateway.PullFunds(registry, counterparty, amount) })
		}
	}
	t.State = AssetsTransferred
	return nil
}

// WithdrawAssets returns every deposited asset of the caller's role back to
// the caller while the trade is still open. The trade phase is deliberately
// left untouched; the next deposit recomputation refreshes it.
func (e *Engine) WithdrawAssets(id [32]byte, caller [20]byte) error {
	if e == nil || e.gateway == nil {
		return errNilGateway
	}
	return e.withRollback(func() error {
		t, err := e.loadTrade(id)
		if err != nil {
			return err
		}
		p, role, ok := t.participantByAddress(caller)
		if !ok {
			return ErrUnauthorized
		}
		if t.State.Terminal() {
			return ErrInvalidState
		}
		var undo []compensation
		abort := func(err error) error {
			e.runCompensations(undo)
			return err
		}
		if err := e.returnDeposits(p, &undo); err != nil {
			return abort(err)
		}
		if err := e.state.TradePut(t); err != nil {
			return abort(err)
		}
		e.emit(NewWithdrawnEvent(t, role))
		return nil
	})
}

// returnDeposits pushes every deposited asset of the participant back to its
// owner, clearing the flags and recording undo transfers for the caller.
func (e *Engine) returnDeposits(p *Participant, undo *[]compensation) error {
	for i := range p.Items {
		if !p.Items[i].Deposited {
			continue
		}
		p.Items[i].Deposited = false
		registry, owner, itemID := p.Items[i].Registry, p.Address, p.Items[i].ItemID
		if err := e.gateway.PushItem(registry, owner, itemID); err != nil {
			return err
		}
		*undo = append(*undo, func() error { return e.gateway.PullItem(registry, owner, itemID) })
	}
	for i := range p.Funds {
		if !p.Funds[i].Deposited {
			continue
		}
		p.Funds[i].Deposited = false
		registry, owner, amount := p.Funds[i].Registry, p.Address, p.Funds[i].Amount
		if err := e.gateway.PushFunds(registry, owner, amount); err != nil {
			return err
		}
		*undo = append(*undo, func() error { return e.gateway.PullFunds(registry, owner, amount) })
	}
	return nil
}

// CancelTrade terminates a non-terminal trade, returns all deposited assets
// of both participants and refunds the proposer's native side balance in
// full. The receiver's native balance is left for an explicit WithdrawNative;
// the asymmetry is inherited behaviour, kept as-is.
func (e *Engine) CancelTrade(id [32]byte, caller [20]byte) error {
	if e == nil || e.gateway == nil {
		return errNilGateway
	}
	return e.withRollback(func() error {
		t, err := e.loadTrade(id)
		if err != nil {
			return err
		}
		if caller != t.Configurator {
			if _, _, ok := t.participantByAddress(caller); !ok {
				return ErrUnauthorized
			}
		}
		if t.State.Terminal() {
			return ErrInvalidState
		}
		t.State = TradeCancelled
		var undo []compensation
		abort := func(err error) error {
			e.runCompensations(undo)
			return err
		}
		if err := e.returnDeposits(&t.Proposer, &undo); err != nil {
			return abort(err)
		}
		if err := e.returnDeposits(&t.Receiver, &undo); err != nil {
			return abort(err)
		}
		if err := e.state.TradePut(t); err != nil {
			return abort(err)
		}
		refund, err := e.state.NativeDepositGet(t.ID, t.Proposer.Address)
		if err != nil {
			return abort(err)
		}
		if refund != nil && refund.Sign() > 0 {
			if err := e.state.NativeDepositDebit(t.ID, t.Proposer.Address, refund); err != nil {
				return abort(err)
			}
			if err := e.transferNative(e.gateway.Custody(), t.Proposer.Address, refund); err != nil {
				return abort(err)
			}
		}
		e.emit(NewCancelledEvent(t))
		return nil
	})
}

// DepositNative adds to the caller's native side balance for this trade. The
// balance is a side channel with no relation to the committed asset value and
// no upper bound; the only phase restriction is that setup must have closed.
func (e *Engine) DepositNative(id [32]byte, caller [20]byte, amount *big.Int) error {
	return e.withRollback(func() error {
		t, err := e.loadTrade(id)
		if err != nil {
			return err
		}
		if _, _, ok := t.participantByAddress(caller); !ok {
			return ErrUnauthorized
		}
		if t.State == AssetSetup {
			return ErrInvalidState
		}
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("trade: native deposit must be positive")
		}
		custody := [20]byte{}
		if e.gateway != nil {
			custody = e.gateway.Custody()
		}
		if err := e.transferNative(caller, custody, amount); err != nil {
			return err
		}
		if err := e.state.NativeDepositCredit(t.ID, caller, amount); err != nil {
			return err
		}
		e.emit(NewNativeDepositedEvent(t, caller, amount.String()))
		return nil
	})
}

// WithdrawNative pays out part of the caller's native side balance. The
// operation is independent of the trade phase and remains available after a
// terminal transition.
func (e *Engine) WithdrawNative(id [32]byte, caller [20]byte, amount *big.Int) error {
	return e.withRollback(func() error {
		t, err := e.loadTrade(id)
		if err != nil {
			return err
		}
		if _, _, ok := t.participantByAddress(caller); !ok {
			return ErrUnauthorized
		}
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("trade: native withdrawal must be positive")
		}
		balance, err := e.state.NativeDepositGet(t.ID, caller)
		if err != nil {
			return err
		}
		if balance == nil || balance.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		if err := e.state.NativeDepositDebit(t.ID, caller, amount); err != nil {
			return err
		}
		custody := [20]byte{}
		if e.gateway != nil {
			custody = e.gateway.Custody()
		}
		if err := e.transferNative(custody, caller, amount); err != nil {
			return err
		}
		e.emit(NewNativeWithdrawnEvent(t, caller, amount.String()))
		return nil
	})
}

// NativeBalance returns the recorded native side balance for an address on a
// trade.
func (e *Engine) NativeBalance(id [32]byte, addr [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok := e.state.TradeGet(id); !ok {
		return nil, ErrTradeNotFound
	}
	balance, err := e.state.NativeDepositGet(id, addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// transferNative moves native coin between accounts held by the state
// backend.
func (e *Engine) transferNative(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("trade: negative native transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	toAcc = types.EnsureAccount(toAcc)
	if fromAcc.BalanceNative.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.BalanceNative = new(big.Int).Sub(fromAcc.BalanceNative, amount)
	toAcc.BalanceNative = new(big.Int).Add(toAcc.BalanceNative, amount)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

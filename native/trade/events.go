package trade

import (
	"encoding/hex"
	"strconv"

	"tradevault/core/events"
	"tradevault/core/types"
)

const (
	EventTypeTradeCreated      = "trade.created"
	EventTypeTradeConfigured   = "trade.configured"
	EventTypeTradeSetupClosed  = "trade.setup_closed"
	EventTypeTradeDeposited    = "trade.deposited"
	EventTypeTradeWithdrawn    = "trade.withdrawn"
	EventTypeTradeSwapped      = "trade.assets_transferred"
	EventTypeTradeCancelled    = "trade.cancelled"
	EventTypeNativeDeposited   = "trade.native_deposited"
	EventTypeNativeWithdrawn   = "trade.native_withdrawn"
)

type tradeEvent struct {
	evt *types.Event
}

func (e tradeEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e tradeEvent) Event() *types.Event { return e.evt }

func newTradeEvent(eventType string, t *Trade, extra map[string]string) events.Event {
	attrs := make(map[string]string)
	if t != nil {
		attrs["id"] = hex.EncodeToString(t.ID[:])
		attrs["configurator"] = hex.EncodeToString(t.Configurator[:])
		attrs["proposer"] = hex.EncodeToString(t.Proposer.Address[:])
		attrs["receiver"] = hex.EncodeToString(t.Receiver.Address[:])
		attrs["state"] = t.State.String()
		attrs["createdAt"] = strconv.FormatInt(t.CreatedAt, 10)
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return tradeEvent{evt: &types.Event{Type: eventType, Attributes: attrs}}
}

// NewCreatedEvent returns the canonical payload for a newly created trade.
func NewCreatedEvent(t *Trade) events.Event {
	return newTradeEvent(EventTypeTradeCreated, t, nil)
}

// NewConfiguredEvent returns the payload emitted after a participant's asset
// lists have been extended.
func NewConfiguredEvent(t *Trade, role Role) events.Event {
	p := t.Participant(role)
	return newTradeEvent(EventTypeTradeConfigured, t, map[string]string{
		"role":  role.String(),
		"items": strconv.Itoa(len(p.Items)),
		"funds": strconv.Itoa(len(p.Funds)),
	})
}

// NewSetupClosedEvent returns the payload emitted when setup closes and the
// trade opens for deposits.
func NewSetupClosedEvent(t *Trade) events.Event {
	return newTradeEvent(EventTypeTradeSetupClosed, t, nil)
}

// NewDepositedEvent returns the payload emitted after a participant's deposit
// call, carrying the recomputed phase.
func NewDepositedEvent(t *Trade, role Role) events.Event {
	return newTradeEvent(EventTypeTradeDeposited, t, map[string]string{"role": role.String()})
}

// NewWithdrawnEvent returns the payload emitted after a participant pulled
// their deposited assets back out.
func NewWithdrawnEvent(t *Trade, role Role) events.Event {
	return newTradeEvent(EventTypeTradeWithdrawn, t, map[string]string{"role": role.String()})
}

// NewSwappedEvent returns the payload emitted when both sides completed and
// custody swapped to the counterparties.
func NewSwappedEvent(t *Trade) events.Event {
	return newTradeEvent(EventTypeTradeSwapped, t, nil)
}

// NewCancelledEvent returns the payload emitted when a trade is cancelled and
// deposits returned.
func NewCancelledEvent(t *Trade) events.Event {
	return newTradeEvent(EventTypeTradeCancelled, t, nil)
}

// NewNativeDepositedEvent returns the payload for a native side deposit.
func NewNativeDepositedEvent(t *Trade, addr [20]byte, amount string) events.Event {
	return newTradeEvent(EventTypeNativeDeposited, t, map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"amount":  amount,
	})
}

// NewNativeWithdrawnEvent returns the payload for a native side withdrawal.
func NewNativeWithdrawnEvent(t *Trade, addr [20]byte, amount string) events.Event {
	return newTradeEvent(EventTypeNativeWithdrawn, t, map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"amount":  amount,
	})
}

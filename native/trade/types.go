package trade

import (
	"fmt"
	"math/big"
)

// Role identifies one of the two fixed trading positions of a trade.
type Role uint8

const (
	RoleProposer Role = iota
	RoleReceiver
)

// Valid reports whether the role value is supported.
func (r Role) Valid() bool {
	return r == RoleProposer || r == RoleReceiver
}

// Other returns the counterparty role.
func (r Role) Other() Role {
	if r == RoleProposer {
		return RoleReceiver
	}
	return RoleProposer
}

func (r Role) String() string {
	switch r {
	case RoleProposer:
		return "proposer"
	case RoleReceiver:
		return "receiver"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// State represents the lifecycle phases of a trade. The phase advances
// monotonically towards AssetsTransferred; TradeCancelled is reachable from
// every phase except the two terminal ones.
type State uint8

const (
	AssetSetup State = iota
	PendingOffer
	ProposerDeposited
	ReceiverDeposited
	BothDeposited
	AssetsTransferred
	TradeCancelled
)

// Valid reports whether the state value is within the supported range.
func (s State) Valid() bool {
	return s <= TradeCancelled
}

// Terminal reports whether the state admits no further asset or phase
// mutation. Native side balances remain withdrawable in terminal states.
func (s State) Terminal() bool {
	return s == AssetsTransferred || s == TradeCancelled
}

func (s State) String() string {
	switch s {
	case AssetSetup:
		return "asset_setup"
	case PendingOffer:
		return "pending_offer"
	case ProposerDeposited:
		return "proposer_deposited"
	case ReceiverDeposited:
		return "receiver_deposited"
	case BothDeposited:
		return "both_deposited"
	case AssetsTransferred:
		return "assets_transferred"
	case TradeCancelled:
		return "trade_cancelled"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ItemAsset is a uniquely identified item committed to the trade. Ownership
// is tracked by the external registry at Registry under ItemID. Entries are
// identified by (Registry, ItemID) within a participant's list; duplicate
// entries are caller error and not checked for.
type ItemAsset struct {
	Registry  [20]byte `json:"registry"`
	ItemID    *big.Int `json:"itemId"`
	Deposited bool     `json:"deposited"`
}

// FundAsset is a fungible quantity committed to the trade. Multiple entries
// against the same registry are tracked independently, never merged.
type FundAsset struct {
	Registry  [20]byte `json:"registry"`
	Amount    *big.Int `json:"amount"`
	Deposited bool     `json:"deposited"`
}

// Participant is one side of a trade: an address plus the ordered lists of
// assets it has committed to deposit.
type Participant struct {
	Address [20]byte    `json:"address"`
	Items   []ItemAsset `json:"items"`
	Funds   []FundAsset `json:"funds"`
}

// Trade captures the configuration and runtime phase of a single two-party
// exchange. Asset entries are created during setup and never deleted; after a
// terminal phase they retain their final deposited flags as a historical
// record.
type Trade struct {
	ID           [32]byte    `json:"id"`
	Configurator [20]byte    `json:"configurator"`
	Proposer     Participant `json:"proposer"`
	Receiver     Participant `json:"receiver"`
	CreatedAt    int64       `json:"createdAt"`
	State        State       `json:"state"`
}

// Clone returns a deep copy of the participant.
func (p *Participant) Clone() Participant {
	if p == nil {
		return Participant{}
	}
	clone := Participant{Address: p.Address}
	if len(p.Items) > 0 {
		clone.Items = make([]ItemAsset, len(p.Items))
		for i, item := range p.Items {
			clone.Items[i] = ItemAsset{Registry: item.Registry, Deposited: item.Deposited}
			if item.ItemID != nil {
				clone.Items[i].ItemID = new(big.Int).Set(item.ItemID)
			} else {
				clone.Items[i].ItemID = big.NewInt(0)
			}
		}
	}
	if len(p.Funds) > 0 {
		clone.Funds = make([]FundAsset, len(p.Funds))
		for i, fund := range p.Funds {
			clone.Funds[i] = FundAsset{Registry: fund.Registry, Deposited: fund.Deposited}
			if fund.Amount != nil {
				clone.Funds[i].Amount = new(big.Int).Set(fund.Amount)
			} else {
				clone.Funds[i].Amount = big.NewInt(0)
			}
		}
	}
	return clone
}

// Clone returns a deep copy of the trade so callers can safely mutate the
// copy without affecting the stored instance.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	clone := &Trade{
		ID:           t.ID,
		Configurator: t.Configurator,
		Proposer:     t.Proposer.Clone(),
		Receiver:     t.Receiver.Clone(),
		CreatedAt:    t.CreatedAt,
		State:        t.State,
	}
	return clone
}

// Sanitize validates the supplied trade definition and returns a cloned
// instance with non-nil amount fields. The original value is not mutated.
func Sanitize(t *Trade) (*Trade, error) {
	if t == nil {
		return nil, fmt.Errorf("trade: nil trade")
	}
	clone := t.Clone()
	if !clone.State.Valid() {
		return nil, fmt.Errorf("trade: invalid state %d", clone.State)
	}
	for _, p := range []*Participant{&clone.Proposer, &clone.Receiver} {
		for i := range p.Items {
			if p.Items[i].ItemID == nil {
				return nil, fmt.Errorf("trade: item entry %d missing identifier", i)
			}
			if p.Items[i].ItemID.Sign() < 0 {
				return nil, fmt.Errorf("trade: item identifier must be non-negative")
			}
		}
		for i := range p.Funds {
			if p.Funds[i].Amount == nil {
				return nil, fmt.Errorf("trade: fund entry %d missing amount", i)
			}
			if p.Funds[i].Amount.Sign() <= 0 {
				return nil, fmt.Errorf("trade: fund amount must be positive")
			}
		}
	}
	return clone, nil
}

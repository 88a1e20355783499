package trade

import "math/big"

// Ledger bookkeeping for participant asset lists. Entries are appended during
// setup and only their deposited flags mutate afterwards; completeness is
// always re-derived by scanning, never cached.

func (p *Participant) appendItem(registry [20]byte, itemID *big.Int) {
	id := big.NewInt(0)
	if itemID != nil {
		id = new(big.Int).Set(itemID)
	}
	p.Items = append(p.Items, ItemAsset{Registry: registry, ItemID: id})
}

func (p *Participant) appendFund(registry [20]byte, amount *big.Int) {
	amt := big.NewInt(0)
	if amount != nil {
		amt = new(big.Int).Set(amount)
	}
	p.Funds = append(p.Funds, FundAsset{Registry: registry, Amount: amt})
}

// Complete reports whether every committed asset of the participant has been
// deposited. Empty lists are vacuously complete.
func (p *Participant) Complete() bool {
	for i := range p.Items {
		if !p.Items[i].Deposited {
			return false
		}
	}
	for i := range p.Funds {
		if !p.Funds[i].Deposited {
			return false
		}
	}
	return true
}

// Participant returns the participant occupying the given role.
func (t *Trade) Participant(role Role) *Participant {
	if role == RoleProposer {
		return &t.Proposer
	}
	return &t.Receiver
}

// participantByAddress resolves a caller address to its participant record,
// performed once per operation instead of repeated ad hoc comparisons.
func (t *Trade) participantByAddress(addr [20]byte) (*Participant, Role, bool) {
	if addr == ([20]byte{}) {
		return nil, 0, false
	}
	if t.Proposer.Address == addr {
		return &t.Proposer, RoleProposer, true
	}
	if t.Receiver.Address == addr {
		return &t.Receiver, RoleReceiver, true
	}
	return nil, 0, false
}

// recomputeState derives the deposit phase from the two participants'
// completeness. It is the only place a deposit-phase value originates.
func recomputeState(proposerComplete, receiverComplete bool) State {
	switch {
	case proposerComplete && receiverComplete:
		return BothDeposited
	case proposerComplete:
		return ProposerDeposited
	case receiverComplete:
		return ReceiverDeposited
	default:
		return PendingOffer
	}
}

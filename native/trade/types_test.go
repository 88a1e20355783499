package trade

import (
	"math/big"
	"testing"
)

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{AssetSetup, PendingOffer, ProposerDeposited, ReceiverDeposited, BothDeposited} {
		if s.Terminal() {
			t.Fatalf("state %v must not be terminal", s)
		}
	}
	for _, s := range []State{AssetsTransferred, TradeCancelled} {
		if !s.Terminal() {
			t.Fatalf("state %v must be terminal", s)
		}
	}
	if State(200).Valid() {
		t.Fatalf("out-of-range state must be invalid")
	}
}

func TestRoleOther(t *testing.T) {
	if RoleProposer.Other() != RoleReceiver || RoleReceiver.Other() != RoleProposer {
		t.Fatalf("roles must be each other's counterparty")
	}
	if Role(7).Valid() {
		t.Fatalf("out-of-range role must be invalid")
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := &Trade{
		ID:    [32]byte{0x01},
		State: PendingOffer,
		Proposer: Participant{
			Address: [20]byte{0x01},
			Items:   []ItemAsset{{Registry: [20]byte{0xA1}, ItemID: big.NewInt(7)}},
			Funds:   []FundAsset{{Registry: [20]byte{0xA2}, Amount: big.NewInt(100)}},
		},
	}
	clone := original.Clone()
	clone.Proposer.Items[0].ItemID.SetInt64(99)
	clone.Proposer.Funds[0].Amount.SetInt64(1)
	clone.Proposer.Items[0].Deposited = true
	if original.Proposer.Items[0].ItemID.Int64() != 7 {
		t.Fatalf("clone shares item identifier with original")
	}
	if original.Proposer.Funds[0].Amount.Int64() != 100 {
		t.Fatalf("clone shares fund amount with original")
	}
	if original.Proposer.Items[0].Deposited {
		t.Fatalf("clone shares item slice with original")
	}
}

func TestSanitizeRejectsBadEntries(t *testing.T) {
	bad := &Trade{State: AssetSetup}
	bad.Proposer.Funds = []FundAsset{{Registry: [20]byte{0xA2}, Amount: big.NewInt(0)}}
	if _, err := Sanitize(bad); err == nil {
		t.Fatalf("expected error for non-positive fund amount")
	}
	bad = &Trade{State: State(99)}
	if _, err := Sanitize(bad); err == nil {
		t.Fatalf("expected error for invalid state")
	}
	if _, err := Sanitize(nil); err == nil {
		t.Fatalf("expected error for nil trade")
	}
}

func TestParticipantComplete(t *testing.T) {
	p := &Participant{}
	if !p.Complete() {
		t.Fatalf("empty commitments are vacuously complete")
	}
	p.Items = []ItemAsset{{ItemID: big.NewInt(1)}}
	if p.Complete() {
		t.Fatalf("undeposited item must block completeness")
	}
	p.Items[0].Deposited = true
	p.Funds = []FundAsset{{Amount: big.NewInt(5)}}
	if p.Complete() {
		t.Fatalf("undeposited fund must block completeness")
	}
	p.Funds[0].Deposited = true
	if !p.Complete() {
		t.Fatalf("all-deposited participant must be complete")
	}
}

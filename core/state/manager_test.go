package state

import (
	"math/big"
	"testing"

	"tradevault/core/types"
	"tradevault/native/trade"
	"tradevault/storage"
)

func testTrade(fill byte) *trade.Trade {
	t := &trade.Trade{
		ID:           [32]byte{fill},
		Configurator: [20]byte{0x0C},
		Proposer:     trade.Participant{Address: [20]byte{0x01}},
		Receiver:     trade.Participant{Address: [20]byte{0x02}},
		CreatedAt:    1000,
		State:        trade.AssetSetup,
	}
	t.Proposer.Items = []trade.ItemAsset{{Registry: [20]byte{0xA1}, ItemID: big.NewInt(7)}}
	t.Receiver.Funds = []trade.FundAsset{{Registry: [20]byte{0xA2}, Amount: big.NewInt(50)}}
	return t
}

func TestSnapshotRevertsTradeWrites(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	original := testTrade(0x01)
	if err := mgr.TradePut(original); err != nil {
		t.Fatalf("put: %v", err)
	}
	rev := mgr.Snapshot()
	modified := original.Clone()
	modified.State = trade.PendingOffer
	if err := mgr.TradePut(modified); err != nil {
		t.Fatalf("put modified: %v", err)
	}
	mgr.RevertToSnapshot(rev)
	stored, ok := mgr.TradeGet(original.ID)
	if !ok {
		t.Fatalf("expected trade after revert")
	}
	if stored.State != trade.AssetSetup {
		t.Fatalf("expected revert to original state, got %v", stored.State)
	}
}

func TestSnapshotRevertsNewTrade(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	rev := mgr.Snapshot()
	if err := mgr.TradePut(testTrade(0x02)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.RevertToSnapshot(rev)
	if _, ok := mgr.TradeGet([32]byte{0x02}); ok {
		t.Fatalf("expected trade removed after revert")
	}
}

func TestSnapshotRevertsAccountsAndNative(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	addr := [20]byte{0x01}
	if err := mgr.PutAccount(addr[:], &types.Account{BalanceNative: big.NewInt(1000)}); err != nil {
		t.Fatalf("put account: %v", err)
	}
	tradeID := [32]byte{0x03}
	if err := mgr.NativeDepositCredit(tradeID, addr, big.NewInt(200)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	rev := mgr.Snapshot()
	if err := mgr.PutAccount(addr[:], &types.Account{BalanceNative: big.NewInt(0)}); err != nil {
		t.Fatalf("put account: %v", err)
	}
	if err := mgr.NativeDepositDebit(tradeID, addr, big.NewInt(150)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	mgr.RevertToSnapshot(rev)
	acc, err := mgr.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.BalanceNative.Int64() != 1000 {
		t.Fatalf("expected account reverted to 1000, got %s", acc.BalanceNative)
	}
	bal, err := mgr.NativeDepositGet(tradeID, addr)
	if err != nil {
		t.Fatalf("native get: %v", err)
	}
	if bal.Int64() != 200 {
		t.Fatalf("expected native balance reverted to 200, got %s", bal)
	}
}

func TestCommitPersistsAcrossManagers(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	original := testTrade(0x04)
	if err := mgr.TradePut(original); err != nil {
		t.Fatalf("put: %v", err)
	}
	addr := [20]byte{0x05}
	if err := mgr.PutAccount(addr[:], &types.Account{Nonce: 3, BalanceNative: big.NewInt(750)}); err != nil {
		t.Fatalf("put account: %v", err)
	}
	if err := mgr.NativeDepositCredit(original.ID, addr, big.NewInt(42)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	reloaded := NewManager(db)
	stored, ok := reloaded.TradeGet(original.ID)
	if !ok {
		t.Fatalf("expected trade after reload")
	}
	if stored.State != trade.AssetSetup || stored.CreatedAt != 1000 {
		t.Fatalf("unexpected reloaded trade: %+v", stored)
	}
	if len(stored.Proposer.Items) != 1 || stored.Proposer.Items[0].ItemID.Int64() != 7 {
		t.Fatalf("expected item list to survive reload")
	}
	if len(stored.Receiver.Funds) != 1 || stored.Receiver.Funds[0].Amount.Int64() != 50 {
		t.Fatalf("expected fund list to survive reload")
	}
	acc, err := reloaded.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.Nonce != 3 || acc.BalanceNative.Int64() != 750 {
		t.Fatalf("unexpected reloaded account: %+v", acc)
	}
	bal, err := reloaded.NativeDepositGet(original.ID, addr)
	if err != nil {
		t.Fatalf("native get: %v", err)
	}
	if bal.Int64() != 42 {
		t.Fatalf("expected native balance 42, got %s", bal)
	}
}

func TestCommitSkipsRevertedWrites(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	rev := mgr.Snapshot()
	if err := mgr.TradePut(testTrade(0x06)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.RevertToSnapshot(rev)
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	reloaded := NewManager(db)
	if _, ok := reloaded.TradeGet([32]byte{0x06}); ok {
		t.Fatalf("reverted trade must not be persisted")
	}
}

func TestNativeDebitUnderflow(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	addr := [20]byte{0x07}
	tradeID := [32]byte{0x07}
	if err := mgr.NativeDepositCredit(tradeID, addr, big.NewInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := mgr.NativeDepositDebit(tradeID, addr, big.NewInt(11)); err == nil {
		t.Fatalf("expected underflow error")
	}
	bal, err := mgr.NativeDepositGet(tradeID, addr)
	if err != nil {
		t.Fatalf("native get: %v", err)
	}
	if bal.Int64() != 10 {
		t.Fatalf("failed debit must leave balance unchanged, got %s", bal)
	}
}

func TestGetAccountDefaultsToZero(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	addr := [20]byte{0x08}
	acc, err := mgr.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.BalanceNative == nil || acc.BalanceNative.Sign() != 0 {
		t.Fatalf("expected zero balance for unknown account")
	}
}

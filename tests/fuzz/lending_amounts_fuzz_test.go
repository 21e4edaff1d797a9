package fuzz

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/native/bank"
	"lendpool/native/lending"
	"lendpool/native/roles"
	statelending "lendpool/state/lending"
	"lendpool/storage"
)

var (
	fuzzCustody = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	fuzzStaker  = common.HexToAddress("0x0000000000000000000000000000000000000051")
	fuzzLender  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	fuzzOther   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
)

func newFuzzPool(t *testing.T) (*lending.Engine, *bank.Ledger) {
	t.Helper()
	db := storage.NewMemDB()
	ledger := bank.NewLedger(db, "USDC", fuzzCustody)
	registry := roles.NewRegistry(db)
	if err := registry.Grant(lending.RoleStaker, fuzzStaker); err != nil {
		t.Fatalf("grant: %v", err)
	}
	supply := new(big.Int).Lsh(big.NewInt(1), 100)
	for _, addr := range []common.Address{fuzzStaker, fuzzLender, fuzzOther} {
		if err := ledger.Credit(addr, supply); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	engine := lending.NewEngine(lending.DefaultConfig())
	engine.SetState(statelending.NewStore(db))
	engine.SetToken(ledger)
	engine.SetAccess(registry)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	if err := engine.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return engine, ledger
}

// FuzzDepositWithdrawNeverGains checks that a deposit followed by a full
// withdrawal never returns more tokens than went in, whatever the share
// price left behind by earlier participants.
func FuzzDepositWithdrawNeverGains(f *testing.F) {
	f.Add(uint64(2_000_000_000), uint64(1_000_000), uint64(7))
	f.Add(uint64(1_000_001), uint64(999_999), uint64(3))
	f.Add(uint64(5_000_000_000_000), uint64(123_456_789), uint64(1))
	f.Fuzz(func(t *testing.T, stake, seed, amount uint64) {
		if stake < 2 || amount == 0 {
			t.Skip()
		}
		engine, ledger := newFuzzPool(t)
		ctx := context.Background()
		if err := engine.Stake(ctx, fuzzStaker, new(big.Int).SetUint64(stake)); err != nil {
			t.Skip()
		}
		if seed > 0 {
			_ = engine.Deposit(ctx, fuzzOther, new(big.Int).SetUint64(seed))
		}

		start, err := ledger.BalanceOf(fuzzLender)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if err := engine.Deposit(ctx, fuzzLender, new(big.Int).SetUint64(amount)); err != nil {
			return
		}
		value, err := engine.AmountWithdrawable(fuzzLender)
		if err != nil {
			t.Fatalf("withdrawable: %v", err)
		}
		if value.Cmp(new(big.Int).SetUint64(amount)) > 0 {
			t.Fatalf("deposit of %d withdrawable as %s", amount, value)
		}
		if value.Sign() > 0 {
			if err := engine.Withdraw(ctx, fuzzLender, value); err != nil {
				t.Fatalf("withdraw %s: %v", value, err)
			}
		}
		end, err := ledger.BalanceOf(fuzzLender)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if end.Cmp(start) > 0 {
			t.Fatalf("round trip of %d gained %s", amount, new(big.Int).Sub(end, start))
		}

		state, err := engine.PoolState()
		if err != nil {
			t.Fatalf("pool state: %v", err)
		}
		custody, err := ledger.BalanceOf(fuzzCustody)
		if err != nil {
			t.Fatalf("custody: %v", err)
		}
		if custody.Cmp(state.TokenBalance) != 0 {
			t.Fatalf("custody %s != token balance %s", custody, state.TokenBalance)
		}
	})
}

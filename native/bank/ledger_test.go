package bank

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/storage"
)

var (
	custody = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func TestLedgerTransfers(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(storage.NewMemDB(), " usdc ", custody)
	if ledger.Symbol() != "USDC" {
		t.Fatalf("symbol = %q", ledger.Symbol())
	}
	if err := ledger.Credit(alice, big.NewInt(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.TransferIn(ctx, alice, big.NewInt(300)); err != nil {
		t.Fatalf("transfer in: %v", err)
	}
	if err := ledger.TransferOut(ctx, bob, big.NewInt(120)); err != nil {
		t.Fatalf("transfer out: %v", err)
	}

	want := map[common.Address]int64{alice: 200, bob: 120, custody: 180}
	for addr, amount := range want {
		got, err := ledger.BalanceOf(addr)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if got.Int64() != amount {
			t.Fatalf("balance of %s = %s, want %d", addr.Hex(), got, amount)
		}
	}
}

func TestLedgerRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(storage.NewMemDB(), "USDC", custody)
	if err := ledger.TransferOut(ctx, bob, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := ledger.Credit(alice, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.Transfer(ctx, alice, bob, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.Transfer(ctx, alice, bob, big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := ledger.TransferIn(cancelled, alice, big.NewInt(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

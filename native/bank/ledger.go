package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"lendpool/storage"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("bank: invalid amount")
)

var balancePrefix = []byte("bank/balance/")

// Ledger is a single-token balance book persisted in a key-value database.
// The lending pool's custody account is a regular ledger account; TransferIn
// and TransferOut move tokens between it and pool participants.
type Ledger struct {
	mu      sync.Mutex
	db      storage.Database
	symbol  string
	custody common.Address
}

// NewLedger creates a ledger for symbol whose pool custody account is
// custody.
func NewLedger(db storage.Database, symbol string, custody common.Address) *Ledger {
	return &Ledger{db: db, symbol: strings.ToUpper(strings.TrimSpace(symbol)), custody: custody}
}

// Symbol returns the token symbol handled by the ledger.
func (l *Ledger) Symbol() string { return l.symbol }

// Custody returns the pool custody account.
func (l *Ledger) Custody() common.Address { return l.custody }

func (l *Ledger) key(addr common.Address) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(l.symbol)+1+common.AddressLength)
	buf = append(buf, balancePrefix...)
	buf = append(buf, l.symbol...)
	buf = append(buf, '/')
	return append(buf, addr[:]...)
}

func (l *Ledger) balance(addr common.Address) (*big.Int, error) {
	data, err := l.db.Get(l.key(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	out := new(big.Int)
	if err := rlp.DecodeBytes(data, out); err != nil {
		return nil, fmt.Errorf("bank: decode balance: %w", err)
	}
	return out, nil
}

func (l *Ledger) stage(batch storage.Batch, addr common.Address, amount *big.Int) error {
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	batch.Put(l.key(addr), encoded)
	return nil
}

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(addr common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(addr)
}

// Credit mints amount into addr. It is used for genesis allocations.
func (l *Ledger) Credit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current, err := l.balance(addr)
	if err != nil {
		return err
	}
	batch := l.db.NewBatch()
	if err := l.stage(batch, addr, current.Add(current, amount)); err != nil {
		return err
	}
	return batch.Write()
}

// Transfer moves amount from one account to another in a single batch.
func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBal, err := l.balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBal, amount)
	}
	toBal, err := l.balance(to)
	if err != nil {
		return err
	}
	batch := l.db.NewBatch()
	if err := l.stage(batch, from, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := l.stage(batch, to, toBal.Add(toBal, amount)); err != nil {
		return err
	}
	return batch.Write()
}

// TransferIn pulls amount from a participant into pool custody.
func (l *Ledger) TransferIn(ctx context.Context, from common.Address, amount *big.Int) error {
	return l.Transfer(ctx, from, l.custody, amount)
}

// TransferOut pays amount from pool custody to a participant.
func (l *Ledger) TransferOut(ctx context.Context, to common.Address, amount *big.Int) error {
	return l.Transfer(ctx, l.custody, to, amount)
}

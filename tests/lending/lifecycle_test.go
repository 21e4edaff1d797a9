package lending_test

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lendpool/core/events"
	"lendpool/native/bank"
	"lendpool/native/lending"
	"lendpool/storage"
)

func TestPoolLifecycleKeepsBooksBalanced(t *testing.T) {
	p := newPool(t, storage.NewMemDB())
	ctx := context.Background()

	require.NoError(t, p.engine.Stake(ctx, staker, tokens(2_000)))
	p.checkBooks()
	require.NoError(t, p.engine.Deposit(ctx, alice, tokens(9_000)))
	require.NoError(t, p.engine.Deposit(ctx, bob, tokens(4_000)))
	p.checkBooks()

	loanID := p.fund(carol, terms(tokens(3_000), 180*day, 6))
	p.checkBooks()

	for i := 0; i < 6; i++ {
		p.advance(30 * day)
		due, err := p.engine.LoanBalanceDue(loanID)
		require.NoError(t, err)
		pay := new(big.Int).Add(tokens(500), tokens(40))
		if pay.Cmp(due) > 0 {
			pay = due
		}
		_, err = p.engine.Repay(ctx, carol, loanID, pay)
		require.NoError(t, err)
		p.checkBooks()
	}
	due, err := p.engine.LoanBalanceDue(loanID)
	require.NoError(t, err)
	if due.Sign() > 0 {
		out, err := p.engine.Repay(ctx, carol, loanID, due)
		require.NoError(t, err)
		require.True(t, out.FullyRepaid)
	}
	loan, err := p.engine.Loan(loanID)
	require.NoError(t, err)
	require.Equal(t, lending.LoanRepaid, loan.Status)

	settled, err := p.engine.SettleYield(ctx, alice)
	require.NoError(t, err)
	require.True(t, settled.Sign() >= 0)
	p.checkBooks()

	// Interest made lenders whole and then some.
	aliceValue, err := p.engine.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, 1, aliceValue.Cmp(tokens(9_000)))

	stakerRevenue, err := p.engine.RevenueBalanceOf(staker)
	require.NoError(t, err)
	treasuryRevenue, err := p.engine.RevenueBalanceOf(treasury)
	require.NoError(t, err)
	require.Positive(t, stakerRevenue.Sign())
	require.Positive(t, treasuryRevenue.Sign())
	require.NoError(t, p.engine.WithdrawRevenue(ctx, staker, stakerRevenue))
	require.NoError(t, p.engine.WithdrawRevenue(ctx, treasury, treasuryRevenue))
	p.checkBooks()

	withdrawable, err := p.engine.AmountWithdrawable(alice)
	require.NoError(t, err)
	before := p.wallet(alice)
	require.NoError(t, p.engine.Withdraw(ctx, alice, withdrawable))
	require.Equal(t, 1, p.wallet(alice).Cmp(before))
	p.checkBooks()

	require.Contains(t, p.recorder.Types(), events.TypeLoanRepaid)
	require.Contains(t, p.recorder.Types(), events.TypePoolRevenueWithdrawn)
}

func TestDefaultAfterMissedInstallmentSocializesLoss(t *testing.T) {
	p := newPool(t, storage.NewMemDB())
	ctx := context.Background()
	require.NoError(t, p.engine.Stake(ctx, staker, tokens(500)))
	require.NoError(t, p.engine.Deposit(ctx, alice, tokens(4_500)))

	loanID := p.fund(dave, terms(tokens(3_000), 90*day, 3))
	p.advance(30*day + 3*day)
	ok, err := p.engine.CanDefault(loanID)
	require.NoError(t, err)
	require.False(t, ok)
	p.advance(1)
	ok, err = p.engine.CanDefault(loanID)
	require.NoError(t, err)
	require.True(t, ok)

	// Lenders may not default while the staker is active.
	_, err = p.engine.DefaultLoan(ctx, alice, loanID)
	require.ErrorIs(t, err, lending.ErrUnauthorized)

	out, err := p.engine.DefaultLoan(ctx, staker, loanID)
	require.NoError(t, err)
	require.Equal(t, tokens(3_000).String(), out.Loss.String())
	require.Equal(t, tokens(500).String(), out.StakerLoss.String())
	require.Equal(t, tokens(2_500).String(), out.LenderLoss.String())
	p.checkBooks()

	staked, err := p.engine.StakedBalance()
	require.NoError(t, err)
	require.Zero(t, staked.Sign())
	aliceValue, err := p.engine.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, tokens(2_000).String(), aliceValue.String())

	stats, err := p.engine.BorrowerStats(dave)
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.CountDefaulted)

	// With the stake wiped out deposits are capped at zero.
	depositable, err := p.engine.AmountDepositable()
	require.NoError(t, err)
	require.Zero(t, depositable.Sign())
	err = p.engine.Deposit(ctx, bob, tokens(1))
	require.ErrorIs(t, err, lending.ErrOutOfBounds)
}

func TestPauseBlocksFlowsUntilGovernanceResumes(t *testing.T) {
	p := newPool(t, storage.NewMemDB())
	ctx := context.Background()
	require.NoError(t, p.engine.Stake(ctx, staker, tokens(1_000)))
	require.NoError(t, p.engine.Deposit(ctx, alice, tokens(1_000)))

	require.ErrorIs(t, p.engine.Pause(ctx, staker), lending.ErrUnauthorized)
	require.NoError(t, p.engine.Pause(ctx, gov))
	for name, call := range map[string]func() error{
		"deposit":  func() error { return p.engine.Deposit(ctx, bob, tokens(1)) },
		"withdraw": func() error { return p.engine.Withdraw(ctx, alice, tokens(1)) },
		"stake":    func() error { return p.engine.Stake(ctx, staker, tokens(1)) },
		"request": func() error {
			_, err := p.engine.RequestLoan(ctx, carol, tokens(100), 30*day, nil)
			return err
		},
	} {
		require.ErrorIs(t, call(), lending.ErrInactive, name)
	}
	// Governance parameters stay adjustable while paused.
	require.NoError(t, p.engine.SetProtocolFeePercent(ctx, gov, 50))

	require.NoError(t, p.engine.Unpause(ctx, gov))
	require.NoError(t, p.engine.Deposit(ctx, bob, tokens(1)))
	p.checkBooks()
}

func TestFailedTransferLeavesStateUntouched(t *testing.T) {
	p := newPool(t, storage.NewMemDB())
	ctx := context.Background()
	require.NoError(t, p.engine.Stake(ctx, staker, tokens(1_000)))
	before := p.state()

	err := p.engine.Deposit(ctx, alice, tokens(9_001))
	require.ErrorIs(t, err, lending.ErrOutOfBounds)
	require.Equal(t, before.PoolFunds.String(), p.state().PoolFunds.String())

	// A wallet short of funds must not mint shares.
	require.NoError(t, p.ledger.Transfer(ctx, alice, bob, tokens(99_995)))
	err = p.engine.Deposit(ctx, alice, tokens(10))
	require.ErrorIs(t, err, bank.ErrInsufficientBalance)
	pos, err := p.engine.Lender(alice)
	require.NoError(t, err)
	require.Zero(t, pos.Shares.Sign())
	p.checkBooks()
	require.NotContains(t, p.recorder.Types(), events.TypePoolDeposited)
}

func TestPoolStateSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)

	p := newPool(t, db)
	ctx := context.Background()
	require.NoError(t, p.engine.Stake(ctx, staker, tokens(2_000)))
	require.NoError(t, p.engine.Deposit(ctx, alice, tokens(5_000)))
	loanID := p.fund(carol, terms(tokens(1_000), 60*day, 1))
	now := p.now
	require.NoError(t, db.Close())

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	restarted := newPool(t, db)
	restarted.now = now

	loan, err := restarted.engine.Loan(loanID)
	require.NoError(t, err)
	require.Equal(t, lending.LoanOutstanding, loan.Status)
	require.Equal(t, carol, loan.Borrower)
	value, err := restarted.engine.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, tokens(5_000).String(), value.String())
	restarted.checkBooks()

	err = restarted.engine.Bootstrap(ctx)
	require.True(t, errors.Is(err, lending.ErrInvalidState))
}

package lending

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/events"
)

// Stake adds first-loss capital from the staker. Staking is allowed while
// the pool is closed.
func (e *Engine) Stake(ctx context.Context, actor common.Address, amount *big.Int) error {
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := e.requireStaker(actor); err != nil {
			return err
		}
		if err := requireUnpaused(pool); err != nil {
			return err
		}
		if err := requirePositive(amount); err != nil {
			return err
		}
		if err := settleInto(c); err != nil {
			return err
		}
		var shares *big.Int
		if orphaned(pool) {
			// Leftover shares have no backing value; credit one unit less
			// so the share price stays finite.
			shares = new(big.Int).Sub(amount, big.NewInt(1))
		} else {
			var err error
			if shares, err = sharesFromTokens(pool, amount); err != nil {
				return err
			}
		}
		if shares.Sign() <= 0 {
			return errSharesTooSmall
		}
		mintForEntry(pool, shares, amount)
		pool.StakedShares.Add(pool.StakedShares, shares)
		touchStaker(c)
		c.pull(actor, amount)
		c.emit(events.PoolFlow{Type: events.TypePoolStaked, Actor: actor, Amount: cloneInt(amount), Shares: shares})
		return nil
	})
}

// Unstake withdraws stake worth amount. The exit fee stays in the pool.
func (e *Engine) Unstake(ctx context.Context, actor common.Address, amount *big.Int) error {
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := e.requireStaker(actor); err != nil {
			return err
		}
		if err := requireUnpaused(pool); err != nil {
			return err
		}
		if err := requirePositive(amount); err != nil {
			return err
		}
		if err := settleInto(c); err != nil {
			return err
		}
		limit, err := amountUnstakable(pool)
		if err != nil {
			return err
		}
		if amount.Cmp(limit) > 0 {
			return errExceedsUnstakable
		}
		burn, fee, err := burnForExit(pool, amount, pool.StakedShares)
		if err != nil {
			return err
		}
		pool.StakedShares.Sub(pool.StakedShares, burn)
		touchStaker(c)
		net := new(big.Int).Sub(amount, fee)
		c.pay(actor, net)
		c.emit(events.PoolFlow{Type: events.TypePoolUnstaked, Actor: actor, Amount: net, Shares: burn, Fee: fee})
		return nil
	})
}

// Deposit adds lender capital. Role holders and borrowers with an
// outstanding loan may not deposit.
func (e *Engine) Deposit(ctx context.Context, actor common.Address, amount *big.Int) error {
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := requireActive(pool); err != nil {
			return err
		}
		if e.isPrivileged(actor) {
			return errPrivileged
		}
		if err := requirePositive(amount); err != nil {
			return err
		}
		stats, err := c.tx.borrower(actor)
		if err != nil {
			return err
		}
		if stats.CountOutstanding > 0 {
			return errHasOutstanding
		}
		if err := settleInto(c); err != nil {
			return err
		}
		limit, err := amountDepositable(pool)
		if err != nil {
			return err
		}
		if amount.Cmp(limit) > 0 {
			return errExceedsDepositable
		}
		shares, err := sharesFromTokens(pool, amount)
		if err != nil {
			return err
		}
		if shares.Sign() <= 0 {
			return errSharesTooSmall
		}
		pos, err := c.tx.lender(actor)
		if err != nil {
			return err
		}
		mintForEntry(pool, shares, amount)
		pos.Shares.Add(pos.Shares, shares)
		pos.LastDepositTime = c.now
		c.tx.lenders.put(actor, pos)
		c.pull(actor, amount)
		c.emit(events.PoolFlow{Type: events.TypePoolDeposited, Actor: actor, Amount: cloneInt(amount), Shares: shares})
		return nil
	})
}

// Withdraw redeems lender shares worth amount. Withdrawals remain possible
// after the pool is closed.
func (e *Engine) Withdraw(ctx context.Context, actor common.Address, amount *big.Int) error {
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := requireUnpaused(pool); err != nil {
			return err
		}
		if e.isPrivileged(actor) {
			return errPrivileged
		}
		if err := requirePositive(amount); err != nil {
			return err
		}
		if err := settleInto(c); err != nil {
			return err
		}
		pos, err := c.tx.lender(actor)
		if err != nil {
			return err
		}
		limit, err := amountWithdrawable(pool, pos)
		if err != nil {
			return err
		}
		if amount.Cmp(limit) > 0 {
			return errExceedsWithdrawable
		}
		burn, fee, err := burnForExit(pool, amount, pos.Shares)
		if err != nil {
			return err
		}
		pos.Shares.Sub(pos.Shares, burn)
		c.tx.lenders.put(actor, pos)
		net := new(big.Int).Sub(amount, fee)
		c.pay(actor, net)
		c.emit(events.PoolFlow{Type: events.TypePoolWithdrawn, Actor: actor, Amount: net, Shares: burn, Fee: fee})
		return nil
	})
}

// Close stops new deposits and loans. It requires no outstanding principal
// and no liquidity held for open offers.
func (e *Engine) Close(ctx context.Context, actor common.Address) error {
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := e.requireStaker(actor); err != nil {
			return err
		}
		if err := requireUnpaused(pool); err != nil {
			return err
		}
		if pool.Closed {
			return errAlreadyClosed
		}
		if pool.BorrowedFunds.Sign() > 0 {
			return errBorrowedFunds
		}
		if pool.AllocatedFunds.Sign() > 0 {
			return errAllocatedFunds
		}
		pool.Closed = true
		touchStaker(c)
		c.emit(events.PoolStatusChanged{Type: events.TypePoolClosed, Actor: actor})
		return nil
	})
}

// Open reverses Close.
func (e *Engine) Open(ctx context.Context, actor common.Address) error {
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := e.requireStaker(actor); err != nil {
			return err
		}
		if err := requireUnpaused(pool); err != nil {
			return err
		}
		if !pool.Closed {
			return errNotClosed
		}
		pool.Closed = false
		touchStaker(c)
		c.emit(events.PoolStatusChanged{Type: events.TypePoolOpened, Actor: actor})
		return nil
	})
}

// Pause halts every pool and desk operation except governance setters.
func (e *Engine) Pause(ctx context.Context, actor common.Address) error {
	return e.mutate(ctx, func(c *call) error {
		if err := e.requireGovernance(actor); err != nil {
			return err
		}
		if c.tx.pool.Paused {
			return errAlreadyPaused
		}
		c.tx.pool.Paused = true
		c.emit(events.PoolStatusChanged{Type: events.TypePoolPaused, Actor: actor})
		return nil
	})
}

// Unpause reverses Pause.
func (e *Engine) Unpause(ctx context.Context, actor common.Address) error {
	return e.mutate(ctx, func(c *call) error {
		if err := e.requireGovernance(actor); err != nil {
			return err
		}
		if !c.tx.pool.Paused {
			return errNotPaused
		}
		c.tx.pool.Paused = false
		c.emit(events.PoolStatusChanged{Type: events.TypePoolUnpaused, Actor: actor})
		return nil
	})
}

// SettleYield folds pending lender interest into pool funds. Anyone may
// call it.
func (e *Engine) SettleYield(ctx context.Context, actor common.Address) (*big.Int, error) {
	var settled *big.Int
	err := e.mutate(ctx, func(c *call) error {
		if err := requireUnpaused(c.tx.pool); err != nil {
			return err
		}
		amount, err := settleYield(c.tx.pool)
		if err != nil {
			return err
		}
		settled = amount
		if amount.Sign() > 0 {
			c.emit(events.PoolFlow{Type: events.TypePoolYieldSettled, Actor: actor, Amount: cloneInt(amount)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// settleInto settles yield inside a mutation and records the event.
func settleInto(c *call) error {
	amount, err := settleYield(c.tx.pool)
	if err != nil {
		return err
	}
	if amount.Sign() > 0 {
		c.emit(events.PoolFlow{Type: events.TypePoolYieldSettled, Amount: amount})
	}
	return nil
}

func settleYield(pool *PoolState) (*big.Int, error) {
	pending := cloneInt(pool.PendingYield)
	if pending.Sign() == 0 {
		return pending, nil
	}
	pool.PoolFunds.Add(pool.PoolFunds, pending)
	pool.RawLiquidity.Add(pool.RawLiquidity, pending)
	pool.PendingYield.SetInt64(0)
	return pending, nil
}

// WithdrawRevenue pays out protocol fees to the treasury or staker earnings
// to the staker. An address holding both roles draws from the staker
// balance first.
func (e *Engine) WithdrawRevenue(ctx context.Context, actor common.Address, amount *big.Int) error {
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		isStaker := e.hasRole(RoleStaker, actor)
		isTreasury := e.hasRole(RoleTreasury, actor)
		if !isStaker && !isTreasury {
			return errNotRevenueRole
		}
		if err := requireUnpaused(pool); err != nil {
			return err
		}
		if err := requirePositive(amount); err != nil {
			return err
		}
		available := revenueOf(pool, isStaker, isTreasury)
		if amount.Cmp(available) > 0 {
			return errExceedsRevenue
		}
		remaining := new(big.Int).Set(amount)
		if isStaker {
			take := minInt(remaining, pool.StakerRevenue)
			pool.StakerRevenue.Sub(pool.StakerRevenue, take)
			remaining.Sub(remaining, take)
			touchStaker(c)
		}
		if isTreasury && remaining.Sign() > 0 {
			pool.TreasuryRevenue.Sub(pool.TreasuryRevenue, remaining)
		}
		pool.TokenBalance.Sub(pool.TokenBalance, amount)
		c.pay(actor, amount)
		c.emit(events.PoolFlow{Type: events.TypePoolRevenueWithdrawn, Actor: actor, Amount: cloneInt(amount)})
		return nil
	})
}

func revenueOf(pool *PoolState, staker, treasury bool) *big.Int {
	out := big.NewInt(0)
	if staker {
		out.Add(out, pool.StakerRevenue)
	}
	if treasury {
		out.Add(out, pool.TreasuryRevenue)
	}
	return out
}

// amountDepositable is the largest deposit that keeps the staked share of
// pool funds at or above the target.
func amountDepositable(pool *PoolState) (*big.Int, error) {
	if pool.Paused || pool.Closed || pool.PoolFunds.Sign() == 0 {
		return big.NewInt(0), nil
	}
	target := pool.Config.TargetStakePercent
	if target == 0 {
		return MaxAmount(), nil
	}
	staked, err := stakedValue(pool)
	if err != nil {
		return nil, err
	}
	capacity, err := mulDiv(staked, hundred(), pct(target))
	if err != nil {
		return nil, err
	}
	return subFloor(capacity, pool.PoolFunds), nil
}

// amountUnstakable is the largest unstake that keeps stake locked against
// lender funds at the target ratio, bounded by liquidity.
func amountUnstakable(pool *PoolState) (*big.Int, error) {
	if pool.Paused {
		return big.NewInt(0), nil
	}
	staked, err := stakedValue(pool)
	if err != nil {
		return nil, err
	}
	if pool.Closed {
		return minInt(pool.RawLiquidity, staked), nil
	}
	lenderFunds := subFloor(pool.PoolFunds, staked)
	target := pool.Config.TargetStakePercent
	locked := big.NewInt(0)
	switch {
	case target == 0 || lenderFunds.Sign() == 0:
	case target >= OneHundredPercent:
		locked = new(big.Int).Set(staked)
	default:
		if locked, err = mulDivUp(lenderFunds, pct(target), pct(OneHundredPercent-target)); err != nil {
			return nil, err
		}
	}
	return minInt(pool.RawLiquidity, subFloor(staked, locked)), nil
}

func amountWithdrawable(pool *PoolState, pos *LenderPosition) (*big.Int, error) {
	if pool.Paused {
		return big.NewInt(0), nil
	}
	balance, err := tokensFromShares(pool, pos.Shares)
	if err != nil {
		return nil, err
	}
	return minInt(pool.RawLiquidity, balance), nil
}

// canOffer reports whether amount can be reserved without breaching the
// liquidity and stake targets.
func canOffer(pool *PoolState, amount *big.Int) (bool, error) {
	if !isPositive(amount) || amount.Cmp(pool.RawLiquidity) > 0 {
		return false, nil
	}
	floor, err := mulDivUp(pool.PoolFunds, pct(pool.Config.TargetLiquidityPercent), hundred())
	if err != nil {
		return false, err
	}
	if new(big.Int).Sub(pool.RawLiquidity, amount).Cmp(floor) < 0 {
		return false, nil
	}
	return stakeMeetsTarget(pool)
}

// stakeMeetsTarget reports whether staked value is at least the target
// share of pool funds.
func stakeMeetsTarget(pool *PoolState) (bool, error) {
	staked, err := stakedValue(pool)
	if err != nil {
		return false, err
	}
	lhs := new(big.Int).Mul(staked, hundred())
	rhs := new(big.Int).Mul(pool.PoolFunds, pct(pool.Config.TargetStakePercent))
	return lhs.Cmp(rhs) >= 0, nil
}

func allocate(pool *PoolState, amount *big.Int) {
	pool.RawLiquidity.Sub(pool.RawLiquidity, amount)
	pool.AllocatedFunds.Add(pool.AllocatedFunds, amount)
}

func release(pool *PoolState, amount *big.Int) {
	pool.AllocatedFunds.Sub(pool.AllocatedFunds, amount)
	pool.RawLiquidity.Add(pool.RawLiquidity, amount)
}

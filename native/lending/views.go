package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolBalance returns the aggregate balances with pending yield settled.
func (e *Engine) PoolBalance() (*PoolBalance, error) {
	var out *PoolBalance
	err := e.view(func(t *tx, _ uint64) error {
		p := t.pool
		staked, err := stakedValue(p)
		if err != nil {
			return err
		}
		out = &PoolBalance{
			TokenBalance:   cloneInt(p.TokenBalance),
			PoolFunds:      cloneInt(p.PoolFunds),
			RawLiquidity:   cloneInt(p.RawLiquidity),
			AllocatedFunds: cloneInt(p.AllocatedFunds),
			BorrowedFunds:  cloneInt(p.BorrowedFunds),
			PendingYield:   cloneInt(p.PendingYield),
			TotalShares:    cloneInt(p.TotalShares),
			StakedShares:   cloneInt(p.StakedShares),
			StakedBalance:  staked,
			Closed:         p.Closed,
			Paused:         p.Paused,
		}
		return nil
	})
	return out, err
}

// PoolState returns a copy of the raw pool record without settling yield.
func (e *Engine) PoolState() (*PoolState, error) {
	if err := e.lock(); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	t, err := beginTx(e.state)
	if err != nil {
		return nil, err
	}
	return t.pool.Clone(), nil
}

// PoolConfig returns the current risk and fee parameters.
func (e *Engine) PoolConfig() (PoolConfig, error) {
	var out PoolConfig
	err := e.view(func(t *tx, _ uint64) error {
		out = t.pool.Config
		return nil
	})
	return out, err
}

// TokenConfig describes the pooled asset.
func (e *Engine) TokenConfig() (TokenConfig, error) {
	var out TokenConfig
	err := e.view(func(t *tx, _ uint64) error {
		out = t.pool.Token
		out.OneToken = cloneInt(t.pool.Token.OneToken)
		return nil
	})
	return out, err
}

// LoanTemplate returns the defaults applied to new applications.
func (e *Engine) LoanTemplate() (LoanTemplate, error) {
	var out LoanTemplate
	err := e.view(func(t *tx, _ uint64) error {
		out = t.pool.Template
		out.MinAmount = cloneInt(t.pool.Template.MinAmount)
		return nil
	})
	return out, err
}

// Loan returns a loan by id.
func (e *Engine) Loan(id uint64) (*Loan, error) {
	var out *Loan
	err := e.view(func(t *tx, _ uint64) error {
		loan, err := t.loan(id)
		if err != nil {
			return err
		}
		out = loan.Clone()
		return nil
	})
	return out, err
}

// LoanDetail returns the repayment progress of a loan.
func (e *Engine) LoanDetail(id uint64) (*LoanDetail, error) {
	var out *LoanDetail
	err := e.view(func(t *tx, _ uint64) error {
		detail, err := t.loanDetail(id)
		if err != nil {
			return err
		}
		out = detail.Clone()
		return nil
	})
	return out, err
}

// LoanApplication returns an application by id.
func (e *Engine) LoanApplication(id uint64) (*LoanApplication, error) {
	var out *LoanApplication
	err := e.view(func(t *tx, _ uint64) error {
		app, err := t.application(id)
		if err != nil {
			return err
		}
		out = app.Clone()
		return nil
	})
	return out, err
}

// LoanOffer returns the offer drafted for an application.
func (e *Engine) LoanOffer(applicationID uint64) (*LoanOffer, error) {
	var out *LoanOffer
	err := e.view(func(t *tx, _ uint64) error {
		offer, found, err := t.offer(applicationID)
		if err != nil {
			return err
		}
		if !found {
			return errOfferNotFound
		}
		out = offer.Clone()
		return nil
	})
	return out, err
}

// BorrowerStats returns the borrower's history; unknown borrowers yield an
// empty record.
func (e *Engine) BorrowerStats(addr common.Address) (*BorrowerStats, error) {
	var out *BorrowerStats
	err := e.view(func(t *tx, _ uint64) error {
		stats, err := t.borrower(addr)
		if err != nil {
			return err
		}
		out = stats.Clone()
		return nil
	})
	return out, err
}

// Lender returns the lender's position; unknown lenders yield an empty one.
func (e *Engine) Lender(addr common.Address) (*LenderPosition, error) {
	var out *LenderPosition
	err := e.view(func(t *tx, _ uint64) error {
		pos, err := t.lender(addr)
		if err != nil {
			return err
		}
		out = pos.Clone()
		return nil
	})
	return out, err
}

// RevenueBalanceOf returns the revenue withdrawable by addr given the roles
// it holds.
func (e *Engine) RevenueBalanceOf(addr common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(t *tx, _ uint64) error {
		out = revenueOf(t.pool, e.hasRole(RoleStaker, addr), e.hasRole(RoleTreasury, addr))
		return nil
	})
	return out, err
}

// BalanceOf values a lender's shares in tokens.
func (e *Engine) BalanceOf(addr common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(t *tx, _ uint64) error {
		pos, err := t.lender(addr)
		if err != nil {
			return err
		}
		out, err = tokensFromShares(t.pool, pos.Shares)
		return err
	})
	return out, err
}

// StakedBalance values the staker's shares in tokens.
func (e *Engine) StakedBalance() (*big.Int, error) {
	var out *big.Int
	err := e.view(func(t *tx, _ uint64) error {
		var err error
		out, err = stakedValue(t.pool)
		return err
	})
	return out, err
}

// AmountDepositable is the largest deposit the stake target currently
// allows.
func (e *Engine) AmountDepositable() (*big.Int, error) {
	var out *big.Int
	err := e.view(func(t *tx, _ uint64) error {
		var err error
		out, err = amountDepositable(t.pool)
		return err
	})
	return out, err
}

// AmountUnstakable is the largest stake the staker may currently withdraw.
func (e *Engine) AmountUnstakable() (*big.Int, error) {
	var out *big.Int
	err := e.view(func(t *tx, _ uint64) error {
		var err error
		out, err = amountUnstakable(t.pool)
		return err
	})
	return out, err
}

// AmountWithdrawable is the largest withdrawal addr may currently make.
func (e *Engine) AmountWithdrawable(addr common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(t *tx, _ uint64) error {
		pos, err := t.lender(addr)
		if err != nil {
			return err
		}
		out, err = amountWithdrawable(t.pool, pos)
		return err
	})
	return out, err
}

// CanOffer reports whether an offer of amount could be funded now.
func (e *Engine) CanOffer(amount *big.Int) (bool, error) {
	var out bool
	err := e.view(func(t *tx, _ uint64) error {
		if t.pool.Paused || t.pool.Closed {
			return nil
		}
		var err error
		out, err = canOffer(t.pool, amount)
		return err
	})
	return out, err
}

// CurrentLenderAPY is the lender APY implied by current utilisation and the
// average APR of outstanding loans.
func (e *Engine) CurrentLenderAPY() (uint64, error) {
	var out uint64
	err := e.view(func(t *tx, _ uint64) error {
		var err error
		out, err = currentLenderAPY(t.pool)
		return err
	})
	return out, err
}

// ProjectedLenderAPY is the lender APY for a hypothetical borrow rate and
// APR.
func (e *Engine) ProjectedLenderAPY(borrowRate, apr uint64) (uint64, error) {
	var out uint64
	err := e.view(func(t *tx, _ uint64) error {
		var err error
		out, err = projectedLenderAPY(t.pool, borrowRate, apr)
		return err
	})
	return out, err
}

// LoanBalanceDue is the outstanding principal plus interest accrued to now.
func (e *Engine) LoanBalanceDue(loanID uint64) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(t *tx, now uint64) error {
		loan, err := t.loan(loanID)
		if err != nil {
			return err
		}
		detail, err := t.loanDetail(loanID)
		if err != nil {
			return err
		}
		out, err = balanceDue(loan, detail, now)
		return err
	})
	return out, err
}

// CanDefault reports whether the loan may be defaulted now.
func (e *Engine) CanDefault(loanID uint64) (bool, error) {
	var out bool
	err := e.view(func(t *tx, now uint64) error {
		loan, err := t.loan(loanID)
		if err != nil {
			return err
		}
		detail, err := t.loanDetail(loanID)
		if err != nil {
			return err
		}
		out = canDefault(loan, detail, now)
		return nil
	})
	return out, err
}

// StakerInactive reports whether fallback authority is currently active.
func (e *Engine) StakerInactive() (bool, error) {
	var out bool
	err := e.view(func(t *tx, now uint64) error {
		out = e.stakerInactive(t.pool, now)
		return nil
	})
	return out, err
}

// StakerEarningsPercent is the share of post-fee interest currently routed
// to the staker.
func (e *Engine) StakerEarningsPercent() (uint64, error) {
	var out uint64
	err := e.view(func(t *tx, _ uint64) error {
		v, err := stakerEarningsPercent(t.pool)
		if err != nil {
			return err
		}
		if !v.IsUint64() {
			return errMathOverflow
		}
		out = v.Uint64()
		return nil
	})
	return out, err
}

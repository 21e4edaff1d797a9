package lending

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/events"
)

// canDefault reports whether an outstanding loan is past its final due date
// plus grace, or for installment loans past the next unpaid installment plus
// grace.
func canDefault(loan *Loan, detail *LoanDetail, now uint64) bool {
	if loan.Status != LoanOutstanding {
		return false
	}
	if now > loan.BorrowedTime+loan.Duration+loan.GracePeriod {
		return true
	}
	if loan.Installments <= 1 || !isPositive(loan.InstallmentAmount) {
		return false
	}
	period := loan.Duration / loan.Installments
	paid := new(big.Int).Quo(detail.TotalAmountRepaid, loan.InstallmentAmount)
	if !paid.IsUint64() || paid.Uint64() >= loan.Installments {
		return false
	}
	nextDue := loan.BorrowedTime + (paid.Uint64()+1)*period
	return now > nextDue+loan.GracePeriod
}

// DefaultLoan writes off a delinquent loan. The loss is the amount lent less
// everything the borrower has paid back. The staker's shares absorb it first,
// up to their full value; the remainder reduces pool funds and is shared by
// lenders. Interest already collected on the loan is counted as recovered
// principal: it leaves pool funds pro rata across every remaining share, so
// the pool's books drop by the full outstanding principal.
func (e *Engine) DefaultLoan(ctx context.Context, actor common.Address, loanID uint64) (*DefaultOutcome, error) {
	var outcome *DefaultOutcome
	err := e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := requireUnpaused(pool); err != nil {
			return err
		}
		if err := e.authorizeRecovery(c, actor, errCannotDefault); err != nil {
			return err
		}
		loan, err := c.tx.loan(loanID)
		if err != nil {
			return err
		}
		if loan.Status != LoanOutstanding {
			return errLoanStatus
		}
		detail, err := c.tx.loanDetail(loanID)
		if err != nil {
			return err
		}
		if !canDefault(loan, detail, c.now) {
			return errNotDefaultable
		}
		if err := settleInto(c); err != nil {
			return err
		}

		principal := principalOutstanding(loan, detail)
		loss := subFloor(loan.Amount, detail.TotalAmountRepaid)
		recovered := new(big.Int).Sub(principal, loss)
		staked, err := stakedValue(pool)
		if err != nil {
			return err
		}
		stakerLoss := minInt(loss, staked)
		var burn *big.Int
		if stakerLoss.Cmp(staked) == 0 {
			burn = new(big.Int).Set(pool.StakedShares)
		} else {
			if burn, err = sharesToBurn(pool, stakerLoss); err != nil {
				return err
			}
			burn = minInt(burn, pool.StakedShares)
		}
		lenderLoss := new(big.Int).Sub(loss, stakerLoss)

		pool.StakedShares.Sub(pool.StakedShares, burn)
		pool.TotalShares.Sub(pool.TotalShares, burn)
		pool.PoolFunds = subFloor(pool.PoolFunds, principal)
		pool.BorrowedFunds = subFloor(pool.BorrowedFunds, principal)
		pool.WeightedAprSum = subFloor(pool.WeightedAprSum, new(big.Int).Mul(principal, pct(loan.APR)))

		stats, err := c.tx.borrower(loan.Borrower)
		if err != nil {
			return err
		}
		loan.Status = LoanDefaulted
		reverseLoanStats(stats, loan, detail)
		stats.CountDefaulted++
		c.tx.loans.put(loanID, loan)
		c.tx.borrowers.put(loan.Borrower, stats)

		outcome = &DefaultOutcome{Loss: loss, StakerLoss: stakerLoss, LenderLoss: lenderLoss, Recovered: recovered}
		c.emit(events.LoanDefaulted{
			LoanID:     loanID,
			Borrower:   loan.Borrower,
			Actor:      actor,
			Loss:       cloneInt(loss),
			StakerLoss: cloneInt(stakerLoss),
			LenderLoss: cloneInt(lenderLoss),
			Recovered:  cloneInt(recovered),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

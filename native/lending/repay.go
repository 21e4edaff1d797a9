package lending

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/events"
)

func principalOutstanding(loan *Loan, detail *LoanDetail) *big.Int {
	return subFloor(loan.Amount, detail.PrincipalAmountRepaid)
}

// accruedInterest is simple interest on the outstanding principal since the
// last payment.
func accruedInterest(loan *Loan, detail *LoanDetail, now uint64) (*big.Int, uint64, error) {
	if now <= detail.LastPaymentTime {
		return big.NewInt(0), 0, nil
	}
	elapsed := now - detail.LastPaymentTime
	principal := principalOutstanding(loan, detail)
	if principal.Sign() == 0 {
		return big.NewInt(0), elapsed, nil
	}
	weighted := new(big.Int).Mul(principal, pct(loan.APR))
	denom := new(big.Int).Mul(new(big.Int).SetUint64(secondsPerYear), hundred())
	interest, err := mulDiv(weighted, new(big.Int).SetUint64(elapsed), denom)
	if err != nil {
		return nil, 0, err
	}
	return interest, elapsed, nil
}

func balanceDue(loan *Loan, detail *LoanDetail, now uint64) (*big.Int, error) {
	if loan.Status != LoanOutstanding {
		return big.NewInt(0), nil
	}
	interest, _, err := accruedInterest(loan, detail, now)
	if err != nil {
		return nil, err
	}
	return interest.Add(interest, principalOutstanding(loan, detail)), nil
}

// Repay applies a payment from the borrower.
func (e *Engine) Repay(ctx context.Context, actor common.Address, loanID uint64, amount *big.Int) (*RepaymentOutcome, error) {
	return e.repay(ctx, actor, loanID, amount, nil)
}

// RepayOnBehalf lets any party pay toward borrower's loan.
func (e *Engine) RepayOnBehalf(ctx context.Context, actor common.Address, loanID uint64, amount *big.Int, borrower common.Address) (*RepaymentOutcome, error) {
	return e.repay(ctx, actor, loanID, amount, &borrower)
}

func (e *Engine) repay(ctx context.Context, payer common.Address, loanID uint64, amount *big.Int, onBehalf *common.Address) (*RepaymentOutcome, error) {
	var outcome *RepaymentOutcome
	err := e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := requireUnpaused(pool); err != nil {
			return err
		}
		if err := requirePositive(amount); err != nil {
			return err
		}
		loan, err := c.tx.loan(loanID)
		if err != nil {
			return err
		}
		if onBehalf != nil {
			if *onBehalf != loan.Borrower {
				return errBorrowerMismatch
			}
		} else if payer != loan.Borrower {
			return errNotBorrower
		}
		if loan.Status != LoanOutstanding {
			return errLoanStatus
		}
		detail, err := c.tx.loanDetail(loanID)
		if err != nil {
			return err
		}
		interestDue, elapsed, err := accruedInterest(loan, detail, c.now)
		if err != nil {
			return err
		}
		principalDue := principalOutstanding(loan, detail)
		due := new(big.Int).Add(interestDue, principalDue)
		paid := minInt(amount, due)
		if paid.Cmp(due) < 0 && paid.Cmp(pool.Token.OneToken) < 0 {
			return errPaymentTooSmall
		}

		interest := minInt(paid, interestDue)
		principal := new(big.Int).Sub(paid, interest)
		if interest.Cmp(interestDue) < 0 && interestDue.Sign() > 0 {
			// Partial interest only covers a proportional part of the period.
			advance, err := mulDiv(new(big.Int).SetUint64(elapsed), interest, interestDue)
			if err != nil {
				return err
			}
			detail.LastPaymentTime += advance.Uint64()
		} else {
			detail.LastPaymentTime = c.now
		}
		detail.TotalAmountRepaid.Add(detail.TotalAmountRepaid, paid)
		detail.PrincipalAmountRepaid.Add(detail.PrincipalAmountRepaid, principal)

		protocolFee, stakerEarn, lenderYield, err := splitInterest(pool, interest)
		if err != nil {
			return err
		}
		pool.TokenBalance.Add(pool.TokenBalance, paid)
		pool.BorrowedFunds.Sub(pool.BorrowedFunds, principal)
		pool.RawLiquidity.Add(pool.RawLiquidity, principal)
		pool.WeightedAprSum = subFloor(pool.WeightedAprSum, new(big.Int).Mul(principal, pct(loan.APR)))
		pool.TreasuryRevenue.Add(pool.TreasuryRevenue, protocolFee)
		pool.StakerRevenue.Add(pool.StakerRevenue, stakerEarn)
		pool.PendingYield.Add(pool.PendingYield, lenderYield)

		stats, err := c.tx.borrower(loan.Borrower)
		if err != nil {
			return err
		}
		stats.AmountBaseRepaid.Add(stats.AmountBaseRepaid, principal)
		stats.AmountInterestPaid.Add(stats.AmountInterestPaid, interest)
		fully := principal.Cmp(principalDue) == 0
		if fully {
			loan.Status = LoanRepaid
			reverseLoanStats(stats, loan, detail)
			stats.CountRepaid++
		}
		c.tx.loans.put(loanID, loan)
		c.tx.details.put(loanID, detail)
		c.tx.borrowers.put(loan.Borrower, stats)

		outcome = &RepaymentOutcome{
			Paid:          paid,
			Principal:     principal,
			Interest:      interest,
			ProtocolFee:   protocolFee,
			StakerEarning: stakerEarn,
			FullyRepaid:   fully,
		}
		c.pull(payer, paid)
		c.emit(events.LoanRepaid{
			LoanID:        loanID,
			Borrower:      loan.Borrower,
			Payer:         payer,
			Amount:        cloneInt(paid),
			Principal:     cloneInt(principal),
			Interest:      cloneInt(interest),
			ProtocolFee:   cloneInt(protocolFee),
			StakerEarning: cloneInt(stakerEarn),
			FullyRepaid:   fully,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// reverseLoanStats removes every amount and count the loan contributed
// while outstanding.
func reverseLoanStats(stats *BorrowerStats, loan *Loan, detail *LoanDetail) {
	if stats.CountOutstanding > 0 {
		stats.CountOutstanding--
	}
	stats.AmountBorrowed = subFloor(stats.AmountBorrowed, loan.Amount)
	stats.AmountBaseRepaid = subFloor(stats.AmountBaseRepaid, detail.PrincipalAmountRepaid)
	stats.AmountInterestPaid = subFloor(stats.AmountInterestPaid, detail.InterestPaid())
}

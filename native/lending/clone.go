package lending

// Clone returns a deep copy of the pool state with nil amounts normalised
// to zero.
func (p *PoolState) Clone() *PoolState {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TokenBalance = cloneInt(p.TokenBalance)
	clone.PoolFunds = cloneInt(p.PoolFunds)
	clone.RawLiquidity = cloneInt(p.RawLiquidity)
	clone.AllocatedFunds = cloneInt(p.AllocatedFunds)
	clone.BorrowedFunds = cloneInt(p.BorrowedFunds)
	clone.PendingYield = cloneInt(p.PendingYield)
	clone.WeightedAprSum = cloneInt(p.WeightedAprSum)
	clone.StakerRevenue = cloneInt(p.StakerRevenue)
	clone.TreasuryRevenue = cloneInt(p.TreasuryRevenue)
	clone.TotalShares = cloneInt(p.TotalShares)
	clone.StakedShares = cloneInt(p.StakedShares)
	clone.Template.MinAmount = cloneInt(p.Template.MinAmount)
	clone.Token.OneToken = cloneInt(p.Token.OneToken)
	return &clone
}

// Clone returns a deep copy of the application.
func (a *LoanApplication) Clone() *LoanApplication {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Amount = cloneInt(a.Amount)
	return &clone
}

// Clone returns a deep copy of the offer.
func (o *LoanOffer) Clone() *LoanOffer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Amount = cloneInt(o.Amount)
	clone.InstallmentAmount = cloneInt(o.InstallmentAmount)
	return &clone
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Amount = cloneInt(l.Amount)
	clone.InstallmentAmount = cloneInt(l.InstallmentAmount)
	return &clone
}

// Clone returns a deep copy of the loan detail.
func (d *LoanDetail) Clone() *LoanDetail {
	if d == nil {
		return nil
	}
	clone := *d
	clone.TotalAmountRepaid = cloneInt(d.TotalAmountRepaid)
	clone.PrincipalAmountRepaid = cloneInt(d.PrincipalAmountRepaid)
	return &clone
}

// Clone returns a deep copy of the borrower statistics.
func (s *BorrowerStats) Clone() *BorrowerStats {
	if s == nil {
		return nil
	}
	clone := *s
	clone.AmountBorrowed = cloneInt(s.AmountBorrowed)
	clone.AmountBaseRepaid = cloneInt(s.AmountBaseRepaid)
	clone.AmountInterestPaid = cloneInt(s.AmountInterestPaid)
	return &clone
}

// Clone returns a deep copy of the lender position.
func (p *LenderPosition) Clone() *LenderPosition {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Shares = cloneInt(p.Shares)
	return &clone
}

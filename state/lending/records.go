package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/native/lending"
)

// storedPoolVersion is bumped whenever storedPool changes layout.
const storedPoolVersion uint8 = 1

type storedPool struct {
	Version           uint8
	TokenBalance      *big.Int
	PoolFunds         *big.Int
	RawLiquidity      *big.Int
	AllocatedFunds    *big.Int
	BorrowedFunds     *big.Int
	PendingYield      *big.Int
	WeightedAprSum    *big.Int
	StakerRevenue     *big.Int
	TreasuryRevenue   *big.Int
	TotalShares       *big.Int
	StakedShares      *big.Int
	NextApplicationID uint64
	NextLoanID        uint64
	StakerLastActive  uint64
	Closed            bool
	Paused            bool
	Config            lending.PoolConfig
	Template          lending.LoanTemplate
	Token             lending.TokenConfig
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func newStoredPool(p *lending.PoolState) *storedPool {
	tmpl := p.Template
	tmpl.MinAmount = bigOrZero(tmpl.MinAmount)
	token := p.Token
	token.OneToken = bigOrZero(token.OneToken)
	return &storedPool{
		Version:           storedPoolVersion,
		TokenBalance:      bigOrZero(p.TokenBalance),
		PoolFunds:         bigOrZero(p.PoolFunds),
		RawLiquidity:      bigOrZero(p.RawLiquidity),
		AllocatedFunds:    bigOrZero(p.AllocatedFunds),
		BorrowedFunds:     bigOrZero(p.BorrowedFunds),
		PendingYield:      bigOrZero(p.PendingYield),
		WeightedAprSum:    bigOrZero(p.WeightedAprSum),
		StakerRevenue:     bigOrZero(p.StakerRevenue),
		TreasuryRevenue:   bigOrZero(p.TreasuryRevenue),
		TotalShares:       bigOrZero(p.TotalShares),
		StakedShares:      bigOrZero(p.StakedShares),
		NextApplicationID: p.NextApplicationID,
		NextLoanID:        p.NextLoanID,
		StakerLastActive:  p.StakerLastActive,
		Closed:            p.Closed,
		Paused:            p.Paused,
		Config:            p.Config,
		Template:          tmpl,
		Token:             token,
	}
}

func (s *storedPool) toPool() *lending.PoolState {
	return &lending.PoolState{
		TokenBalance:      bigOrZero(s.TokenBalance),
		PoolFunds:         bigOrZero(s.PoolFunds),
		RawLiquidity:      bigOrZero(s.RawLiquidity),
		AllocatedFunds:    bigOrZero(s.AllocatedFunds),
		BorrowedFunds:     bigOrZero(s.BorrowedFunds),
		PendingYield:      bigOrZero(s.PendingYield),
		WeightedAprSum:    bigOrZero(s.WeightedAprSum),
		StakerRevenue:     bigOrZero(s.StakerRevenue),
		TreasuryRevenue:   bigOrZero(s.TreasuryRevenue),
		TotalShares:       bigOrZero(s.TotalShares),
		StakedShares:      bigOrZero(s.StakedShares),
		NextApplicationID: s.NextApplicationID,
		NextLoanID:        s.NextLoanID,
		StakerLastActive:  s.StakerLastActive,
		Closed:            s.Closed,
		Paused:            s.Paused,
		Config:            s.Config,
		Template:          s.Template,
		Token:             s.Token,
	}
}

type storedApplication struct {
	ID            uint64
	Borrower      common.Address
	Amount        *big.Int
	Duration      uint64
	RequestedTime uint64
	MetadataHash  [32]byte
	Status        uint8
}

func newStoredApplication(a *lending.LoanApplication) *storedApplication {
	return &storedApplication{
		ID:            a.ID,
		Borrower:      a.Borrower,
		Amount:        bigOrZero(a.Amount),
		Duration:      a.Duration,
		RequestedTime: a.RequestedTime,
		MetadataHash:  a.MetadataHash,
		Status:        uint8(a.Status),
	}
}

func (s *storedApplication) toApplication() *lending.LoanApplication {
	return &lending.LoanApplication{
		ID:            s.ID,
		Borrower:      s.Borrower,
		Amount:        bigOrZero(s.Amount),
		Duration:      s.Duration,
		RequestedTime: s.RequestedTime,
		MetadataHash:  s.MetadataHash,
		Status:        lending.ApplicationStatus(s.Status),
	}
}

type storedLoan struct {
	ID                uint64
	ApplicationID     uint64
	Borrower          common.Address
	Amount            *big.Int
	Duration          uint64
	GracePeriod       uint64
	InstallmentAmount *big.Int
	Installments      uint64
	APR               uint64
	BorrowedTime      uint64
	Status            uint8
}

func newStoredLoan(l *lending.Loan) *storedLoan {
	return &storedLoan{
		ID:                l.ID,
		ApplicationID:     l.ApplicationID,
		Borrower:          l.Borrower,
		Amount:            bigOrZero(l.Amount),
		Duration:          l.Duration,
		GracePeriod:       l.GracePeriod,
		InstallmentAmount: bigOrZero(l.InstallmentAmount),
		Installments:      l.Installments,
		APR:               l.APR,
		BorrowedTime:      l.BorrowedTime,
		Status:            uint8(l.Status),
	}
}

func (s *storedLoan) toLoan() *lending.Loan {
	return &lending.Loan{
		ID:                s.ID,
		ApplicationID:     s.ApplicationID,
		Borrower:          s.Borrower,
		Amount:            bigOrZero(s.Amount),
		Duration:          s.Duration,
		GracePeriod:       s.GracePeriod,
		InstallmentAmount: bigOrZero(s.InstallmentAmount),
		Installments:      s.Installments,
		APR:               s.APR,
		BorrowedTime:      s.BorrowedTime,
		Status:            lending.LoanStatus(s.Status),
	}
}

package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Role enumerates the privileged capabilities consulted through AccessControl.
type Role uint8

const (
	RoleStaker Role = iota + 1
	RoleGovernance
	RoleTreasury
)

// String returns the canonical role name.
func (r Role) String() string {
	switch r {
	case RoleStaker:
		return "staker"
	case RoleGovernance:
		return "governance"
	case RoleTreasury:
		return "treasury"
	default:
		return "unknown"
	}
}

// ApplicationStatus tracks a loan application through the desk.
type ApplicationStatus uint8

const (
	ApplicationNull ApplicationStatus = iota
	ApplicationApplied
	ApplicationDenied
	ApplicationOfferMade
	ApplicationOfferAccepted
	ApplicationOfferCancelled
)

// Pending reports whether the application still blocks a new request from
// the same borrower.
func (s ApplicationStatus) Pending() bool {
	return s == ApplicationApplied || s == ApplicationOfferMade
}

func (s ApplicationStatus) String() string {
	switch s {
	case ApplicationApplied:
		return "APPLIED"
	case ApplicationDenied:
		return "DENIED"
	case ApplicationOfferMade:
		return "OFFER_MADE"
	case ApplicationOfferAccepted:
		return "OFFER_ACCEPTED"
	case ApplicationOfferCancelled:
		return "OFFER_CANCELLED"
	default:
		return "NULL"
	}
}

// LoanStatus tracks a funded loan.
type LoanStatus uint8

const (
	LoanNull LoanStatus = iota
	LoanOutstanding
	LoanRepaid
	LoanDefaulted
)

func (s LoanStatus) String() string {
	switch s {
	case LoanOutstanding:
		return "OUTSTANDING"
	case LoanRepaid:
		return "REPAID"
	case LoanDefaulted:
		return "DEFAULTED"
	default:
		return "NULL"
	}
}

// PoolConfig holds the bounded risk and fee parameters of the pool. All
// percentages are expressed at PercentDecimals precision.
type PoolConfig struct {
	TargetStakePercent     uint64
	TargetLiquidityPercent uint64
	ProtocolFeePercent     uint64
	MaxProtocolFeePercent  uint64
	StakerEarnFactor       uint64
	StakerEarnFactorMax    uint64
	ExitFeePercent         uint64
	MaxExitFeePercent      uint64
}

// TokenConfig describes the pooled asset.
type TokenConfig struct {
	Symbol   string
	Decimals uint8
	OneToken *big.Int
}

// LoanTemplate carries the defaults applied to new applications.
type LoanTemplate struct {
	APR         uint64
	GracePeriod uint64
	MinAmount   *big.Int
	MinDuration uint64
	MaxDuration uint64
}

// PoolState is the singleton ledger of the pool. Amounts are in token base
// units.
type PoolState struct {
	// TokenBalance is every token held by the pool, including revenue owed
	// to the staker and treasury.
	TokenBalance *big.Int
	// PoolFunds is the value owned by shareholders: liquidity plus allocated
	// plus borrowed principal.
	PoolFunds *big.Int
	// RawLiquidity is the lendable and withdrawable portion of PoolFunds.
	RawLiquidity *big.Int
	// AllocatedFunds is reserved for drafted or made offers.
	AllocatedFunds *big.Int
	// BorrowedFunds is outstanding loan principal.
	BorrowedFunds *big.Int
	// PendingYield is lender interest received but not yet folded into
	// PoolFunds.
	PendingYield *big.Int
	// WeightedAprSum is the sum of principalOutstanding*apr over outstanding
	// loans.
	WeightedAprSum *big.Int
	// StakerRevenue and TreasuryRevenue are held in TokenBalance until the
	// respective role withdraws them.
	StakerRevenue   *big.Int
	TreasuryRevenue *big.Int

	TotalShares  *big.Int
	StakedShares *big.Int

	NextApplicationID uint64
	NextLoanID        uint64
	StakerLastActive  uint64

	Closed bool
	Paused bool

	Config   PoolConfig
	Template LoanTemplate
	Token    TokenConfig
}

// LoanApplication is a borrower's request for funding.
type LoanApplication struct {
	ID            uint64
	Borrower      common.Address
	Amount        *big.Int
	Duration      uint64
	RequestedTime uint64
	MetadataHash  [32]byte
	Status        ApplicationStatus
}

// LoanOffer holds the economic terms proposed for an application. A draft
// becomes callable only after it has been locked for the lock duration.
type LoanOffer struct {
	ApplicationID     uint64
	Borrower          common.Address
	Amount            *big.Int
	Duration          uint64
	GracePeriod       uint64
	InstallmentAmount *big.Int
	Installments      uint64
	APR               uint64
	DraftedTime       uint64
	LockedTime        uint64
	OfferedTime       uint64
}

// Locked reports whether the terms have been committed.
func (o *LoanOffer) Locked() bool { return o != nil && o.LockedTime != 0 }

// OfferTerms are the staker-supplied terms for DraftOffer and UpdateOffer.
type OfferTerms struct {
	Amount            *big.Int
	Duration          uint64
	GracePeriod       uint64
	InstallmentAmount *big.Int
	Installments      uint64
	APR               uint64
}

// Loan is a funded application.
type Loan struct {
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
	Status            LoanStatus
}

// LoanDetail tracks repayment progress.
type LoanDetail struct {
	LoanID                uint64
	TotalAmountRepaid     *big.Int
	PrincipalAmountRepaid *big.Int
	LastPaymentTime       uint64
}

// InterestPaid is the non-principal part of all repayments.
func (d *LoanDetail) InterestPaid() *big.Int {
	if d == nil {
		return big.NewInt(0)
	}
	return subFloor(d.TotalAmountRepaid, d.PrincipalAmountRepaid)
}

// BorrowerStats aggregates a borrower's history. The amount fields only
// reflect loans that are still outstanding.
type BorrowerStats struct {
	Borrower            common.Address
	RecentApplicationID uint64
	RecentLoanID        uint64
	CountRequested      uint64
	CountOffered        uint64
	CountCancelled      uint64
	CountDenied         uint64
	CountOutstanding    uint64
	CountRepaid         uint64
	CountDefaulted      uint64
	AmountBorrowed      *big.Int
	AmountBaseRepaid    *big.Int
	AmountInterestPaid  *big.Int
}

// LenderPosition records pool shares held by a depositor.
type LenderPosition struct {
	Address         common.Address
	Shares          *big.Int
	LastDepositTime uint64
}

// PoolBalance is a read-only snapshot of the pool's aggregate balances.
type PoolBalance struct {
	TokenBalance   *big.Int `json:"tokenBalance"`
	PoolFunds      *big.Int `json:"poolFunds"`
	RawLiquidity   *big.Int `json:"rawLiquidity"`
	AllocatedFunds *big.Int `json:"allocatedFunds"`
	BorrowedFunds  *big.Int `json:"borrowedFunds"`
	PendingYield   *big.Int `json:"pendingYield"`
	TotalShares    *big.Int `json:"totalShares"`
	StakedShares   *big.Int `json:"stakedShares"`
	StakedBalance  *big.Int `json:"stakedBalance"`
	Closed         bool     `json:"closed"`
	Paused         bool     `json:"paused"`
}

// DefaultOutcome reports how a default loss was split.
type DefaultOutcome struct {
	Loss       *big.Int
	StakerLoss *big.Int
	LenderLoss *big.Int
	// Recovered is interest collected on the loan that was written back
	// against its outstanding principal.
	Recovered *big.Int
}

// RepaymentOutcome reports the effect of a single payment.
type RepaymentOutcome struct {
	Paid          *big.Int
	Principal     *big.Int
	Interest      *big.Int
	ProtocolFee   *big.Int
	StakerEarning *big.Int
	FullyRepaid   bool
}

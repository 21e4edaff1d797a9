package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/types"
)

const (
	// TypePoolStaked is emitted when the staker adds first-loss capital.
	TypePoolStaked = "pool.staked"
	// TypePoolUnstaked is emitted when the staker withdraws stake.
	TypePoolUnstaked = "pool.unstaked"
	// TypePoolDeposited is emitted when a lender deposits.
	TypePoolDeposited = "pool.deposited"
	// TypePoolWithdrawn is emitted when a lender withdraws.
	TypePoolWithdrawn = "pool.withdrawn"
	// TypePoolYieldSettled is emitted when pending lender yield is folded
	// into pool funds.
	TypePoolYieldSettled = "pool.yieldSettled"
	// TypePoolRevenueWithdrawn is emitted when the staker or treasury claims
	// accrued revenue.
	TypePoolRevenueWithdrawn = "pool.revenueWithdrawn"

	TypePoolClosed   = "pool.closed"
	TypePoolOpened   = "pool.opened"
	TypePoolPaused   = "pool.paused"
	TypePoolUnpaused = "pool.unpaused"

	// TypePoolParamUpdated is emitted by every parameter setter.
	TypePoolParamUpdated = "pool.paramUpdated"

	TypeLoanRequested    = "loan.requested"
	TypeLoanOfferDrafted = "loan.offerDrafted"
	TypeLoanOfferLocked  = "loan.offerLocked"
	TypeLoanOffered      = "loan.offered"
	TypeLoanOfferUpdated = "loan.offerUpdated"
	TypeLoanCancelled    = "loan.cancelled"
	TypeLoanDenied       = "loan.denied"
	TypeLoanBorrowed     = "loan.borrowed"
	TypeLoanRepaid       = "loan.repaid"
	TypeLoanFullyRepaid  = "loan.fullyRepaid"
	TypeLoanDefaulted    = "loan.defaulted"
)

// PoolFlow captures a token movement between an actor and the pool.
type PoolFlow struct {
	Type   string
	Actor  common.Address
	Amount *big.Int
	Shares *big.Int
	Fee    *big.Int
}

// EventType satisfies the Event interface.
func (e PoolFlow) EventType() string { return e.Type }

// Event converts the flow into a broadcastable event.
func (e PoolFlow) Event() *types.Event {
	attrs := map[string]string{
		"actor":  e.Actor.Hex(),
		"amount": formatAmount(e.Amount),
	}
	if e.Shares != nil {
		attrs["shares"] = formatAmount(e.Shares)
	}
	if e.Fee != nil {
		attrs["fee"] = formatAmount(e.Fee)
	}
	return &types.Event{Type: e.Type, Attributes: attrs}
}

// PoolStatusChanged records close, open, pause and unpause transitions.
type PoolStatusChanged struct {
	Type  string
	Actor common.Address
}

// EventType satisfies the Event interface.
func (e PoolStatusChanged) EventType() string { return e.Type }

// Event converts the transition into a broadcastable event.
func (e PoolStatusChanged) Event() *types.Event {
	return &types.Event{Type: e.Type, Attributes: map[string]string{"actor": e.Actor.Hex()}}
}

// PoolParamUpdated records a configuration change.
type PoolParamUpdated struct {
	Actor common.Address
	Name  string
	Old   string
	New   string
}

// EventType satisfies the Event interface.
func (PoolParamUpdated) EventType() string { return TypePoolParamUpdated }

// Event converts the change into a broadcastable event.
func (e PoolParamUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePoolParamUpdated,
		Attributes: map[string]string{
			"actor": e.Actor.Hex(),
			"param": e.Name,
			"old":   e.Old,
			"new":   e.New,
		},
	}
}

// LoanApplicationEvent covers every loan desk transition before funding.
type LoanApplicationEvent struct {
	Type          string
	ApplicationID uint64
	Borrower      common.Address
	Actor         common.Address
	Amount        *big.Int
}

// EventType satisfies the Event interface.
func (e LoanApplicationEvent) EventType() string { return e.Type }

// Event converts the transition into a broadcastable event.
func (e LoanApplicationEvent) Event() *types.Event {
	attrs := map[string]string{
		"applicationId": strconv.FormatUint(e.ApplicationID, 10),
		"borrower":      e.Borrower.Hex(),
		"actor":         e.Actor.Hex(),
	}
	if e.Amount != nil {
		attrs["amount"] = formatAmount(e.Amount)
	}
	return &types.Event{Type: e.Type, Attributes: attrs}
}

// LoanBorrowed is emitted when an offer is accepted and funds leave the pool.
type LoanBorrowed struct {
	LoanID        uint64
	ApplicationID uint64
	Borrower      common.Address
	Amount        *big.Int
	APR           uint64
	Duration      uint64
}

// EventType satisfies the Event interface.
func (LoanBorrowed) EventType() string { return TypeLoanBorrowed }

// Event converts the borrow into a broadcastable event.
func (e LoanBorrowed) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanBorrowed,
		Attributes: map[string]string{
			"loanId":        strconv.FormatUint(e.LoanID, 10),
			"applicationId": strconv.FormatUint(e.ApplicationID, 10),
			"borrower":      e.Borrower.Hex(),
			"amount":        formatAmount(e.Amount),
			"apr":           strconv.FormatUint(e.APR, 10),
			"duration":      strconv.FormatUint(e.Duration, 10),
		},
	}
}

// LoanRepaid describes a single repayment and how its interest was split.
type LoanRepaid struct {
	LoanID        uint64
	Borrower      common.Address
	Payer         common.Address
	Amount        *big.Int
	Principal     *big.Int
	Interest      *big.Int
	ProtocolFee   *big.Int
	StakerEarning *big.Int
	FullyRepaid   bool
}

// EventType satisfies the Event interface.
func (e LoanRepaid) EventType() string {
	if e.FullyRepaid {
		return TypeLoanFullyRepaid
	}
	return TypeLoanRepaid
}

// Event converts the repayment into a broadcastable event.
func (e LoanRepaid) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"loanId":        strconv.FormatUint(e.LoanID, 10),
			"borrower":      e.Borrower.Hex(),
			"payer":         e.Payer.Hex(),
			"amount":        formatAmount(e.Amount),
			"principal":     formatAmount(e.Principal),
			"interest":      formatAmount(e.Interest),
			"protocolFee":   formatAmount(e.ProtocolFee),
			"stakerEarning": formatAmount(e.StakerEarning),
		},
	}
}

// LoanDefaulted reports a default and the split of the loss between stake
// and lenders.
type LoanDefaulted struct {
	LoanID     uint64
	Borrower   common.Address
	Actor      common.Address
	Loss       *big.Int
	StakerLoss *big.Int
	LenderLoss *big.Int
	Recovered  *big.Int
}

// EventType satisfies the Event interface.
func (LoanDefaulted) EventType() string { return TypeLoanDefaulted }

// Event converts the default into a broadcastable event.
func (e LoanDefaulted) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanDefaulted,
		Attributes: map[string]string{
			"loanId":     strconv.FormatUint(e.LoanID, 10),
			"borrower":   e.Borrower.Hex(),
			"actor":      e.Actor.Hex(),
			"loss":       formatAmount(e.Loss),
			"stakerLoss": formatAmount(e.StakerLoss),
			"lenderLoss": formatAmount(e.LenderLoss),
			"recovered":  formatAmount(e.Recovered),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

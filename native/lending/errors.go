package lending

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the engine wraps exactly one of these
// so callers can classify it with errors.Is.
var (
	ErrUnauthorized = errors.New("lending: unauthorized")
	ErrInvalidState = errors.New("lending: invalid state")
	ErrOutOfBounds  = errors.New("lending: out of bounds")
	ErrNotFound     = errors.New("lending: not found")
	ErrInactive     = errors.New("lending: inactive")
)

var (
	errNilState        = fmt.Errorf("%w: store not configured", ErrInactive)
	errNilToken        = fmt.Errorf("%w: token not configured", ErrInactive)
	errNilAccess       = fmt.Errorf("%w: access control not configured", ErrInactive)
	errNotBootstrapped = fmt.Errorf("%w: pool not bootstrapped", ErrInactive)
	errAlreadyBooted   = fmt.Errorf("%w: pool already bootstrapped", ErrInvalidState)
	errPaused          = fmt.Errorf("%w: pool paused", ErrInactive)
	errClosed          = fmt.Errorf("%w: pool closed", ErrInactive)
	errReentrant       = fmt.Errorf("%w: re-entrant call", ErrInvalidState)

	errNotStaker      = fmt.Errorf("%w: staker role required", ErrUnauthorized)
	errNotGovernance  = fmt.Errorf("%w: governance role required", ErrUnauthorized)
	errPrivileged     = fmt.Errorf("%w: privileged roles may not perform this action", ErrUnauthorized)
	errNotBorrower    = fmt.Errorf("%w: caller is not the borrower", ErrUnauthorized)
	errNotRevenueRole = fmt.Errorf("%w: staker or treasury role required", ErrUnauthorized)
	errCannotCancel   = fmt.Errorf("%w: caller may not cancel this offer", ErrUnauthorized)
	errCannotDefault  = fmt.Errorf("%w: caller may not default this loan", ErrUnauthorized)
	errHasOutstanding = fmt.Errorf("%w: borrower has an outstanding loan", ErrUnauthorized)

	errZeroAmount            = fmt.Errorf("%w: amount must be positive", ErrOutOfBounds)
	errExceedsDepositable    = fmt.Errorf("%w: amount exceeds depositable limit", ErrOutOfBounds)
	errExceedsWithdrawable   = fmt.Errorf("%w: amount exceeds withdrawable limit", ErrOutOfBounds)
	errExceedsUnstakable     = fmt.Errorf("%w: amount exceeds unstakable limit", ErrOutOfBounds)
	errExceedsRevenue        = fmt.Errorf("%w: amount exceeds revenue balance", ErrOutOfBounds)
	errLoanAmount            = fmt.Errorf("%w: loan amount below minimum", ErrOutOfBounds)
	errLoanDuration          = fmt.Errorf("%w: loan duration outside allowed range", ErrOutOfBounds)
	errInstallments          = fmt.Errorf("%w: installments must be between 1 and the loan duration in days", ErrOutOfBounds)
	errInstallmentAmount     = fmt.Errorf("%w: installment amount must be positive", ErrOutOfBounds)
	errOfferAPR              = fmt.Errorf("%w: apr outside allowed range", ErrOutOfBounds)
	errGracePeriod           = fmt.Errorf("%w: grace period outside allowed range", ErrOutOfBounds)
	errInsufficientLiquidity = fmt.Errorf("%w: pool cannot fund the offer", ErrOutOfBounds)
	errStakeBelowTarget      = fmt.Errorf("%w: stake is below the target ratio", ErrOutOfBounds)
	errPaymentTooSmall       = fmt.Errorf("%w: payment below minimum", ErrOutOfBounds)
	errBorrowRate            = fmt.Errorf("%w: borrow rate above 100%%", ErrOutOfBounds)
	errParamRange            = fmt.Errorf("%w: parameter outside allowed range", ErrOutOfBounds)
	errSharesTooSmall        = fmt.Errorf("%w: amount too small to mint shares", ErrOutOfBounds)

	errApplicationPending = fmt.Errorf("%w: borrower has a pending application", ErrInvalidState)
	errApplicationStatus  = fmt.Errorf("%w: application status does not allow this action", ErrInvalidState)
	errNoDraft            = fmt.Errorf("%w: no draft offer", ErrInvalidState)
	errDraftLocked        = fmt.Errorf("%w: draft offer already locked", ErrInvalidState)
	errDraftNotLocked     = fmt.Errorf("%w: draft offer not locked", ErrInvalidState)
	errLockCooldown       = fmt.Errorf("%w: offer lock cooldown has not elapsed", ErrInvalidState)
	errLoanStatus         = fmt.Errorf("%w: loan is not outstanding", ErrInvalidState)
	errNotDefaultable     = fmt.Errorf("%w: loan is not eligible for default", ErrInvalidState)
	errBorrowedFunds      = fmt.Errorf("%w: pool has outstanding borrowed funds", ErrInvalidState)
	errAllocatedFunds     = fmt.Errorf("%w: pool has funds allocated to offers", ErrInvalidState)
	errAlreadyClosed      = fmt.Errorf("%w: pool already closed", ErrInvalidState)
	errNotClosed          = fmt.Errorf("%w: pool is not closed", ErrInvalidState)
	errAlreadyPaused      = fmt.Errorf("%w: pool already paused", ErrInvalidState)
	errNotPaused          = fmt.Errorf("%w: pool is not paused", ErrInvalidState)
	errBorrowerMismatch   = fmt.Errorf("%w: borrower does not match loan", ErrInvalidState)

	errApplicationNotFound = fmt.Errorf("%w: application", ErrNotFound)
	errOfferNotFound       = fmt.Errorf("%w: offer", ErrNotFound)
	errLoanNotFound        = fmt.Errorf("%w: loan", ErrNotFound)
)

package lending

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"lukechampine.com/blake3"

	"lendpool/core/events"
)

// RequestLoan opens an application for the caller. A borrower may hold only
// one pending application at a time.
func (e *Engine) RequestLoan(ctx context.Context, actor common.Address, amount *big.Int, duration uint64, metadata []byte) (uint64, error) {
	var id uint64
	err := e.mutate(ctx, func(c *call) error {
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
		if amount.Cmp(pool.Template.MinAmount) < 0 {
			return errLoanAmount
		}
		if duration < pool.Template.MinDuration || duration > pool.Template.MaxDuration {
			return errLoanDuration
		}
		stats, err := c.tx.borrower(actor)
		if err != nil {
			return err
		}
		if stats.RecentApplicationID != 0 {
			recent, err := c.tx.application(stats.RecentApplicationID)
			if err != nil {
				return err
			}
			if recent.Status.Pending() {
				return errApplicationPending
			}
		}
		id = pool.NextApplicationID
		pool.NextApplicationID++
		app := &LoanApplication{
			ID:            id,
			Borrower:      actor,
			Amount:        new(big.Int).Set(amount),
			Duration:      duration,
			RequestedTime: c.now,
			MetadataHash:  blake3.Sum256(metadata),
			Status:        ApplicationApplied,
		}
		c.tx.apps.put(id, app)
		stats.RecentApplicationID = id
		stats.CountRequested++
		c.tx.borrowers.put(actor, stats)
		c.emit(events.LoanApplicationEvent{Type: events.TypeLoanRequested, ApplicationID: id, Borrower: actor, Actor: actor, Amount: cloneInt(amount)})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// DraftOffer proposes terms for an application and reserves liquidity for
// them. An unlocked draft may be replaced.
func (e *Engine) DraftOffer(ctx context.Context, actor common.Address, applicationID uint64, terms OfferTerms) error {
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := e.requireStaker(actor); err != nil {
			return err
		}
		if err := requireActive(pool); err != nil {
			return err
		}
		app, err := c.tx.application(applicationID)
		if err != nil {
			return err
		}
		if app.Status != ApplicationApplied {
			return errApplicationStatus
		}
		if err := validateTerms(pool, terms); err != nil {
			return err
		}
		existing, found, err := c.tx.offer(applicationID)
		if err != nil {
			return err
		}
		if found {
			if existing.Locked() {
				return errDraftLocked
			}
			release(pool, existing.Amount)
		}
		if err := reserve(pool, terms.Amount); err != nil {
			return err
		}
		offer := newOffer(app, terms, c.now)
		c.tx.offers.put(applicationID, offer)
		touchStaker(c)
		c.emit(events.LoanApplicationEvent{Type: events.TypeLoanOfferDrafted, ApplicationID: applicationID, Borrower: app.Borrower, Actor: actor, Amount: cloneInt(terms.Amount)})
		return nil
	})
}

// LockDraftOffer commits the drafted terms and starts the cooldown after
// which the offer may be made.
func (e *Engine) LockDraftOffer(ctx context.Context, actor common.Address, applicationID uint64) error {
	return e.mutate(ctx, func(c *call) error {
		if err := e.requireStaker(actor); err != nil {
			return err
		}
		if err := requireActive(c.tx.pool); err != nil {
			return err
		}
		app, err := c.tx.application(applicationID)
		if err != nil {
			return err
		}
		if app.Status != ApplicationApplied {
			return errApplicationStatus
		}
		offer, found, err := c.tx.offer(applicationID)
		if err != nil {
			return err
		}
		if !found {
			return errNoDraft
		}
		if offer.Locked() {
			return errDraftLocked
		}
		offer.LockedTime = c.now
		c.tx.offers.put(applicationID, offer)
		touchStaker(c)
		c.emit(events.LoanApplicationEvent{Type: events.TypeLoanOfferLocked, ApplicationID: applicationID, Borrower: app.Borrower, Actor: actor})
		return nil
	})
}

// OfferLoan makes a locked draft callable by the borrower once the lock
// cooldown has elapsed.
func (e *Engine) OfferLoan(ctx context.Context, actor common.Address, applicationID uint64) error {
	return e.mutate(ctx, func(c *call) error {
		if err := e.requireStaker(actor); err != nil {
			return err
		}
		if err := requireActive(c.tx.pool); err != nil {
			return err
		}
		app, err := c.tx.application(applicationID)
		if err != nil {
			return err
		}
		if app.Status != ApplicationApplied {
			return errApplicationStatus
		}
		offer, found, err := c.tx.offer(applicationID)
		if err != nil {
			return err
		}
		if !found {
			return errNoDraft
		}
		if !offer.Locked() {
			return errDraftNotLocked
		}
		if c.now < offer.LockedTime+e.cfg.Desk.OfferLockSeconds {
			return errLockCooldown
		}
		stats, err := c.tx.borrower(app.Borrower)
		if err != nil {
			return err
		}
		offer.OfferedTime = c.now
		app.Status = ApplicationOfferMade
		stats.CountOffered++
		c.tx.offers.put(applicationID, offer)
		c.tx.apps.put(applicationID, app)
		c.tx.borrowers.put(app.Borrower, stats)
		touchStaker(c)
		c.emit(events.LoanApplicationEvent{Type: events.TypeLoanOffered, ApplicationID: applicationID, Borrower: app.Borrower, Actor: actor, Amount: cloneInt(offer.Amount)})
		return nil
	})
}

// UpdateOffer replaces the terms of a made offer. The new terms are locked
// immediately, so the borrower must wait another cooldown before borrowing.
func (e *Engine) UpdateOffer(ctx context.Context, actor common.Address, applicationID uint64, terms OfferTerms) error {
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := e.requireStaker(actor); err != nil {
			return err
		}
		if err := requireActive(pool); err != nil {
			return err
		}
		app, err := c.tx.application(applicationID)
		if err != nil {
			return err
		}
		if app.Status != ApplicationOfferMade {
			return errApplicationStatus
		}
		if err := validateTerms(pool, terms); err != nil {
			return err
		}
		offer, found, err := c.tx.offer(applicationID)
		if err != nil {
			return err
		}
		if !found {
			return errOfferNotFound
		}
		release(pool, offer.Amount)
		if err := reserve(pool, terms.Amount); err != nil {
			return err
		}
		updated := newOffer(app, terms, c.now)
		updated.LockedTime = c.now
		updated.OfferedTime = offer.OfferedTime
		c.tx.offers.put(applicationID, updated)
		touchStaker(c)
		c.emit(events.LoanApplicationEvent{Type: events.TypeLoanOfferUpdated, ApplicationID: applicationID, Borrower: app.Borrower, Actor: actor, Amount: cloneInt(terms.Amount)})
		return nil
	})
}

// CancelLoan withdraws a made offer and releases its reserved liquidity.
// While the staker is inactive, fallback parties may cancel too.
func (e *Engine) CancelLoan(ctx context.Context, actor common.Address, applicationID uint64) error {
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := requireUnpaused(pool); err != nil {
			return err
		}
		if err := e.authorizeRecovery(c, actor, errCannotCancel); err != nil {
			return err
		}
		app, err := c.tx.application(applicationID)
		if err != nil {
			return err
		}
		if app.Status != ApplicationOfferMade {
			return errApplicationStatus
		}
		offer, found, err := c.tx.offer(applicationID)
		if err != nil {
			return err
		}
		if !found {
			return errOfferNotFound
		}
		stats, err := c.tx.borrower(app.Borrower)
		if err != nil {
			return err
		}
		release(pool, offer.Amount)
		app.Status = ApplicationOfferCancelled
		stats.CountCancelled++
		c.tx.apps.put(applicationID, app)
		c.tx.borrowers.put(app.Borrower, stats)
		c.emit(events.LoanApplicationEvent{Type: events.TypeLoanCancelled, ApplicationID: applicationID, Borrower: app.Borrower, Actor: actor, Amount: cloneInt(offer.Amount)})
		return nil
	})
}

// DenyLoan rejects an application that has not been offered yet, releasing
// any drafted allocation.
func (e *Engine) DenyLoan(ctx context.Context, actor common.Address, applicationID uint64) error {
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := e.requireStaker(actor); err != nil {
			return err
		}
		if err := requireUnpaused(pool); err != nil {
			return err
		}
		app, err := c.tx.application(applicationID)
		if err != nil {
			return err
		}
		if app.Status != ApplicationApplied {
			return errApplicationStatus
		}
		offer, found, err := c.tx.offer(applicationID)
		if err != nil {
			return err
		}
		if found {
			release(pool, offer.Amount)
		}
		stats, err := c.tx.borrower(app.Borrower)
		if err != nil {
			return err
		}
		app.Status = ApplicationDenied
		stats.CountDenied++
		c.tx.apps.put(applicationID, app)
		c.tx.borrowers.put(app.Borrower, stats)
		touchStaker(c)
		c.emit(events.LoanApplicationEvent{Type: events.TypeLoanDenied, ApplicationID: applicationID, Borrower: app.Borrower, Actor: actor})
		return nil
	})
}

// Borrow accepts a made offer. The application leaves OFFER_MADE and the
// loan is committed before the funds are transferred, so a second call for
// the same application fails.
func (e *Engine) Borrow(ctx context.Context, actor common.Address, applicationID uint64) (uint64, error) {
	var loanID uint64
	err := e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := requireActive(pool); err != nil {
			return err
		}
		app, err := c.tx.application(applicationID)
		if err != nil {
			return err
		}
		if app.Borrower != actor {
			return errNotBorrower
		}
		if app.Status != ApplicationOfferMade {
			return errApplicationStatus
		}
		offer, found, err := c.tx.offer(applicationID)
		if err != nil {
			return err
		}
		if !found {
			return errOfferNotFound
		}
		if c.now < offer.LockedTime+e.cfg.Desk.OfferLockSeconds {
			return errLockCooldown
		}
		covered, err := stakeMeetsTarget(pool)
		if err != nil {
			return err
		}
		if !covered {
			return errStakeBelowTarget
		}
		app.Status = ApplicationOfferAccepted
		c.tx.apps.put(applicationID, app)

		amount := new(big.Int).Set(offer.Amount)
		pool.AllocatedFunds.Sub(pool.AllocatedFunds, amount)
		pool.BorrowedFunds.Add(pool.BorrowedFunds, amount)
		pool.TokenBalance.Sub(pool.TokenBalance, amount)
		pool.WeightedAprSum.Add(pool.WeightedAprSum, new(big.Int).Mul(amount, pct(offer.APR)))

		loanID = pool.NextLoanID
		pool.NextLoanID++
		loan := &Loan{
			ID:                loanID,
			ApplicationID:     applicationID,
			Borrower:          actor,
			Amount:            amount,
			Duration:          offer.Duration,
			GracePeriod:       offer.GracePeriod,
			InstallmentAmount: cloneInt(offer.InstallmentAmount),
			Installments:      offer.Installments,
			APR:               offer.APR,
			BorrowedTime:      c.now,
			Status:            LoanOutstanding,
		}
		c.tx.loans.put(loanID, loan)
		c.tx.details.put(loanID, (&LoanDetail{LoanID: loanID, LastPaymentTime: c.now}).Clone())

		stats, err := c.tx.borrower(actor)
		if err != nil {
			return err
		}
		stats.RecentLoanID = loanID
		stats.CountOutstanding++
		stats.AmountBorrowed.Add(stats.AmountBorrowed, amount)
		c.tx.borrowers.put(actor, stats)

		c.pay(actor, amount)
		c.emit(events.LoanBorrowed{LoanID: loanID, ApplicationID: applicationID, Borrower: actor, Amount: cloneInt(amount), APR: offer.APR, Duration: offer.Duration})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return loanID, nil
}

func newOffer(app *LoanApplication, terms OfferTerms, now uint64) *LoanOffer {
	return &LoanOffer{
		ApplicationID:     app.ID,
		Borrower:          app.Borrower,
		Amount:            cloneInt(terms.Amount),
		Duration:          terms.Duration,
		GracePeriod:       terms.GracePeriod,
		InstallmentAmount: cloneInt(terms.InstallmentAmount),
		Installments:      terms.Installments,
		APR:               terms.APR,
		DraftedTime:       now,
	}
}

// reserve allocates amount if the pool can fund it.
func reserve(pool *PoolState, amount *big.Int) error {
	ok, err := canOffer(pool, amount)
	if err != nil {
		return err
	}
	if !ok {
		return errInsufficientLiquidity
	}
	allocate(pool, amount)
	return nil
}

func validateTerms(pool *PoolState, terms OfferTerms) error {
	if !isPositive(terms.Amount) || terms.Amount.Cmp(pool.Template.MinAmount) < 0 {
		return errLoanAmount
	}
	if terms.Duration < pool.Template.MinDuration || terms.Duration > pool.Template.MaxDuration {
		return errLoanDuration
	}
	if terms.Installments < 1 || terms.Installments > terms.Duration/secondsPerDay {
		return errInstallments
	}
	if !isPositive(terms.InstallmentAmount) {
		return errInstallmentAmount
	}
	if terms.APR < safeMinAPR || terms.APR > safeMaxAPR {
		return errOfferAPR
	}
	if terms.GracePeriod < safeMinGracePeriod || terms.GracePeriod > safeMaxGracePeriod {
		return errGracePeriod
	}
	return nil
}

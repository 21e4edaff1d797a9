package lending

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/events"
)

// Token moves the pooled asset between actors and the pool. Both calls are
// atomic: they either fully succeed or leave balances untouched.
// Any call back into the engine made while a transfer is in flight fails as
// re-entrant, whichever context it carries.
type Token interface {
	TransferIn(ctx context.Context, from common.Address, amount *big.Int) error
	TransferOut(ctx context.Context, to common.Address, amount *big.Int) error
}

// AccessControl answers role membership queries.
type AccessControl interface {
	HasRole(role Role, actor common.Address) bool
}

type inFlightKey struct{}

// Engine orchestrates the pool ledger, the loan desk and repayment
// processing. Every mutating call runs under a single mutex against a
// transaction overlay that is committed once.
type Engine struct {
	mu sync.Mutex
	// transferring is set while the token is being called.
	transferring atomic.Bool

	cfg     Config
	state   Store
	token   Token
	access  AccessControl
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs an engine using the supplied parameters for
// bootstrap and for the static desk and fallback timings.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:     cfg,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state Store) { e.state = state }

// SetToken wires the asset transfer collaborator.
func (e *Engine) SetToken(token Token) { e.token = token }

// SetAccess wires the role lookup.
func (e *Engine) SetAccess(access AccessControl) { e.access = access }

// SetNowFunc overrides the clock used for interest, cooldowns and activity
// tracking. Passing nil restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Config returns the static configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	now := e.nowFn()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

func (e *Engine) hasRole(role Role, actor common.Address) bool {
	if e.access == nil {
		return false
	}
	return e.access.HasRole(role, actor)
}

func (e *Engine) isPrivileged(actor common.Address) bool {
	return e.hasRole(RoleStaker, actor) || e.hasRole(RoleGovernance, actor) || e.hasRole(RoleTreasury, actor)
}

// Bootstrap writes the initial pool record from the engine configuration.
// It fails if the pool already exists.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	if ctx != nil && ctx.Value(inFlightKey{}) == e {
		return errReentrant
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.GetPool(); err != nil {
		return err
	} else if ok {
		return errAlreadyBooted
	}
	pool := (&PoolState{
		NextApplicationID: 1,
		NextLoanID:        1,
		StakerLastActive:  e.now(),
		Config:            e.cfg.poolConfig(),
		Template:          e.cfg.loanTemplate(),
		Token:             e.cfg.tokenConfig(),
	}).Clone()
	return e.state.Apply(&ChangeSet{Pool: pool})
}

// Bootstrapped reports whether the pool record exists.
func (e *Engine) Bootstrapped() (bool, error) {
	if err := e.lock(); err != nil {
		return false, err
	}
	defer e.mu.Unlock()
	if e.state == nil {
		return false, errNilState
	}
	_, ok, err := e.state.GetPool()
	return ok, err
}

// call carries the state of one mutating operation.
type call struct {
	ctx    context.Context
	tx     *tx
	now    uint64
	events []events.Event
	in     *transfer
	out    *transfer
}

type transfer struct {
	party  common.Address
	amount *big.Int
}

func (c *call) emit(evt events.Event) { c.events = append(c.events, evt) }

// pull schedules an inbound transfer from party.
func (c *call) pull(party common.Address, amount *big.Int) {
	c.in = &transfer{party: party, amount: new(big.Int).Set(amount)}
}

// pay schedules an outbound transfer to party.
func (c *call) pay(party common.Address, amount *big.Int) {
	c.out = &transfer{party: party, amount: new(big.Int).Set(amount)}
}

// mutate runs fn against a fresh overlay. State is committed before any
// token movement; if the movement fails the committed change set is
// reverted.
func (e *Engine) mutate(ctx context.Context, fn func(c *call) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Value(inFlightKey{}) == e {
		return errReentrant
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	if e.token == nil {
		return errNilToken
	}
	if e.access == nil {
		return errNilAccess
	}
	t, err := beginTx(e.state)
	if err != nil {
		return err
	}
	c := &call{ctx: context.WithValue(ctx, inFlightKey{}, e), tx: t, now: e.now()}
	if err := fn(c); err != nil {
		return err
	}
	if err := t.commit(); err != nil {
		return fmt.Errorf("lending: commit: %w", err)
	}
	if err := e.settleTransfers(c); err != nil {
		if rbErr := t.rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("lending: rollback: %w", rbErr))
		}
		return err
	}
	for _, evt := range c.events {
		e.emitter.Emit(evt)
	}
	return nil
}

func (e *Engine) settleTransfers(c *call) error {
	e.transferring.Store(true)
	defer e.transferring.Store(false)
	if c.in != nil && c.in.amount.Sign() > 0 {
		if err := e.token.TransferIn(c.ctx, c.in.party, c.in.amount); err != nil {
			return fmt.Errorf("lending: transfer in: %w", err)
		}
	}
	if c.out != nil && c.out.amount.Sign() > 0 {
		if err := e.token.TransferOut(c.ctx, c.out.party, c.out.amount); err != nil {
			return fmt.Errorf("lending: transfer out: %w", err)
		}
	}
	return nil
}

// lock serializes engine calls. While the token is being called the holder
// may be the token itself, so the engine fails fast instead of waiting.
func (e *Engine) lock() error {
	if e.mu.TryLock() {
		return nil
	}
	if e.transferring.Load() {
		return errReentrant
	}
	e.mu.Lock()
	return nil
}

// view runs fn against an uncommitted overlay with pending yield settled.
func (e *Engine) view(fn func(t *tx, now uint64) error) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	t, err := beginTx(e.state)
	if err != nil {
		return err
	}
	if _, err := settleYield(t.pool); err != nil {
		return err
	}
	return fn(t, e.now())
}

func (e *Engine) requireStaker(actor common.Address) error {
	if !e.hasRole(RoleStaker, actor) {
		return errNotStaker
	}
	return nil
}

func (e *Engine) requireGovernance(actor common.Address) error {
	if !e.hasRole(RoleGovernance, actor) {
		return errNotGovernance
	}
	return nil
}

func requireActive(pool *PoolState) error {
	if pool.Paused {
		return errPaused
	}
	if pool.Closed {
		return errClosed
	}
	return nil
}

func requireUnpaused(pool *PoolState) error {
	if pool.Paused {
		return errPaused
	}
	return nil
}

func requirePositive(amount *big.Int) error {
	if !isPositive(amount) {
		return errZeroAmount
	}
	return nil
}

// touchStaker records staker activity for the fallback timer.
func touchStaker(c *call) {
	c.tx.pool.StakerLastActive = c.now
}

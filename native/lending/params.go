package lending

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/events"
)

// Parameter names reported in pool.paramUpdated events and accepted by
// SetParam.
const (
	ParamTargetStakePercent     = "targetStakePercent"
	ParamTargetLiquidityPercent = "targetLiquidityPercent"
	ParamProtocolFeePercent     = "protocolFeePercent"
	ParamStakerEarnFactor       = "stakerEarnFactor"
	ParamStakerEarnFactorMax    = "stakerEarnFactorMax"
	ParamExitFeePercent         = "exitFeePercent"
	ParamTemplateAPR            = "templateApr"
	ParamTemplateGracePeriod    = "templateGracePeriod"
	ParamMinLoanAmount          = "minLoanAmount"
	ParamMinLoanDuration        = "minLoanDuration"
	ParamMaxLoanDuration        = "maxLoanDuration"
)

type paramSpec struct {
	role          Role
	blockedPaused bool
	bounds        func(pool *PoolState) (lo, hi uint64)
	get           func(pool *PoolState) uint64
	set           func(pool *PoolState, v uint64)
}

var paramSpecs = map[string]paramSpec{
	ParamTargetStakePercent: {
		role:          RoleGovernance,
		blockedPaused: true,
		bounds:        func(*PoolState) (uint64, uint64) { return 0, OneHundredPercent },
		get:           func(p *PoolState) uint64 { return p.Config.TargetStakePercent },
		set:           func(p *PoolState, v uint64) { p.Config.TargetStakePercent = v },
	},
	ParamProtocolFeePercent: {
		role:   RoleGovernance,
		bounds: func(p *PoolState) (uint64, uint64) { return 0, p.Config.MaxProtocolFeePercent },
		get:    func(p *PoolState) uint64 { return p.Config.ProtocolFeePercent },
		set:    func(p *PoolState, v uint64) { p.Config.ProtocolFeePercent = v },
	},
	ParamStakerEarnFactorMax: {
		role:   RoleGovernance,
		bounds: func(*PoolState) (uint64, uint64) { return OneHundredPercent, safeMaxStakerEarnFactor },
		get:    func(p *PoolState) uint64 { return p.Config.StakerEarnFactorMax },
		set: func(p *PoolState, v uint64) {
			p.Config.StakerEarnFactorMax = v
			if p.Config.StakerEarnFactor > v {
				p.Config.StakerEarnFactor = v
			}
		},
	},
	ParamExitFeePercent: {
		role:   RoleGovernance,
		bounds: func(p *PoolState) (uint64, uint64) { return 0, p.Config.MaxExitFeePercent },
		get:    func(p *PoolState) uint64 { return p.Config.ExitFeePercent },
		set:    func(p *PoolState, v uint64) { p.Config.ExitFeePercent = v },
	},
	ParamTargetLiquidityPercent: {
		role:          RoleStaker,
		blockedPaused: true,
		bounds:        func(*PoolState) (uint64, uint64) { return 0, OneHundredPercent },
		get:           func(p *PoolState) uint64 { return p.Config.TargetLiquidityPercent },
		set:           func(p *PoolState, v uint64) { p.Config.TargetLiquidityPercent = v },
	},
	ParamStakerEarnFactor: {
		role:   RoleStaker,
		bounds: func(p *PoolState) (uint64, uint64) { return OneHundredPercent, p.Config.StakerEarnFactorMax },
		get:    func(p *PoolState) uint64 { return p.Config.StakerEarnFactor },
		set:    func(p *PoolState, v uint64) { p.Config.StakerEarnFactor = v },
	},
	ParamTemplateAPR: {
		role:   RoleStaker,
		bounds: func(*PoolState) (uint64, uint64) { return safeMinAPR, safeMaxAPR },
		get:    func(p *PoolState) uint64 { return p.Template.APR },
		set:    func(p *PoolState, v uint64) { p.Template.APR = v },
	},
	ParamTemplateGracePeriod: {
		role:   RoleStaker,
		bounds: func(*PoolState) (uint64, uint64) { return safeMinGracePeriod, safeMaxGracePeriod },
		get:    func(p *PoolState) uint64 { return p.Template.GracePeriod },
		set:    func(p *PoolState, v uint64) { p.Template.GracePeriod = v },
	},
	ParamMinLoanDuration: {
		role:   RoleStaker,
		bounds: func(p *PoolState) (uint64, uint64) { return safeMinDuration, p.Template.MaxDuration },
		get:    func(p *PoolState) uint64 { return p.Template.MinDuration },
		set:    func(p *PoolState, v uint64) { p.Template.MinDuration = v },
	},
	ParamMaxLoanDuration: {
		role:   RoleStaker,
		bounds: func(p *PoolState) (uint64, uint64) { return p.Template.MinDuration, safeMaxDuration },
		get:    func(p *PoolState) uint64 { return p.Template.MaxDuration },
		set:    func(p *PoolState, v uint64) { p.Template.MaxDuration = v },
	},
}

// SetParam updates a bounded pool parameter by name. Token-denominated
// parameters go through SetMinLoanAmount.
func (e *Engine) SetParam(ctx context.Context, actor common.Address, name string, value uint64) error {
	spec, ok := paramSpecs[name]
	if !ok {
		return fmt.Errorf("%w: unknown parameter %q", ErrNotFound, name)
	}
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if !e.hasRole(spec.role, actor) {
			if spec.role == RoleGovernance {
				return errNotGovernance
			}
			return errNotStaker
		}
		if spec.blockedPaused && pool.Paused {
			return errPaused
		}
		lo, hi := spec.bounds(pool)
		if value < lo || value > hi {
			return fmt.Errorf("%w: %s=%d not in [%d, %d]", errParamRange, name, value, lo, hi)
		}
		old := spec.get(pool)
		spec.set(pool, value)
		if spec.role == RoleStaker {
			touchStaker(c)
		}
		c.emit(events.PoolParamUpdated{
			Actor: actor,
			Name:  name,
			Old:   strconv.FormatUint(old, 10),
			New:   strconv.FormatUint(value, 10),
		})
		return nil
	})
}

// SetTargetStakePercent sets the stake to pool funds ratio required before
// offers and borrows. Governance only; blocked while paused.
func (e *Engine) SetTargetStakePercent(ctx context.Context, actor common.Address, v uint64) error {
	return e.SetParam(ctx, actor, ParamTargetStakePercent, v)
}

// SetProtocolFeePercent sets the treasury cut of interest, capped by
// MaxProtocolFeePercent. Governance only.
func (e *Engine) SetProtocolFeePercent(ctx context.Context, actor common.Address, v uint64) error {
	return e.SetParam(ctx, actor, ParamProtocolFeePercent, v)
}

// SetStakerEarnFactorMax caps the staker earn factor, lowering the current
// factor when it exceeds the new cap. Governance only.
func (e *Engine) SetStakerEarnFactorMax(ctx context.Context, actor common.Address, v uint64) error {
	return e.SetParam(ctx, actor, ParamStakerEarnFactorMax, v)
}

// SetExitFeePercent sets the fee kept by the pool when shares are burned.
// Governance only.
func (e *Engine) SetExitFeePercent(ctx context.Context, actor common.Address, v uint64) error {
	return e.SetParam(ctx, actor, ParamExitFeePercent, v)
}

// SetTargetLiquidityPercent sets the share of pool funds kept out of loans.
// Staker only; blocked while paused.
func (e *Engine) SetTargetLiquidityPercent(ctx context.Context, actor common.Address, v uint64) error {
	return e.SetParam(ctx, actor, ParamTargetLiquidityPercent, v)
}

// SetStakerEarnFactor sets the staker interest multiplier within
// [100%, StakerEarnFactorMax]. Staker only.
func (e *Engine) SetStakerEarnFactor(ctx context.Context, actor common.Address, v uint64) error {
	return e.SetParam(ctx, actor, ParamStakerEarnFactor, v)
}

// SetTemplateAPR sets the APR quoted on new applications. Staker only.
func (e *Engine) SetTemplateAPR(ctx context.Context, actor common.Address, v uint64) error {
	return e.SetParam(ctx, actor, ParamTemplateAPR, v)
}

// SetTemplateGracePeriod sets the grace period, in seconds, copied onto new
// applications. Staker only.
func (e *Engine) SetTemplateGracePeriod(ctx context.Context, actor common.Address, v uint64) error {
	return e.SetParam(ctx, actor, ParamTemplateGracePeriod, v)
}

// SetMinLoanDuration sets the shortest loan term accepted, in seconds.
func (e *Engine) SetMinLoanDuration(ctx context.Context, actor common.Address, v uint64) error {
	return e.SetParam(ctx, actor, ParamMinLoanDuration, v)
}

// SetMaxLoanDuration sets the longest loan term accepted, in seconds.
func (e *Engine) SetMaxLoanDuration(ctx context.Context, actor common.Address, v uint64) error {
	return e.SetParam(ctx, actor, ParamMaxLoanDuration, v)
}

// SetMinLoanAmount updates the smallest loan the desk accepts. It may not
// drop below one whole token.
func (e *Engine) SetMinLoanAmount(ctx context.Context, actor common.Address, amount *big.Int) error {
	return e.mutate(ctx, func(c *call) error {
		pool := c.tx.pool
		if err := e.requireStaker(actor); err != nil {
			return err
		}
		if amount == nil || amount.Cmp(pool.Token.OneToken) < 0 {
			return fmt.Errorf("%w: %s below one token", errParamRange, ParamMinLoanAmount)
		}
		if amount.Cmp(maxUint256) > 0 {
			return errMathOverflow
		}
		old := cloneInt(pool.Template.MinAmount)
		pool.Template.MinAmount = new(big.Int).Set(amount)
		touchStaker(c)
		c.emit(events.PoolParamUpdated{Actor: actor, Name: ParamMinLoanAmount, Old: old.String(), New: amount.String()})
		return nil
	})
}

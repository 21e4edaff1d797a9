package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// stakerInactive reports whether the staker has not acted for longer than
// the configured inactivity period.
func (e *Engine) stakerInactive(pool *PoolState, now uint64) bool {
	period := e.cfg.Fallback.StakerInactivitySeconds
	if period == 0 {
		return false
	}
	return now > pool.StakerLastActive+period
}

// fallbackAuthorized reports whether a non-staker actor may cancel offers
// and default loans. Authority only exists while the staker is inactive and
// is granted to governance, treasury and long-standing lenders with a
// meaningful balance.
func (e *Engine) fallbackAuthorized(t *tx, actor common.Address, now uint64) (bool, error) {
	if !e.stakerInactive(t.pool, now) {
		return false, nil
	}
	if e.hasRole(RoleGovernance, actor) || e.hasRole(RoleTreasury, actor) {
		return true, nil
	}
	pos, err := t.lender(actor)
	if err != nil {
		return false, err
	}
	if !isPositive(pos.Shares) {
		return false, nil
	}
	if now < pos.LastDepositTime+e.cfg.Fallback.LenderTenureSeconds {
		return false, nil
	}
	balance, err := tokensFromShares(t.pool, pos.Shares)
	if err != nil {
		return false, err
	}
	minBalance := new(big.Int).Mul(new(big.Int).SetUint64(e.cfg.Fallback.LenderMinBalanceTokens), t.pool.Token.OneToken)
	return balance.Cmp(minBalance) >= 0, nil
}

// authorizeRecovery admits the staker or, while the staker is inactive, a
// fallback party. denied is returned for anyone else.
func (e *Engine) authorizeRecovery(c *call, actor common.Address, denied error) error {
	if e.hasRole(RoleStaker, actor) {
		touchStaker(c)
		return nil
	}
	ok, err := e.fallbackAuthorized(c.tx, actor, c.now)
	if err != nil {
		return err
	}
	if !ok {
		return denied
	}
	return nil
}

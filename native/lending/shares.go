package lending

import "math/big"

// sharesFromTokens converts amount to shares at the pool's value before the
// amount is added. The first mint is 1:1.
func sharesFromTokens(pool *PoolState, amount *big.Int) (*big.Int, error) {
	if pool.TotalShares.Sign() == 0 {
		return new(big.Int).Set(amount), nil
	}
	if pool.PoolFunds.Sign() == 0 {
		return nil, errSharesTooSmall
	}
	return mulDiv(amount, pool.TotalShares, pool.PoolFunds)
}

// sharesToBurn is the number of shares worth amount, rounded against the
// holder.
func sharesToBurn(pool *PoolState, amount *big.Int) (*big.Int, error) {
	if pool.PoolFunds.Sign() == 0 {
		return new(big.Int).Set(pool.TotalShares), nil
	}
	return mulDivUp(amount, pool.TotalShares, pool.PoolFunds)
}

// tokensFromShares values shares at the current exchange rate, rounding down.
func tokensFromShares(pool *PoolState, shares *big.Int) (*big.Int, error) {
	if pool.TotalShares.Sign() == 0 || !isPositive(shares) {
		return big.NewInt(0), nil
	}
	return mulDiv(shares, pool.PoolFunds, pool.TotalShares)
}

// orphaned reports whether shares exist with nothing backing them, which
// happens after a default wipes out the whole pool.
func orphaned(pool *PoolState) bool {
	return pool.PoolFunds.Sign() == 0 && pool.TotalShares.Sign() > 0
}

func stakedValue(pool *PoolState) (*big.Int, error) {
	return tokensFromShares(pool, pool.StakedShares)
}

// exitFee is the portion of amount retained by the pool when shares are
// burned. It is waived when no shares would remain to receive it.
func exitFee(pool *PoolState, amount, burned *big.Int) (*big.Int, error) {
	if new(big.Int).Sub(pool.TotalShares, burned).Sign() <= 0 {
		return big.NewInt(0), nil
	}
	return percentOf(amount, pool.Config.ExitFeePercent)
}

// burnForExit removes shares worth amount from the pool and returns the
// shares burned and the fee kept. Tokens paid out are amount-fee.
func burnForExit(pool *PoolState, amount, held *big.Int) (*big.Int, *big.Int, error) {
	burn, err := sharesToBurn(pool, amount)
	if err != nil {
		return nil, nil, err
	}
	if burn.Cmp(held) > 0 {
		burn = new(big.Int).Set(held)
	}
	fee, err := exitFee(pool, amount, burn)
	if err != nil {
		return nil, nil, err
	}
	net := new(big.Int).Sub(amount, fee)
	pool.TotalShares.Sub(pool.TotalShares, burn)
	pool.PoolFunds.Sub(pool.PoolFunds, net)
	pool.RawLiquidity.Sub(pool.RawLiquidity, net)
	pool.TokenBalance.Sub(pool.TokenBalance, net)
	return burn, fee, nil
}

// mintForEntry adds amount to the pool and credits shares.
func mintForEntry(pool *PoolState, shares, amount *big.Int) {
	pool.TotalShares.Add(pool.TotalShares, shares)
	pool.PoolFunds.Add(pool.PoolFunds, amount)
	pool.RawLiquidity.Add(pool.RawLiquidity, amount)
	pool.TokenBalance.Add(pool.TokenBalance, amount)
}

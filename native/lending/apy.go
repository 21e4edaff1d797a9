package lending

import "math/big"

// stakerEarningsPercent scales the staker's proportional share of the pool
// by the earn factor above 100%.
func stakerEarningsPercent(pool *PoolState) (*big.Int, error) {
	stakedPercent, err := ratioPercent(pool.StakedShares, pool.TotalShares)
	if err != nil {
		return nil, err
	}
	factor := pool.Config.StakerEarnFactor
	if factor <= OneHundredPercent {
		return big.NewInt(0), nil
	}
	return mulDiv(pct(stakedPercent), pct(factor-OneHundredPercent), hundred())
}

// projectedLenderAPY splits the pool yield implied by borrowRate and apr
// between protocol, staker and lenders and returns the lender part.
func projectedLenderAPY(pool *PoolState, borrowRate, apr uint64) (uint64, error) {
	if borrowRate > OneHundredPercent {
		return 0, errBorrowRate
	}
	poolAPY, err := mulDiv(pct(apr), pct(borrowRate), hundred())
	if err != nil {
		return 0, err
	}
	protocolAPY, err := percentOf(poolAPY, pool.Config.ProtocolFeePercent)
	if err != nil {
		return 0, err
	}
	sep, err := stakerEarningsPercent(pool)
	if err != nil {
		return 0, err
	}
	afterProtocol := new(big.Int).Sub(poolAPY, protocolAPY)
	stakerAPY, err := mulDiv(afterProtocol, sep, new(big.Int).Add(sep, hundred()))
	if err != nil {
		return 0, err
	}
	lender := new(big.Int).Sub(afterProtocol, stakerAPY)
	return lender.Uint64(), nil
}

// currentLenderAPY projects the lender APY from the current utilisation and
// the principal-weighted average APR of outstanding loans.
func currentLenderAPY(pool *PoolState) (uint64, error) {
	if pool.BorrowedFunds.Sign() == 0 || pool.PoolFunds.Sign() == 0 {
		return 0, nil
	}
	borrowRate, err := ratioPercent(pool.BorrowedFunds, pool.PoolFunds)
	if err != nil {
		return 0, err
	}
	if borrowRate > OneHundredPercent {
		borrowRate = OneHundredPercent
	}
	avgAPR, err := mulDiv(pool.WeightedAprSum, big.NewInt(1), pool.BorrowedFunds)
	if err != nil {
		return 0, err
	}
	if !avgAPR.IsUint64() {
		return 0, errMathOverflow
	}
	return projectedLenderAPY(pool, borrowRate, avgAPR.Uint64())
}

// splitInterest divides an interest payment into protocol fee, staker
// earnings and lender yield.
func splitInterest(pool *PoolState, interest *big.Int) (protocolFee, stakerEarn, lenderYield *big.Int, err error) {
	protocolFee, err = percentOf(interest, pool.Config.ProtocolFeePercent)
	if err != nil {
		return nil, nil, nil, err
	}
	poolShare := new(big.Int).Sub(interest, protocolFee)
	sep, err := stakerEarningsPercent(pool)
	if err != nil {
		return nil, nil, nil, err
	}
	stakerEarn, err = mulDiv(poolShare, sep, new(big.Int).Add(sep, hundred()))
	if err != nil {
		return nil, nil, nil, err
	}
	lenderYield = new(big.Int).Sub(poolShare, stakerEarn)
	return protocolFee, stakerEarn, lenderYield, nil
}

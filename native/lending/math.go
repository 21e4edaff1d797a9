package lending

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// PercentDecimals is the number of decimal places carried by percentage
	// values. With one decimal 0.5% is encoded as 5 and 100% as 1000.
	PercentDecimals = 1
	// OneHundredPercent is 100% at PercentDecimals precision.
	OneHundredPercent uint64 = 1000

	secondsPerDay  uint64 = 86_400
	secondsPerYear uint64 = 365 * secondsPerDay
)

var (
	errMathOverflow = fmt.Errorf("%w: arithmetic exceeds 256 bits", ErrOutOfBounds)
	errDivByZero    = fmt.Errorf("%w: division by zero", ErrOutOfBounds)

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func toU256(x *big.Int) (*uint256.Int, error) {
	if x == nil {
		return new(uint256.Int), nil
	}
	if x.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative operand", ErrOutOfBounds)
	}
	v, overflow := uint256.FromBig(x)
	if overflow {
		return nil, errMathOverflow
	}
	return v, nil
}

// mulDiv returns floor(a*b/c). The product is held in a 512-bit intermediate so
// only a quotient wider than 256 bits overflows.
func mulDiv(a, b, c *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	d, err := toU256(c)
	if err != nil {
		return nil, err
	}
	if d.IsZero() {
		return nil, errDivByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, errMathOverflow
	}
	return z.ToBig(), nil
}

// mulDivUp is mulDiv rounded towards positive infinity.
func mulDivUp(a, b, c *big.Int) (*big.Int, error) {
	q, err := mulDiv(a, b, c)
	if err != nil {
		return nil, err
	}
	// a*b mod c != 0 is equivalent to q*c != a*b.
	product := new(big.Int).Mul(orZero(a), orZero(b))
	if new(big.Int).Mul(q, c).Cmp(product) != 0 {
		q.Add(q, big.NewInt(1))
		if q.Cmp(maxUint256) > 0 {
			return nil, errMathOverflow
		}
	}
	return q, nil
}

func pct(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

func hundred() *big.Int { return pct(OneHundredPercent) }

// percentOf returns floor(amount*percent/100%).
func percentOf(amount *big.Int, percent uint64) (*big.Int, error) {
	return mulDiv(amount, pct(percent), hundred())
}

// ratioPercent expresses part/whole as a percentage at PercentDecimals
// precision. A zero whole yields zero.
func ratioPercent(part, whole *big.Int) (uint64, error) {
	if whole == nil || whole.Sign() == 0 {
		return 0, nil
	}
	r, err := mulDiv(part, hundred(), whole)
	if err != nil {
		return 0, err
	}
	if !r.IsUint64() {
		return 0, errMathOverflow
	}
	return r.Uint64(), nil
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return x
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(x)
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func subFloor(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(orZero(a), orZero(b))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

func isPositive(x *big.Int) bool { return x != nil && x.Sign() > 0 }

// MaxAmount is returned by limit views that are not bounded by any pool
// parameter.
func MaxAmount() *big.Int { return new(big.Int).Set(maxUint256) }

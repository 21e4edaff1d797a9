package lending

import (
	"errors"
	"math/big"
	"testing"
)

func TestMulDiv(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 200)
	cases := []struct {
		name    string
		a, b, c *big.Int
		floor   *big.Int
		ceil    *big.Int
	}{
		{"exact", big.NewInt(10), big.NewInt(6), big.NewInt(3), big.NewInt(20), big.NewInt(20)},
		{"rounds", big.NewInt(10), big.NewInt(1), big.NewInt(3), big.NewInt(3), big.NewInt(4)},
		{"zero operand", big.NewInt(0), big.NewInt(7), big.NewInt(3), big.NewInt(0), big.NewInt(0)},
		{"wide intermediate", huge, huge, huge, huge, huge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := mulDiv(tc.a, tc.b, tc.c)
			if err != nil {
				t.Fatalf("mulDiv: %v", err)
			}
			requireBig(t, "floor", got, tc.floor)
			got, err = mulDivUp(tc.a, tc.b, tc.c)
			if err != nil {
				t.Fatalf("mulDivUp: %v", err)
			}
			requireBig(t, "ceil", got, tc.ceil)
		})
	}
}

func TestMulDivErrors(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 200)
	if _, err := mulDiv(big.NewInt(1), big.NewInt(1), big.NewInt(0)); !errors.Is(err, errDivByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if _, err := mulDiv(huge, huge, big.NewInt(1)); !errors.Is(err, errMathOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := mulDiv(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected oversized operand to fail, got %v", err)
	}
	if _, err := mulDiv(big.NewInt(-1), big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected negative operand to fail, got %v", err)
	}
	if _, err := mulDivUp(maxUint256, big.NewInt(2), big.NewInt(2)); err != nil {
		t.Fatalf("exact max quotient: %v", err)
	}
}

func TestRatioPercent(t *testing.T) {
	got, err := ratioPercent(big.NewInt(2000), big.NewInt(11000))
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	if got != 181 {
		t.Fatalf("ratio = %d, want 181", got)
	}
	if got, _ := ratioPercent(big.NewInt(5), big.NewInt(0)); got != 0 {
		t.Fatalf("zero whole = %d, want 0", got)
	}
	if v := subFloor(big.NewInt(3), big.NewInt(5)); v.Sign() != 0 {
		t.Fatalf("subFloor = %v, want 0", v)
	}
}

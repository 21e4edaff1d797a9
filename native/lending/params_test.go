package lending

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"lendpool/core/events"
)

func TestSetParamRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		set  func() error
		want error
	}{
		{"governance sets fee", func() error { return env.engine.SetProtocolFeePercent(ctx, govAddr, 150) }, nil},
		{"staker cannot set fee", func() error { return env.engine.SetProtocolFeePercent(ctx, stakerAddr, 150) }, ErrUnauthorized},
		{"staker sets apr", func() error { return env.engine.SetTemplateAPR(ctx, stakerAddr, 200) }, nil},
		{"governance cannot set apr", func() error { return env.engine.SetTemplateAPR(ctx, govAddr, 200) }, ErrUnauthorized},
		{"stranger cannot set target stake", func() error { return env.engine.SetTargetStakePercent(ctx, strangerAddr, 50) }, ErrUnauthorized},
		{"unknown parameter", func() error { return env.engine.SetParam(ctx, govAddr, "nope", 1) }, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.set()
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSetParamBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.ErrorIs(t, env.engine.SetProtocolFeePercent(ctx, govAddr, 201), ErrOutOfBounds)
	require.ErrorIs(t, env.engine.SetExitFeePercent(ctx, govAddr, 11), ErrOutOfBounds)
	require.ErrorIs(t, env.engine.SetTemplateAPR(ctx, stakerAddr, 0), ErrOutOfBounds)
	require.ErrorIs(t, env.engine.SetTemplateAPR(ctx, stakerAddr, OneHundredPercent+1), ErrOutOfBounds)
	require.ErrorIs(t, env.engine.SetTemplateGracePeriod(ctx, stakerAddr, 2*secondsPerDay), ErrOutOfBounds)
	require.ErrorIs(t, env.engine.SetStakerEarnFactor(ctx, stakerAddr, 999), ErrOutOfBounds)
	require.ErrorIs(t, env.engine.SetStakerEarnFactor(ctx, stakerAddr, 5001), ErrOutOfBounds)
	require.ErrorIs(t, env.engine.SetTargetLiquidityPercent(ctx, stakerAddr, 1001), ErrOutOfBounds)

	// Durations must keep min <= max.
	require.ErrorIs(t, env.engine.SetMinLoanDuration(ctx, stakerAddr, 5*secondsPerYear), ErrOutOfBounds)
	require.ErrorIs(t, env.engine.SetMaxLoanDuration(ctx, stakerAddr, secondsPerDay/2), ErrOutOfBounds)
	require.ErrorIs(t, env.engine.SetMaxLoanDuration(ctx, stakerAddr, 11*secondsPerYear), ErrOutOfBounds)
	require.NoError(t, env.engine.SetMaxLoanDuration(ctx, stakerAddr, 10*secondsPerYear))

	require.ErrorIs(t, env.engine.SetMinLoanAmount(ctx, stakerAddr, big.NewInt(999_999)), ErrOutOfBounds)
	require.NoError(t, env.engine.SetMinLoanAmount(ctx, stakerAddr, tokens(1)))
	tmpl, err := env.engine.LoanTemplate()
	require.NoError(t, err)
	requireBig(t, "min amount", tmpl.MinAmount, tokens(1))
	require.Equal(t, 10*secondsPerYear, tmpl.MaxDuration)

	// Rejected updates leave no trace.
	cfg, err := env.engine.PoolConfig()
	require.NoError(t, err)
	require.Equal(t, uint64(100), cfg.ProtocolFeePercent)
	require.Equal(t, uint64(5), cfg.ExitFeePercent)
}

func TestEarnFactorMaxClampsFactor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.engine.SetStakerEarnFactor(ctx, stakerAddr, 4000))
	require.NoError(t, env.engine.SetStakerEarnFactorMax(ctx, govAddr, 2000))
	cfg, err := env.engine.PoolConfig()
	require.NoError(t, err)
	require.Equal(t, uint64(2000), cfg.StakerEarnFactorMax)
	require.Equal(t, uint64(2000), cfg.StakerEarnFactor)

	require.ErrorIs(t, env.engine.SetStakerEarnFactorMax(ctx, govAddr, 999), ErrOutOfBounds)
	require.ErrorIs(t, env.engine.SetStakerEarnFactorMax(ctx, govAddr, safeMaxStakerEarnFactor+1), ErrOutOfBounds)
}

func TestTargetParamsBlockedWhilePaused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.engine.Pause(ctx, govAddr))

	if err := env.engine.SetTargetStakePercent(ctx, govAddr, 200); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected paused target stake update to fail, got %v", err)
	}
	if err := env.engine.SetTargetLiquidityPercent(ctx, stakerAddr, 200); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected paused target liquidity update to fail, got %v", err)
	}
	require.NoError(t, env.engine.SetTemplateAPR(ctx, stakerAddr, 200))
}

func TestSetParamEmitsUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.engine.SetTemplateGracePeriod(ctx, stakerAddr, 30*secondsPerDay))

	evts := env.recorder.Events()
	require.NotEmpty(t, evts)
	last, ok := evts[len(evts)-1].(events.PoolParamUpdated)
	require.True(t, ok)
	require.Equal(t, ParamTemplateGracePeriod, last.Name)
	require.Equal(t, "5184000", last.Old)
	require.Equal(t, "2592000", last.New)

	attrs := events.Flatten(last).Attributes
	require.Equal(t, stakerAddr.Hex(), attrs["actor"])
	require.Equal(t, ParamTemplateGracePeriod, attrs["param"])
}

func TestStakerParamRefreshesActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.advance(100 * secondsPerDay)
	inactive, err := env.engine.StakerInactive()
	require.NoError(t, err)
	require.True(t, inactive)

	require.NoError(t, env.engine.SetProtocolFeePercent(ctx, govAddr, 50))
	inactive, _ = env.engine.StakerInactive()
	require.True(t, inactive, "governance actions do not count as staker activity")

	require.NoError(t, env.engine.SetMinLoanAmount(ctx, stakerAddr, tokens(250)))
	inactive, _ = env.engine.StakerInactive()
	require.False(t, inactive)
}

func TestSettersWriteTheirParameter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.engine.SetTargetStakePercent(ctx, govAddr, 200))
	require.NoError(t, env.engine.SetProtocolFeePercent(ctx, govAddr, 150))
	require.NoError(t, env.engine.SetStakerEarnFactorMax(ctx, govAddr, 4000))
	require.NoError(t, env.engine.SetExitFeePercent(ctx, govAddr, 7))
	require.NoError(t, env.engine.SetTargetLiquidityPercent(ctx, stakerAddr, 250))
	require.NoError(t, env.engine.SetStakerEarnFactor(ctx, stakerAddr, 3000))
	require.NoError(t, env.engine.SetTemplateAPR(ctx, stakerAddr, 400))
	require.NoError(t, env.engine.SetTemplateGracePeriod(ctx, stakerAddr, 30*secondsPerDay))
	require.NoError(t, env.engine.SetMinLoanDuration(ctx, stakerAddr, 2*secondsPerDay))
	require.NoError(t, env.engine.SetMaxLoanDuration(ctx, stakerAddr, 3*secondsPerYear))

	pool := env.pool()
	require.Equal(t, uint64(200), pool.Config.TargetStakePercent)
	require.Equal(t, uint64(150), pool.Config.ProtocolFeePercent)
	require.Equal(t, uint64(4000), pool.Config.StakerEarnFactorMax)
	require.Equal(t, uint64(7), pool.Config.ExitFeePercent)
	require.Equal(t, uint64(250), pool.Config.TargetLiquidityPercent)
	require.Equal(t, uint64(3000), pool.Config.StakerEarnFactor)
	require.Equal(t, uint64(400), pool.Template.APR)
	require.Equal(t, uint64(30*secondsPerDay), pool.Template.GracePeriod)
	require.Equal(t, uint64(2*secondsPerDay), pool.Template.MinDuration)
	require.Equal(t, uint64(3*secondsPerYear), pool.Template.MaxDuration)
}

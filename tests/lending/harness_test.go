package lending_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lendpool/core/events"
	"lendpool/native/bank"
	"lendpool/native/lending"
	"lendpool/native/roles"
	statelending "lendpool/state/lending"
	"lendpool/storage"
)

const day = uint64(86_400)

var (
	custody  = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	staker   = common.HexToAddress("0x0000000000000000000000000000000000000051")
	gov      = common.HexToAddress("0x0000000000000000000000000000000000000060")
	treasury = common.HexToAddress("0x0000000000000000000000000000000000000070")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	dave     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

type pool struct {
	t        *testing.T
	db       storage.Database
	ledger   *bank.Ledger
	engine   *lending.Engine
	recorder *events.Recorder
	now      int64
}

func newPool(t *testing.T, db storage.Database) *pool {
	t.Helper()
	p := &pool{t: t, db: db, recorder: &events.Recorder{}, now: 1_700_000_000}
	p.ledger = bank.NewLedger(db, "USDC", custody)
	registry := roles.NewRegistry(db)
	require.NoError(t, registry.Grant(lending.RoleStaker, staker))
	require.NoError(t, registry.Grant(lending.RoleGovernance, gov))
	require.NoError(t, registry.Grant(lending.RoleTreasury, treasury))

	p.engine = lending.NewEngine(lending.DefaultConfig())
	p.engine.SetState(statelending.NewStore(db))
	p.engine.SetToken(p.ledger)
	p.engine.SetAccess(registry)
	p.engine.SetEmitter(p.recorder)
	p.engine.SetNowFunc(func() int64 { return p.now })

	booted, err := p.engine.Bootstrapped()
	require.NoError(t, err)
	if !booted {
		for _, addr := range []common.Address{staker, alice, bob, carol, dave} {
			require.NoError(t, p.ledger.Credit(addr, tokens(100_000)))
		}
		require.NoError(t, p.engine.Bootstrap(context.Background()))
	}
	return p
}

func (p *pool) advance(seconds uint64) { p.now += int64(seconds) }

func (p *pool) state() *lending.PoolState {
	p.t.Helper()
	s, err := p.engine.PoolState()
	require.NoError(p.t, err)
	return s
}

func (p *pool) wallet(addr common.Address) *big.Int {
	p.t.Helper()
	bal, err := p.ledger.BalanceOf(addr)
	require.NoError(p.t, err)
	return bal
}

// checkBooks asserts that custody holds exactly the pool's token balance and
// that pool funds decompose into their buckets.
func (p *pool) checkBooks() {
	p.t.Helper()
	s := p.state()
	require.Equal(p.t, s.TokenBalance.String(), p.wallet(custody).String(), "custody vs token balance")
	sum := new(big.Int).Add(s.RawLiquidity, s.AllocatedFunds)
	sum.Add(sum, s.BorrowedFunds)
	require.Equal(p.t, s.PoolFunds.String(), sum.String(), "pool funds decomposition")
	require.True(p.t, s.StakedShares.Cmp(s.TotalShares) <= 0, "staked shares exceed total")
}

func terms(amount *big.Int, duration uint64, installments uint64) lending.OfferTerms {
	installment := new(big.Int).Div(amount, new(big.Int).SetUint64(installments))
	return lending.OfferTerms{
		Amount:            amount,
		Duration:          duration,
		GracePeriod:       3 * day,
		InstallmentAmount: installment,
		Installments:      installments,
		APR:               300,
	}
}

// fund walks an application from request to borrow and returns the loan id.
func (p *pool) fund(borrower common.Address, t lending.OfferTerms) uint64 {
	p.t.Helper()
	ctx := context.Background()
	appID, err := p.engine.RequestLoan(ctx, borrower, t.Amount, t.Duration, []byte("po-1187"))
	require.NoError(p.t, err)
	require.NoError(p.t, p.engine.DraftOffer(ctx, staker, appID, t))
	require.NoError(p.t, p.engine.LockDraftOffer(ctx, staker, appID))
	p.advance(2 * day)
	require.NoError(p.t, p.engine.OfferLoan(ctx, staker, appID))
	loanID, err := p.engine.Borrow(ctx, borrower, appID)
	require.NoError(p.t, err)
	return loanID
}

package lending

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/events"
)

var (
	stakerAddr   = makeAddress(0x51)
	govAddr      = makeAddress(0x60)
	treasuryAddr = makeAddress(0x70)
	lenderAddr   = makeAddress(0xA1)
	lender2Addr  = makeAddress(0xA2)
	borrowerAddr = makeAddress(0xB1)
	strangerAddr = makeAddress(0xEE)
)

func makeAddress(b byte) common.Address {
	var addr common.Address
	for i := range addr {
		addr[i] = b
	}
	return addr
}

// tokens converts whole tokens to base units at six decimals.
func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

type mockStore struct {
	pool      *PoolState
	apps      map[uint64]*LoanApplication
	offers    map[uint64]*LoanOffer
	loans     map[uint64]*Loan
	details   map[uint64]*LoanDetail
	borrowers map[common.Address]*BorrowerStats
	lenders   map[common.Address]*LenderPosition
	applies   int
	failApply error
}

func newMockStore() *mockStore {
	return &mockStore{
		apps:      make(map[uint64]*LoanApplication),
		offers:    make(map[uint64]*LoanOffer),
		loans:     make(map[uint64]*Loan),
		details:   make(map[uint64]*LoanDetail),
		borrowers: make(map[common.Address]*BorrowerStats),
		lenders:   make(map[common.Address]*LenderPosition),
	}
}

func (m *mockStore) GetPool() (*PoolState, bool, error) {
	if m.pool == nil {
		return nil, false, nil
	}
	return m.pool.Clone(), true, nil
}

func (m *mockStore) GetApplication(id uint64) (*LoanApplication, bool, error) {
	v, ok := m.apps[id]
	return v.Clone(), ok, nil
}

func (m *mockStore) GetOffer(id uint64) (*LoanOffer, bool, error) {
	v, ok := m.offers[id]
	return v.Clone(), ok, nil
}

func (m *mockStore) GetLoan(id uint64) (*Loan, bool, error) {
	v, ok := m.loans[id]
	return v.Clone(), ok, nil
}

func (m *mockStore) GetLoanDetail(id uint64) (*LoanDetail, bool, error) {
	v, ok := m.details[id]
	return v.Clone(), ok, nil
}

func (m *mockStore) GetBorrower(addr common.Address) (*BorrowerStats, bool, error) {
	v, ok := m.borrowers[addr]
	return v.Clone(), ok, nil
}

func (m *mockStore) GetLender(addr common.Address) (*LenderPosition, bool, error) {
	v, ok := m.lenders[addr]
	return v.Clone(), ok, nil
}

func applyMap[K comparable, V any](dst map[K]V, src map[K]V, isNil func(V) bool) {
	for k, v := range src {
		if isNil(v) {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}

func (m *mockStore) Apply(cs *ChangeSet) error {
	if m.failApply != nil {
		return m.failApply
	}
	m.applies++
	if cs.Pool != nil {
		m.pool = cs.Pool.Clone()
	}
	applyMap(m.apps, cs.Applications, func(v *LoanApplication) bool { return v == nil })
	applyMap(m.offers, cs.Offers, func(v *LoanOffer) bool { return v == nil })
	applyMap(m.loans, cs.Loans, func(v *Loan) bool { return v == nil })
	applyMap(m.details, cs.LoanDetails, func(v *LoanDetail) bool { return v == nil })
	applyMap(m.borrowers, cs.Borrowers, func(v *BorrowerStats) bool { return v == nil })
	applyMap(m.lenders, cs.Lenders, func(v *LenderPosition) bool { return v == nil })
	return nil
}

var errTransferFailed = errors.New("mock token: transfer failed")

type mockToken struct {
	balances map[common.Address]*big.Int
	pool     *big.Int
	failOut  bool
	onOut    func(ctx context.Context)
}

func newMockToken() *mockToken {
	return &mockToken{balances: make(map[common.Address]*big.Int), pool: big.NewInt(0)}
}

func (m *mockToken) balance(addr common.Address) *big.Int {
	if v, ok := m.balances[addr]; ok {
		return v
	}
	return big.NewInt(0)
}

func (m *mockToken) credit(addr common.Address, amount *big.Int) {
	m.balances[addr] = new(big.Int).Add(m.balance(addr), amount)
}

func (m *mockToken) TransferIn(_ context.Context, from common.Address, amount *big.Int) error {
	bal := m.balance(from)
	if bal.Cmp(amount) < 0 {
		return errTransferFailed
	}
	m.balances[from] = new(big.Int).Sub(bal, amount)
	m.pool.Add(m.pool, amount)
	return nil
}

func (m *mockToken) TransferOut(ctx context.Context, to common.Address, amount *big.Int) error {
	if m.onOut != nil {
		m.onOut(ctx)
	}
	if m.failOut || m.pool.Cmp(amount) < 0 {
		return errTransferFailed
	}
	m.pool.Sub(m.pool, amount)
	m.credit(to, amount)
	return nil
}

type staticAccess map[Role]map[common.Address]bool

func (s staticAccess) HasRole(role Role, actor common.Address) bool {
	return s[role][actor]
}

type testEnv struct {
	t        *testing.T
	engine   *Engine
	store    *mockStore
	token    *mockToken
	recorder *events.Recorder
	now      int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, DefaultConfig())
}

func newTestEnvWithConfig(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		t:        t,
		store:    newMockStore(),
		token:    newMockToken(),
		recorder: &events.Recorder{},
		now:      1_700_000_000,
	}
	env.engine = NewEngine(cfg)
	env.engine.SetState(env.store)
	env.engine.SetToken(env.token)
	env.engine.SetAccess(staticAccess{
		RoleStaker:     {stakerAddr: true},
		RoleGovernance: {govAddr: true},
		RoleTreasury:   {treasuryAddr: true},
	})
	env.engine.SetEmitter(env.recorder)
	env.engine.SetNowFunc(func() int64 { return env.now })
	if err := env.engine.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for _, addr := range []common.Address{stakerAddr, lenderAddr, lender2Addr, borrowerAddr, strangerAddr} {
		env.token.credit(addr, tokens(100_000))
	}
	return env
}

func (env *testEnv) advance(seconds uint64) { env.now += int64(seconds) }

func (env *testEnv) pool() *PoolState {
	env.t.Helper()
	state, err := env.engine.PoolState()
	if err != nil {
		env.t.Fatalf("pool state: %v", err)
	}
	return state
}

func (env *testEnv) stake(amount *big.Int) {
	env.t.Helper()
	if err := env.engine.Stake(context.Background(), stakerAddr, amount); err != nil {
		env.t.Fatalf("stake: %v", err)
	}
}

func (env *testEnv) deposit(addr common.Address, amount *big.Int) {
	env.t.Helper()
	if err := env.engine.Deposit(context.Background(), addr, amount); err != nil {
		env.t.Fatalf("deposit: %v", err)
	}
}

func singleTerms(amount *big.Int, duration uint64) OfferTerms {
	return OfferTerms{
		Amount:            amount,
		Duration:          duration,
		GracePeriod:       60 * secondsPerDay,
		InstallmentAmount: new(big.Int).Set(amount),
		Installments:      1,
		APR:               300,
	}
}

// offered drives an application through request, draft, lock and offer.
func (env *testEnv) offered(borrower common.Address, terms OfferTerms) uint64 {
	env.t.Helper()
	ctx := context.Background()
	appID, err := env.engine.RequestLoan(ctx, borrower, terms.Amount, terms.Duration, []byte("invoice-42"))
	if err != nil {
		env.t.Fatalf("request loan: %v", err)
	}
	if err := env.engine.DraftOffer(ctx, stakerAddr, appID, terms); err != nil {
		env.t.Fatalf("draft offer: %v", err)
	}
	if err := env.engine.LockDraftOffer(ctx, stakerAddr, appID); err != nil {
		env.t.Fatalf("lock offer: %v", err)
	}
	env.advance(2 * secondsPerDay)
	if err := env.engine.OfferLoan(ctx, stakerAddr, appID); err != nil {
		env.t.Fatalf("offer loan: %v", err)
	}
	return appID
}

// borrowed funds a loan with the supplied terms and returns its id.
func (env *testEnv) borrowed(borrower common.Address, terms OfferTerms) uint64 {
	env.t.Helper()
	appID := env.offered(borrower, terms)
	loanID, err := env.engine.Borrow(context.Background(), borrower, appID)
	if err != nil {
		env.t.Fatalf("borrow: %v", err)
	}
	return loanID
}

// seeded stakes 2000 and deposits 9000 tokens.
func (env *testEnv) seeded() {
	env.t.Helper()
	env.stake(tokens(2000))
	env.deposit(lenderAddr, tokens(9000))
}

func requireBig(t *testing.T, label string, got, want *big.Int) {
	t.Helper()
	if got == nil || got.Cmp(want) != 0 {
		t.Fatalf("%s: got %v, want %s", label, got, want)
	}
}

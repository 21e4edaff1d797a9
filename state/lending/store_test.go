package lending

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lendpool/native/lending"
	"lendpool/storage"
)

var (
	borrower = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	lender   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func samplePool() *lending.PoolState {
	cfg := lending.DefaultConfig()
	return &lending.PoolState{
		TokenBalance:      big.NewInt(11_000),
		PoolFunds:         big.NewInt(11_000),
		RawLiquidity:      big.NewInt(10_000),
		AllocatedFunds:    big.NewInt(0),
		BorrowedFunds:     big.NewInt(1_000),
		PendingYield:      big.NewInt(0),
		WeightedAprSum:    big.NewInt(300_000),
		StakerRevenue:     big.NewInt(7),
		TreasuryRevenue:   big.NewInt(3),
		TotalShares:       big.NewInt(11_000),
		StakedShares:      big.NewInt(2_000),
		NextApplicationID: 2,
		NextLoanID:        2,
		StakerLastActive:  1_700_000_000,
		Paused:            true,
		Config: lending.PoolConfig{
			TargetStakePercent: cfg.TargetStakePercent,
			ProtocolFeePercent: cfg.ProtocolFeePercent,
			StakerEarnFactor:   cfg.StakerEarnFactor,
		},
		Template: lending.LoanTemplate{APR: 300, GracePeriod: 86_400 * 60, MinAmount: big.NewInt(100), MinDuration: 86_400, MaxDuration: 86_400 * 365},
		Token:    lending.TokenConfig{Symbol: "USDC", Decimals: 6, OneToken: big.NewInt(1_000_000)},
	}
}

func sampleChangeSet() *lending.ChangeSet {
	return &lending.ChangeSet{
		Pool: samplePool(),
		Applications: map[uint64]*lending.LoanApplication{
			1: {ID: 1, Borrower: borrower, Amount: big.NewInt(1_000), Duration: 86_400 * 30, RequestedTime: 10, MetadataHash: [32]byte{1, 2, 3}, Status: lending.ApplicationOfferAccepted},
		},
		Offers: map[uint64]*lending.LoanOffer{
			1: {ApplicationID: 1, Borrower: borrower, Amount: big.NewInt(1_000), Duration: 86_400 * 30, GracePeriod: 86_400 * 3, InstallmentAmount: big.NewInt(1_000), Installments: 1, APR: 300, DraftedTime: 11, LockedTime: 12, OfferedTime: 13},
		},
		Loans: map[uint64]*lending.Loan{
			1: {ID: 1, ApplicationID: 1, Borrower: borrower, Amount: big.NewInt(1_000), Duration: 86_400 * 30, GracePeriod: 86_400 * 3, InstallmentAmount: big.NewInt(1_000), Installments: 1, APR: 300, BorrowedTime: 14, Status: lending.LoanOutstanding},
		},
		LoanDetails: map[uint64]*lending.LoanDetail{
			1: {LoanID: 1, TotalAmountRepaid: big.NewInt(0), PrincipalAmountRepaid: big.NewInt(0), LastPaymentTime: 14},
		},
		Borrowers: map[common.Address]*lending.BorrowerStats{
			borrower: {Borrower: borrower, RecentApplicationID: 1, RecentLoanID: 1, CountRequested: 1, CountOffered: 1, CountOutstanding: 1, AmountBorrowed: big.NewInt(1_000), AmountBaseRepaid: big.NewInt(0), AmountInterestPaid: big.NewInt(0)},
		},
		Lenders: map[common.Address]*lending.LenderPosition{
			lender: {Address: lender, Shares: big.NewInt(9_000), LastDepositTime: 9},
		},
	}
}

func TestStoreApplyAndRead(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	_, ok, err := store.GetPool()
	require.NoError(t, err)
	require.False(t, ok)

	cs := sampleChangeSet()
	require.NoError(t, store.Apply(cs))

	pool, ok, err := store.GetPool()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cs.Pool, pool)

	app, ok, err := store.GetApplication(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cs.Applications[1], app)

	offer, _, err := store.GetOffer(1)
	require.NoError(t, err)
	require.Equal(t, cs.Offers[1], offer)

	loan, _, err := store.GetLoan(1)
	require.NoError(t, err)
	require.Equal(t, cs.Loans[1], loan)

	detail, _, err := store.GetLoanDetail(1)
	require.NoError(t, err)
	require.Equal(t, cs.LoanDetails[1], detail)

	stats, _, err := store.GetBorrower(borrower)
	require.NoError(t, err)
	require.Equal(t, cs.Borrowers[borrower], stats)

	pos, _, err := store.GetLender(lender)
	require.NoError(t, err)
	require.Equal(t, cs.Lenders[lender], pos)

	// Returned records are copies.
	pos.Shares.SetInt64(1)
	again, _, _ := store.GetLender(lender)
	require.Equal(t, int64(9_000), again.Shares.Int64())

	lenders, err := store.Lenders()
	require.NoError(t, err)
	require.Equal(t, []common.Address{lender}, lenders)
	ids, err := store.LoanIDs()
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)
}

func TestStoreApplyDeletes(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	require.NoError(t, store.Apply(sampleChangeSet()))

	require.NoError(t, store.Apply(&lending.ChangeSet{
		Offers:  map[uint64]*lending.LoanOffer{1: nil},
		Lenders: map[common.Address]*lending.LenderPosition{lender: nil},
	}))
	_, ok, err := store.GetOffer(1)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, _ = store.GetLender(lender)
	require.False(t, ok)
	_, ok, _ = store.GetLoan(1)
	require.True(t, ok)

	require.NoError(t, store.Apply(&lending.ChangeSet{}))
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	require.NoError(t, NewStore(db).Apply(sampleChangeSet()))
	require.NoError(t, db.Close())

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	pool, ok, err := NewStore(db).GetPool()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, pool.Paused)
	require.Equal(t, "11000", pool.PoolFunds.String())
	require.Equal(t, uint64(2), pool.NextLoanID)
}

package lending

import (
	"github.com/ethereum/go-ethereum/common"
)

// Store is the persistence layer consumed by the engine. Getters report
// whether the record exists and must return copies the engine may mutate.
// Apply writes a change set atomically: either every record lands or none
// does.
type Store interface {
	GetPool() (*PoolState, bool, error)
	GetApplication(id uint64) (*LoanApplication, bool, error)
	GetOffer(applicationID uint64) (*LoanOffer, bool, error)
	GetLoan(id uint64) (*Loan, bool, error)
	GetLoanDetail(id uint64) (*LoanDetail, bool, error)
	GetBorrower(addr common.Address) (*BorrowerStats, bool, error)
	GetLender(addr common.Address) (*LenderPosition, bool, error)
	Apply(cs *ChangeSet) error
}

// ChangeSet is a batch of record writes. A nil map value deletes the record.
type ChangeSet struct {
	Pool         *PoolState
	Applications map[uint64]*LoanApplication
	Offers       map[uint64]*LoanOffer
	Loans        map[uint64]*Loan
	LoanDetails  map[uint64]*LoanDetail
	Borrowers    map[common.Address]*BorrowerStats
	Lenders      map[common.Address]*LenderPosition
}

// Empty reports whether the change set writes nothing.
func (cs *ChangeSet) Empty() bool {
	if cs == nil {
		return true
	}
	return cs.Pool == nil &&
		len(cs.Applications) == 0 &&
		len(cs.Offers) == 0 &&
		len(cs.Loans) == 0 &&
		len(cs.LoanDetails) == 0 &&
		len(cs.Borrowers) == 0 &&
		len(cs.Lenders) == 0
}

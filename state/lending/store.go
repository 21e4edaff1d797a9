package lending

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"lendpool/native/lending"
	"lendpool/storage"
)

var (
	poolKey           = []byte("lending/pool")
	applicationPrefix = []byte("lending/application/")
	offerPrefix       = []byte("lending/offer/")
	loanPrefix        = []byte("lending/loan/")
	loanDetailPrefix  = []byte("lending/loan-detail/")
	borrowerPrefix    = []byte("lending/borrower/")
	lenderPrefix      = []byte("lending/lender/")
)

func idKey(prefix []byte, id uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	return buf
}

func addrKey(prefix []byte, addr common.Address) []byte {
	buf := make([]byte, len(prefix)+common.AddressLength)
	copy(buf, prefix)
	copy(buf[len(prefix):], addr[:])
	return buf
}

// Store persists lending records as RLP blobs in a key-value database. It
// satisfies lending.Store.
type Store struct {
	mu sync.RWMutex
	db storage.Database
}

// NewStore wraps db.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("lending store: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) GetPool() (*lending.PoolState, bool, error) {
	var rec storedPool
	ok, err := s.get(poolKey, &rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec.toPool(), true, nil
}

func (s *Store) GetApplication(id uint64) (*lending.LoanApplication, bool, error) {
	var rec storedApplication
	ok, err := s.get(idKey(applicationPrefix, id), &rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec.toApplication(), true, nil
}

func (s *Store) GetOffer(applicationID uint64) (*lending.LoanOffer, bool, error) {
	var rec lending.LoanOffer
	ok, err := s.get(idKey(offerPrefix, applicationID), &rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &rec, true, nil
}

func (s *Store) GetLoan(id uint64) (*lending.Loan, bool, error) {
	var rec storedLoan
	ok, err := s.get(idKey(loanPrefix, id), &rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec.toLoan(), true, nil
}

func (s *Store) GetLoanDetail(id uint64) (*lending.LoanDetail, bool, error) {
	var rec lending.LoanDetail
	ok, err := s.get(idKey(loanDetailPrefix, id), &rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &rec, true, nil
}

func (s *Store) GetBorrower(addr common.Address) (*lending.BorrowerStats, bool, error) {
	var rec lending.BorrowerStats
	ok, err := s.get(addrKey(borrowerPrefix, addr), &rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &rec, true, nil
}

func (s *Store) GetLender(addr common.Address) (*lending.LenderPosition, bool, error) {
	var rec lending.LenderPosition
	ok, err := s.get(addrKey(lenderPrefix, addr), &rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &rec, true, nil
}

// Apply encodes every record of cs into a single database batch. Encoding
// failures abort before anything is written.
func (s *Store) Apply(cs *lending.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	batch := s.db.NewBatch()
	put := func(key []byte, value interface{}) error {
		encoded, err := rlp.EncodeToBytes(value)
		if err != nil {
			return fmt.Errorf("lending store: encode %q: %w", key, err)
		}
		batch.Put(key, encoded)
		return nil
	}
	if cs.Pool != nil {
		if err := put(poolKey, newStoredPool(cs.Pool)); err != nil {
			return err
		}
	}
	for id, app := range cs.Applications {
		key := idKey(applicationPrefix, id)
		if app == nil {
			batch.Delete(key)
			continue
		}
		if err := put(key, newStoredApplication(app)); err != nil {
			return err
		}
	}
	for id, offer := range cs.Offers {
		key := idKey(offerPrefix, id)
		if offer == nil {
			batch.Delete(key)
			continue
		}
		if err := put(key, offer); err != nil {
			return err
		}
	}
	for id, loan := range cs.Loans {
		key := idKey(loanPrefix, id)
		if loan == nil {
			batch.Delete(key)
			continue
		}
		if err := put(key, newStoredLoan(loan)); err != nil {
			return err
		}
	}
	for id, detail := range cs.LoanDetails {
		key := idKey(loanDetailPrefix, id)
		if detail == nil {
			batch.Delete(key)
			continue
		}
		if err := put(key, detail); err != nil {
			return err
		}
	}
	for addr, stats := range cs.Borrowers {
		key := addrKey(borrowerPrefix, addr)
		if stats == nil {
			batch.Delete(key)
			continue
		}
		if err := put(key, stats); err != nil {
			return err
		}
	}
	for addr, pos := range cs.Lenders {
		key := addrKey(lenderPrefix, addr)
		if pos == nil {
			batch.Delete(key)
			continue
		}
		if err := put(key, pos); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return batch.Write()
}

// Lenders returns every address with a recorded lender position.
func (s *Store) Lenders() ([]common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys, err := s.db.Keys(lenderPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(keys))
	for _, key := range keys {
		out = append(out, common.BytesToAddress(key[len(lenderPrefix):]))
	}
	return out, nil
}

// LoanIDs returns the ids of every stored loan in ascending order.
func (s *Store) LoanIDs() ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys, err := s.db.Keys(loanPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(keys))
	for _, key := range keys {
		out = append(out, binary.BigEndian.Uint64(key[len(loanPrefix):]))
	}
	return out, nil
}

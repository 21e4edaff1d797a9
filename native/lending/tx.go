package lending

import (
	"github.com/ethereum/go-ethereum/common"
)

// overlay caches cloned records for the duration of one engine call and
// remembers which keys were written.
type overlay[K comparable, V any] struct {
	load  func(K) (V, bool, error)
	clone func(V) V
	cache map[K]V
	orig  map[K]V
	found map[K]bool
	dirty map[K]struct{}
}

func newOverlay[K comparable, V any](load func(K) (V, bool, error), clone func(V) V) *overlay[K, V] {
	return &overlay[K, V]{
		load:  load,
		clone: clone,
		cache: make(map[K]V),
		orig:  make(map[K]V),
		found: make(map[K]bool),
		dirty: make(map[K]struct{}),
	}
}

func (o *overlay[K, V]) get(key K) (V, bool, error) {
	if v, ok := o.cache[key]; ok {
		return v, o.found[key] || o.isDirty(key), nil
	}
	v, ok, err := o.load(key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	o.found[key] = ok
	if !ok {
		var zero V
		return zero, false, nil
	}
	o.orig[key] = o.clone(v)
	o.cache[key] = v
	return v, true, nil
}

func (o *overlay[K, V]) put(key K, value V) {
	if _, seen := o.found[key]; !seen {
		o.found[key] = false
	}
	o.cache[key] = value
	o.dirty[key] = struct{}{}
}

func (o *overlay[K, V]) isDirty(key K) bool {
	_, ok := o.dirty[key]
	return ok
}

// writes returns the dirty records.
func (o *overlay[K, V]) writes() map[K]V {
	if len(o.dirty) == 0 {
		return nil
	}
	out := make(map[K]V, len(o.dirty))
	for key := range o.dirty {
		out[key] = o.clone(o.cache[key])
	}
	return out
}

// undo returns the pre-transaction value of every dirty record. Records
// that did not exist map to the zero value, which the store deletes.
func (o *overlay[K, V]) undo() map[K]V {
	if len(o.dirty) == 0 {
		return nil
	}
	out := make(map[K]V, len(o.dirty))
	for key := range o.dirty {
		if o.found[key] {
			out[key] = o.clone(o.orig[key])
		} else {
			var zero V
			out[key] = zero
		}
	}
	return out
}

// tx is a copy-on-read view over the store. Nothing reaches the store until
// commit, so a failed call leaves persisted state untouched.
type tx struct {
	store     Store
	pool      *PoolState
	poolOrig  *PoolState
	apps      *overlay[uint64, *LoanApplication]
	offers    *overlay[uint64, *LoanOffer]
	loans     *overlay[uint64, *Loan]
	details   *overlay[uint64, *LoanDetail]
	borrowers *overlay[common.Address, *BorrowerStats]
	lenders   *overlay[common.Address, *LenderPosition]
}

func newTx(store Store) *tx {
	return &tx{
		store:     store,
		apps:      newOverlay(store.GetApplication, (*LoanApplication).Clone),
		offers:    newOverlay(store.GetOffer, (*LoanOffer).Clone),
		loans:     newOverlay(store.GetLoan, (*Loan).Clone),
		details:   newOverlay(store.GetLoanDetail, (*LoanDetail).Clone),
		borrowers: newOverlay(store.GetBorrower, (*BorrowerStats).Clone),
		lenders:   newOverlay(store.GetLender, (*LenderPosition).Clone),
	}
}

// beginTx loads the pool record, failing when the pool was never
// bootstrapped.
func beginTx(store Store) (*tx, error) {
	if store == nil {
		return nil, errNilState
	}
	t := newTx(store)
	pool, ok, err := store.GetPool()
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return nil, errNotBootstrapped
	}
	t.poolOrig = pool.Clone()
	t.pool = pool.Clone()
	return t, nil
}

func (t *tx) application(id uint64) (*LoanApplication, error) {
	app, ok, err := t.apps.get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errApplicationNotFound
	}
	return app, nil
}

func (t *tx) offer(applicationID uint64) (*LoanOffer, bool, error) {
	return t.offers.get(applicationID)
}

func (t *tx) loan(id uint64) (*Loan, error) {
	loan, ok, err := t.loans.get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errLoanNotFound
	}
	return loan, nil
}

func (t *tx) loanDetail(id uint64) (*LoanDetail, error) {
	detail, ok, err := t.details.get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errLoanNotFound
	}
	return detail, nil
}

// borrower returns the borrower's statistics, creating an empty record on
// first use.
func (t *tx) borrower(addr common.Address) (*BorrowerStats, error) {
	stats, ok, err := t.borrowers.get(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		stats = (&BorrowerStats{Borrower: addr}).Clone()
	}
	return stats, nil
}

// lender returns the lender position, or an empty one.
func (t *tx) lender(addr common.Address) (*LenderPosition, error) {
	pos, ok, err := t.lenders.get(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		pos = (&LenderPosition{Address: addr}).Clone()
	}
	return pos, nil
}

func (t *tx) changeSet() *ChangeSet {
	cs := &ChangeSet{
		Applications: t.apps.writes(),
		Offers:       t.offers.writes(),
		Loans:        t.loans.writes(),
		LoanDetails:  t.details.writes(),
		Borrowers:    t.borrowers.writes(),
		Lenders:      t.lenders.writes(),
	}
	if t.pool != nil {
		cs.Pool = t.pool.Clone()
	}
	return cs
}

// revertSet restores every record written by changeSet.
func (t *tx) revertSet() *ChangeSet {
	return &ChangeSet{
		Pool:         t.poolOrig.Clone(),
		Applications: t.apps.undo(),
		Offers:       t.offers.undo(),
		Loans:        t.loans.undo(),
		LoanDetails:  t.details.undo(),
		Borrowers:    t.borrowers.undo(),
		Lenders:      t.lenders.undo(),
	}
}

func (t *tx) commit() error {
	return t.store.Apply(t.changeSet())
}

func (t *tx) rollback() error {
	return t.store.Apply(t.revertSet())
}

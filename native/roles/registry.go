package roles

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"lendpool/native/lending"
	"lendpool/storage"
)

var rolePrefix = []byte("roles/")

func roleKey(role lending.Role) []byte {
	return append(append([]byte(nil), rolePrefix...), role.String()...)
}

// Registry stores role membership as sorted RLP address lists and
// implements lending.AccessControl.
type Registry struct {
	mu sync.RWMutex
	db storage.Database
}

// NewRegistry wraps db.
func NewRegistry(db storage.Database) *Registry {
	return &Registry{db: db}
}

func (r *Registry) load(role lending.Role) ([]common.Address, error) {
	data, err := r.db.Get(roleKey(role))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var members []common.Address
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, fmt.Errorf("roles: decode %s: %w", role, err)
	}
	return members, nil
}

func (r *Registry) store(role lending.Role, members []common.Address) error {
	sort.Slice(members, func(i, j int) bool {
		return bytes.Compare(members[i][:], members[j][:]) < 0
	})
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return r.db.Put(roleKey(role), encoded)
}

// Grant adds addr to role. Granting an existing member is a no-op.
func (r *Registry) Grant(role lending.Role, addr common.Address) error {
	if role.String() == "unknown" {
		return fmt.Errorf("roles: unknown role %d", role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members, err := r.load(role)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m == addr {
			return nil
		}
	}
	return r.store(role, append(members, addr))
}

// Revoke removes addr from role.
func (r *Registry) Revoke(role lending.Role, addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, err := r.load(role)
	if err != nil {
		return err
	}
	kept := members[:0]
	for _, m := range members {
		if m != addr {
			kept = append(kept, m)
		}
	}
	return r.store(role, kept)
}

// Members returns every address holding role.
func (r *Registry) Members(role lending.Role) ([]common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load(role)
}

// HasRole reports whether actor holds role. Storage errors read as false.
func (r *Registry) HasRole(role lending.Role, actor common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, err := r.load(role)
	if err != nil {
		return false
	}
	for _, m := range members {
		if m == actor {
			return true
		}
	}
	return false
}

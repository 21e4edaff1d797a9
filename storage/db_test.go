package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	ldb, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	t.Cleanup(func() { _ = ldb.Close() })
	return map[string]Database{"memdb": NewMemDB(), "leveldb": ldb}
}

func TestDatabaseBasics(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := db.Put([]byte("k"), []byte("v")); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, err := db.Get([]byte("k"))
			if err != nil || string(got) != "v" {
				t.Fatalf("get = %q, %v", got, err)
			}
			if ok, _ := db.Has([]byte("k")); !ok {
				t.Fatalf("expected key to exist")
			}
			if err := db.Delete([]byte("k")); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if ok, _ := db.Has([]byte("k")); ok {
				t.Fatalf("expected key to be gone")
			}
		})
	}
}

func TestBatchAndPrefixScan(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := db.Put([]byte("loan/9"), []byte("stale")); err != nil {
				t.Fatalf("put: %v", err)
			}
			batch := db.NewBatch()
			batch.Put([]byte("loan/2"), []byte("b"))
			batch.Put([]byte("loan/1"), []byte("a"))
			batch.Put([]byte("offer/1"), []byte("o"))
			batch.Delete([]byte("loan/9"))
			if batch.Len() != 4 {
				t.Fatalf("batch len = %d", batch.Len())
			}
			if ok, _ := db.Has([]byte("loan/1")); ok {
				t.Fatalf("batch writes visible before Write")
			}
			if err := batch.Write(); err != nil {
				t.Fatalf("write: %v", err)
			}
			keys, err := db.Keys([]byte("loan/"))
			if err != nil {
				t.Fatalf("keys: %v", err)
			}
			if len(keys) != 2 || string(keys[0]) != "loan/1" || string(keys[1]) != "loan/2" {
				t.Fatalf("unexpected keys %q", keys)
			}
		})
	}
}

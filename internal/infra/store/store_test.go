package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/boddenberg/security-assessment-go/internal/infra/store"
	"github.com/boddenberg/security-assessment-go/internal/port"
)

// exerciseKVStore runs the port.KVStore contract against s.
func exerciseKVStore(t *testing.T, s port.KVStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, port.ErrKeyNotFound) {
		t.Fatalf("get missing: expected ErrKeyNotFound, got %v", err)
	}

	if err := s.Put(ctx, "draft-state:u1", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "draft-state:u1", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := s.Get(ctx, "draft-state:u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("expected overwritten value, got %s", got)
	}

	if err := s.PutIfAbsent(ctx, "completed-state:a1", []byte(`{"first":true}`)); err != nil {
		t.Fatalf("put-if-absent: %v", err)
	}
	if err := s.PutIfAbsent(ctx, "completed-state:a1", []byte(`{"first":false}`)); !errors.Is(err, port.ErrKeyExists) {
		t.Fatalf("second put-if-absent: expected ErrKeyExists, got %v", err)
	}
	got, _ = s.Get(ctx, "completed-state:a1")
	if string(got) != `{"first":true}` {
		t.Errorf("write-once value was replaced: %s", got)
	}

	if err := s.Delete(ctx, "draft-state:u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "draft-state:u1"); !errors.Is(err, port.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "draft-state:u1"); err != nil {
		t.Errorf("deleting an absent key should succeed, got %v", err)
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestMemory_Contract(t *testing.T) {
	exerciseKVStore(t, store.NewMemory())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	buf := []byte("abc")
	_ = s.Put(ctx, "k", buf)
	buf[0] = 'x'

	got, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("store kept a reference to the caller's buffer: %s", got)
	}
}

func TestSQLite_Contract(t *testing.T) {
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "data", "assessment.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	exerciseKVStore(t, s)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "assessment.db")

	s, err := store.NewSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := s.Put(ctx, "assessment-index", []byte(`[]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = s.Close(ctx)

	reopened, err := store.NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close(ctx) })

	got, err := reopened.Get(ctx, "assessment-index")
	if err != nil || string(got) != `[]` {
		t.Errorf("expected persisted value, got %q err=%v", got, err)
	}
}

func TestSQLite_InMemory(t *testing.T) {
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	exerciseKVStore(t, s)
}

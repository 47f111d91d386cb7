package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"entity-store/core"
	"entity-store/stores/storetest"
)

func openTestDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "records.db")
}

func TestRecordStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.RecordStore {
		db, err := Open(openTestDB(t))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { db.Close() })
		return NewRecordStore(db, "ben10")
	})
}

func TestCollectionsShareTable(t *testing.T) {
	db, err := Open(openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	characters := NewRecordStore(db, "ben10")
	superheroes := NewRecordStore(db, "superheroes")
	ctx := context.Background()

	created, err := characters.Insert(ctx, &core.Record{Fields: map[string]string{"characterName": "Ben"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := superheroes.Insert(ctx, &core.Record{Fields: map[string]string{"superheroName": "Batman"}}); err != nil {
		t.Fatal(err)
	}

	if _, err := superheroes.FindID(ctx, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("record leaked across collections: %v", err)
	}
	records, err := characters.FindAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != created.ID {
		t.Errorf("characters = %v", records)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := openTestDB(t)
	for i := 0; i < 2; i++ {
		db, err := Open(path)
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		db.Close()
	}
}

func TestMemoryDatabase(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	store := NewRecordStore(db, "superheroes")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Insert(ctx, &core.Record{Fields: map[string]string{"superheroName": "Flash"}}); err != nil {
				errs <- err
				return
			}
			if _, err := store.FindAll(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	records, err := store.FindAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 8 {
		t.Errorf("got %d records, want 8", len(records))
	}
	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestIsMemoryDSN(t *testing.T) {
	tests := map[string]bool{
		":memory:":                    true,
		":memory:?_busy_timeout=5000": true,
		"file::memory:?cache=shared":  true,
		"file:test.db?mode=memory":    true,
		"./entity-store.db":           false,
		"/var/lib/records.db?_fk=1":   false,
	}
	for dsn, want := range tests {
		if got := isMemoryDSN(dsn); got != want {
			t.Errorf("isMemoryDSN(%q) = %v, want %v", dsn, got, want)
		}
	}
}

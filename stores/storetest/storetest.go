// Package storetest holds the behaviour every core.RecordStore backend must
// share.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"entity-store/core"
)

// Run exercises a fresh store returned by newStore in each subtest.
func Run(t *testing.T, newStore func(t *testing.T) core.RecordStore) {
	t.Run("InsertAssignsID", func(t *testing.T) { testInsert(t, newStore(t)) })
	t.Run("FindID", func(t *testing.T) { testFindID(t, newStore(t)) })
	t.Run("FindAllOrder", func(t *testing.T) { testFindAll(t, newStore(t)) })
	t.Run("UpdatePartial", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("UnknownID", func(t *testing.T) { testUnknownID(t, newStore(t)) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
}

func character(name string) *core.Record {
	return &core.Record{
		Fields: map[string]string{"characterName": name, "characterDescription": "Hero"},
		Attachment: &core.Attachment{
			Data:        []byte{0x89, 'P', 'N', 'G', 0x00, 0x01},
			ContentType: "image/png",
		},
	}
}

func mustInsert(t *testing.T, store core.RecordStore, record *core.Record) *core.Record {
	t.Helper()
	created, err := store.Insert(context.Background(), record)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return created
}

func testInsert(t *testing.T, store core.RecordStore) {
	input := character("Ben Tennyson")
	created := mustInsert(t, store, input)

	if !core.ValidID(created.ID) {
		t.Errorf("id %q is not valid", created.ID)
	}
	if input.ID != "" {
		t.Errorf("Insert mutated its input")
	}
	if created.Fields["characterName"] != "Ben Tennyson" {
		t.Errorf("fields = %v", created.Fields)
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", created.CreatedAt, created.UpdatedAt)
	}
}

func testFindID(t *testing.T, store core.RecordStore) {
	created := mustInsert(t, store, character("Gwen"))
	plain := mustInsert(t, store, &core.Record{Fields: map[string]string{"characterName": "Kevin"}})

	found, err := store.FindID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("FindID: %v", err)
	}
	if found.ID != created.ID || found.Fields["characterName"] != "Gwen" {
		t.Errorf("found = %+v", found)
	}
	if found.Attachment == nil {
		t.Fatalf("attachment lost")
	}
	if !bytes.Equal(found.Attachment.Data, created.Attachment.Data) || found.Attachment.ContentType != "image/png" {
		t.Errorf("attachment = %+v", found.Attachment)
	}
	if !found.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("createdAt = %v, want %v", found.CreatedAt, created.CreatedAt)
	}

	found, err = store.FindID(context.Background(), plain.ID)
	if err != nil {
		t.Fatalf("FindID: %v", err)
	}
	if found.Attachment != nil {
		t.Errorf("record without attachment came back with %+v", found.Attachment)
	}
}

func testFindAll(t *testing.T, store core.RecordStore) {
	records, err := store.FindAll(context.Background())
	if err != nil {
		t.Fatalf("FindAll on empty store: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("empty store returned %v", records)
	}

	names := []string{"Ben", "Gwen", "Kevin", "Max"}
	for _, name := range names {
		mustInsert(t, store, character(name))
	}
	records, err = store.FindAll(context.Background())
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(records) != len(names) {
		t.Fatalf("got %d records, want %d", len(records), len(names))
	}
	for i, name := range names {
		if records[i].Fields["characterName"] != name {
			t.Errorf("records[%d] = %s, want %s", i, records[i].Fields["characterName"], name)
		}
	}
}

func testUpdate(t *testing.T, store core.RecordStore) {
	ctx := context.Background()
	created := mustInsert(t, store, character("Ben"))

	updated, err := store.Update(ctx, created.ID, &core.Patch{Fields: map[string]string{"characterDescription": "Alien hero"}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Fields["characterName"] != "Ben" || updated.Fields["characterDescription"] != "Alien hero" {
		t.Errorf("fields = %v", updated.Fields)
	}
	if updated.Attachment == nil || !bytes.Equal(updated.Attachment.Data, created.Attachment.Data) {
		t.Errorf("attachment changed without upload")
	}
	if updated.UpdatedAt.Before(created.UpdatedAt) {
		t.Errorf("updatedAt went backwards")
	}

	replacement := &core.Attachment{Data: []byte("GIF89a"), ContentType: "image/gif"}
	if _, err := store.Update(ctx, created.ID, &core.Patch{Attachment: replacement}); err != nil {
		t.Fatalf("Update attachment: %v", err)
	}
	found, err := store.FindID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindID: %v", err)
	}
	if found.Attachment == nil || string(found.Attachment.Data) != "GIF89a" || found.Attachment.ContentType != "image/gif" {
		t.Errorf("attachment = %+v", found.Attachment)
	}
	if found.Fields["characterDescription"] != "Alien hero" {
		t.Errorf("update not persisted: %v", found.Fields)
	}
}

func testDelete(t *testing.T, store core.RecordStore) {
	ctx := context.Background()
	created := mustInsert(t, store, character("Ben"))
	kept := mustInsert(t, store, character("Gwen"))

	deleted, err := store.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted.ID != created.ID || deleted.Fields["characterName"] != "Ben" {
		t.Errorf("deleted = %+v", deleted)
	}
	if _, err := store.FindID(ctx, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindID after delete: %v", err)
	}
	if _, err := store.Delete(ctx, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete: %v", err)
	}

	records, err := store.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(records) != 1 || records[0].ID != kept.ID {
		t.Errorf("remaining = %v", records)
	}
}

func testUnknownID(t *testing.T, store core.RecordStore) {
	ctx := context.Background()
	id := core.NewID()
	if _, err := store.FindID(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindID: %v", err)
	}
	if _, err := store.Update(ctx, id, &core.Patch{Fields: map[string]string{"characterName": "x"}}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Update: %v", err)
	}
	if _, err := store.Delete(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Delete: %v", err)
	}
}

func testConcurrentUpdates(t *testing.T, store core.RecordStore) {
	ctx := context.Background()
	created := mustInsert(t, store, character("Ben"))

	fields := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	errs := make(chan error, len(fields))
	for _, field := range fields {
		wg.Add(1)
		go func(field string) {
			defer wg.Done()
			_, err := store.Update(ctx, created.ID, &core.Patch{Fields: map[string]string{field: field}})
			errs <- err
		}(field)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	found, err := store.FindID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindID: %v", err)
	}
	for _, field := range fields {
		if found.Fields[field] != field {
			t.Errorf("field %s lost: %v", field, found.Fields)
		}
	}
}

package memory

import (
	"context"
	"entity-store/core"
	"sort"
	"sync"
	"time"
)

type recordStore struct {
	mu      sync.RWMutex
	records map[string]*core.Record
}

func NewRecordStore() core.RecordStore {
	return &recordStore{records: make(map[string]*core.Record)}
}

func (s *recordStore) Insert(ctx context.Context, record *core.Record) (*core.Record, error) {
	stored := record.Clone()
	stored.ID = core.NewID()
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt

	s.mu.Lock()
	s.records[stored.ID] = stored
	s.mu.Unlock()
	return stored.Clone(), nil
}

func (s *recordStore) FindAll(ctx context.Context) ([]*core.Record, error) {
	s.mu.RLock()
	records := make([]*core.Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (s *recordStore) FindID(ctx context.Context, id string) (*core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[id]; ok {
		return record.Clone(), nil
	}
	return nil, core.NotFound(id)
}

func (s *recordStore) Update(ctx context.Context, id string, patch *core.Patch) (*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, core.NotFound(id)
	}
	record.Apply(patch, time.Now().UTC())
	return record.Clone(), nil
}

func (s *recordStore) Delete(ctx context.Context, id string) (*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, core.NotFound(id)
	}
	delete(s.records, id)
	return record, nil
}

package filesystem

import (
	"context"
	"entity-store/core"
	"entity-store/stores/codec"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const extension = ".json"

type recordStore struct {
	mu       sync.Mutex
	basePath string // Directory holding one file per record.
}

func NewRecordStore(basePath, collection string) (core.RecordStore, error) {
	dir := filepath.Join(basePath, collection)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create collection directory: %w", err)
	}
	return &recordStore{basePath: dir}, nil
}

func (s *recordStore) path(id string) string {
	return filepath.Join(s.basePath, id+extension)
}

func (s *recordStore) Insert(ctx context.Context, record *core.Record) (*core.Record, error) {
	stored := record.Clone()
	stored.ID = core.NewID()
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	log := logrus.WithFields(logrus.Fields{
		"record_id": stored.ID,
		"file_path": s.path(stored.ID),
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(stored); err != nil {
		log.WithField("error", err).Error("Failed to create record")
		return nil, err
	}
	log.Debug("Record created")
	return stored, nil
}

func (s *recordStore) FindAll(ctx context.Context) ([]*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// ReadDir sorts by name, and names are creation-ordered ids.
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	records := make([]*core.Record, 0, len(entries))
	for _, entry := range entries {
		id, ok := strings.CutSuffix(entry.Name(), extension)
		if entry.IsDir() || !ok || !core.ValidID(id) {
			continue
		}
		record, err := s.read(id)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *recordStore) FindID(ctx context.Context, id string) (*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

func (s *recordStore) Update(ctx context.Context, id string, patch *core.Patch) (*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, err := s.read(id)
	if err != nil {
		return nil, err
	}
	record.Apply(patch, time.Now().UTC())
	if err := s.write(record); err != nil {
		logrus.WithFields(logrus.Fields{"record_id": id, "error": err}).Error("Failed to update record")
		return nil, err
	}
	return record, nil
}

func (s *recordStore) Delete(ctx context.Context, id string) (*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(s.path(id)); err != nil {
		return nil, fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return record, nil
}

func (s *recordStore) read(id string) (*core.Record, error) {
	if !core.ValidID(id) {
		return nil, core.NotFound(id)
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NotFound(id)
		}
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	record, err := codec.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("malformed record %s: %w", id, err)
	}
	return record, nil
}

// write replaces the record file atomically.
func (s *recordStore) write(record *core.Record) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(record.ID))
}

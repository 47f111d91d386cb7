package sqlite

import (
	"context"
	"database/sql"
	"entity-store/core"
	"entity-store/stores/codec"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	collection   TEXT NOT NULL,
	id           TEXT NOT NULL,
	fields       TEXT NOT NULL,
	attachment   BLOB,
	content_type TEXT,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);`

const columns = `id, fields, attachment, content_type, created_at, updated_at`

// Open opens the database at dataSourceName and creates the records table.
// In-memory databases are confined to a single connection, since every
// connection to :memory: opens a database of its own.
func Open(dataSourceName string) (*sql.DB, error) {
	inMemory := isMemoryDSN(dataSourceName)
	if !strings.Contains(dataSourceName, "?") {
		dataSourceName += "?_busy_timeout=5000&_txlock=immediate"
	}
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}
	return db, nil
}

func isMemoryDSN(dataSourceName string) bool {
	path, _, _ := strings.Cut(dataSourceName, "?")
	return path == ":memory:" || path == "file::memory:" || strings.Contains(dataSourceName, "mode=memory")
}

type recordStore struct {
	db         *sql.DB
	collection string
}

func NewRecordStore(db *sql.DB, collection string) core.RecordStore {
	return &recordStore{db: db, collection: collection}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*core.Record, error) {
	var (
		record               core.Record
		fields               string
		attachment           []byte
		contentType          sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&record.ID, &fields, &attachment, &contentType, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if record.Fields, err = codec.UnmarshalFields([]byte(fields)); err != nil {
		return nil, fmt.Errorf("malformed fields of record %s: %w", record.ID, err)
	}
	if contentType.Valid {
		record.Attachment = &core.Attachment{Data: attachment, ContentType: contentType.String}
	}
	if record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &record, nil
}

func attachmentColumns(a *core.Attachment) ([]byte, sql.NullString) {
	if a == nil {
		return nil, sql.NullString{}
	}
	return a.Data, sql.NullString{String: a.ContentType, Valid: true}
}

func (s *recordStore) Insert(ctx context.Context, record *core.Record) (*core.Record, error) {
	stored := record.Clone()
	stored.ID = core.NewID()
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	log := logrus.WithFields(logrus.Fields{
		"collection": s.collection,
		"record_id":  stored.ID,
	})

	fields, err := codec.MarshalFields(stored.Fields)
	if err != nil {
		return nil, err
	}
	data, contentType := attachmentColumns(stored.Attachment)
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO records (collection, "+columns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.collection, stored.ID, string(fields), data, contentType,
		stored.CreatedAt.Format(time.RFC3339Nano), stored.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		log.WithField("error", err).Error("Failed to create record")
		return nil, err
	}
	log.WithField("attachment_length", len(data)).Debug("Record created")
	return stored, nil
}

func (s *recordStore) FindAll(ctx context.Context) ([]*core.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+columns+" FROM records WHERE collection = ? ORDER BY id", s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*core.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *recordStore) FindID(ctx context.Context, id string) (*core.Record, error) {
	record, err := scanRecord(s.db.QueryRowContext(ctx,
		"SELECT "+columns+" FROM records WHERE collection = ? AND id = ?", s.collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFound(id)
	}
	return record, err
}

func (s *recordStore) Update(ctx context.Context, id string, patch *core.Patch) (*core.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	record, err := scanRecord(tx.QueryRowContext(ctx,
		"SELECT "+columns+" FROM records WHERE collection = ? AND id = ?", s.collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFound(id)
	}
	if err != nil {
		return nil, err
	}

	record.Apply(patch, time.Now().UTC())
	fields, err := codec.MarshalFields(record.Fields)
	if err != nil {
		return nil, err
	}
	data, contentType := attachmentColumns(record.Attachment)
	_, err = tx.ExecContext(ctx,
		"UPDATE records SET fields = ?, attachment = ?, content_type = ?, updated_at = ? WHERE collection = ? AND id = ?",
		string(fields), data, contentType, record.UpdatedAt.Format(time.RFC3339Nano), s.collection, id)
	if err != nil {
		logrus.WithFields(logrus.Fields{"collection": s.collection, "record_id": id, "error": err}).Error("Failed to update record")
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *recordStore) Delete(ctx context.Context, id string) (*core.Record, error) {
	record, err := scanRecord(s.db.QueryRowContext(ctx,
		"DELETE FROM records WHERE collection = ? AND id = ? RETURNING "+columns, s.collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFound(id)
	}
	return record, err
}

package postgres

import (
	"context"
	"entity-store/core"
	"entity-store/stores/codec"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	collection   TEXT NOT NULL,
	id           TEXT NOT NULL,
	fields       JSONB NOT NULL,
	attachment   BYTEA,
	content_type TEXT,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (collection, id)
);`

const columns = `id, fields, attachment, content_type, created_at, updated_at`

// Open connects to databaseURL and creates the records table.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}
	return pool, nil
}

type recordStore struct {
	pool       *pgxpool.Pool
	collection string
}

func NewRecordStore(pool *pgxpool.Pool, collection string) core.RecordStore {
	return &recordStore{pool: pool, collection: collection}
}

func scanRecord(row pgx.Row) (*core.Record, error) {
	var (
		record      core.Record
		fields      []byte
		attachment  []byte
		contentType *string
	)
	err := row.Scan(&record.ID, &fields, &attachment, &contentType, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if record.Fields, err = codec.UnmarshalFields(fields); err != nil {
		return nil, fmt.Errorf("malformed fields of record %s: %w", record.ID, err)
	}
	if contentType != nil {
		record.Attachment = &core.Attachment{Data: attachment, ContentType: *contentType}
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return &record, nil
}

func attachmentColumns(a *core.Attachment) ([]byte, *string) {
	if a == nil {
		return nil, nil
	}
	return a.Data, &a.ContentType
}

func (s *recordStore) Insert(ctx context.Context, record *core.Record) (*core.Record, error) {
	stored := record.Clone()
	stored.ID = core.NewID()
	// Postgres keeps microseconds.
	stored.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	stored.UpdatedAt = stored.CreatedAt

	fields, err := codec.MarshalFields(stored.Fields)
	if err != nil {
		return nil, err
	}
	data, contentType := attachmentColumns(stored.Attachment)
	_, err = s.pool.Exec(ctx,
		"INSERT INTO records (collection, "+columns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		s.collection, stored.ID, fields, data, contentType, stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"collection": s.collection,
			"record_id":  stored.ID,
			"error":      err,
		}).Error("Failed to create record")
		return nil, err
	}
	return stored, nil
}

func (s *recordStore) FindAll(ctx context.Context) ([]*core.Record, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+columns+" FROM records WHERE collection = $1 ORDER BY id", s.collection)
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
	record, err := scanRecord(s.pool.QueryRow(ctx,
		"SELECT "+columns+" FROM records WHERE collection = $1 AND id = $2", s.collection, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFound(id)
	}
	return record, err
}

func (s *recordStore) Update(ctx context.Context, id string, patch *core.Patch) (*core.Record, error) {
	var record *core.Record
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		record, err = scanRecord(tx.QueryRow(ctx,
			"SELECT "+columns+" FROM records WHERE collection = $1 AND id = $2 FOR UPDATE", s.collection, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return core.NotFound(id)
		}
		if err != nil {
			return err
		}

		record.Apply(patch, time.Now().UTC().Truncate(time.Microsecond))
		fields, err := codec.MarshalFields(record.Fields)
		if err != nil {
			return err
		}
		data, contentType := attachmentColumns(record.Attachment)
		_, err = tx.Exec(ctx,
			"UPDATE records SET fields = $1, attachment = $2, content_type = $3, updated_at = $4 WHERE collection = $5 AND id = $6",
			fields, data, contentType, record.UpdatedAt, s.collection, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *recordStore) Delete(ctx context.Context, id string) (*core.Record, error) {
	record, err := scanRecord(s.pool.QueryRow(ctx,
		"DELETE FROM records WHERE collection = $1 AND id = $2 RETURNING "+columns, s.collection, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFound(id)
	}
	return record, err
}

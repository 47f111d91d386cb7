package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

type (
	// Attachment is a binary payload stored inline with a record.
	Attachment struct {
		Data        []byte
		ContentType string
	}

	Record struct {
		ID         string
		Fields     map[string]string
		Attachment *Attachment
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// Patch is a partial update. Fields overwrite per key, a nil Attachment
	// keeps the stored one.
	Patch struct {
		Fields     map[string]string
		Attachment *Attachment
	}

	RecordStore interface {
		Insert(ctx context.Context, record *Record) (*Record, error)
		FindAll(ctx context.Context) ([]*Record, error)
		FindID(ctx context.Context, id string) (*Record, error)
		Update(ctx context.Context, id string, patch *Patch) (*Record, error)
		Delete(ctx context.Context, id string) (*Record, error)
	}
)

var ErrNotFound = errors.New("record not found")

// NotFound returns an error wrapping ErrNotFound for the given id.
func NotFound(id string) error {
	return fmt.Errorf("record with id %s: %w", id, ErrNotFound)
}

// NewID returns a fresh identifier. Identifiers sort in creation order.
func NewID() string {
	return ulid.Make().String()
}

// ValidID reports whether id could have been produced by NewID.
func ValidID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.Fields = make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	if r.Attachment != nil {
		c.Attachment = r.Attachment.Clone()
	}
	return &c
}

// Apply merges p into r and stamps the update time.
func (r *Record) Apply(p *Patch, now time.Time) {
	if r.Fields == nil {
		r.Fields = make(map[string]string, len(p.Fields))
	}
	for k, v := range p.Fields {
		r.Fields[k] = v
	}
	if p.Attachment != nil {
		r.Attachment = p.Attachment.Clone()
	}
	r.UpdatedAt = now
}

func (a *Attachment) Clone() *Attachment {
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Attachment{Data: data, ContentType: a.ContentType}
}

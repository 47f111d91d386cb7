// Package codec is the JSON document layout shared by the backends that
// persist a record as a single blob.
package codec

import (
	"time"

	"entity-store/core"

	json "github.com/goccy/go-json"
)

type (
	document struct {
		ID         string            `json:"id"`
		Fields     map[string]string `json:"fields"`
		Attachment *attachment       `json:"attachment,omitempty"`
		CreatedAt  time.Time         `json:"createdAt"`
		UpdatedAt  time.Time         `json:"updatedAt"`
	}

	attachment struct {
		Data        []byte `json:"data"`
		ContentType string `json:"contentType"`
	}
)

func Marshal(record *core.Record) ([]byte, error) {
	doc := document{
		ID:        record.ID,
		Fields:    record.Fields,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if record.Attachment != nil {
		doc.Attachment = &attachment{
			Data:        record.Attachment.Data,
			ContentType: record.Attachment.ContentType,
		}
	}
	return json.Marshal(doc)
}

func Unmarshal(data []byte) (*core.Record, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	record := &core.Record{
		ID:        doc.ID,
		Fields:    doc.Fields,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if record.Fields == nil {
		record.Fields = map[string]string{}
	}
	if doc.Attachment != nil {
		record.Attachment = &core.Attachment{
			Data:        doc.Attachment.Data,
			ContentType: doc.Attachment.ContentType,
		}
	}
	return record, nil
}

// MarshalFields encodes only the scalar fields, for backends that keep the
// attachment in its own column.
func MarshalFields(fields map[string]string) ([]byte, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	return json.Marshal(fields)
}

func UnmarshalFields(data []byte) (map[string]string, error) {
	fields := map[string]string{}
	if len(data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

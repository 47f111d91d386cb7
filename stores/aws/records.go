package aws

import (
	"bytes"
	"context"
	"entity-store/core"
	"entity-store/stores/codec"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

// API is the subset of the S3 client the store uses.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// NewClient builds an S3 client from the default credential chain. A
// non-empty endpoint targets an S3-compatible service with path-style
// addressing.
func NewClient(ctx context.Context, endpoint string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

type recordStore struct {
	// mu serialises read-modify-write cycles from this process; S3 itself
	// offers no conditional replace here.
	mu       sync.Mutex
	s3Client API
	bucket   string // Name of the S3 bucket
	prefix   string
}

func NewRecordStore(client API, bucketName, collection string) core.RecordStore {
	return &recordStore{
		s3Client: client,
		bucket:   bucketName,
		prefix:   collection + "/",
	}
}

func (s *recordStore) key(id string) string {
	return s.prefix + id + ".json"
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func (s *recordStore) Insert(ctx context.Context, record *core.Record) (*core.Record, error) {
	stored := record.Clone()
	stored.ID = core.NewID()
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt

	if err := s.put(ctx, stored); err != nil {
		logrus.WithFields(logrus.Fields{
			"bucket":    s.bucket,
			"record_id": stored.ID,
			"error":     err,
		}).Error("Failed to create record")
		return nil, err
	}
	return stored, nil
}

func (s *recordStore) FindAll(ctx context.Context) ([]*core.Record, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list records: %w", err)
		}
		for _, object := range page.Contents {
			keys = append(keys, aws.ToString(object.Key))
		}
	}
	sort.Strings(keys)

	records := make([]*core.Record, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimSuffix(strings.TrimPrefix(key, s.prefix), ".json")
		if !core.ValidID(id) {
			continue
		}
		record, err := s.get(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			// Deleted between list and get.
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *recordStore) FindID(ctx context.Context, id string) (*core.Record, error) {
	return s.get(ctx, id)
}

func (s *recordStore) Update(ctx context.Context, id string, patch *core.Patch) (*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	record.Apply(patch, time.Now().UTC())
	if err := s.put(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *recordStore) Delete(ctx context.Context, id string) (*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return record, nil
}

func (s *recordStore) get(ctx context.Context, id string) (*core.Record, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, core.NotFound(id)
		}
		return nil, fmt.Errorf("failed to get record with id %s: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read record data: %w", err)
	}
	return codec.Unmarshal(data)
}

func (s *recordStore) put(ctx context.Context, record *core.Record) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return err
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(record.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload record: %w", err)
	}
	return nil
}

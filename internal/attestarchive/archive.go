// Package attestarchive keeps a durable copy of every verified maintainer
// authorization before it takes effect, keyed by bounty ID. The archive is
// the audit trail for closes: the engine refuses to close a bounty it could
// not archive.
package attestarchive

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const (
	DriverS3     = "s3"
	DriverMemory = "memory"

	defaultMaxGetSize int64 = 1 << 20
)

var (
	ErrInvalidConfig = errors.New("attestarchive: invalid config")
	ErrNotFound      = errors.New("attestarchive: not found")
	ErrTooLarge      = errors.New("attestarchive: authorization too large")
)

// Record is one archived authorization.
type Record struct {
	ID         [32]byte
	Payload    []byte
	ArchivedAt time.Time
}

// Store persists authorizations durably. Put overwrites: re-archiving the
// same bounty ID replaces the record, which only happens on engine retries
// of the same verified claim.
type Store interface {
	PutAuthorization(ctx context.Context, id [32]byte, payload []byte) error
	GetAuthorization(ctx context.Context, id [32]byte) (Record, error)
	HasAuthorization(ctx context.Context, id [32]byte) (bool, error)
}

// S3Client is the slice of the AWS SDK the archive needs.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type Config struct {
	Driver string
	Prefix string

	// MaxGetSize bounds bytes returned by GetAuthorization. Defaults to
	// 1 MiB when <= 0.
	MaxGetSize int64

	// S3 fields.
	Bucket   string
	S3Client S3Client
}

func New(cfg Config) (Store, error) {
	switch normalizeDriver(cfg.Driver) {
	case DriverMemory:
		return newMemoryStore(), nil
	case DriverS3:
		return newS3Store(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

func normalizeDriver(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return DriverS3
	}
	return v
}

func objectKey(prefix string, id [32]byte) string {
	key := "authorizations/" + hex.EncodeToString(id[:]) + ".json"
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	return strings.Trim(prefix, "/")
}

type memoryStore struct {
	mu      sync.RWMutex
	records map[[32]byte]Record
}

func newMemoryStore() Store {
	return &memoryStore{records: make(map[[32]byte]Record)}
}

func (m *memoryStore) PutAuthorization(_ context.Context, id [32]byte, payload []byte) error {
	m.mu.Lock()
	m.records[id] = Record{
		ID:         id,
		Payload:    append([]byte(nil), payload...),
		ArchivedAt: time.Now().UTC(),
	}
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) GetAuthorization(_ context.Context, id [32]byte) (Record, error) {
	m.mu.RLock()
	rec, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return Record{}, fmt.Errorf("%w: %x", ErrNotFound, id)
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	return rec, nil
}

func (m *memoryStore) HasAuthorization(_ context.Context, id [32]byte) (bool, error) {
	m.mu.RLock()
	_, ok := m.records[id]
	m.mu.RUnlock()
	return ok, nil
}

type s3Store struct {
	client     S3Client
	bucket     string
	prefix     string
	maxGetSize int64
}

func newS3Store(cfg Config) (Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", ErrInvalidConfig)
	}
	if cfg.S3Client == nil {
		return nil, fmt.Errorf("%w: s3 client is required", ErrInvalidConfig)
	}

	maxGet := cfg.MaxGetSize
	if maxGet <= 0 {
		maxGet = defaultMaxGetSize
	}

	return &s3Store{
		client:     cfg.S3Client,
		bucket:     bucket,
		prefix:     normalizePrefix(cfg.Prefix),
		maxGetSize: maxGet,
	}, nil
}

func (s *s3Store) PutAuthorization(ctx context.Context, id [32]byte, payload []byte) error {
	key := objectKey(s.prefix, id)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("attestarchive/s3: put %q: %w", key, err)
	}
	return nil
}

func (s *s3Store) GetAuthorization(ctx context.Context, id [32]byte) (Record, error) {
	key := objectKey(s.prefix, id)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return Record{}, fmt.Errorf("%w: %x", ErrNotFound, id)
		}
		return Record{}, fmt.Errorf("attestarchive/s3: get %q: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	limited := io.LimitReader(out.Body, s.maxGetSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return Record{}, fmt.Errorf("attestarchive/s3: read %q: %w", key, err)
	}
	if int64(len(data)) > s.maxGetSize {
		return Record{}, fmt.Errorf("%w: %x exceeds max %d bytes", ErrTooLarge, id, s.maxGetSize)
	}

	return Record{
		ID:         id,
		Payload:    data,
		ArchivedAt: aws.ToTime(out.LastModified),
	}, nil
}

func (s *s3Store) HasAuthorization(ctx context.Context, id [32]byte) (bool, error) {
	key := objectKey(s.prefix, id)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("attestarchive/s3: head %q: %w", key, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "404":
		return true
	default:
		return false
	}
}

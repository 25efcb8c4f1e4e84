package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver stores immutable JSON documents such as signed resolution attestations.
type Archiver interface {
	Put(ctx context.Context, key string, body []byte) error
}

// ResolutionKey is the object key of one attestation, relative to the archive prefix.
func ResolutionKey(marketID string, at time.Time) string {
	return path.Join("resolutions", marketID, fmt.Sprintf("%d.json", at.UnixMilli()))
}

type Nop struct{}

func (Nop) Put(context.Context, string, []byte) error { return nil }

type S3Config struct {
	Bucket       string
	Region       string
	Prefix       string
	Endpoint     string
	UsePathStyle bool
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
}

func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3Archiver(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Archiver(client objectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (a *S3Archiver) Put(ctx context.Context, key string, body []byte) error {
	full := key
	if a.prefix != "" {
		full = path.Join(a.prefix, key)
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, full, err)
	}
	return nil
}

// Memory keeps archived documents in process; used when no bucket is configured and in tests.
type Memory struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{items: map[string][]byte{}}
}

func (m *Memory) Put(_ context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = append([]byte(nil), body...)
	return nil
}

func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.items[key]
	return body, ok
}

func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.items))
	for k := range m.items {
		out = append(out, k)
	}
	return out
}

package deadletters3

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"minisiem/pkg/models"
)

// Config configures the S3 dead letter archive.
type Config struct {
	Region  string
	Bucket  string
	Prefix  string
	Timeout time.Duration
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Writer uploads each dropped batch as one gzip JSONL object.
type Writer struct {
	cfg    Config
	client putObjectAPI
	seq    uint64
	now    func() time.Time
}

// NewWriter loads the default AWS credential chain and creates an S3 client.
func NewWriter(ctx context.Context, cfg Config) (*Writer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is empty")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newWriter(cfg, s3.NewFromConfig(awsCfg)), nil
}

func newWriter(cfg Config, client putObjectAPI) *Writer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Writer{cfg: cfg, client: client, now: time.Now}
}

// Archive uploads the batch. The object is not retried; the caller has
// already given the batch up.
func (w *Writer) Archive(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	body, err := encodeGzipJSONL(events)
	if err != nil {
		return err
	}
	key := w.objectKey(w.now().UTC(), atomic.AddUint64(&w.seq, 1))

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()
	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(w.cfg.Bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentLength:   aws.Int64(int64(len(body))),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", w.cfg.Bucket, key, err)
	}
	return nil
}

func (w *Writer) objectKey(ts time.Time, seq uint64) string {
	name := fmt.Sprintf("dropped-%d-%06d.jsonl.gz", ts.UnixNano(), seq)
	key := fmt.Sprintf("dt=%s/hr=%s/%s", ts.Format("2006-01-02"), ts.Format("15"), name)
	if w.cfg.Prefix == "" {
		return key
	}
	return w.cfg.Prefix + "/" + key
}

func encodeGzipJSONL(events []models.Event) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(gz)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			gz.Close()
			return nil, fmt.Errorf("failed to encode dead letter: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close is a no-op; the S3 client holds no resources that need releasing.
func (w *Writer) Close() error {
	return nil
}

package archive

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/ignite/attendee-import/internal/config"
)

// Archiver stores raw uploaded files in S3 so a finished import can be
// audited or replayed. A nil Archiver (no bucket configured) disables
// archival.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// New creates an Archiver, or nil when no bucket is configured.
func New(ctx context.Context, cfg appconfig.ArchiveConfig) (*Archiver, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Archiver{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
	}, nil
}

// Store uploads the raw file content under the session's key. Failures are
// logged by callers and never fail the import itself.
func (a *Archiver) Store(ctx context.Context, sessionID, filename string, content []byte) (string, error) {
	if a == nil {
		return "", nil
	}

	key := path.Join(a.prefix, time.Now().UTC().Format("2006/01/02"), sessionID, filename)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("archiving upload to s3://%s/%s: %w", a.bucket, key, err)
	}

	log.Printf("[Archive] Stored upload at s3://%s/%s (%d bytes)", a.bucket, key, len(content))
	return key, nil
}

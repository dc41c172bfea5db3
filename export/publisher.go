package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the part of the S3 client the publisher uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads finished artifacts to s3://bucket/prefix/runID/.
type Publisher struct {
	client ObjectPutter
	bucket string
	prefix string
}

func NewPublisher(client ObjectPutter, bucket, prefix string) *Publisher {
	return &Publisher{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Publisher builds a Publisher from the default AWS credential chain.
func NewS3Publisher(ctx context.Context, bucket, prefix string) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewPublisher(s3.NewFromConfig(awsCfg), bucket, prefix), nil
}

// Key returns the object key for a local artifact.
func (p *Publisher) Key(runID, localPath string) string {
	return path.Join(p.prefix, runID, filepath.Base(localPath))
}

// Publish uploads each file. It stops at the first failure and returns the keys
// uploaded so far.
func (p *Publisher) Publish(ctx context.Context, runID string, files ...string) ([]string, error) {
	var keys []string
	for _, f := range files {
		key := p.Key(runID, f)
		if err := p.put(ctx, f, key); err != nil {
			return keys, err
		}
		slog.Info("export: published artifact", "bucket", p.bucket, "key", key)
		keys = append(keys, key)
	}
	return keys, nil
}

func (p *Publisher) put(ctx context.Context, file, key string) error {
	fh, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s for upload: %w", file, err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", file, err)
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          fh,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", file, p.bucket, key, err)
	}
	return nil
}

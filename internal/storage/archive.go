// Package storage archives raw statement files to S3-compatible object
// storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bank-reconciliation-backend/internal/config"
)

// StatementArchive stores the raw bytes of an imported statement and returns
// the object key.
type StatementArchive interface {
	Store(ctx context.Context, accountID, batchID uuid.UUID, fileName string, content []byte) (string, error)
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type S3Archive struct {
	uploader uploader
	bucket   string
	prefix   string
	now      func() time.Time
	log      zerolog.Logger
}

// NewS3Archive builds an archive for cfg. Static credentials are used when
// given, otherwise the default AWS credential chain.
func NewS3Archive(ctx context.Context, cfg config.ArchiveConfig, log zerolog.Logger) (*S3Archive, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Archive(manager.NewUploader(client), cfg.Bucket, cfg.Prefix, log), nil
}

func newS3Archive(up uploader, bucket, prefix string, log zerolog.Logger) *S3Archive {
	return &S3Archive{
		uploader: up,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		now:      time.Now,
		log:      log.With().Str("component", "statement_archive").Logger(),
	}
}

// Key builds prefix/<account>/<yyyy>/<mm>/<batch>-<file>.
func (a *S3Archive) Key(accountID, batchID uuid.UUID, fileName string) string {
	now := a.now().UTC()
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" {
		name = "statement"
	}
	return path.Join(a.prefix, accountID.String(), now.Format("2006"), now.Format("01"), batchID.String()+"-"+name)
}

func (a *S3Archive) Store(ctx context.Context, accountID, batchID uuid.UUID, fileName string, content []byte) (string, error) {
	key := a.Key(accountID, batchID, fileName)
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType(fileName)),
		Metadata: map[string]string{
			"account-id": accountID.String(),
			"batch-id":   batchID.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload statement to s3://%s/%s: %w", a.bucket, key, err)
	}

	a.log.Debug().Str("key", key).Int("bytes", len(content)).Msg("Statement archived")
	return key, nil
}

func contentType(fileName string) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".csv":
		return "text/csv"
	case ".tsv":
		return "text/tab-separated-values"
	default:
		return "application/octet-stream"
	}
}

package transparency

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/dmitrijs2005/humanstamp/internal/server/config"
)

const contentTypeJSON = "application/json"

// seam for tests
var loadDefaultConfig = awsconfig.LoadDefaultConfig

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads the listing to an S3 compatible bucket (MinIO works).
type S3Publisher struct {
	client  objectPutter
	presign *s3.PresignClient
	bucket  string
	key     string
}

// NewS3Publisher builds a client from the S3 settings in cfg. Static
// credentials are used when an access key is configured; otherwise the
// default AWS credential chain applies.
func NewS3Publisher(ctx context.Context, cfg *sc.Config) (*S3Publisher, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := loadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Publisher{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.S3Bucket,
		key:     cfg.TransparencyObjectKey,
	}, nil
}

func (p *S3Publisher) Publish(ctx context.Context, doc []byte) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(p.key),
		Body:         bytes.NewReader(doc),
		ContentType:  aws.String(contentTypeJSON),
		CacheControl: aws.String("public, max-age=300"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (p *S3Publisher) Location() string {
	return "s3://" + p.bucket + "/" + p.key
}

// PresignedURL returns a time-limited GET link to the published listing,
// for buckets that are not publicly readable.
func (p *S3Publisher) PresignedURL(ctx context.Context, ttl time.Duration) (string, error) {
	if p.presign == nil {
		return "", fmt.Errorf("presigning is not available")
	}
	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/datazip-inc/sqlstream/constants"
	"github.com/rs/zerolog"
)

// S3Config locates the checkpoint object. Credentials fall back to the default
// AWS chain when no static keys are given.
type S3Config struct {
	Bucket       string `mapstructure:"bucket" json:"bucket"`
	Key          string `mapstructure:"key" json:"key"`
	Region       string `mapstructure:"region" json:"region,omitempty"`
	Endpoint     string `mapstructure:"endpoint" json:"endpoint,omitempty"`
	PathStyle    bool   `mapstructure:"path_style" json:"path_style,omitempty"`
	AccessKey    string `mapstructure:"access_key" json:"access_key,omitempty"`
	SecretKey    string `mapstructure:"secret_key" json:"secret_key,omitempty"`
	SessionToken string `mapstructure:"session_token" json:"session_token,omitempty"`
}

// S3API is the part of the s3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an s3 client for cfg.
func NewS3Client(ctx context.Context, cfg S3Config, log zerolog.Logger) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	} else if cfg.Endpoint == "" {
		log.Warn().Msg("S3 region not explicitly provided for checkpoint storage, relying on the default AWS resolution")
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		log.Info().Msg("using explicit S3 credentials for checkpoint storage")
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load AWS config: %s", constants.ErrConfiguration, err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			// S3 compatible storage such as MinIO
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		}
	}), nil
}

// S3Store keeps the checkpoint document in one S3 object. A PutObject replaces
// the object atomically.
type S3Store struct {
	records
	client S3API
	bucket string
	key    string
	log    zerolog.Logger
}

// OpenS3 loads the document from bucket/key. A missing object or an empty body
// is an empty mapping.
func OpenS3(ctx context.Context, client S3API, bucket, key string, log zerolog.Logger) (*S3Store, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: S3 checkpoint requires bucket and key", constants.ErrConfiguration)
	}

	log = log.With().Str("checkpoint", fmt.Sprintf("s3://%s/%s", bucket, key)).Logger()

	var data []byte
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	switch {
	case err == nil:
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read checkpoint object: %s", constants.ErrStateIO, err)
		}
	case isNotFound(err):
		log.Info().Msg("checkpoint object not found, starting from scratch")
	default:
		return nil, fmt.Errorf("%w: failed to get checkpoint object: %s", constants.ErrStateIO, err)
	}

	rows, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("checkpoint object s3://%s/%s: %w", bucket, key, err)
	}
	log.Info().Int("tables", len(rows)).Msg("loaded checkpoint")

	return &S3Store{records: records{rows: orEmpty(rows)}, client: client, bucket: bucket, key: key, log: log}, nil
}

func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func (s *S3Store) Flush(ctx context.Context) error {
	data, err := s.encode()
	if err != nil {
		return fmt.Errorf("%w: %s", constants.ErrStateIO, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/yaml"),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to put checkpoint object: %s", constants.ErrStateIO, err)
	}

	s.log.Debug().Msg("checkpoint flushed")
	return nil
}

func (s *S3Store) Close() error {
	return nil
}

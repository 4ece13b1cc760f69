package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config はS3互換ストレージの接続設定。
type S3Config struct {
	Endpoint      string // 空の場合はAWSのデフォルトエンドポイント
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	Prefix        string // オブジェクトキーの接頭辞（例: ctf-images）
	PublicBaseURL string // 公開URLの接頭辞。空の場合はEndpoint/Bucketから組み立てる
	UsePathStyle  bool
}

// ObjectAPI はS3SinkがS3クライアントに要求する操作。
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Sink はS3互換ストレージに画像をpublic-readで保存する。
type S3Sink struct {
	client  ObjectAPI
	bucket  string
	prefix  string
	baseURL string
}

// NewS3Sink はS3Configからクライアントを構築してS3Sinkを生成する。
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

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
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3SinkWithClient(client, cfg), nil
}

// NewS3SinkWithClient は既存のクライアントでS3Sinkを生成する。
func NewS3SinkWithClient(client ObjectAPI, cfg S3Config) *S3Sink {
	base := cfg.PublicBaseURL
	if base == "" {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
		base = strings.TrimRight(endpoint, "/") + "/" + cfg.Bucket
	}
	return &S3Sink{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		baseURL: strings.TrimRight(base, "/"),
	}
}

// Key はnameに対応するオブジェクトキーを返す。
func (s *S3Sink) Key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Put は画像をアップロードする。バケットが存在しない場合は作成して再試行する。
func (s *S3Sink) Put(ctx context.Context, name, contentType string, body []byte) (string, error) {
	key := s.Key(name)
	put := func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ACL:         types.ObjectCannedACLPublicRead,
			ContentType: aws.String(contentType),
		})
		return err
	}

	err := put()
	var apiErr smithy.APIError
	if err != nil && errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket" {
		slog.Warn("upload bucket missing, creating", slog.String("bucket", s.bucket))
		if _, cerr := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); cerr != nil {
			return "", fmt.Errorf("failed to create upload bucket: %w", cerr)
		}
		err = put()
	}
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

// compile-time interface check
var _ Sink = (*S3Sink)(nil)

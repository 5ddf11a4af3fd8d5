package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"archvault/pkg/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Adapter 实现了 storage.Backend 接口
type Adapter struct {
	client *s3.Client
	bucket string
	prefix string // 可选的 Key 前缀，多个仓库共用一个桶时使用
}

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// NewAdapter 初始化 S3 客户端
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket must be set")
	}

	// 1. 加载基础配置 (Region 和 Credentials)
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. 创建 S3 客户端时注入特定于 S3 的配置
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// 指定了 Endpoint (比如 MinIO 的 localhost:9000) 时覆盖默认值
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO 必须使用 Path Style: http://host:9000/bucket/key
		o.UsePathStyle = true
	})

	a := &Adapter{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.TrimSuffix(cfg.Prefix, "/"),
	}

	// 3. 自动创建 Bucket
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &cfg.Bucket}); err != nil {
		if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &cfg.Bucket}); err != nil {
			// 并发创建或权限不足时可能失败，后续请求会给出真正的错误
			slog.Warn("failed to ensure bucket exists", "bucket", cfg.Bucket, "err", err)
		}
	}

	return a, nil
}

// key 把逻辑路径映射为 S3 Key
// S3 没有目录容量问题，不需要分片
func (s *Adapter) key(p string) string {
	if s.prefix == "" {
		return p
	}
	return s.prefix + "/" + p
}

func (s *Adapter) logicalPath(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

// Put 上传对象
// 使用 If-None-Match: * 条件写入，由服务端保证不覆盖已有对象
func (s *Adapter) Put(ctx context.Context, p string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(p)),
		Body:        bytes.NewReader(data),
		IfNoneMatch: aws.String("*"),
		ContentType: aws.String("application/octet-stream"),
	})
	if err == nil {
		return nil
	}
	if isPreconditionFailed(err) {
		return storage.ErrAlreadyExists
	}
	return fmt.Errorf("s3 put %s failed: %w", p, err)
}

// Get 下载对象
func (s *Adapter) Get(ctx context.Context, p string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 错误映射为我们自己的 ErrNotFound
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) || httpStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, p)
		}
		return nil, fmt.Errorf("s3 get %s failed: %w", p, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s failed: %w", p, err)
	}
	return data, nil
}

// Delete S3 的删除本身就是幂等的
func (s *Adapter) Delete(ctx context.Context, p string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil && httpStatus(err) != http.StatusNotFound {
		return fmt.Errorf("s3 delete %s failed: %w", p, err)
	}
	return nil
}

// List 使用分页器逐页拉取，对外呈现为一个连续的序列
func (s *Adapter) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(s.key(prefix)),
		})
		for pager.HasMorePages() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield("", fmt.Errorf("s3 list %s failed: %w", prefix, err))
				return
			}
			for _, obj := range page.Contents {
				if !yield(s.logicalPath(aws.ToString(obj.Key)), nil) {
					return
				}
			}
		}
	}
}

// isPreconditionFailed 识别条件写入失败
// AWS 返回 412 PreconditionFailed；部分 S3 实现在并发写入时返回 409
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	status := httpStatus(err)
	return status == http.StatusPreconditionFailed || status == http.StatusConflict
}

// httpStatus 取出响应状态码，SDK 的错误链上没有 HTTP 响应时返回 0
func httpStatus(err error) int {
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}

var _ storage.Backend = (*Adapter)(nil)

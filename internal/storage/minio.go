package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/internal/config"
	"github.com/equipdesk/backend-go/internal/logger"
)

// MinioArchive 上传文件的原始副本归档
// 对象名带时间戳前缀，同名文件重复上传互不覆盖
type MinioArchive struct {
	client *minio.Client
	bucket string
}

// NewMinioArchive 创建MinIO归档客户端并确保bucket存在
func NewMinioArchive(cfg config.ObjectStorageConfig) (*MinioArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("MinIO bucket created", zap.String("bucket", cfg.Bucket))
	}

	return &MinioArchive{client: client, bucket: cfg.Bucket}, nil
}

// Put 归档一个原始文件
func (a *MinioArchive) Put(ctx context.Context, filename string, data []byte, contentType string) error {
	objectName := fmt.Sprintf("%s/%s", time.Now().Format("2006-01-02"), filename)
	_, err := a.client.PutObject(ctx, a.bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to archive file: %w", err)
	}

	logger.Debug("file archived", zap.String("bucket", a.bucket), zap.String("object", objectName))
	return nil
}

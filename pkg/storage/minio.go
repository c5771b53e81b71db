// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
// 导入的文档原文以文本对象归档，重建索引时从这里取回。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"wenda-go/internal/config"
	"wenda-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// DocumentObjectName 返回文档原文对象在桶内的路径。
func DocumentObjectName(documentID uint) string {
	return fmt.Sprintf("documents/%d.txt", documentID)
}

// PutText 将一段文本作为对象写入桶。
func PutText(ctx context.Context, bucketName, objectName, text string) error {
	reader := strings.NewReader(text)
	_, err := MinioClient.PutObject(ctx, bucketName, objectName, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("写入 MinIO 对象失败: %w", err)
	}
	return nil
}

// GetText 读取一个文本对象的完整内容。
func GetText(ctx context.Context, bucketName, objectName string) (string, error) {
	object, err := MinioClient.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("从 MinIO 读取对象失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, object); err != nil {
		return "", fmt.Errorf("读取 MinIO 对象流失败: %w", err)
	}
	return buf.String(), nil
}

// RemoveObject 删除一个对象，对象不存在时不视为错误。
func RemoveObject(ctx context.Context, bucketName, objectName string) error {
	return MinioClient.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{})
}

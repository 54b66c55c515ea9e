package oss

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/careerlane_server/config"
)

// Storage 简历文件存储，便于测试替换
type Storage interface {
	UploadResume(userID string, data []byte, ext string) (string, error)
	GetSignedURL(objectKey string, expireSeconds ...int64) (string, error)
	Delete(objectKey string) error
}

type Client struct {
	bucket *oss.Bucket
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{bucket: bucket}, nil
}

// UploadResume 上传简历原文件，返回 object key（私有读，只能通过签名 URL 访问）
func (c *Client) UploadResume(userID string, data []byte, ext string) (string, error) {
	objectKey := ResumeKey(userID, ext, time.Now())

	err := c.bucket.PutObject(objectKey, bytes.NewReader(data),
		oss.ContentType(ContentType(ext)),
		oss.ObjectACL(oss.ACLPrivate),
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload resume: %w", err)
	}

	return objectKey, nil
}

// Delete 删除文件
func (c *Client) Delete(objectKey string) error {
	err := c.bucket.DeleteObject(objectKey)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// GetSignedURL 生成带签名的临时访问URL（默认15分钟有效）
func (c *Client) GetSignedURL(objectKey string, expireSeconds ...int64) (string, error) {
	expire := int64(900)
	if len(expireSeconds) > 0 && expireSeconds[0] > 0 {
		expire = expireSeconds[0]
	}

	signedURL, err := c.bucket.SignURL(objectKey, oss.HTTPGet, expire)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return signedURL, nil
}

// ResumeKey resumes/{user}/{unix}{ext}
func ResumeKey(userID, ext string, now time.Time) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join("resumes", userID, fmt.Sprintf("%d%s", now.Unix(), ext))
}

// ContentType 根据扩展名获取 Content-Type
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// AllowedResumeExt 支持的简历格式
func AllowedResumeExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".doc", ".docx", ".txt":
		return true
	}
	return false
}

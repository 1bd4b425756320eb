package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchmon/internal/config"
	"github.com/sshcollectorpro/switchmon/pkg/logger"
)

const defaultContentType = "text/plain; charset=utf-8"

// StoredObject 存储的对象信息
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

// StorageWriter 抽象报告写入器
type StorageWriter interface {
	Write(ctx context.Context, meta StorageMeta, content string) (StoredObject, error)
}

// StorageMeta 写入元数据
type StorageMeta struct {
	// Host 设备地址，作为目录层级
	Host     string
	FileName string
	Backend  string // local|minio
}

// NewStorageWriter 根据配置创建写入器（委派到本地或 MinIO）
func NewStorageWriter(cfg *config.Config, log *logrus.Entry) StorageWriter {
	log = logger.Entry(log)
	dw := &DelegatingStorageWriter{
		local: &LocalStorageWriter{BaseDir: cfg.Report.BaseDir, Prefix: cfg.Report.Prefix},
		log:   log,
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Report.Backend), "minio") {
		dw.minio = initMinioWriter(cfg, log)
	}
	return dw
}

// DelegatingStorageWriter 按后端路由写入
type DelegatingStorageWriter struct {
	local *LocalStorageWriter
	minio *MinioStorageWriter
	log   *logrus.Entry
}

func (w *DelegatingStorageWriter) Write(ctx context.Context, meta StorageMeta, content string) (StoredObject, error) {
	if !strings.EqualFold(strings.TrimSpace(meta.Backend), "minio") {
		return w.local.Write(ctx, meta, content)
	}
	if w.minio == nil {
		w.log.Warn("MinIO backend selected but client not initialized; falling back to local")
		obj, lerr := w.local.Write(ctx, meta, content)
		if lerr != nil {
			return StoredObject{}, fmt.Errorf("minio client not initialized; local fallback failed: %w", lerr)
		}
		return obj, fmt.Errorf("minio client not initialized; wrote to local instead")
	}
	obj, err := w.minio.Write(ctx, meta, content)
	if err != nil {
		w.log.WithError(err).Warn("MinIO write failed; falling back to local")
		objLocal, lerr := w.local.Write(ctx, meta, content)
		if lerr != nil {
			return StoredObject{}, fmt.Errorf("minio write failed: %v; local fallback failed: %w", err, lerr)
		}
		// 返回本地对象，并携带预警错误说明
		return objLocal, fmt.Errorf("minio write failed: %w; fell back to local successfully", err)
	}
	return obj, nil
}

// LocalStorageWriter 本地文件写入
type LocalStorageWriter struct {
	BaseDir string
	Prefix  string
}

func (w *LocalStorageWriter) Write(_ context.Context, meta StorageMeta, content string) (StoredObject, error) {
	baseDir := strings.TrimSpace(w.BaseDir)
	if baseDir == "" {
		baseDir = "./data/reports"
	}

	// 层级：baseDir / prefix / host
	parts := []string{baseDir}
	if p := strings.TrimSpace(w.Prefix); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, slug(meta.Host))
	dirPath := filepath.Join(parts...)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return StoredObject{}, fmt.Errorf("failed to create dir: %w", err)
	}

	fullPath := filepath.Join(dirPath, fileName(meta))
	data := []byte(content)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}
	return storedObject("file://"+fullPath, data), nil
}

// MinioStorageWriter MinIO 对象存储写入
type MinioStorageWriter struct {
	client   *minio.Client
	endpoint string
	bucket   string
	prefix   string
	log      *logrus.Entry

	mu            sync.Mutex
	bucketEnsured bool
}

// initMinioWriter 尝试初始化 MinIO 写入器
func initMinioWriter(cfg *config.Config, log *logrus.Entry) *MinioStorageWriter {
	mc := cfg.Storage.Minio
	host := strings.TrimSpace(mc.Host)
	if host == "" || mc.Port <= 0 {
		log.Warn("MinIO configuration incomplete; host/port missing")
		return nil
	}
	endpoint := fmt.Sprintf("%s:%d", host, mc.Port)

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 5 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   16,
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(mc.AccessKey, mc.SecretKey, ""),
		Secure:    mc.Secure,
		Transport: transport,
	})
	if err != nil {
		log.WithError(err).Error("MinIO client initialization failed")
		return nil
	}

	bucket := strings.TrimSpace(mc.Bucket)
	if bucket == "" {
		log.Warn("MinIO bucket not configured")
		return nil
	}
	return &MinioStorageWriter{
		client:   client,
		endpoint: endpoint,
		bucket:   bucket,
		prefix:   strings.TrimSpace(cfg.Report.Prefix),
		log:      log,
	}
}

// Write 将报告写入 MinIO
func (w *MinioStorageWriter) Write(ctx context.Context, meta StorageMeta, content string) (StoredObject, error) {
	if w == nil || w.client == nil {
		return StoredObject{}, fmt.Errorf("minio client not initialized")
	}

	var parts []string
	if w.prefix != "" {
		parts = append(parts, w.prefix)
	}
	parts = append(parts, slug(meta.Host), fileName(meta))
	objectName := path.Join(parts...)
	data := []byte(content)

	// 写入前快速连通性探测
	if err := w.fastConnectivityCheck(ctx); err != nil {
		return StoredObject{}, fmt.Errorf("minio connectivity failed to %s: %w", w.endpoint, err)
	}
	if err := w.ensureBucketOnce(ctx); err != nil {
		return StoredObject{}, fmt.Errorf("minio ensure bucket failed: %w", err)
	}

	// 带重试的对象写入，使用请求上下文剩余时间做上限
	var lastErr error
	for _, d := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		attemptCtx, cancel := attemptContext(ctx, d)
		_, err := w.client.PutObject(attemptCtx, w.bucket, objectName, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: defaultContentType})
		cancel()
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if serr := sleepCtx(ctx, d); serr != nil {
			return StoredObject{}, serr
		}
	}
	if lastErr != nil {
		return StoredObject{}, fmt.Errorf("minio put object failed after retries: %w", lastErr)
	}
	return storedObject("minio://"+path.Join(w.bucket, objectName), data), nil
}

// fastConnectivityCheck 使用 TCP 直连做快速连通性校验
func (w *MinioStorageWriter) fastConnectivityCheck(parent context.Context) error {
	d := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(parent, "tcp", w.endpoint)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (w *MinioStorageWriter) ensureBucketOnce(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bucketEnsured {
		return nil
	}
	if err := w.ensureBucket(ctx, 2); err != nil {
		return err
	}
	w.bucketEnsured = true
	return nil
}

// ensureBucket 校验并创建 bucket，支持有限重试
func (w *MinioStorageWriter) ensureBucket(parent context.Context, retries int) error {
	var lastErr error
	for i := 0; i <= retries; i++ {
		ctx, cancel := attemptContext(parent, 10*time.Second)
		exists, err := w.client.BucketExists(ctx, w.bucket)
		if err == nil && !exists {
			err = w.client.MakeBucket(ctx, w.bucket, minio.MakeBucketOptions{})
		}
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		w.log.WithError(err).WithField("attempt", i+1).Warn("MinIO bucket ensure failed")
		if serr := sleepCtx(parent, time.Duration(i+1)*time.Second); serr != nil {
			return serr
		}
	}
	return lastErr
}

// attemptContext 构造限时上下文，尊重父上下文的剩余截止时间
func attemptContext(parent context.Context, prefer time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok {
		remain := time.Until(deadline)
		if remain > time.Second && prefer < remain {
			return context.WithTimeout(parent, prefer)
		}
		if remain > time.Second {
			return context.WithTimeout(parent, remain-time.Second)
		}
		return context.WithTimeout(parent, time.Second)
	}
	return context.WithTimeout(parent, prefer)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func storedObject(uri string, data []byte) StoredObject {
	sum := sha256.Sum256(data)
	return StoredObject{
		URI:         uri,
		Size:        int64(len(data)),
		Checksum:    "sha256:" + hex.EncodeToString(sum[:]),
		ContentType: defaultContentType,
	}
}

// fileName 显式文件名原样使用，缺省扩展名时追加 .txt
func fileName(meta StorageMeta) string {
	name := slug(meta.FileName)
	if !strings.Contains(name, ".") {
		name += ".txt"
	}
	return name
}

var slugRe = regexp.MustCompile(`[^a-z0-9._-]+`)

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_").Replace(s)
	s = slugRe.ReplaceAllString(s, "")
	if s == "" {
		s = "unknown"
	}
	return s
}

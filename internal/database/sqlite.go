package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/sshcollectorpro/switchmon/internal/config"
	"github.com/sshcollectorpro/switchmon/internal/model"
)

// ErrRunNotFound 运行记录不存在
var ErrRunNotFound = errors.New("run not found")

// Store 运行历史存储
type Store struct {
	db *gorm.DB
}

// OpenSQLite 初始化SQLite数据库
func OpenSQLite(cfg config.SQLiteConfig, log *logrus.Logger) (*Store, error) {
	// 确保数据库目录存在
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// 配置GORM日志
	gormConfig := &gorm.Config{
		// SQLite 默认对每次写操作开启事务，容易放大锁争用
		SkipDefaultTransaction: true,
	}
	if log != nil {
		gormConfig.Logger = gormLogger.New(log, gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		})
	} else {
		gormConfig.Logger = gormLogger.Discard
	}

	// 使用modernc.org/sqlite驱动
	dsn := cfg.Path + "?_pragma=busy_timeout(15000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dsn,
	}, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// 单连接，确保 PRAGMA 在唯一连接上生效
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&model.RunResult{}, &model.CommandResult{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	if log != nil {
		log.WithField("path", cfg.Path).Info("SQLite database initialized successfully")
	}
	return &Store{db: db}, nil
}

// SaveRun 保存一次运行及其全部命令结果
func (s *Store) SaveRun(ctx context.Context, run *model.RunResult) error {
	return s.withRetry(ctx, func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit("Results").Save(run).Error; err != nil {
				return err
			}
			if err := tx.Where("run_id = ?", run.ID).Delete(&model.CommandResult{}).Error; err != nil {
				return err
			}
			if len(run.Results) == 0 {
				return nil
			}
			for i := range run.Results {
				run.Results[i].ID = 0
				run.Results[i].RunID = run.ID
			}
			return tx.Create(&run.Results).Error
		})
	}, 5, 50*time.Millisecond)
}

// ListRuns 按开始时间倒序列出运行记录（不含命令输出）
func (s *Store) ListRuns(ctx context.Context, address string, limit int) ([]model.RunResult, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if address = strings.TrimSpace(address); address != "" {
		q = q.Where("address = ?", address)
	}
	var runs []model.RunResult
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun 按 ID 读取运行记录及按顺序排列的命令结果
func (s *Store) GetRun(ctx context.Context, id string) (*model.RunResult, error) {
	var run model.RunResult
	err := s.db.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// IsBusyError 判断是否为 SQLite 并发锁相关错误
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "cannot start a transaction within a transaction")
}

// withRetry 在检测到并发锁错误时进行短暂重试
func (s *Store) withRetry(ctx context.Context, fn func(*gorm.DB) error, attempts int, sleep time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn(s.db.WithContext(ctx))
		if err == nil || !IsBusyError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		// 轻微指数退避
		if sleep < 500*time.Millisecond {
			sleep *= 2
		}
	}
	return err
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

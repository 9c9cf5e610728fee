// Package store 持久化 K 线（按 symbol+周期分表，ts_utc 主键，后写覆盖）以及只追加的失败台账。
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"futbars/internal/logger"
	"futbars/internal/market"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// ErrTxDone is returned by Tx methods after Commit or Rollback.
var ErrTxDone = errors.New("store: transaction already finished")

// Store 是单写者的 SQLite 存储。
type Store struct {
	db   *gorm.DB
	path string

	mu      sync.Mutex
	ensured map[string]bool
}

// Open 打开（必要时创建）path 处的数据库并迁移失败台账表。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 单写者：一个连接即可，同时避免 SQLITE_BUSY。
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.AutoMigrate(&FailureModel{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: migrate failure ledger: %w", err)
	}
	return &Store{db: db, path: path, ensured: make(map[string]bool)}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertBars writes bars outside of any run transaction.
func (s *Store) UpsertBars(ctx context.Context, symbol, bar string, bars []market.Bar) (int, error) {
	_, n, err := s.upsertBars(s.db.WithContext(ctx), symbol, bar, bars)
	return n, err
}

// LogFailure appends one ledger row outside of any run transaction.
func (s *Store) LogFailure(ctx context.Context, f Failure) error {
	return logFailure(s.db.WithContext(ctx), f)
}

// Begin 开启一次运行级事务；所有写入在 Commit 时一次性落盘。
// 事务期间独占唯一连接，调用方只能通过返回的 Tx 写入。
// 事务不随 ctx 取消而回滚：取消后已完成的切片仍需提交。
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx := s.db.WithContext(context.WithoutCancel(ctx)).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &Tx{store: s, tx: tx}, nil
}

// Tx serializes writes from concurrent workers onto one SQLite transaction.
type Tx struct {
	store *Store

	mu      sync.Mutex
	tx      *gorm.DB
	done    bool
	created []string
}

func (t *Tx) UpsertBars(ctx context.Context, symbol, bar string, bars []market.Bar) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return 0, ErrTxDone
	}
	created, n, err := t.store.upsertBars(t.tx.WithContext(ctx), symbol, bar, bars)
	if created != "" {
		t.created = append(t.created, created)
	}
	return n, err
}

func (t *Tx) LogFailure(ctx context.Context, f Failure) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	return logFailure(t.tx.WithContext(ctx), f)
}

func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit().Error; err != nil {
		t.store.forget(t.created)
		return err
	}
	return nil
}

// Rollback discards the transaction; calling it after Commit is a no-op.
func (t *Tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	t.store.forget(t.created)
	if err := t.tx.Rollback().Error; err != nil {
		logger.Warnf("[store] rollback failed: %v", err)
		return err
	}
	return nil
}

func (s *Store) forget(tables []string) {
	if len(tables) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tables {
		delete(s.ensured, t)
	}
}

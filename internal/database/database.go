package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Configuration
const (
	DefaultDBFile = "nbconsole.db" // 配置数据库文件名
	MemoryDSN     = ":memory:"

	// 连接池配置（可调整）
	DefaultMaxOpenConns = 25        // 默认最大打开连接数
	DefaultMaxIdleConns = 10        // 默认最大空闲连接数
	ConnMaxLifetime     = time.Hour // 连接最大生命周期
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateName 北向名称重复
	ErrDuplicateName = errors.New("northbound name already exists")
)

// Store 北向配置存储（SQLite 持久化文件）
type Store struct {
	db   *sql.DB
	path string
}

// Open 打开数据库并执行迁移。path 为 ":memory:" 时使用内存库。
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultDBFile
	}

	maxOpen := envPositiveInt("DB_MAX_OPEN_CONNS", DefaultMaxOpenConns)
	maxIdle := envPositiveInt("DB_MAX_IDLE_CONNS", DefaultMaxIdleConns)
	if path == MemoryDSN {
		// 内存库每个连接独立，只能使用单连接
		maxOpen, maxIdle = 1, 1
	}

	db, err := openSQLite(path, maxOpen, maxIdle)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB 返回底层连接
func (s *Store) DB() *sql.DB { return s.db }

// Path 返回数据库路径
func (s *Store) Path() string { return s.path }

// Ping 检查连接
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

func openSQLite(dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(ConnMaxLifetime)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

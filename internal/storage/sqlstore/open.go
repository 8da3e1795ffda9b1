package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tempalias/backend/internal/config"
)

// sqlitePragmas 每个 SQLite 连接都需要的参数：外键约束、锁等待与可比较的时间格式
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"

// Open 根据配置选择数据库驱动并创建存储实例
//
// 参数:
//   - cfg: 数据库配置，Type 为 sqlite、postgres 或 mysql
//   - opts: 额外选项，如时钟注入
//
// 返回值:
//   - *Store: 已完成迁移的存储实例
//   - error: 连接或迁移失败
func Open(cfg config.DatabaseConfig, opts ...Option) (*Store, error) {
	opts = append([]Option{WithPool(cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)}, opts...)

	switch cfg.Type {
	case "sqlite", "":
		return NewStoreWithDialector(sqlite.Open(sqliteDSN(cfg.DSN)), opts...)
	case "postgres":
		dialector, pool, err := postgresDialector(cfg)
		if err != nil {
			return nil, err
		}
		store, err := NewStoreWithDialector(dialector, append(opts, withCloser(func() error {
			pool.Close()
			return nil
		}))...)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	case "mysql":
		dialector, err := mysqlDialector(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewStoreWithDialector(dialector, opts...)
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: sqlite, postgres, mysql)", cfg.Type)
	}
}

// sqliteDSN 为文件路径附加连接参数，空路径或 :memory: 使用内存数据库
func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		path = "file::memory:"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + sqlitePragmas
}

// postgresDialector 使用 pgx 连接池创建 GORM dialector
func postgresDialector(cfg config.DatabaseConfig) (gorm.Dialector, *pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, nil, fmt.Errorf("database DSN is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), pool, nil
}

// mysqlDialector 强制以 UTC 解析时间列
func mysqlDialector(dsn string) (gorm.Dialector, error) {
	parsed, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	parsed.ParseTime = true
	parsed.Loc = time.UTC
	if parsed.Params == nil {
		parsed.Params = map[string]string{}
	}
	if _, ok := parsed.Params["charset"]; !ok {
		parsed.Params["charset"] = "utf8mb4"
	}

	return mysql.New(mysql.Config{DSN: parsed.FormatDSN()}), nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourorg/lifedb/internal/models"
)

// Store is the relational item store. All multi-statement operations run in
// a single transaction.
type Store struct {
	db      *gorm.DB
	pool    *Pool
	dialect string
	log     *zap.Logger
}

// Open connects to the configured backend and migrates the schema.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	gcfg := &gorm.Config{
		TranslateError: true,
		Logger: logger.New(
			zap.NewStdLog(log.Named("gorm")),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	}

	var (
		gdb  *gorm.DB
		pool *Pool
		err  error
	)
	switch cfg.Driver {
	case DriverSQLite:
		gdb, err = gorm.Open(sqlite.Open(cfg.sqliteDSN()), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
	case DriverPostgres, "":
		pool, err = Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		gdb, err = gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool.Pool)}), gcfg)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrValidation, cfg.Driver)
	}

	if err := gdb.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	return &Store{db: gdb, pool: pool, dialect: gdb.Dialector.Name(), log: log}, nil
}

// Close releases the sql.DB and, for Postgres, the pgx pool beneath it.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("error getting sql.DB: %w", err)
	}
	err = sqlDB.Close()
	s.pool.Close()
	return err
}

// Ping checks connectivity of the underlying database.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Dialect returns the gorm dialector name ("postgres" or "sqlite").
func (s *Store) Dialect() string { return s.dialect }

// transact runs fn in one transaction. The request context's cancellation is
// dropped so a started transaction either commits or rolls back on its own.
func (s *Store) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return mapErr(s.db.WithContext(context.WithoutCancel(ctx)).Transaction(fn))
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepository хранит документы кассы в PostgreSQL (jsonb).
type PostgresRepository struct {
	documents
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}
	r.documents = documents{kv: r}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations/postgres"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) get(ctx context.Context, key string) ([]byte, error) {
	var raw string
	err := r.pool.QueryRow(ctx,
		`SELECT value::text FROM documents WHERE key = $1`,
		key,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyPgError(err)
	}
	return []byte(raw), nil
}

func (r *PostgresRepository) putAll(ctx context.Context, docs []document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classifyPgError(err))
	}
	defer tx.Rollback(ctx)

	for _, d := range docs {
		if d.Value == nil {
			if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE key = $1`, d.Key); err != nil {
				return fmt.Errorf("delete %s: %w", d.Key, classifyPgError(err))
			}
			continue
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO documents (key, value, updated_at) VALUES ($1, $2::jsonb, now())
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			d.Key, string(d.Value),
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", d.Key, classifyPgError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", classifyPgError(err))
	}

	return nil
}

// transientError помечает ошибку, после которой повтор операции может помочь.
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error() + " (transient, retry may succeed)"
}

func (e *transientError) Unwrap() error {
	return e.err
}

// IsTransient сообщает, является ли ошибка хранилища временной.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgerrcode.IsConnectionException(pgErr.Code) {
			return &transientError{err: err}
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return &transientError{err: err}
	}
	return err
}

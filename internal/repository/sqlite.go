package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// SQLiteRepository хранит значения сессии в локальном файле SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository открывает (или создаёт) файл базы и применяет миграции.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite допускает одного писателя.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func isBusySQLite(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// Close закрывает соединение с базой.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Get возвращает значение по ключу.
func (r *SQLiteRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := withRetry(ctx, isBusySQLite, func(ctx context.Context) error {
		return r.db.QueryRowContext(ctx,
			`SELECT value FROM session_values WHERE key = ?`,
			key,
		).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get value: %w", err)
	}
	return value, nil
}

// Set сохраняет значение по ключу, перезаписывая существующее.
func (r *SQLiteRepository) Set(ctx context.Context, key, value string) error {
	err := withRetry(ctx, isBusySQLite, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO session_values (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			key, value,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("set value: %w", err)
	}
	return nil
}

// Delete удаляет значения по ключам.
func (r *SQLiteRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	err := withRetry(ctx, isBusySQLite, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `DELETE FROM session_values WHERE key IN (`+placeholders+`)`, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete values: %w", err)
	}
	return nil
}

// Package repository содержит хранилища ключ-значение для сессии курьера.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound возвращается, если значение по ключу отсутствует.
var ErrNotFound = errors.New("value not found")

// KV описывает хранилище строковых значений по ключу.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Open создаёт хранилище по строке подключения: memory, sqlite://path,
// postgres://... или redis://...
func Open(ctx context.Context, dsn string) (KV, error) {
	switch {
	case dsn == "" || dsn == "memory":
		return NewMemoryRepository(), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return NewSQLiteRepository(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresRepository(ctx, dsn)
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return NewRedisRepository(ctx, dsn)
	}
	return nil, fmt.Errorf("unsupported session store %q", dsn)
}

package repository

import (
	"context"
	"sync"
)

// MemoryRepository хранит значения в памяти процесса.
type MemoryRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{values: make(map[string]string)}
}

// Get возвращает значение по ключу.
func (r *MemoryRepository) Get(_ context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set сохраняет значение по ключу.
func (r *MemoryRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = value
	return nil
}

// Delete удаляет значения; отсутствующие ключи игнорируются.
func (r *MemoryRepository) Delete(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range keys {
		delete(r.values, k)
	}
	return nil
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

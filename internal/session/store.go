// Package session хранит личность курьера и токен доступа между запусками.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/courier-agent/internal/backend"
	"github.com/mmeshcher/courier-agent/internal/model"
	"github.com/mmeshcher/courier-agent/internal/repository"
)

const (
	tokenKey   = "token"
	courierKey = "deliveryPartner"
)

var (
	// ErrNotAuthenticated возвращается, если сессия отсутствует.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired возвращается, если срок действия токена истёк; сессия при этом очищается.
	ErrSessionExpired = errors.New("session expired, please log in again")
	// ErrInvalidLocation возвращается для координат вне допустимого диапазона.
	ErrInvalidLocation = errors.New("invalid coordinates")
)

// Storage описывает постоянное хранилище значений сессии.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Authenticator описывает обращения к бэкенду, нужные сессии.
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (*backend.LoginResult, error)
	UpdateLocation(ctx context.Context, courierID string, loc model.Location) error
}

// Store управляет сессией курьера. Создаётся один раз при старте и передаётся
// явно всем компонентам, которым нужна личность курьера или токен.
type Store struct {
	storage Storage
	auth    Authenticator
	logger  *zap.Logger
	now     func() time.Time

	mu            sync.RWMutex
	token         string
	courier       *model.Courier
	authenticated bool
	subscribers   map[int]chan bool
	nextSubID     int
}

// Option настраивает Store.
type Option func(*Store)

// WithClock задаёт источник текущего времени для проверки срока действия токена.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore создаёт хранилище сессии.
func NewStore(storage Storage, auth Authenticator, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		storage:     storage,
		auth:        auth,
		logger:      logger,
		now:         time.Now,
		subscribers: make(map[int]chan bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login выполняет вход и сохраняет сессию. Никогда не возвращает ошибку:
// при любой неудаче возвращает false и ничего не сохраняет.
func (s *Store) Login(ctx context.Context, identifier, password string) bool {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return false
	}

	res, err := s.auth.Login(ctx, identifier, password)
	if err != nil {
		s.logger.Warn("login failed", zap.String("identifier", identifier), zap.Error(err))
		return false
	}
	if res == nil || res.Token == "" || res.Courier.ID == "" {
		s.logger.Warn("login response is malformed", zap.String("identifier", identifier))
		return false
	}

	data, err := json.Marshal(res.Courier)
	if err != nil {
		s.logger.Error("encode courier error", zap.Error(err))
		return false
	}

	if err := s.storage.Set(ctx, tokenKey, res.Token); err != nil {
		s.logger.Error("persist token error", zap.Error(err))
		return false
	}
	if err := s.storage.Set(ctx, courierKey, string(data)); err != nil {
		s.logger.Error("persist courier error", zap.Error(err))
		if delErr := s.storage.Delete(ctx, tokenKey); delErr != nil {
			s.logger.Error("rollback token error", zap.Error(delErr))
		}
		return false
	}

	courier := res.Courier
	s.mu.Lock()
	s.token = res.Token
	s.courier = &courier
	s.setAuthenticatedLocked(true)
	s.mu.Unlock()

	s.logger.Info("courier logged in", zap.String("courier_id", courier.ID))
	return true
}

// Logout очищает сессию. Успешен даже при отсутствии сессии.
func (s *Store) Logout(ctx context.Context) {
	s.clear(ctx)
}

// Restore восстанавливает сессию из хранилища без обращения к бэкенду.
// Просроченный токен равнозначен отсутствию сессии и очищает хранилище.
func (s *Store) Restore(ctx context.Context) {
	token, err := s.storage.Get(ctx, tokenKey)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("read persisted token error", zap.Error(err))
		}
		s.reset()
		return
	}

	raw, err := s.storage.Get(ctx, courierKey)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("read persisted courier error", zap.Error(err))
		}
		s.reset()
		return
	}

	var courier model.Courier
	if err := json.Unmarshal([]byte(raw), &courier); err != nil || courier.ID == "" || token == "" {
		s.logger.Warn("persisted session is corrupt, clearing")
		s.clear(ctx)
		return
	}

	if s.expired(token) {
		s.logger.Info("persisted token expired, clearing session", zap.String("courier_id", courier.ID))
		s.clear(ctx)
		return
	}

	s.mu.Lock()
	s.token = token
	s.courier = &courier
	s.setAuthenticatedLocked(true)
	s.mu.Unlock()
}

// UpdateLocation сохраняет координаты курьера локально и передаёт их бэкенду.
// Ошибка бэкенда возвращается, но локальное значение остаётся сохранённым.
func (s *Store) UpdateLocation(ctx context.Context, lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidLocation
	}

	s.mu.Lock()
	if s.courier == nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	updated := *s.courier
	updated.Location = &model.Location{Latitude: lat, Longitude: lon}
	s.courier = &updated
	s.mu.Unlock()

	if data, err := json.Marshal(updated); err == nil {
		if err := s.storage.Set(ctx, courierKey, string(data)); err != nil {
			s.logger.Warn("persist location error", zap.Error(err))
		}
	}

	if err := s.auth.UpdateLocation(ctx, updated.ID, *updated.Location); err != nil {
		s.logger.Warn("location update not delivered",
			zap.String("courier_id", updated.ID),
			zap.Error(err),
		)
		return fmt.Errorf("report location: %w", err)
	}
	return nil
}

// Token возвращает действующий токен. Просроченный токен очищает сессию.
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return "", ErrNotAuthenticated
	}
	if s.expired(token) {
		s.logger.Info("token expired, clearing session")
		s.clear(ctx)
		return "", ErrSessionExpired
	}
	return token, nil
}

// Courier возвращает копию профиля текущего курьера.
func (s *Store) Courier() (model.Courier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.courier == nil {
		return model.Courier{}, false
	}
	c := *s.courier
	if c.Location != nil {
		loc := *c.Location
		c.Location = &loc
	}
	return c, true
}

// IsAuthenticated сообщает, активна ли сессия.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Subscribe возвращает канал изменений признака аутентификации и функцию отписки.
func (s *Store) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
}

func (s *Store) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// непрозрачный токен без срока действия
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Time.Before(s.now())
}

func (s *Store) clear(ctx context.Context) {
	if err := s.storage.Delete(ctx, tokenKey, courierKey); err != nil {
		s.logger.Error("clear persisted session error", zap.Error(err))
	}
	s.reset()
}

func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.courier = nil
	s.setAuthenticatedLocked(false)
}

func (s *Store) setAuthenticatedLocked(v bool) {
	if s.authenticated == v {
		return
	}
	s.authenticated = v
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

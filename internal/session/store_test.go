package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/courier-agent/internal/backend"
	"github.com/mmeshcher/courier-agent/internal/model"
	"github.com/mmeshcher/courier-agent/internal/repository"
)

type stubAuth struct {
	loginResp *backend.LoginResult
	loginErr  error

	locationErr error
	locations   []model.Location
}

func (s *stubAuth) Login(ctx context.Context, identifier, password string) (*backend.LoginResult, error) {
	return s.loginResp, s.loginErr
}

func (s *stubAuth) UpdateLocation(ctx context.Context, courierID string, loc model.Location) error {
	s.locations = append(s.locations, loc)
	return s.locationErr
}

type failingStorage struct {
	*repository.MemoryRepository
	failKey string
}

func (f failingStorage) Set(ctx context.Context, key, value string) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.MemoryRepository.Set(ctx, key, value)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  9,
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newTestStore(storage Storage, auth Authenticator) *Store {
	return NewStore(storage, auth, zap.NewNop(), WithClock(func() time.Time { return fixedNow }))
}

func TestLoginPersistsSession(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryRepository()
	token := signedToken(t, fixedNow.Add(time.Hour))
	auth := &stubAuth{loginResp: &backend.LoginResult{Token: token, Courier: model.Courier{ID: "9", Name: "Ravi"}}}

	s := newTestStore(storage, auth)
	events, cancel := s.Subscribe()
	defer cancel()

	require.True(t, s.Login(ctx, " DP009 ", "secret"))
	assert.True(t, s.IsAuthenticated())
	assert.True(t, <-events)

	persisted, err := storage.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, token, persisted)

	raw, err := storage.Get(ctx, "deliveryPartner")
	require.NoError(t, err)
	assert.Contains(t, raw, `"id":"9"`)

	got, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestLoginFailuresPersistNothing(t *testing.T) {
	tests := []struct {
		name    string
		auth    *stubAuth
		storage Storage
	}{
		{
			name: "invalid credentials",
			auth: &stubAuth{loginErr: &backend.APIError{StatusCode: 400, Message: "Invalid credentials"}},
		},
		{
			name: "network error",
			auth: &stubAuth{loginErr: errors.New("dial tcp: i/o timeout")},
		},
		{
			name: "malformed response",
			auth: &stubAuth{loginResp: &backend.LoginResult{Token: "t"}},
		},
		{
			name:    "courier not persisted",
			auth:    &stubAuth{loginResp: &backend.LoginResult{Token: "t", Courier: model.Courier{ID: "9"}}},
			storage: failingStorage{MemoryRepository: repository.NewMemoryRepository(), failKey: "deliveryPartner"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			storage := tt.storage
			if storage == nil {
				storage = repository.NewMemoryRepository()
			}

			s := newTestStore(storage, tt.auth)

			assert.False(t, s.Login(ctx, "DP009", "secret"))
			assert.False(t, s.IsAuthenticated())

			_, err := storage.Get(ctx, "token")
			assert.ErrorIs(t, err, repository.ErrNotFound)
			_, err = storage.Get(ctx, "deliveryPartner")
			assert.ErrorIs(t, err, repository.ErrNotFound)
		})
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	s := newTestStore(repository.NewMemoryRepository(), &stubAuth{})

	s.Logout(context.Background())

	assert.False(t, s.IsAuthenticated())
	_, ok := s.Courier()
	assert.False(t, ok)
}

func TestRestoreValidSession(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryRepository()
	require.NoError(t, storage.Set(ctx, "token", signedToken(t, fixedNow.Add(time.Hour))))
	require.NoError(t, storage.Set(ctx, "deliveryPartner", `{"id":"9","name":"Ravi"}`))

	s := newTestStore(storage, &stubAuth{})
	s.Restore(ctx)

	assert.True(t, s.IsAuthenticated())
	c, ok := s.Courier()
	require.True(t, ok)
	assert.Equal(t, "Ravi", c.Name)
}

func TestRestoreExpiredTokenClearsStorage(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryRepository()
	require.NoError(t, storage.Set(ctx, "token", signedToken(t, fixedNow.Add(-time.Minute))))
	require.NoError(t, storage.Set(ctx, "deliveryPartner", `{"id":"9","name":"Ravi"}`))

	s := newTestStore(storage, &stubAuth{})
	s.Restore(ctx)

	assert.False(t, s.IsAuthenticated())
	_, err := storage.Get(ctx, "token")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = storage.Get(ctx, "deliveryPartner")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRestoreOpaqueTokenAndMissingParts(t *testing.T) {
	ctx := context.Background()

	storage := repository.NewMemoryRepository()
	require.NoError(t, storage.Set(ctx, "token", "opaque-session-token"))
	require.NoError(t, storage.Set(ctx, "deliveryPartner", `{"id":"9"}`))
	s := newTestStore(storage, &stubAuth{})
	s.Restore(ctx)
	assert.True(t, s.IsAuthenticated())

	onlyToken := repository.NewMemoryRepository()
	require.NoError(t, onlyToken.Set(ctx, "token", "opaque-session-token"))
	s = newTestStore(onlyToken, &stubAuth{})
	s.Restore(ctx)
	assert.False(t, s.IsAuthenticated())

	corrupt := repository.NewMemoryRepository()
	require.NoError(t, corrupt.Set(ctx, "token", "opaque-session-token"))
	require.NoError(t, corrupt.Set(ctx, "deliveryPartner", `{not json`))
	s = newTestStore(corrupt, &stubAuth{})
	s.Restore(ctx)
	assert.False(t, s.IsAuthenticated())
	_, err := corrupt.Get(ctx, "token")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTokenExpiresDuringSession(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryRepository()
	now := fixedNow
	auth := &stubAuth{loginResp: &backend.LoginResult{
		Token:   signedToken(t, fixedNow.Add(time.Minute)),
		Courier: model.Courier{ID: "9"},
	}}

	s := NewStore(storage, auth, zap.NewNop(), WithClock(func() time.Time { return now }))
	require.True(t, s.Login(ctx, "DP009", "secret"))

	now = fixedNow.Add(2 * time.Minute)

	_, err := s.Token(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, s.IsAuthenticated())

	_, err = s.Token(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestUpdateLocationCommitsLocallyOnBackendFailure(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryRepository()
	auth := &stubAuth{
		loginResp:   &backend.LoginResult{Token: "opaque", Courier: model.Courier{ID: "9"}},
		locationErr: errors.New("backend unavailable"),
	}

	s := newTestStore(storage, auth)
	require.True(t, s.Login(ctx, "DP009", "secret"))

	err := s.UpdateLocation(ctx, 18.52, 73.85)
	require.Error(t, err)

	c, ok := s.Courier()
	require.True(t, ok)
	require.NotNil(t, c.Location)
	assert.Equal(t, 18.52, c.Location.Latitude)

	raw, err := storage.Get(ctx, "deliveryPartner")
	require.NoError(t, err)
	assert.Contains(t, raw, "73.85")
	assert.Len(t, auth.locations, 1)
}

func TestUpdateLocationValidation(t *testing.T) {
	s := newTestStore(repository.NewMemoryRepository(), &stubAuth{})

	assert.ErrorIs(t, s.UpdateLocation(context.Background(), 10, 10), ErrNotAuthenticated)
	assert.ErrorIs(t, s.UpdateLocation(context.Background(), 91, 10), ErrInvalidLocation)
}

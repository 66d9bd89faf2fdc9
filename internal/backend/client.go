// Package backend предоставляет клиент REST API службы доставки.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const maxResponseBody = 8 << 20

// TokenSource выдаёт токен для заголовка Authorization.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client инкапсулирует HTTP-взаимодействие с бэкендом службы доставки.
// Идемпотентные GET-запросы повторяются, изменяющие запросы выполняются один раз.
// Таймаут ограничивает вызов целиком, включая повторы и ожидание между ними.
type Client struct {
	baseURL    string
	timeout    time.Duration
	retrying   *retryablehttp.Client
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
}

// NewClient создаёт клиент бэкенда по указанному базовому адресу.
func NewClient(baseURL string, timeout time.Duration, retries int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = retryLogger{s: logger.Sugar()}

	return &Client{
		baseURL:  base,
		timeout:  timeout,
		retrying: rc,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetTokenSource задаёт источник токена. Вызывается до первого запроса.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, authorize bool) (any, error) {
	if c == nil || c.baseURL == "" {
		return nil, errors.New("backend client not configured")
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if payload != nil {
		header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	header.Set("X-Request-ID", requestID)

	if authorize && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("authorize request: %w", err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.send(ctx, method, endpoint, payload, header)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, newAPIError(resp.StatusCode, data)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var result any
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte, header http.Header) (*http.Response, error) {
	if method == http.MethodGet {
		req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header = header
		return c.retrying.Do(req)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = header
	return c.httpClient.Do(req)
}

// asList извлекает список записей из ответа вида [...] или {data: [...]}.
func asList(v any) ([]map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		inner, has := m["data"]
		if !has {
			return nil, errors.New("unexpected response shape: object without data")
		}
		v = inner
	}
	if v == nil {
		return []map[string]any{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected response shape: %T", v)
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// asObject извлекает одну запись из ответа вида {...} или {data: {...}}.
func asObject(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if inner, ok := m["data"].(map[string]any); ok {
		return inner
	}
	return m
}

type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

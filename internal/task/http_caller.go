package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/retry"
)

// HTTPCaller — Caller поверх HTTP downstream-сервиса.
//
// Статусы классифицируются в таксономию через retry.FromStatus;
// retry-after hint берётся из заголовка Retry-After (429).
type HTTPCaller struct {
	endpoint string
	client   *http.Client

	mu     sync.RWMutex
	apiKey string
}

// HTTPCallerConfig — конфигурация HTTPCaller.
type HTTPCallerConfig struct {
	// Endpoint — URL downstream-сервиса.
	Endpoint string

	// APIKey — bearer-ключ (пусто — без авторизации).
	APIKey string

	// Timeout — таймаут одного вызова (default: 30s).
	Timeout time.Duration
}

// NewHTTPCaller создаёт HTTPCaller.
func NewHTTPCaller(cfg HTTPCallerConfig) *HTTPCaller {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCaller{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// SetKey подменяет bearer-ключ (после refresh credentials).
func (c *HTTPCaller) SetKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

// Call реализует Caller.
func (c *HTTPCaller) Call(ctx context.Context, req *CallRequest) (*CallResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.WrapTaskError(domain.ErrCodeInternal, "marshal call request", false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.WrapTaskError(domain.ErrCodeInternal, "build call request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.mu.RLock()
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	c.mu.RUnlock()

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Сетевые ошибки уходят как есть: предикат retryability
		// распознаёт их через net.Error
		return nil, fmt.Errorf("call downstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		message := readErrorBody(resp.Body)
		return nil, retry.FromStatus(resp.StatusCode, message, retryAfterHint(resp))
	}

	var result CallResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, domain.WrapTaskError(domain.ErrCodeInternal, "decode downstream response", false, err)
	}

	return &result, nil
}

// retryAfterHint извлекает Retry-After (секунды) из ответа.
func retryAfterHint(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// readErrorBody читает усечённое тело ошибки для сообщения.
func readErrorBody(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil || len(raw) == 0 {
		return "downstream error"
	}
	return string(raw)
}

// EnvKeyRefresher — CredentialRefresher, перечитывающий ключ из
// переменной окружения. Ротация ключа оператором (новое значение в
// окружении/секрете) подхватывается следующим refresh.
type EnvKeyRefresher struct {
	envVar string
	caller *HTTPCaller
}

// NewEnvKeyRefresher создаёт EnvKeyRefresher.
func NewEnvKeyRefresher(envVar string, caller *HTTPCaller) *EnvKeyRefresher {
	return &EnvKeyRefresher{envVar: envVar, caller: caller}
}

// Refresh реализует retry.CredentialRefresher.
func (r *EnvKeyRefresher) Refresh(_ context.Context) error {
	key := os.Getenv(r.envVar)
	if key == "" {
		return fmt.Errorf("refresh credentials: %s is empty", r.envVar)
	}
	r.caller.SetKey(key)
	return nil
}

// Package retry реализует retry с exponential backoff для task bodies.
//
// Политика retry управляется предикатом retryability: сетевые ошибки
// и server-class статусы (429, 500, 502, 503, 504) повторяются,
// 429 дополнительно учитывает retry-after hint от downstream.
// Попытки прекращаются, когда общий бюджет времени task (deadline
// контекста) был бы превышен следующим ожиданием.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Default policy values.
const (
	defaultMaxRetries    = 3
	defaultBaseDelay     = 500 * time.Millisecond
	defaultMaxDelay      = 30 * time.Second
	defaultBackoffFactor = 2.0
)

// Policy — политика retry.
type Policy struct {
	// MaxRetries — количество повторов ПОСЛЕ первой попытки.
	MaxRetries int

	// BaseDelay — начальная задержка.
	BaseDelay time.Duration

	// MaxDelay — потолок задержки.
	MaxDelay time.Duration

	// BackoffFactor — множитель экспоненциального роста.
	BackoffFactor float64

	// IsRetryable — предикат retryability. nil — DefaultRetryable.
	IsRetryable func(error) bool
}

// DefaultPolicy возвращает политику по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    defaultMaxRetries,
		BaseDelay:     defaultBaseDelay,
		MaxDelay:      defaultMaxDelay,
		BackoffFactor: defaultBackoffFactor,
		IsRetryable:   DefaultRetryable,
	}
}

// CredentialRefresher обновляет credentials после AUTHENTICATION_ERROR.
// После refresh выполняется ровно одна повторная попытка, не больше.
type CredentialRefresher interface {
	Refresh(ctx context.Context) error
}

// Executor выполняет функцию с retry согласно Policy.
type Executor struct {
	policy    Policy
	refresher CredentialRefresher
	logger    *slog.Logger

	// sleep подменяется в тестах.
	sleep func(ctx context.Context, d time.Duration) error
}

// Config — конфигурация Executor.
type Config struct {
	// Policy — политика retry (нулевые поля заменяются дефолтами).
	Policy Policy

	// Refresher — опциональный refresh credentials для AUTHENTICATION_ERROR.
	Refresher CredentialRefresher

	// Logger
	Logger *slog.Logger
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	policy := cfg.Policy
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = defaultMaxRetries
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = defaultBaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = defaultMaxDelay
	}
	if policy.BackoffFactor <= 1 {
		policy.BackoffFactor = defaultBackoffFactor
	}
	if policy.IsRetryable == nil {
		policy.IsRetryable = DefaultRetryable
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		policy:    policy,
		refresher: cfg.Refresher,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Policy возвращает действующую политику.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Run выполняет fn с retry.
//
// Не-retryable ошибка возвращается сразу, с одной попыткой.
// Исчерпание попыток или бюджета возвращает последнюю ошибку
// с проставленным количеством попыток.
func Run[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	refreshed := false

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// AUTHENTICATION_ERROR: один refresh credentials и одна
		// повторная попытка, без backoff и без счёта в MaxRetries.
		if domain.CodeOf(err) == domain.ErrCodeAuth {
			if e.refresher != nil && !refreshed {
				refreshed = true
				if refreshErr := e.refresher.Refresh(ctx); refreshErr == nil {
					e.logger.Debug("credentials refreshed, retrying once")
					continue
				}
			}
			return zero, attachAttempts(lastErr, attempt+1, false)
		}

		if !e.policy.IsRetryable(err) {
			// Одна попытка, наружу сразу
			return zero, attachAttempts(lastErr, attempt+1, false)
		}

		if attempt >= e.policy.MaxRetries {
			return zero, attachAttempts(ErrRetriesExhausted(lastErr), attempt+1, true)
		}

		delay := e.backoff(attempt)

		// 429: retry-after hint перекрывает вычисленный backoff
		if taskErr, ok := domain.AsTaskError(err); ok && taskErr.RetryAfter > 0 {
			delay = taskErr.RetryAfter
		}

		// Бюджет: не начинаем ожидание, которое выйдет за deadline
		if deadline, ok := ctx.Deadline(); ok {
			if time.Until(deadline) <= delay {
				return zero, attachAttempts(ErrBudgetExceeded(lastErr), attempt+1, true)
			}
		}

		e.logger.Debug("retrying after failure",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return zero, attachAttempts(lastErr, attempt+1, true)
		}
	}
}

// backoff вычисляет задержку: min(maxDelay, baseDelay * factor^attempt).
func (e *Executor) backoff(attempt int) time.Duration {
	delay := e.policy.BaseDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * e.policy.BackoffFactor)
		if delay >= e.policy.MaxDelay {
			return e.policy.MaxDelay
		}
	}
	if delay > e.policy.MaxDelay {
		return e.policy.MaxDelay
	}
	return delay
}

// attachAttempts проставляет количество попыток в TaskError цепочки.
// Возвращается исходная цепочка: маркер исчерпания (попыток/бюджета)
// остаётся внешним, errors.Is находит его, errors.As достаёт TaskError.
func attachAttempts(err error, attempts int, retryable bool) error {
	if taskErr, ok := domain.AsTaskError(err); ok {
		taskErr.Attempts = attempts
		return err
	}
	return &domain.TaskError{
		Code:      domain.ErrCodeInternal,
		Message:   err.Error(),
		Retryable: retryable,
		Attempts:  attempts,
		Err:       err,
	}
}

// DefaultRetryable — предикат retryability по умолчанию.
//
// Retryable: сетевые ошибки (connection reset, DNS, timeout) и
// TaskError с Retryable=true. Неклассифицированные ошибки считаются
// инфраструктурными и повторяются. Отмена контекста не повторяется.
func DefaultRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if taskErr, ok := domain.AsTaskError(err); ok {
		return taskErr.Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	return true
}

// RetryableStatus проверяет, является ли HTTP-статус retryable.
// Server-class коды: 429, 500, 502, 503, 504.
func RetryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// FromStatus классифицирует статус downstream-вызова в TaskError.
// retryAfter учитывается только для 429.
func FromStatus(code int, message string, retryAfter time.Duration) *domain.TaskError {
	switch {
	case code == 429:
		return &domain.TaskError{
			Code:       domain.ErrCodeRateLimit,
			Message:    message,
			Retryable:  true,
			RetryAfter: retryAfter,
		}
	case code == 401 || code == 403:
		return domain.NewTaskError(domain.ErrCodeAuth, message, false)
	case code == 408 || code == 504:
		return domain.NewTaskError(domain.ErrCodeTimeout, message, true)
	case RetryableStatus(code):
		return domain.NewTaskError(domain.ErrCodeNetwork, message, true)
	default:
		return domain.NewTaskError(domain.ErrCodeInternal,
			fmt.Sprintf("status %d: %s", code, message), false)
	}
}

// sleepCtx ждёт d с учётом отмены контекста.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

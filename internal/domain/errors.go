package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode — код ошибки из таксономии Conveyor.
//
// Каждая ошибка, пересекающая границу с workflow engine,
// конвертируется в TaskEnvelope — raw error наружу не уходит.
type ErrorCode string

const (
	// ErrCodeValidation — невалидный вход. Фатально для вызова,
	// без retry и без компенсации.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeNetwork — сетевая ошибка (connection reset, DNS). Retryable.
	ErrCodeNetwork ErrorCode = "NETWORK_ERROR"

	// ErrCodeTimeout — таймаут вызова. Retryable.
	ErrCodeTimeout ErrorCode = "TIMEOUT_ERROR"

	// ErrCodeRateLimit — 429 от downstream. Retryable с учётом retry-after.
	ErrCodeRateLimit ErrorCode = "RATE_LIMIT_EXCEEDED"

	// ErrCodeAuth — ошибка аутентификации. Один refresh credentials
	// и одна повторная попытка, не больше.
	ErrCodeAuth ErrorCode = "AUTHENTICATION_ERROR"

	// ErrCodeSagaStepFailed — шаг саги упал. Компенсация НЕ записывается
	// (нечего компенсировать), наружу уходит флаг retryability.
	ErrCodeSagaStepFailed ErrorCode = "SAGA_STEP_FAILED"

	// ErrCodeCompensationFailed — компенсация не удалась. Никогда не
	// повторяется автоматически: повторный release ресурсов опасен.
	ErrCodeCompensationFailed ErrorCode = "COMPENSATION_FAILED"

	// ErrCodeCoordinationFailed — cross-workflow вызов не удался.
	// Retry — ответственность вызывающего.
	ErrCodeCoordinationFailed ErrorCode = "COORDINATION_FAILED"

	// ErrCodeEngineConnectionLost — потеряно соединение с engine.
	// Переподключение повторяется бесконечно с backoff.
	ErrCodeEngineConnectionLost ErrorCode = "ENGINE_CONNECTION_LOST"

	// ErrCodeInternal — внутренняя ошибка без более точной классификации.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// TaskError — структурированная ошибка выполнения task.
//
// Несёт код из таксономии, retryability и опциональный retry-after
// hint (для 429). Attempts заполняется retry executor'ом.
type TaskError struct {
	// Code — код ошибки.
	Code ErrorCode

	// Message — человекочитаемое описание.
	Message string

	// Retryable — можно ли повторять вызов.
	Retryable bool

	// RetryAfter — hint от downstream (429), перекрывает вычисленный backoff.
	RetryAfter time.Duration

	// Attempts — сколько попыток было сделано.
	Attempts int

	// Err — исходная ошибка.
	Err error
}

// Error реализует error.
func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap возвращает исходную ошибку.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError создаёт TaskError.
func NewTaskError(code ErrorCode, message string, retryable bool) *TaskError {
	return &TaskError{Code: code, Message: message, Retryable: retryable}
}

// NewValidationError создаёт VALIDATION_ERROR (не retryable).
func NewValidationError(message string) *TaskError {
	return &TaskError{Code: ErrCodeValidation, Message: message, Retryable: false}
}

// WrapTaskError оборачивает err в TaskError с кодом.
func WrapTaskError(code ErrorCode, message string, retryable bool, err error) *TaskError {
	return &TaskError{Code: code, Message: message, Retryable: retryable, Err: err}
}

// AsTaskError извлекает *TaskError из цепочки ошибок.
func AsTaskError(err error) (*TaskError, bool) {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr, true
	}
	return nil, false
}

// CodeOf возвращает код ошибки из цепочки.
// Для не-TaskError возвращает INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if taskErr, ok := AsTaskError(err); ok {
		return taskErr.Code
	}
	return ErrCodeInternal
}

// IsRetryable проверяет, помечена ли ошибка как retryable.
// Неклассифицированные ошибки считаются retryable (инфраструктурные).
func IsRetryable(err error) bool {
	if taskErr, ok := AsTaskError(err); ok {
		return taskErr.Retryable
	}
	return true
}

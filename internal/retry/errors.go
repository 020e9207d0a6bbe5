package retry

import (
	"errors"
	"fmt"
)

// Ошибки retry executor'а.
var (
	// errRetriesExhausted — все попытки retry исчерпаны.
	errRetriesExhausted = errors.New("retry attempts exhausted")

	// errBudgetExceeded — следующий retry вышел бы за бюджет времени task.
	errBudgetExceeded = errors.New("task time budget exceeded")
)

// ErrRetriesExhausted оборачивает последнюю ошибку маркером исчерпания попыток.
func ErrRetriesExhausted(last error) error {
	return fmt.Errorf("%w: %w", errRetriesExhausted, last)
}

// ErrBudgetExceeded оборачивает последнюю ошибку маркером исчерпания бюджета.
func ErrBudgetExceeded(last error) error {
	return fmt.Errorf("%w: %w", errBudgetExceeded, last)
}

// IsExhausted проверяет маркер исчерпания попыток.
func IsExhausted(err error) bool {
	return errors.Is(err, errRetriesExhausted)
}

// IsBudgetExceeded проверяет маркер исчерпания бюджета.
func IsBudgetExceeded(err error) bool {
	return errors.Is(err, errBudgetExceeded)
}

package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrTaskRegistered — task с таким именем уже зарегистрирован.
	ErrTaskRegistered = errors.New("task already registered")

	// ErrAlreadyStarted — оркестратор уже запущен.
	ErrAlreadyStarted = errors.New("orchestrator already started")
)

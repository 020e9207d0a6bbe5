package engine

import "errors"

// Ошибки engine-клиента.
var (
	// ErrConnectionClosed — соединение закрыто явно (shutdown).
	ErrConnectionClosed = errors.New("engine connection closed")

	// ErrNoChannel — канал недоступен (идёт reconnect).
	ErrNoChannel = errors.New("no channel available")

	// ErrNotConnected — клиент стартует без соединения с engine.
	// Фатально: worker без engine не может работать.
	ErrNotConnected = errors.New("not connected to engine")

	// ErrHandlerNotFound — handler для task не зарегистрирован.
	ErrHandlerNotFound = errors.New("task handler not registered")

	// ErrAlreadyStarted — клиент уже запущен.
	ErrAlreadyStarted = errors.New("engine client already started")
)

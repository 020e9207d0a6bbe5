package task

import "errors"

// Ошибки валидации входа.
var (
	// ErrEmptyInput — вход task пуст.
	ErrEmptyInput = errors.New("task input is empty")

	// ErrNoCommand — во входе нет распознаваемого command/text поля.
	ErrNoCommand = errors.New("no recognizable command field in input")

	// ErrBadWorkflowID — workflow id присутствует, но не строка.
	ErrBadWorkflowID = errors.New("workflow id must be a string")
)

package saga

import "errors"

// Ошибки реестра компенсаций.
var (
	// ErrRecordNotFound — записи для sagaId нет.
	ErrRecordNotFound = errors.New("compensation record not found")

	// ErrEmptySagaID — пустой sagaId недопустим.
	ErrEmptySagaID = errors.New("saga id is empty")

	// ErrManualIntervention — запись помечена для оператора,
	// автоматическая компенсация запрещена.
	ErrManualIntervention = errors.New("record requires manual intervention")
)

package domain

import "time"

// CompensationData — данные, необходимые для отката одного шага саги.
//
// Записываются ПОСЛЕ успешного завершения side-effecting шага.
// Если шаг упал — записывать нечего: side effects не случились.
type CompensationData struct {
	// ArtifactIDs — ids созданных артефактов (удалить при компенсации).
	ArtifactIDs []string `json:"artifact_ids,omitempty"`

	// ResourceIDs — ids выделенных внешних ресурсов (освободить).
	ResourceIDs []string `json:"resource_ids,omitempty"`

	// CacheKeys — затронутые ключи response cache (инвалидировать).
	CacheKeys []string `json:"cache_keys,omitempty"`
}

// IsEmpty возвращает true, если компенсировать нечего.
func (d *CompensationData) IsEmpty() bool {
	return d == nil || (len(d.ArtifactIDs) == 0 && len(d.ResourceIDs) == 0 && len(d.CacheKeys) == 0)
}

// CompensationRecord — запись о компенсируемом шаге саги.
//
// Инвариант: не более одной живой записи на sagaId (новый шаг
// перезаписывает предыдущий). Запись удаляется ровно один раз —
// успешной компенсацией. При частичной неудаче компенсации запись
// СОХРАНЯЕТСЯ и помечается для ручного вмешательства: удаление
// потеряло бы информацию, нужную для повторной компенсации.
type CompensationRecord struct {
	// SagaID — идентификатор распределённой транзакции.
	SagaID string `json:"saga_id"`

	// StepName — имя шага, который записал компенсацию.
	StepName string `json:"step_name"`

	// Data — данные компенсации.
	Data CompensationData `json:"data"`

	// RecordedAt — время записи.
	RecordedAt time.Time `json:"recorded_at"`

	// ManualIntervention — компенсация не удалась, нужен оператор.
	ManualIntervention bool `json:"manual_intervention,omitempty"`

	// FailureReason — почему компенсация не удалась.
	FailureReason string `json:"failure_reason,omitempty"`
}

// CompensationResult — результат вызова compensate(sagaId).
type CompensationResult struct {
	// SagaID — идентификатор саги.
	SagaID string `json:"saga_id"`

	// Compensated — все под-компенсации прошли успешно.
	Compensated bool `json:"compensated"`

	// NoOp — записи не было (компенсировать дважды безопасно).
	NoOp bool `json:"no_op,omitempty"`

	// RequiresManualIntervention — часть под-компенсаций упала,
	// запись сохранена, автоматический повтор запрещён.
	RequiresManualIntervention bool `json:"requires_manual_intervention,omitempty"`

	// Failures — описания упавших под-компенсаций.
	Failures []string `json:"failures,omitempty"`

	// ArtifactsDeleted — сколько артефактов удалено.
	ArtifactsDeleted int `json:"artifacts_deleted,omitempty"`

	// ResourcesReleased — сколько ресурсов освобождено.
	ResourcesReleased int `json:"resources_released,omitempty"`

	// KeysInvalidated — сколько cache keys инвалидировано.
	KeysInvalidated int `json:"keys_invalidated,omitempty"`
}

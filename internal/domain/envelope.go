package domain

// Известные intents, которые Conveyor выставляет сам.
//
// Остальные intents приходят из task body (downstream call)
// и прозрачно прокидываются в envelope.
const (
	// IntentWorkflowError — выполнение завершилось ошибкой.
	// Engine получает envelope с confidence 0 и флагами CanRetry /
	// CompensationRequired в WorkflowMetadata.
	IntentWorkflowError = "workflow_error"

	// IntentUnknown — downstream не смог классифицировать вход.
	IntentUnknown = "unknown"
)

// TaskEnvelope — результат выполнения task, возвращаемый в engine.
//
// Handler НИКОГДА не возвращает ошибку через границу engine:
// любая ошибка конвертируется в envelope с IntentWorkflowError,
// чтобы workflow мог продолжиться штатно (retry, компенсация,
// алертинг — на стороне engine).
type TaskEnvelope struct {
	// Intent — классифицированное намерение результата.
	Intent string `json:"intent"`

	// Confidence — уверенность результата [0..1]. 0 при ошибке.
	Confidence float64 `json:"confidence"`

	// Parameters — полезная нагрузка результата.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Cached — результат взят из response cache.
	Cached bool `json:"cached,omitempty"`

	// SuggestedActions — подсказки для следующего шага workflow
	// (например "needs_clarification" при низкой confidence).
	SuggestedActions []string `json:"suggested_actions,omitempty"`

	// NextSteps — шаги продолжения workflow по статической карте intent → steps.
	NextSteps []string `json:"next_steps,omitempty"`

	// Insights — наблюдения по истории workflow (повторы команд,
	// длина сессии). Советующие, не транзакционные.
	Insights []string `json:"insights,omitempty"`

	// TokenUsage — израсходованные токены/юниты downstream-вызова.
	TokenUsage int `json:"token_usage,omitempty"`

	// WorkflowMetadata — метаданные workflow-контекста.
	WorkflowMetadata *WorkflowMetadata `json:"workflow_metadata,omitempty"`

	// SagaMetadata — метаданные saga-шага (только для saga-flavored tasks).
	SagaMetadata *SagaMetadata `json:"saga_metadata,omitempty"`
}

// IsError возвращает true, если envelope несёт ошибку workflow.
func (e *TaskEnvelope) IsError() bool {
	return e.Intent == IntentWorkflowError
}

// WorkflowMetadata — workflow-часть envelope.
type WorkflowMetadata struct {
	// WorkflowID — идентификатор workflow instance.
	WorkflowID string `json:"workflow_id,omitempty"`

	// ExecutionCount — сколько tasks уже выполнено для этого workflow.
	ExecutionCount int `json:"execution_count,omitempty"`

	// ErrorCode — код ошибки (только при IntentWorkflowError).
	ErrorCode ErrorCode `json:"error_code,omitempty"`

	// FailureReason — описание ошибки.
	FailureReason string `json:"failure_reason,omitempty"`

	// CanRetry — может ли engine повторить task.
	CanRetry bool `json:"can_retry,omitempty"`

	// CompensationRequired — нужна ли компенсация предыдущих шагов саги.
	CompensationRequired bool `json:"compensation_required,omitempty"`
}

// SagaMetadata — saga-часть envelope.
type SagaMetadata struct {
	// SagaID — идентификатор распределённой транзакции.
	SagaID string `json:"saga_id"`

	// StepName — имя шага саги.
	StepName string `json:"step_name"`

	// CanCompensate — записана ли компенсация для шага.
	CanCompensate bool `json:"can_compensate"`

	// CompensationData — данные для компенсации (ids созданных
	// артефактов, выделенных ресурсов, затронутые cache keys).
	CompensationData *CompensationData `json:"compensation_data,omitempty"`

	// ErrorCode — классификация упавшего шага: SAGA_STEP_FAILED.
	// Исходный код причины остаётся в WorkflowMetadata.ErrorCode —
	// по нему engine решает retry.
	ErrorCode ErrorCode `json:"error_code,omitempty"`

	// FailureReason — причина падения шага (шаг упал — компенсация
	// НЕ записывается, нечего откатывать).
	FailureReason string `json:"failure_reason,omitempty"`

	// Retryable — можно ли повторить упавший шаг.
	Retryable bool `json:"retryable,omitempty"`
}

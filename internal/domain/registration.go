package domain

import "time"

// WorkerStatus — статус регистрации task handler'а в оркестраторе.
//
// Жизненный цикл:
//
//	registered → (healthy | unhealthy) → restarted → registered
//	failed — терминальный, только если сам restart упал
type WorkerStatus string

const (
	// WorkerStatusRegistered — handler зарегистрирован и работает.
	WorkerStatusRegistered WorkerStatus = "registered"

	// WorkerStatusRestarted — handler был перезапущен health-check'ом.
	WorkerStatusRestarted WorkerStatus = "restarted"

	// WorkerStatusFailed — попытка restart упала. Терминальный статус.
	WorkerStatusFailed WorkerStatus = "failed"
)

// OverallHealth — агрегированное здоровье всех handlers процесса.
type OverallHealth string

const (
	// HealthHealthy — нет unhealthy handlers.
	HealthHealthy OverallHealth = "healthy"

	// HealthDegraded — unhealthy не больше половины.
	HealthDegraded OverallHealth = "degraded"

	// HealthCritical — unhealthy больше половины. Триггерит restart
	// каждого unhealthy handler'а.
	HealthCritical OverallHealth = "critical"
)

// HandlerHealth — health-контракт, который обязан выдавать каждый handler.
type HandlerHealth struct {
	// Status — самооценка handler'а ("ok" или "degraded").
	Status string `json:"status"`

	// SuccessRate — процент успехов [0..100] по собственному окну handler'а.
	// <= 50 означает unhealthy.
	SuccessRate float64 `json:"success_rate"`

	// TasksProcessed — сколько tasks обработано этим экземпляром.
	TasksProcessed int64 `json:"tasks_processed"`

	// RecentErrors — образцы последних ошибок.
	RecentErrors []string `json:"recent_errors,omitempty"`
}

// RegistrationError — элемент bounded журнала ошибок регистрации.
type RegistrationError struct {
	// Code — код ошибки из таксономии.
	Code ErrorCode `json:"code"`

	// Message — описание.
	Message string `json:"message"`

	// At — время возникновения.
	At time.Time `json:"at"`
}

// WorkerRegistration — снапшот состояния регистрации для operational surface.
//
// Живая регистрация (со ссылкой на handler) принадлежит оркестратору;
// наружу уходит только этот снапшот.
type WorkerRegistration struct {
	// TaskName — имя task.
	TaskName string `json:"task_name"`

	// Status — текущий статус регистрации.
	Status WorkerStatus `json:"status"`

	// TasksProcessed — обработано tasks с момента старта.
	TasksProcessed int64 `json:"tasks_processed"`

	// LastTaskAt — время последнего task-события.
	LastTaskAt *time.Time `json:"last_task_at,omitempty"`

	// Restarts — сколько раз handler перезапускался.
	Restarts int `json:"restarts"`

	// Errors — bounded журнал последних ошибок.
	Errors []RegistrationError `json:"errors,omitempty"`

	// Health — последний известный health handler'а.
	Health HandlerHealth `json:"health"`
}

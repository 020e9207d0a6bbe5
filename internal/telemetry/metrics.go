package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — процессные счётчики выполнения tasks.
//
// Инициализируются при конструировании worker'а, инкрементируются
// на каждом завершении task, сбрасываются только рестартом процесса.
//
// Две проекции одних данных:
//   - Prometheus коллекторы — для /metrics
//   - внутренние счётчики — для Snapshot() на /status
//
// Ошибки bookkeeping никогда не валят task: здесь нет error-возвратов.
type Metrics struct {
	mu sync.Mutex

	total       int64
	successes   int64
	failures    int64
	cacheHits   int64
	cacheMisses int64

	byIntent map[string]int64

	tokenTotal    int64
	tokenRequests int64
	tokenMax      int

	compensations        int64
	compensationFailures int64
	coordinationCalls    int64

	// Prometheus коллекторы
	tasksTotal    *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	intentsTotal  *prometheus.CounterVec
	tokenUsage    prometheus.Histogram
	taskDuration  prometheus.Histogram
	compensated   *prometheus.CounterVec
	coordinated   *prometheus.CounterVec
	sagaBacklog   prometheus.Gauge
	workflowCount prometheus.Gauge
}

// NewMetrics создаёт Metrics и регистрирует коллекторы в reg.
// Для тестов передавайте prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		byIntent: make(map[string]int64),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_tasks_total",
			Help: "Total task executions by result.",
		}, []string{"result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_cache_lookups_total",
			Help: "Response cache lookups by outcome.",
		}, []string{"outcome"}),
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_intents_total",
			Help: "Task results by intent.",
		}, []string{"intent"}),
		tokenUsage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "conveyor_token_usage",
			Help:    "Token/unit usage per downstream call.",
			Buckets: prometheus.ExponentialBuckets(16, 2, 12),
		}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "conveyor_task_duration_seconds",
			Help:    "Task execution duration.",
			Buckets: prometheus.DefBuckets,
		}),
		compensated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_saga_compensations_total",
			Help: "Saga compensations by result.",
		}, []string{"result"}),
		coordinated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_coordination_calls_total",
			Help: "Cross-workflow coordination calls by type and result.",
		}, []string{"type", "result"}),
		sagaBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_saga_backlog",
			Help: "Live saga compensation records.",
		}),
		workflowCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_workflow_states",
			Help: "Workflow state entries resident in memory.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.tasksTotal, m.cacheLookups, m.intentsTotal,
			m.tokenUsage, m.taskDuration,
			m.compensated, m.coordinated,
			m.sagaBacklog, m.workflowCount,
		)
	}

	return m
}

// RecordTask фиксирует завершение task.
func (m *Metrics) RecordTask(intent string, success bool, tokens int, duration time.Duration) {
	m.mu.Lock()
	m.total++
	if success {
		m.successes++
	} else {
		m.failures++
	}
	m.byIntent[intent]++
	if tokens > 0 {
		m.tokenTotal += int64(tokens)
		m.tokenRequests++
		if tokens > m.tokenMax {
			m.tokenMax = tokens
		}
	}
	m.mu.Unlock()

	result := "success"
	if !success {
		result = "failure"
	}
	m.tasksTotal.WithLabelValues(result).Inc()
	m.intentsTotal.WithLabelValues(intent).Inc()
	if tokens > 0 {
		m.tokenUsage.Observe(float64(tokens))
	}
	m.taskDuration.Observe(duration.Seconds())
}

// RecordCacheHit фиксирует попадание в response cache.
func (m *Metrics) RecordCacheHit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss фиксирует промах response cache.
func (m *Metrics) RecordCacheMiss() {
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordCompensation фиксирует компенсацию саги.
func (m *Metrics) RecordCompensation(success bool) {
	m.mu.Lock()
	m.compensations++
	if !success {
		m.compensationFailures++
	}
	m.mu.Unlock()

	result := "success"
	if !success {
		result = "failure"
	}
	m.compensated.WithLabelValues(result).Inc()
}

// RecordCoordination фиксирует cross-workflow вызов.
func (m *Metrics) RecordCoordination(coordType string, success bool) {
	m.mu.Lock()
	m.coordinationCalls++
	m.mu.Unlock()

	result := "success"
	if !success {
		result = "failure"
	}
	m.coordinated.WithLabelValues(coordType, result).Inc()
}

// SetSagaBacklog обновляет gauge бэклога компенсаций.
func (m *Metrics) SetSagaBacklog(n int) {
	m.sagaBacklog.Set(float64(n))
}

// SetWorkflowStates обновляет gauge резидентных workflow states.
func (m *Metrics) SetWorkflowStates(n int) {
	m.workflowCount.Set(float64(n))
}

// Snapshot — снимок счётчиков для operational surface.
type Snapshot struct {
	Total       int64 `json:"total"`
	Successes   int64 `json:"successes"`
	Failures    int64 `json:"failures"`
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	ByIntent map[string]int64 `json:"by_intent,omitempty"`

	TokenTotal   int64   `json:"token_total"`
	TokenAverage float64 `json:"token_average"`
	TokenMax     int     `json:"token_max"`

	Compensations        int64 `json:"compensations"`
	CompensationFailures int64 `json:"compensation_failures"`
	CoordinationCalls    int64 `json:"coordination_calls"`
}

// Snapshot возвращает консистентный снимок счётчиков.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byIntent := make(map[string]int64, len(m.byIntent))
	for intent, n := range m.byIntent {
		byIntent[intent] = n
	}

	var avg float64
	if m.tokenRequests > 0 {
		avg = float64(m.tokenTotal) / float64(m.tokenRequests)
	}

	return Snapshot{
		Total:                m.total,
		Successes:            m.successes,
		Failures:             m.failures,
		CacheHits:            m.cacheHits,
		CacheMisses:          m.cacheMisses,
		ByIntent:             byIntent,
		TokenTotal:           m.tokenTotal,
		TokenAverage:         avg,
		TokenMax:             m.tokenMax,
		Compensations:        m.compensations,
		CompensationFailures: m.compensationFailures,
		CoordinationCalls:    m.coordinationCalls,
	}
}

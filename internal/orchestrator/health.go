package orchestrator

import (
	"context"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// healthLoop периодически оценивает здоровье handlers.
func (o *Orchestrator) healthLoop(ctx context.Context) {
	defer close(o.healthDone)

	ticker := time.NewTicker(o.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.healthCheck(ctx)
		}
	}
}

// healthCheck — один проход health-оценки.
//
// Порядок:
//  1. точечный restart handlers с серией timeout-ошибок
//  2. агрегированная оценка; critical — restart каждого unhealthy
//  3. overload — снижение concurrency ceiling на четверть
func (o *Orchestrator) healthCheck(ctx context.Context) {
	o.mu.Lock()

	var timeouts []*registration
	var unhealthy []*registration
	total := len(o.registrations)
	unhealthyCount := 0

	for _, reg := range o.registrations {
		if reg.handler == nil || reg.status == domain.WorkerStatusFailed {
			continue
		}

		health := reg.handler.Health()

		if reg.timeoutStreak >= timeoutRestartStreak {
			timeouts = append(timeouts, reg)
			continue
		}
		if isUnhealthy(reg, health) {
			unhealthyCount++
			unhealthy = append(unhealthy, reg)
		}
	}

	overall := overallHealth(total, unhealthyCount)
	inflight := o.inflight
	o.mu.Unlock()

	for _, reg := range timeouts {
		o.logger.Warn("timeout streak detected, restarting handler",
			"task", reg.taskName,
			"streak", reg.timeoutStreak,
		)
		o.restart(ctx, reg.taskName)
	}

	if overall == domain.HealthCritical {
		o.logger.Error("overall health critical, restarting unhealthy handlers",
			"total", total,
			"unhealthy", unhealthyCount,
		)
		for _, reg := range unhealthy {
			o.restart(ctx, reg.taskName)
		}
	}

	if inflight > o.overloadThreshold {
		reduced := o.eng.ReduceConcurrency(concurrencyReduction)
		o.logger.Warn("overload detected, concurrency reduced",
			"inflight", inflight,
			"concurrency", reduced,
		)
	}
}

// restart пересоздаёт handler регистрации через её factory.
//
// Старый экземпляр закрывается, новый регистрируется в engine на
// месте (consumer очереди не пересоздаётся). Упавший restart —
// терминальный failed для этой регистрации; остальные продолжают.
func (o *Orchestrator) restart(ctx context.Context, taskName string) {
	o.mu.Lock()
	reg, ok := o.registrations[taskName]
	if !ok || reg.status == domain.WorkerStatusFailed {
		o.mu.Unlock()
		return
	}
	old := reg.handler
	factory := reg.factory
	o.mu.Unlock()

	if old != nil {
		if err := old.Shutdown(ctx); err != nil {
			o.logger.Warn("old handler shutdown failed",
				"task", taskName,
				"error", err,
			)
		}
	}

	fresh, err := factory()
	if err == nil {
		err = o.eng.RegisterTaskHandler(taskName, fresh.Execute)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		reg.status = domain.WorkerStatusFailed
		reg.errors = append(reg.errors, domain.RegistrationError{
			Code:    domain.ErrCodeInternal,
			Message: "restart failed: " + err.Error(),
			At:      time.Now(),
		})
		o.logger.Error("handler restart failed",
			"task", taskName,
			"error", err,
		)
		return
	}

	reg.handler = fresh
	reg.status = domain.WorkerStatusRestarted
	reg.restarts++
	reg.timeoutStreak = 0
	reg.errors = nil // новый экземпляр — чистый журнал

	o.logger.Info("handler restarted",
		"task", taskName,
		"restarts", reg.restarts,
	)
}

package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/handler"
)

type fakeEngine struct {
	mu          sync.Mutex
	registered  []string
	started     bool
	stopped     bool
	reductions  []float64
	concurrency int
	startErr    error
}

func (f *fakeEngine) RegisterTaskHandler(name string, _ engine.HandlerFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, name)
	return nil
}

func (f *fakeEngine) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeEngine) Reconnect() error    { return nil }
func (f *fakeEngine) IsConnected() bool   { return true }
func (f *fakeEngine) On(_ engine.Event, _ engine.EventCallback) {}

func (f *fakeEngine) ReduceConcurrency(fraction float64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reductions = append(f.reductions, fraction)
	if f.concurrency == 0 {
		f.concurrency = 5
	}
	f.concurrency = int(float64(f.concurrency) * fraction)
	return f.concurrency
}

type fakeHandler struct {
	mu        sync.Mutex
	rate      float64
	shutdowns int
}

func (f *fakeHandler) Execute(_ context.Context, _ map[string]any, _ *domain.WorkflowContext) *domain.TaskEnvelope {
	return &domain.TaskEnvelope{Intent: "query", Confidence: 1}
}

func (f *fakeHandler) Health() domain.HandlerHealth {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := "ok"
	if f.rate <= 50 {
		status = "degraded"
	}
	return domain.HandlerHealth{Status: status, SuccessRate: f.rate}
}

func (f *fakeHandler) Shutdown(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return nil
}

func factoryOf(h handler.Handler, err error) handler.Factory {
	return func() (handler.Handler, error) {
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	o := New(Config{Engine: &fakeEngine{}})

	if err := o.Register("router", factoryOf(&fakeHandler{rate: 100}, nil)); err != nil {
		t.Fatal(err)
	}
	if err := o.Register("router", factoryOf(&fakeHandler{rate: 100}, nil)); !errors.Is(err, ErrTaskRegistered) {
		t.Fatalf("err = %v, want ErrTaskRegistered", err)
	}
}

func TestStatusAggregatesHealth(t *testing.T) {
	o := New(Config{Engine: &fakeEngine{}})
	o.Register("healthy-1", factoryOf(&fakeHandler{rate: 95}, nil))
	o.Register("healthy-2", factoryOf(&fakeHandler{rate: 80}, nil))
	o.Register("sick", factoryOf(&fakeHandler{rate: 20}, nil))

	registrations, overall := o.Status()
	if len(registrations) != 3 {
		t.Fatalf("registrations = %d, want 3", len(registrations))
	}
	// 1 из 3 unhealthy — не больше половины
	if overall != domain.HealthDegraded {
		t.Errorf("overall = %s, want degraded", overall)
	}
}

func TestHealthCheckCriticalRestartsUnhealthy(t *testing.T) {
	eng := &fakeEngine{}
	o := New(Config{Engine: eng})

	sick := &fakeHandler{rate: 10}
	restarted := &fakeHandler{rate: 100}
	first := true
	o.Register("sick", func() (handler.Handler, error) {
		if first {
			first = false
			return sick, nil
		}
		return restarted, nil
	})

	_, overall := o.Status()
	if overall != domain.HealthCritical {
		t.Fatalf("overall = %s, want critical (1 of 1 unhealthy)", overall)
	}

	o.healthCheck(context.Background())

	if sick.shutdowns != 1 {
		t.Errorf("old handler shutdowns = %d, want 1", sick.shutdowns)
	}

	registrations, overall := o.Status()
	if overall != domain.HealthHealthy {
		t.Errorf("overall after restart = %s, want healthy", overall)
	}
	reg := registrations[0]
	if reg.Status != domain.WorkerStatusRestarted || reg.Restarts != 1 {
		t.Errorf("registration = %+v, want restarted once", reg)
	}
	// Начальная регистрация + подмена после restart
	if len(eng.registered) != 2 {
		t.Errorf("engine registrations = %v, want 2 entries", eng.registered)
	}
}

func TestHealthCheckRestartFailureIsTerminal(t *testing.T) {
	eng := &fakeEngine{}
	o := New(Config{Engine: eng})

	sick := &fakeHandler{rate: 0}
	first := true
	o.Register("sick", func() (handler.Handler, error) {
		if first {
			first = false
			return sick, nil
		}
		return nil, errors.New("no capacity")
	})
	o.Register("fine", factoryOf(&fakeHandler{rate: 100}, nil))
	o.Register("fine-2", factoryOf(&fakeHandler{rate: 100}, nil))

	// Принудительный точечный restart через таймауты
	for i := 0; i < timeoutRestartStreak; i++ {
		o.onTaskStarted(engine.TaskEvent{TaskName: "sick"})
		o.onTaskFailed(engine.TaskEvent{
			TaskName:  "sick",
			ErrorCode: domain.ErrCodeTimeout,
			At:        time.Now(),
		})
	}
	o.healthCheck(context.Background())

	registrations, _ := o.Status()
	var sickReg *domain.WorkerRegistration
	for i := range registrations {
		if registrations[i].TaskName == "sick" {
			sickReg = &registrations[i]
		}
	}
	if sickReg == nil || sickReg.Status != domain.WorkerStatusFailed {
		t.Fatalf("sick registration = %+v, want terminal failed", sickReg)
	}
	if len(sickReg.Errors) == 0 {
		t.Error("failed restart must be journaled")
	}

	// Терминальный failed не перезапускается повторно
	o.healthCheck(context.Background())
	registrations, _ = o.Status()
	for _, reg := range registrations {
		if reg.TaskName == "sick" && reg.Status != domain.WorkerStatusFailed {
			t.Error("terminal failed must stay failed")
		}
	}
}

func TestTimeoutStreakTriggersTargetedRestart(t *testing.T) {
	eng := &fakeEngine{}
	o := New(Config{Engine: eng})

	healthy := &fakeHandler{rate: 100}
	fresh := &fakeHandler{rate: 100}
	first := true
	o.Register("flaky", func() (handler.Handler, error) {
		if first {
			first = false
			return healthy, nil
		}
		return fresh, nil
	})
	o.Register("stable", factoryOf(&fakeHandler{rate: 100}, nil))

	for i := 0; i < timeoutRestartStreak; i++ {
		o.onTaskStarted(engine.TaskEvent{TaskName: "flaky"})
		o.onTaskFailed(engine.TaskEvent{
			TaskName:  "flaky",
			ErrorCode: domain.ErrCodeTimeout,
			At:        time.Now(),
		})
	}

	o.healthCheck(context.Background())

	registrations, _ := o.Status()
	for _, reg := range registrations {
		switch reg.TaskName {
		case "flaky":
			if reg.Restarts != 1 {
				t.Errorf("flaky restarts = %d, want 1", reg.Restarts)
			}
		case "stable":
			if reg.Restarts != 0 {
				t.Errorf("stable restarts = %d, want 0 (targeted restart only)", reg.Restarts)
			}
		}
	}
	if healthy.shutdowns != 1 {
		t.Errorf("flaky old instance shutdowns = %d, want 1", healthy.shutdowns)
	}
}

func TestSuccessResetsTimeoutStreak(t *testing.T) {
	o := New(Config{Engine: &fakeEngine{}})
	o.Register("router", factoryOf(&fakeHandler{rate: 100}, nil))

	for i := 0; i < timeoutRestartStreak-1; i++ {
		o.onTaskStarted(engine.TaskEvent{TaskName: "router"})
		o.onTaskFailed(engine.TaskEvent{
			TaskName:  "router",
			ErrorCode: domain.ErrCodeTimeout,
			At:        time.Now(),
		})
	}
	o.onTaskStarted(engine.TaskEvent{TaskName: "router"})
	o.onTaskCompleted(engine.TaskEvent{TaskName: "router", At: time.Now()})

	o.healthCheck(context.Background())

	registrations, _ := o.Status()
	if registrations[0].Restarts != 0 {
		t.Errorf("restarts = %d, success must reset the timeout streak", registrations[0].Restarts)
	}
}

func TestOverloadReducesConcurrency(t *testing.T) {
	eng := &fakeEngine{}
	o := New(Config{Engine: eng, OverloadThreshold: 2})
	o.Register("router", factoryOf(&fakeHandler{rate: 100}, nil))

	for i := 0; i < 5; i++ {
		o.onTaskStarted(engine.TaskEvent{TaskName: "router"})
	}

	o.healthCheck(context.Background())

	if len(eng.reductions) != 1 || eng.reductions[0] != concurrencyReduction {
		t.Errorf("reductions = %v, want one call with %v", eng.reductions, concurrencyReduction)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	eng := &fakeEngine{}
	o := New(Config{Engine: eng})

	h := &fakeHandler{rate: 100}
	o.Register("router", factoryOf(h, nil))

	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := o.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := o.Shutdown(context.Background()); err != nil {
		t.Fatal("second shutdown must be a no-op")
	}

	if h.shutdowns != 1 {
		t.Errorf("handler shutdowns = %d, want 1", h.shutdowns)
	}
	if !eng.stopped {
		t.Error("engine client must be stopped")
	}
}

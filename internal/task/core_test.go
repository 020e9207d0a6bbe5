package task

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Conveyor/internal/cache"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/retry"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func newTestCore(t *testing.T, caller Caller) *Core {
	t.Helper()
	executor := retry.New(retry.Config{Policy: retry.Policy{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
	}})
	return NewCore(Config{
		TaskName: "router",
		Cache:    cache.New(10, time.Minute),
		Metrics:  telemetry.NewMetrics(prometheus.NewRegistry()),
		Executor: executor,
		Caller:   caller,
	})
}

func TestExecuteSuccess(t *testing.T) {
	core := newTestCore(t, CallerFunc(func(ctx context.Context, req *CallRequest) (*CallResult, error) {
		if req.Prompt != "create order" {
			t.Errorf("prompt = %q, want normalized command", req.Prompt)
		}
		return &CallResult{Intent: "create_order", Confidence: 0.92, TokenUsage: 40}, nil
	}))

	env := core.Execute(context.Background(), map[string]any{"command": "Create  Order"}, nil)

	if env.IsError() {
		t.Fatalf("unexpected error envelope: %+v", env)
	}
	if env.Intent != "create_order" || env.Confidence != 0.92 {
		t.Errorf("intent=%q confidence=%v", env.Intent, env.Confidence)
	}
	if len(env.NextSteps) == 0 {
		t.Error("known intent should carry next steps")
	}
	if len(env.SuggestedActions) != 0 {
		t.Errorf("high confidence should not suggest clarification, got %v", env.SuggestedActions)
	}
}

func TestExecuteInvalidInputNoDownstreamCall(t *testing.T) {
	calls := 0
	core := newTestCore(t, CallerFunc(func(ctx context.Context, req *CallRequest) (*CallResult, error) {
		calls++
		return &CallResult{Intent: "query", Confidence: 1}, nil
	}))

	env := core.Execute(context.Background(), map[string]any{}, nil)

	if !env.IsError() {
		t.Fatal("expected error envelope for empty input")
	}
	if env.WorkflowMetadata.ErrorCode != domain.ErrCodeValidation {
		t.Errorf("code = %s, want VALIDATION_ERROR", env.WorkflowMetadata.ErrorCode)
	}
	if env.WorkflowMetadata.CanRetry {
		t.Error("validation errors must not be retryable")
	}
	if calls != 0 {
		t.Errorf("downstream called %d times, want 0", calls)
	}
}

func TestExecuteCacheHitSkipsDownstream(t *testing.T) {
	calls := 0
	core := newTestCore(t, CallerFunc(func(ctx context.Context, req *CallRequest) (*CallResult, error) {
		calls++
		return &CallResult{Intent: "query", Confidence: 0.9}, nil
	}))

	input := map[string]any{"command": "show report"}
	first := core.Execute(context.Background(), input, nil)
	second := core.Execute(context.Background(), input, nil)

	if calls != 1 {
		t.Fatalf("downstream called %d times, want 1", calls)
	}
	if first.Cached {
		t.Error("first execution must not be marked cached")
	}
	if !second.Cached {
		t.Error("second execution should come from cache")
	}
	if second.Intent != "query" {
		t.Errorf("cached intent = %q, want query", second.Intent)
	}
}

func TestExecuteRetriesThenErrorEnvelope(t *testing.T) {
	calls := 0
	core := newTestCore(t, CallerFunc(func(ctx context.Context, req *CallRequest) (*CallResult, error) {
		calls++
		return nil, domain.NewTaskError(domain.ErrCodeNetwork, "connection reset", true)
	}))

	wfctx := &domain.WorkflowContext{WorkflowID: "wf-1", SagaID: "saga-1"}
	env := core.Execute(context.Background(), map[string]any{"command": "provision"}, wfctx)

	if calls != 3 {
		t.Fatalf("downstream called %d times, want 1 + 2 retries", calls)
	}
	if !env.IsError() {
		t.Fatal("expected error envelope after exhausted retries")
	}
	if env.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", env.Confidence)
	}
	meta := env.WorkflowMetadata
	if meta.WorkflowID != "wf-1" {
		t.Errorf("WorkflowID = %q, want wf-1", meta.WorkflowID)
	}
	if !meta.CanRetry {
		t.Error("network failure should remain retryable for the engine")
	}
}

func TestExecuteNonRetryableSagaRequiresCompensation(t *testing.T) {
	core := newTestCore(t, CallerFunc(func(ctx context.Context, req *CallRequest) (*CallResult, error) {
		return nil, domain.NewTaskError(domain.ErrCodeAuth, "token rejected", false)
	}))

	wfctx := &domain.WorkflowContext{WorkflowID: "wf-1", SagaID: "saga-1"}
	env := core.Execute(context.Background(), map[string]any{"command": "provision"}, wfctx)

	if !env.IsError() {
		t.Fatal("expected error envelope")
	}
	if env.WorkflowMetadata.CanRetry {
		t.Error("auth failure without refresher must not be retryable")
	}
	if !env.WorkflowMetadata.CompensationRequired {
		t.Error("non-retryable saga failure should require compensation")
	}
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	core := newTestCore(t, CallerFunc(func(ctx context.Context, req *CallRequest) (*CallResult, error) {
		panic("task body exploded")
	}))

	env := core.Execute(context.Background(), map[string]any{"command": "query"}, nil)

	if !env.IsError() {
		t.Fatal("panic must surface as error envelope, not propagate")
	}
	if env.WorkflowMetadata.ErrorCode != domain.ErrCodeInternal {
		t.Errorf("code = %s, want INTERNAL_ERROR", env.WorkflowMetadata.ErrorCode)
	}
}

func TestExecuteEmptyDownstreamResultFallsBack(t *testing.T) {
	core := newTestCore(t, CallerFunc(func(ctx context.Context, req *CallRequest) (*CallResult, error) {
		return nil, nil
	}))

	env := core.Execute(context.Background(), map[string]any{"command": "query"}, nil)

	if env.IsError() {
		t.Fatalf("fallback must not be an error envelope: %+v", env)
	}
	if env.Intent != domain.IntentUnknown {
		t.Errorf("intent = %q, want unknown", env.Intent)
	}
	if len(env.SuggestedActions) == 0 || env.SuggestedActions[0] != "needs_clarification" {
		t.Errorf("low confidence fallback should suggest clarification, got %v", env.SuggestedActions)
	}
}

func TestExecuteTracksWorkflowInsights(t *testing.T) {
	core := newTestCore(t, CallerFunc(func(ctx context.Context, req *CallRequest) (*CallResult, error) {
		return &CallResult{Intent: "query", Confidence: 0.9}, nil
	}))
	core.cache = nil // повторы должны доходить до истории, не до кэша

	wfctx := &domain.WorkflowContext{WorkflowID: "wf-1"}
	input := map[string]any{"command": "show report"}

	var env *domain.TaskEnvelope
	for i := 0; i < 3; i++ {
		env = core.Execute(context.Background(), input, wfctx)
	}

	if env.WorkflowMetadata == nil || env.WorkflowMetadata.ExecutionCount != 3 {
		t.Fatalf("metadata = %+v, want execution count 3", env.WorkflowMetadata)
	}
	if len(env.Insights) == 0 {
		t.Error("repeated command should produce an insight")
	}
}

func TestExecuteFailureStillRecordsWorkflowState(t *testing.T) {
	core := newTestCore(t, CallerFunc(func(ctx context.Context, req *CallRequest) (*CallResult, error) {
		return nil, domain.NewTaskError(domain.ErrCodeAuth, "token rejected", false)
	}))

	wfctx := &domain.WorkflowContext{WorkflowID: "wf-1"}
	env := core.Execute(context.Background(), map[string]any{"command": "provision"}, wfctx)

	if !env.IsError() {
		t.Fatal("expected error envelope")
	}
	// Состояние обновляется до task body: упавшее выполнение в истории
	state, ok := core.States().Get("wf-1")
	if !ok {
		t.Fatal("failed execution should leave a workflow state record")
	}
	if state.ExecutionCount != 1 {
		t.Errorf("ExecutionCount = %d, want 1", state.ExecutionCount)
	}
	if env.WorkflowMetadata.ExecutionCount != 1 {
		t.Errorf("envelope ExecutionCount = %d, want 1", env.WorkflowMetadata.ExecutionCount)
	}
}

func TestLongSessionInsightThreshold(t *testing.T) {
	execCtx := &ExecutionContext{
		WorkflowID:     "wf-1",
		Command:        "query",
		ExecutionCount: longSessionThreshold - 1,
	}
	for _, insight := range insightsFor(execCtx) {
		if insight == "long-running workflow, consider summarizing state" {
			t.Fatalf("insight fired one execution early at count %d", execCtx.ExecutionCount)
		}
	}

	execCtx.ExecutionCount = longSessionThreshold
	found := false
	for _, insight := range insightsFor(execCtx) {
		if insight == "long-running workflow, consider summarizing state" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected long-session insight at count %d", execCtx.ExecutionCount)
	}
}

func TestExecuteHonorsTimeBudget(t *testing.T) {
	core := newTestCore(t, CallerFunc(func(ctx context.Context, req *CallRequest) (*CallResult, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("downstream context should carry the task time budget")
		}
		return &CallResult{Intent: "query", Confidence: 0.9}, nil
	}))

	wfctx := &domain.WorkflowContext{TimeoutSec: 5}
	env := core.Execute(context.Background(), map[string]any{"command": "query"}, wfctx)
	if env.IsError() {
		t.Fatalf("unexpected error envelope: %+v", env)
	}
}

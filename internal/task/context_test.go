package task

import (
	"errors"
	"strings"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]any
		want    string
		wantErr error
	}{
		{
			name:    "empty input",
			input:   map[string]any{},
			wantErr: ErrEmptyInput,
		},
		{
			name:    "nil input",
			input:   nil,
			wantErr: ErrEmptyInput,
		},
		{
			name:  "command field",
			input: map[string]any{"command": "  Create   Order  "},
			want:  "create order",
		},
		{
			name:  "text fallback",
			input: map[string]any{"text": "cancel order"},
			want:  "cancel order",
		},
		{
			name:    "blank command only",
			input:   map[string]any{"command": "   "},
			wantErr: ErrNoCommand,
		},
		{
			name:    "no recognizable field",
			input:   map[string]any{"payload": 42},
			wantErr: ErrNoCommand,
		},
		{
			name:    "non-string workflow id",
			input:   map[string]any{"command": "query", "workflow_id": 7},
			wantErr: ErrBadWorkflowID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateInput(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("command = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComplexityHints(t *testing.T) {
	states := NewStateStore(0)

	short := buildExecutionContext("router", "hi", nil, states)
	if short.Complexity != "simple" || short.ModelHint != "fast" {
		t.Errorf("short command: complexity=%q hint=%q", short.Complexity, short.ModelHint)
	}

	long := buildExecutionContext("router", strings.Repeat("word ", 50), nil, states)
	if long.Complexity != "complex" || long.ModelHint != "powerful" {
		t.Errorf("long command: complexity=%q hint=%q", long.Complexity, long.ModelHint)
	}
}

func TestBuildExecutionContextLoadsWorkflowState(t *testing.T) {
	states := NewStateStore(0)
	states.Record("wf-1", "first")
	states.Record("wf-1", "second")

	wfctx := &domain.WorkflowContext{WorkflowID: "wf-1", SagaID: "saga-1"}
	execCtx := buildExecutionContext("router", "third", wfctx, states)

	if execCtx.ExecutionCount != 2 {
		t.Errorf("ExecutionCount = %d, want 2", execCtx.ExecutionCount)
	}
	if len(execCtx.CommandHistory) != 2 {
		t.Errorf("history length = %d, want 2", len(execCtx.CommandHistory))
	}
	if execCtx.SagaID != "saga-1" {
		t.Errorf("SagaID = %q, want saga-1", execCtx.SagaID)
	}
}

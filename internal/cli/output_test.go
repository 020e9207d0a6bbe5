package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferedOutput(jsonMode bool) (*Output, *bytes.Buffer) {
	var buf bytes.Buffer
	out := NewOutput(jsonMode)
	out.w = &buf
	return out, &buf
}

func TestOutputRegistrationsTable(t *testing.T) {
	out, buf := newBufferedOutput(false)

	out.Registrations([]RegistrationResponse{
		{
			TaskName:       "router",
			Status:         "registered",
			TasksProcessed: 12,
			Restarts:       1,
			Health:         HandlerHealthResponse{SuccessRate: 91.7},
		},
	})

	rendered := buf.String()
	for _, want := range []string{"TASK", "router", "registered", "91.7%"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("table output missing %q:\n%s", want, rendered)
		}
	}
}

func TestOutputStatusDetails(t *testing.T) {
	out, buf := newBufferedOutput(false)

	out.Status(&StatusResponse{
		Health:          "healthy",
		EngineConnected: true,
		SagaBacklog:     2,
	})

	rendered := buf.String()
	for _, want := range []string{"Health:", "healthy", "connected", "Saga backlog:"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("status output missing %q:\n%s", want, rendered)
		}
	}
}

func TestOutputJSONMode(t *testing.T) {
	out, buf := newBufferedOutput(true)

	out.Compensation(&CompensationResponse{SagaID: "saga-1", Compensated: true})

	var decoded CompensationResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json mode should emit valid JSON: %v", err)
	}
	if decoded.SagaID != "saga-1" || !decoded.Compensated {
		t.Errorf("decoded = %+v, want saga-1 compensated", decoded)
	}
}

func TestOutputSagaRecordFailureReason(t *testing.T) {
	out, buf := newBufferedOutput(false)

	out.SagaRecord(&SagaRecordResponse{SagaID: "saga-1", StepName: "reserve"})
	if strings.Contains(buf.String(), "Failure reason") {
		t.Error("failure reason row should be omitted when empty")
	}

	buf.Reset()
	out.SagaRecord(&SagaRecordResponse{
		SagaID:        "saga-1",
		StepName:      "reserve",
		FailureReason: "release failed",
	})
	if !strings.Contains(buf.String(), "release failed") {
		t.Errorf("failure reason missing:\n%s", buf.String())
	}
}

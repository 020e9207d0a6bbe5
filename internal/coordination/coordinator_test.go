package coordination

import (
	"context"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

type fakeTransport struct {
	calls []string
	err   error
}

func (f *fakeTransport) PublishWorkflowState(_ context.Context, _, _ string, _ map[string]any) error {
	f.calls = append(f.calls, "state_sync")
	return f.err
}

func (f *fakeTransport) PublishWorkflowEvent(_ context.Context, _, _ string, _ map[string]any) error {
	f.calls = append(f.calls, "event_propagation")
	return f.err
}

func (f *fakeTransport) TransferResource(_ context.Context, _, _, _ string, _ map[string]any) error {
	f.calls = append(f.calls, "resource_handoff")
	return f.err
}

func (f *fakeTransport) SignalCompletion(_ context.Context, _, _ string, _ map[string]any) error {
	f.calls = append(f.calls, "completion_signal")
	return f.err
}

func TestCoordinateDispatchesByType(t *testing.T) {
	types := []domain.CoordinationType{
		domain.CoordStateSync,
		domain.CoordEventPropagation,
		domain.CoordResourceHandoff,
		domain.CoordCompletionSignal,
	}

	for _, coordType := range types {
		t.Run(string(coordType), func(t *testing.T) {
			transport := &fakeTransport{}
			coordinator := NewCoordinator(transport, nil, nil)

			result := coordinator.Coordinate(context.Background(), "wf-src", &domain.CoordinationRequest{
				Type:             coordType,
				TargetWorkflowID: "wf-dst",
				ResourceID:       "res-1",
			})

			if !result.Success {
				t.Fatalf("result = %+v, want success", result)
			}
			if len(transport.calls) != 1 || transport.calls[0] != string(coordType) {
				t.Errorf("transport calls = %v, want [%s]", transport.calls, coordType)
			}
			if result.CompletedAt.IsZero() {
				t.Error("CompletedAt must be set")
			}
		})
	}
}

func TestCoordinateMissingTargetSkipsTransport(t *testing.T) {
	transport := &fakeTransport{}
	coordinator := NewCoordinator(transport, nil, nil)

	result := coordinator.Coordinate(context.Background(), "wf-src", &domain.CoordinationRequest{
		Type: domain.CoordStateSync,
	})

	if result.Success {
		t.Fatal("missing target must fail")
	}
	if result.ErrorCode != domain.ErrCodeCoordinationFailed {
		t.Errorf("code = %s, want COORDINATION_FAILED", result.ErrorCode)
	}
	if result.RequiresRetry {
		t.Error("precondition violation must not be retryable")
	}
	if len(transport.calls) != 0 {
		t.Errorf("transport must not be called, got %v", transport.calls)
	}
}

func TestCoordinateUnknownType(t *testing.T) {
	transport := &fakeTransport{}
	coordinator := NewCoordinator(transport, nil, nil)

	result := coordinator.Coordinate(context.Background(), "wf-src", &domain.CoordinationRequest{
		Type:             "broadcast",
		TargetWorkflowID: "wf-dst",
	})

	if result.Success || result.RequiresRetry {
		t.Fatalf("result = %+v, want non-retryable failure", result)
	}
	if len(transport.calls) != 0 {
		t.Error("unknown type must not reach transport")
	}
}

func TestCoordinateHandoffRequiresResource(t *testing.T) {
	transport := &fakeTransport{}
	coordinator := NewCoordinator(transport, nil, nil)

	result := coordinator.Coordinate(context.Background(), "wf-src", &domain.CoordinationRequest{
		Type:             domain.CoordResourceHandoff,
		TargetWorkflowID: "wf-dst",
	})

	if result.Success || len(transport.calls) != 0 {
		t.Fatalf("handoff without resource id must fail before transport: %+v", result)
	}
}

func TestCoordinateTransportFailureIsRetryable(t *testing.T) {
	transport := &fakeTransport{
		err: domain.NewTaskError(domain.ErrCodeNetwork, "broker unavailable", true),
	}
	coordinator := NewCoordinator(transport, nil, nil)

	result := coordinator.Coordinate(context.Background(), "wf-src", &domain.CoordinationRequest{
		Type:             domain.CoordEventPropagation,
		TargetWorkflowID: "wf-dst",
	})

	if result.Success {
		t.Fatal("transport failure must not report success")
	}
	if !result.RequiresRetry {
		t.Error("network failure should advise retry to the caller")
	}
	if len(transport.calls) != 1 {
		t.Errorf("transport must be called exactly once, got %d", len(transport.calls))
	}
}

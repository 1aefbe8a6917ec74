package core

import (
	"testing"
)

func TestEventTypeValidity(t *testing.T) {
	for _, eventType := range EventTypes() {
		if !eventType.Valid() {
			t.Fatalf("expected %q to be valid", eventType)
		}
	}
	if EventType("order.created").Valid() {
		t.Fatal("expected unknown event type to be invalid")
	}
	if EventType("").Valid() {
		t.Fatal("expected empty event type to be invalid")
	}
}

func TestClampPriority(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{-5, PriorityNormal},
		{PriorityNormal, PriorityNormal},
		{PriorityElevated, PriorityElevated},
		{PriorityCritical, PriorityCritical},
		{99, PriorityCritical},
	}
	for _, tc := range cases {
		if got := ClampPriority(tc.in); got != tc.want {
			t.Fatalf("ClampPriority(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestQueueStatusTerminal(t *testing.T) {
	if QueueStatusPending.Terminal() || QueueStatusClaimed.Terminal() {
		t.Fatal("pending and claimed must not be terminal")
	}
	for _, status := range []QueueStatus{QueueStatusSent, QueueStatusFailed, QueueStatusCancelled} {
		if !status.Terminal() {
			t.Fatalf("expected %q to be terminal", status)
		}
	}
}

func TestEntityRefString(t *testing.T) {
	ref := EntityRef{Type: "lead", ID: "42"}
	if ref.String() != "lead:42" {
		t.Fatalf("unexpected entity ref: %q", ref.String())
	}
	if (EntityRef{}).String() != "" {
		t.Fatal("expected empty ref to render empty")
	}
	if !(EntityRef{}).Empty() {
		t.Fatal("expected zero ref to report empty")
	}
}

func TestQueueDepthTotal(t *testing.T) {
	depth := QueueDepth{
		{Status: QueueStatusPending, Priority: PriorityNormal, Count: 3},
		{Status: QueueStatusPending, Priority: PriorityCritical, Count: 1},
		{Status: QueueStatusFailed, Priority: PriorityNormal, Count: 2},
	}
	if depth.Total() != 6 {
		t.Fatalf("expected total 6, got %d", depth.Total())
	}
}

func TestEventRegistry(t *testing.T) {
	registry := NewEventRegistry()

	if err := registry.Register("bogus", func(Workflow, CallbackDecision) (*EmitRequest, error) {
		return nil, nil
	}); err == nil {
		t.Fatal("expected unknown event type to be rejected")
	}
	if err := registry.Register(EventDemoDeployed, nil); err == nil {
		t.Fatal("expected nil handler to be rejected")
	}

	if err := registry.Register(EventDemoDeployed, func(wf Workflow, _ CallbackDecision) (*EmitRequest, error) {
		return &EmitRequest{EventType: EventWorkflowStep, TargetURL: "https://x", Payload: []byte(`{}`)}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	fn, ok := registry.Resolve(EventDemoDeployed)
	if !ok || fn == nil {
		t.Fatal("expected registered handler to resolve")
	}
	if _, ok := registry.Resolve(EventCampaignSent); ok {
		t.Fatal("expected unregistered event type to miss")
	}
}

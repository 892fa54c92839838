package service

import (
	"context"
	"testing"
)

func TestTrackerCancelBeforeCancelFuncIsSet(t *testing.T) {
	registry := NewJobRegistry(10)
	tracker := registry.add("job")

	tracker.RequestCancel()
	if !tracker.Cancelled() {
		t.Fatal("tracker should report cancellation")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tracker.setCancel(cancel)

	select {
	case <-ctx.Done():
	default:
		t.Error("late cancel func was not invoked")
	}
}

func TestTrackerSeal(t *testing.T) {
	tests := []struct {
		name          string
		cancelFirst   bool
		wantCancelled bool
	}{
		{"cancel before seal", true, true},
		{"seal before cancel", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewJobRegistry(10).add("job")
			if tt.cancelFirst && !tracker.RequestCancel() {
				t.Fatal("cancel refused before seal")
			}

			if got := tracker.seal(); got != tt.wantCancelled {
				t.Errorf("seal = %v, want %v", got, tt.wantCancelled)
			}
			if tracker.RequestCancel() {
				t.Error("cancel accepted after seal")
			}
			if tracker.Cancelled() != tt.wantCancelled {
				t.Errorf("cancelled = %v, want %v", tracker.Cancelled(), tt.wantCancelled)
			}
		})
	}
}

func TestRegistryLifecycle(t *testing.T) {
	registry := NewJobRegistry(0)
	registry.add("a")
	registry.add("b")
	if registry.Active() != 2 {
		t.Fatalf("active = %d, want 2", registry.Active())
	}

	registry.remove("a")
	if _, ok := registry.get("a"); ok {
		t.Error("removed tracker still present")
	}
	if registry.Active() != 1 {
		t.Errorf("active = %d, want 1", registry.Active())
	}
}

func TestTrackerUnboundedLog(t *testing.T) {
	tracker := NewJobRegistry(0).add("job")
	for i := 0; i < 50; i++ {
		tracker.Log("line")
	}
	if got := len(tracker.Progress()); got != 50 {
		t.Errorf("progress lines = %d, want 50", got)
	}
}

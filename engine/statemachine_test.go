package engine_test

import (
	"errors"
	"testing"

	"github.com/warp/garage-engine/engine"
)

// =============================================================================
// LEGAL EDGES
// =============================================================================

func TestTransition_LegalEdges(t *testing.T) {
	cases := []struct {
		name  string
		from  engine.UnitStatus
		event engine.UnitEvent
		want  engine.UnitStatus
	}{
		{"start picks up pending work", engine.UnitPending, engine.EventStart, engine.UnitInProgress},
		{"finish straight from pending", engine.UnitPending, engine.EventFinish, engine.UnitCompleted},
		{"finish in-progress work", engine.UnitInProgress, engine.EventFinish, engine.UnitCompleted},
		{"approve completed work", engine.UnitCompleted, engine.EventApprove, engine.UnitApproved},
		{"reject completed work", engine.UnitCompleted, engine.EventReject, engine.UnitRejected},
		{"restart rejected work", engine.UnitRejected, engine.EventRestart, engine.UnitInProgress},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.Transition(tc.from, tc.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

// =============================================================================
// ILLEGAL EDGES
// =============================================================================

func TestTransition_IllegalEdges(t *testing.T) {
	cases := []struct {
		name  string
		from  engine.UnitStatus
		event engine.UnitEvent
	}{
		{"cannot approve pending work", engine.UnitPending, engine.EventApprove},
		{"cannot reject pending work", engine.UnitPending, engine.EventReject},
		{"cannot approve in-progress work", engine.UnitInProgress, engine.EventApprove},
		{"cannot restart in-progress work", engine.UnitInProgress, engine.EventRestart},
		{"cannot start completed work", engine.UnitCompleted, engine.EventStart},
		{"approved admits nothing more", engine.UnitApproved, engine.EventApprove},
		{"approved cannot be rejected", engine.UnitApproved, engine.EventReject},
		{"approved cannot be restarted", engine.UnitApproved, engine.EventRestart},
		{"rejected cannot be approved directly", engine.UnitRejected, engine.EventApprove},
		{"rejected cannot be finished directly", engine.UnitRejected, engine.EventFinish},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.Transition(tc.from, tc.event)
			if err == nil {
				t.Fatalf("expected error, got transition to %s", got)
			}
			if !errors.Is(err, engine.ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if got != tc.from {
				t.Errorf("failed transition should return current status, got %s", got)
			}

			var transErr *engine.InvalidTransitionError
			if !errors.As(err, &transErr) {
				t.Fatalf("expected InvalidTransitionError, got %T", err)
			}
			if transErr.From != tc.from || transErr.Event != tc.event {
				t.Errorf("error should carry the attempted edge, got %s/%s", transErr.From, transErr.Event)
			}
		})
	}
}

// =============================================================================
// TERMINAL STATES
// =============================================================================

func TestTerminal(t *testing.T) {
	// GIVEN: The five unit statuses
	// THEN: Only approved and rejected count as reviewed

	terminal := map[engine.UnitStatus]bool{
		engine.UnitPending:    false,
		engine.UnitInProgress: false,
		engine.UnitCompleted:  false,
		engine.UnitApproved:   true,
		engine.UnitRejected:   true,
	}
	for status, want := range terminal {
		if status.Terminal() != want {
			t.Errorf("%s: Terminal() = %v, want %v", status, status.Terminal(), want)
		}
	}
}

// The round trip that matters operationally: rejected work goes back,
// gets redone, and can then be approved.
func TestTransition_RestartCycle(t *testing.T) {
	status := engine.UnitCompleted

	status, err := engine.Transition(status, engine.EventReject)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	status, err = engine.Transition(status, engine.EventRestart)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if status != engine.UnitInProgress {
		t.Fatalf("restart should land in in-progress, got %s", status)
	}
	status, err = engine.Transition(status, engine.EventFinish)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	status, err = engine.Transition(status, engine.EventApprove)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if status != engine.UnitApproved {
		t.Fatalf("expected approved, got %s", status)
	}
}

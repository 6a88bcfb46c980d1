/*
statemachine.go - Shared state machine for units of work

PURPOSE:
  Service-batch items and worker assignments move through the same
  lifecycle. Both unit kinds share this one transition table so the
  legality of an edge is decided in exactly one place.

LIFECYCLE:

      pending ──start──▶ in-progress ──finish──▶ completed
         │                    ▲                  │        │
         └──────finish────────│──────────────────┘        │
                              │                approve  reject
                              │                   │        │
                              │                   ▼        ▼
                              └───restart──── rejected  approved

  approved is terminal. rejected is terminal except for the single
  backward edge: restart returns the unit to in-progress.

EARNINGS GUARD:
  Earnings are applied only on the completed → approved edge, and
  approved admits no further transitions, so a unit can never be
  evaluated for earnings twice. A restarted unit passed through
  rejected, which never applied earnings, so there is nothing to
  reverse.

SEE ALSO:
  - shop/service.go: Applies transitions to persisted units
  - shop/earnings.go: The only consumer of the approve edge
*/
package engine

// =============================================================================
// STATES AND EVENTS
// =============================================================================

type UnitStatus string

const (
	UnitPending    UnitStatus = "pending"
	UnitInProgress UnitStatus = "in-progress"
	UnitCompleted  UnitStatus = "completed"
	UnitApproved   UnitStatus = "approved"
	UnitRejected   UnitStatus = "rejected"
)

type UnitEvent string

const (
	EventStart   UnitEvent = "start"   // worker picks the unit up
	EventFinish  UnitEvent = "finish"  // worker marks the unit done
	EventApprove UnitEvent = "approve" // reviewer accepts the finished unit
	EventReject  UnitEvent = "reject"  // reviewer declines the finished unit
	EventRestart UnitEvent = "restart" // rejected unit goes back to work
)

// Terminal reports whether a status admits no forward transition.
// rejected is terminal for gate purposes even though restart exists:
// a rejected unit counts as reviewed until someone restarts it.
func (s UnitStatus) Terminal() bool {
	return s == UnitApproved || s == UnitRejected
}

// =============================================================================
// TRANSITION TABLE
// =============================================================================

var transitions = map[UnitStatus]map[UnitEvent]UnitStatus{
	UnitPending: {
		EventStart:  UnitInProgress,
		EventFinish: UnitCompleted,
	},
	UnitInProgress: {
		EventFinish: UnitCompleted,
	},
	UnitCompleted: {
		EventApprove: UnitApproved,
		EventReject:  UnitRejected,
	},
	UnitRejected: {
		EventRestart: UnitInProgress,
	},
}

// Transition returns the status reached by applying event to current.
// Every edge not in the table is rejected with InvalidTransitionError.
func Transition(current UnitStatus, event UnitEvent) (UnitStatus, error) {
	if next, ok := transitions[current][event]; ok {
		return next, nil
	}
	return current, &InvalidTransitionError{From: current, Event: event}
}

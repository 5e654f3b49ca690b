package workflows

import "fmt"

// Project lifecycle statuses
const (
	StatusPending       = "PENDING"
	StatusVerified      = "VERIFIED"
	StatusRejected      = "REJECTED"
	StatusCreditsIssued = "CREDITS_ISSUED"
)

// Listing lifecycle states
const (
	ListingActive   = "ACTIVE"
	ListingInactive = "INACTIVE"
)

// StateMachine enforces forward-only status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates a state machine with the given allowed transitions
func NewStateMachine(transitions map[string][]string) *StateMachine {
	return &StateMachine{allowedTransitions: transitions}
}

// NewProjectStateMachine returns the registry project lifecycle.
func NewProjectStateMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		StatusPending:       {StatusVerified, StatusRejected},
		StatusVerified:      {StatusCreditsIssued},
		StatusRejected:      {},
		StatusCreditsIssued: {},
	})
}

// NewListingStateMachine returns the marketplace listing lifecycle. A listing
// leaves ACTIVE exactly once, by purchase or cancellation.
func NewListingStateMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		ListingActive:   {ListingInactive},
		ListingInactive: {},
	})
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// Transition returns to when the move is allowed, otherwise an error naming both states.
func (sm *StateMachine) Transition(from, to string) (string, error) {
	if !sm.CanTransition(from, to) {
		return from, fmt.Errorf("transition %s -> %s not allowed", from, to)
	}
	return to, nil
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}

// IsTerminal reports whether no transition leaves the status.
func (sm *StateMachine) IsTerminal(status string) bool {
	return len(sm.GetAllowedTransitions(status)) == 0
}

// Reachable reports whether to can be reached from from in zero or more steps.
func (sm *StateMachine) Reachable(from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range sm.allowedTransitions[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

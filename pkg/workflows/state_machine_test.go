package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectStateMachine(t *testing.T) {
	sm := NewProjectStateMachine()

	tests := []struct {
		from, to string
		allowed  bool
	}{
		{StatusPending, StatusVerified, true},
		{StatusPending, StatusRejected, true},
		{StatusVerified, StatusCreditsIssued, true},
		{StatusPending, StatusCreditsIssued, false},
		{StatusVerified, StatusRejected, false},
		{StatusVerified, StatusPending, false},
		{StatusRejected, StatusVerified, false},
		{StatusCreditsIssued, StatusVerified, false},
		{"UNKNOWN", StatusVerified, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.allowed, sm.CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition(t *testing.T) {
	sm := NewProjectStateMachine()

	next, err := sm.Transition(StatusPending, StatusVerified)
	assert.NoError(t, err)
	assert.Equal(t, StatusVerified, next)

	next, err = sm.Transition(StatusRejected, StatusVerified)
	assert.Error(t, err)
	assert.Equal(t, StatusRejected, next)
}

func TestTerminalAndReachable(t *testing.T) {
	sm := NewProjectStateMachine()

	assert.True(t, sm.IsTerminal(StatusRejected))
	assert.True(t, sm.IsTerminal(StatusCreditsIssued))
	assert.False(t, sm.IsTerminal(StatusPending))

	assert.True(t, sm.Reachable(StatusPending, StatusCreditsIssued))
	assert.False(t, sm.Reachable(StatusRejected, StatusCreditsIssued))
	assert.False(t, sm.Reachable(StatusCreditsIssued, StatusPending))
}

func TestListingStateMachine(t *testing.T) {
	sm := NewListingStateMachine()

	assert.True(t, sm.CanTransition(ListingActive, ListingInactive))
	assert.False(t, sm.CanTransition(ListingInactive, ListingActive))
	assert.Empty(t, sm.GetAllowedTransitions(ListingInactive))
}

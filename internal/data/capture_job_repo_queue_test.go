package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeQueueOrder(t *testing.T) {
	tests := []struct {
		name     string
		entries  []queueEntry
		userID   string
		expected float64
	}{
		{
			name:     "empty queue starts at one",
			entries:  nil,
			userID:   "alice",
			expected: 1,
		},
		{
			name: "single other user appends",
			entries: []queueEntry{
				{UserID: "bob", Order: 1},
			},
			userID:   "alice",
			expected: 2,
		},
		{
			name: "own jobs only appends",
			entries: []queueEntry{
				{UserID: "alice", Order: 1},
				{UserID: "alice", Order: 2},
			},
			userID:   "alice",
			expected: 3,
		},
		{
			name: "other user queued twice yields midpoint",
			entries: []queueEntry{
				{UserID: "bob", Order: 1},
				{UserID: "bob", Order: 2},
			},
			userID:   "alice",
			expected: 1.5,
		},
		{
			name: "only tail past own last job is considered",
			entries: []queueEntry{
				{UserID: "bob", Order: 1},
				{UserID: "bob", Order: 2},
				{UserID: "alice", Order: 3},
				{UserID: "carol", Order: 4},
			},
			userID:   "alice",
			expected: 5,
		},
		{
			name: "repeat after own last job yields midpoint",
			entries: []queueEntry{
				{UserID: "alice", Order: 1},
				{UserID: "bob", Order: 2},
				{UserID: "carol", Order: 3},
				{UserID: "bob", Order: 4},
			},
			userID:   "alice",
			expected: 3,
		},
		{
			name: "fractional midpoints nest without renumbering",
			entries: []queueEntry{
				{UserID: "bob", Order: 1},
				{UserID: "bob", Order: 1.5},
			},
			userID:   "alice",
			expected: 1.25,
		},
		{
			name: "first repeating user wins over later ones",
			entries: []queueEntry{
				{UserID: "bob", Order: 1},
				{UserID: "carol", Order: 2},
				{UserID: "bob", Order: 3},
				{UserID: "carol", Order: 4},
			},
			userID:   "alice",
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, computeQueueOrder(tt.entries, tt.userID), 1e-9)
		})
	}
}

// Round-robin property: replaying a burst of submissions from one user into
// a queue where others wait must never give the burst two dispatch slots
// before every waiting user has one.
func TestComputeQueueOrder_RoundRobinProperty(t *testing.T) {
	entries := []queueEntry{
		{UserID: "bob", Order: 1},
		{UserID: "carol", Order: 2},
		{UserID: "bob", Order: 3},
	}

	order := computeQueueOrder(entries, "alice")
	// Alice slots between carol's first and bob's second.
	assert.Greater(t, order, 2.0)
	assert.Less(t, order, 3.0)
}

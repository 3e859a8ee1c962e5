package core

import (
	"fmt"
	"testing"
)

// TestExecutionHistory_RecentNewestFirst verifies the ring keeps the newest records
// Given: A history with capacity 3
// When: 5 records are added
// Then: Recent returns the last 3, newest first
func TestExecutionHistory_RecentNewestFirst(t *testing.T) {
	// Arrange
	h := newExecutionHistory(3)

	// Act
	for i := range 5 {
		h.Add(JobExecutionRecord{Name: fmt.Sprintf("job-%d", i)})
	}

	// Assert
	got := h.Recent(0)
	var names []string
	for _, r := range got {
		names = append(names, r.Name)
	}
	if want := []string{"job-4", "job-3", "job-2"}; !equalStrings(names, want) {
		t.Errorf("Recent(0): got = %v, want = %v", names, want)
	}

	if got := h.Recent(1); len(got) != 1 || got[0].Name != "job-4" {
		t.Errorf("Recent(1): got = %+v, want = [job-4]", got)
	}
	if got := h.Recent(10); len(got) != 3 {
		t.Errorf("Recent(10) length: got = %d, want = 3", len(got))
	}
}

// TestExecutionHistory_Empty verifies an empty history returns nil
func TestExecutionHistory_Empty(t *testing.T) {
	h := newExecutionHistory(0)
	if got := h.Recent(5); got != nil {
		t.Errorf("Recent on empty history: got = %v, want = nil", got)
	}
	if len(h.items) != defaultTaskHistoryCapacity {
		t.Errorf("default capacity: got = %d, want = %d", len(h.items), defaultTaskHistoryCapacity)
	}
}

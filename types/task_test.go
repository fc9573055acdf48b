package types

import "testing"

func TestTaskStatus_Terminal(t *testing.T) {
	t.Parallel()

	terminal := []TaskStatus{StatusCompleted, StatusFailed, StatusTimeout}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	open := []TaskStatus{StatusPending, StatusAssigned, StatusConsensus}
	for _, s := range open {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestCoordinatedTask_SuccessfulResultsOrder(t *testing.T) {
	t.Parallel()

	task := &CoordinatedTask{
		AssignedAgents: []string{"a", "b", "c"},
		Results: map[string]*AgentResult{
			"c": {AgentID: "c", Success: true, Output: "third"},
			"a": {AgentID: "a", Success: true, Output: "first"},
			"b": {AgentID: "b", Success: false, Error: "boom"},
		},
	}

	got := task.SuccessfulResults()
	if len(got) != 2 {
		t.Fatalf("expected 2 successful results, got %d", len(got))
	}
	// Assignment order, not map order.
	if got[0].AgentID != "a" || got[1].AgentID != "c" {
		t.Fatalf("expected assignment order [a c], got [%s %s]", got[0].AgentID, got[1].AgentID)
	}
}

func TestAgentRegistration_HasCapabilities(t *testing.T) {
	t.Parallel()

	reg := AgentRegistration{ID: "a1", Capabilities: []string{"code", "review"}}

	if !reg.HasCapabilities(nil) {
		t.Fatalf("empty requirement must match every agent")
	}
	if !reg.HasCapabilities([]string{"code"}) {
		t.Fatalf("subset requirement should match")
	}
	if reg.HasCapabilities([]string{"code", "deploy"}) {
		t.Fatalf("missing capability must not match")
	}
}

func TestCoordinatedTask_AnnotateAfterTerminal(t *testing.T) {
	t.Parallel()

	task := &CoordinatedTask{Status: StatusCompleted}
	task.Annotate("winner", "a1")
	if task.Metadata["winner"] != "a1" {
		t.Fatalf("metadata must stay writable after terminal status")
	}
}

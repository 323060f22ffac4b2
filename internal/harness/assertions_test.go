package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	r := NewResult()
	r.Steps = []StepResult{
		{Index: 0, Op: OpCreate, Peer: "alice"},
		{Index: 1, Op: OpDelete, Peer: "alice", Deleted: boolPtr(false)},
		{Index: 2, Op: OpChange, Peer: "bob", Error: "DECK_NOT_CREATED"},
	}
	r.Room = RoomState{
		Current:   "A",
		Decks:     map[string]int{"A": 3, "C": 1},
		ScenePath: "/projector-plugin/A/3",
		Scenes:    map[string]int{"A": 5, "C": 2},
	}
	r.Peers = []PeerState{
		{Name: "alice", Task: "A", Page: 3, Live: 1, Created: 2, Clickable: true, ScenePath: "/projector-plugin/A/3"},
		{Name: "bob", Live: 0, Created: 1, ScenePath: "/projector-plugin/A/2"},
	}
	return r
}

func TestEvaluateAssertions_Passing(t *testing.T) {
	assertions := []Assertion{
		{Type: AssertCurrentTask, Task: "A"},
		{Type: AssertAttributeIndex, Task: "A", Page: intPtr(3)},
		{Type: AssertAttributeIndex, Task: "B"},
		{Type: AssertScenePath, Path: "/projector-plugin/A/3"},
		{Type: AssertScenePath, Peer: "bob", Path: "/projector-plugin/A/2"},
		{Type: AssertRendered, Peer: "alice", Task: "A", Page: intPtr(3)},
		{Type: AssertRendered, Peer: "alice", Task: "A"},
		{Type: AssertRendered, Peer: "bob"},
		{Type: AssertSceneCount, Task: "A", Count: intPtr(5)},
		{Type: AssertSceneCount, Task: "B", Count: intPtr(0)},
		{Type: AssertClickable, Peer: "alice", Value: boolPtr(true)},
		{Type: AssertClickable, Peer: "bob", Value: boolPtr(false)},
		{Type: AssertResult, Step: intPtr(0)},
		{Type: AssertResult, Step: intPtr(1), Deleted: boolPtr(false)},
		{Type: AssertResult, Step: intPtr(2), Error: "DECK_NOT_CREATED"},
		{Type: AssertLiveSessions, Peer: "alice", Count: intPtr(1)},
		{Type: AssertLiveSessions, Peer: "bob", Count: intPtr(0)},
	}

	assert.Empty(t, EvaluateAssertions(sampleResult(), assertions))
}

func TestEvaluateAssertions_Failing(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		expected  string
		actual    string
	}{
		{"current task", Assertion{Type: AssertCurrentTask}, "(none)", "A"},
		{"attribute index mismatch", Assertion{Type: AssertAttributeIndex, Task: "A", Page: intPtr(2)}, "A at page 2", "page 3"},
		{"attribute index unexpected state", Assertion{Type: AssertAttributeIndex, Task: "C"}, "no state for C", "page 1"},
		{"attribute index missing", Assertion{Type: AssertAttributeIndex, Task: "B", Page: intPtr(1)}, "B at page 1", "no state recorded"},
		{"room scene path", Assertion{Type: AssertScenePath, Path: "/init"}, "/init", "/projector-plugin/A/3"},
		{"peer scene path", Assertion{Type: AssertScenePath, Peer: "bob", Path: "/projector-plugin/A/3"}, "/projector-plugin/A/3", "/projector-plugin/A/2"},
		{"rendered wrong page", Assertion{Type: AssertRendered, Peer: "alice", Task: "A", Page: intPtr(1)}, "alice shows A page 1", "A page 3"},
		{"rendered nothing expected", Assertion{Type: AssertRendered, Peer: "alice"}, "alice shows nothing", "A page 3"},
		{"rendered missing session", Assertion{Type: AssertRendered, Peer: "bob", Task: "A"}, "bob shows A", "(none) page 0"},
		{"scene count", Assertion{Type: AssertSceneCount, Task: "C", Count: intPtr(3)}, "3 scenes for C", "2"},
		{"clickable", Assertion{Type: AssertClickable, Peer: "bob", Value: boolPtr(true)}, "bob clickable=true", "clickable=false"},
		{"result error", Assertion{Type: AssertResult, Step: intPtr(0), Error: "NOT_WRITABLE"}, "step 0 error NOT_WRITABLE", "(none)"},
		{"result deleted", Assertion{Type: AssertResult, Step: intPtr(1), Deleted: boolPtr(true)}, "step 1 deleted=true", "deleted=false"},
		{"result not a delete", Assertion{Type: AssertResult, Step: intPtr(0), Deleted: boolPtr(true)}, "step 0 deleted=true", "not a delete step"},
		{"live sessions", Assertion{Type: AssertLiveSessions, Peer: "alice", Count: intPtr(0)}, "0 live sessions on alice", "1"},
		{"unknown peer", Assertion{Type: AssertLiveSessions, Peer: "carol", Count: intPtr(0)}, "peer carol joined", "never joined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := evaluate(sampleResult(), tt.assertion)
			require.Error(t, err)

			var ae *AssertionError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tt.assertion.Type, ae.Type)
			assert.Equal(t, tt.expected, ae.Expected)
			assert.Equal(t, tt.actual, ae.Actual)
		})
	}
}

func TestEvaluateAssertions_NumbersFailures(t *testing.T) {
	failures := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertCurrentTask, Task: "A"},
		{Type: AssertCurrentTask, Task: "C"},
	})
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "assertions[1]")
	assert.Contains(t, failures[0], "Assertion failed: current_task")
}

func TestAssertionError_IncludesContext(t *testing.T) {
	err := evaluate(sampleResult(), Assertion{Type: AssertCurrentTask, Task: "C"})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "Expected: C")
	assert.Contains(t, msg, "Actual: A")
	assert.Contains(t, msg, "[2] change by bob -> DECK_NOT_CREATED")
	assert.Contains(t, msg, "alice: A page 3, scene /projector-plugin/A/3")
	assert.Contains(t, msg, "bob: (none) page 0, scene /projector-plugin/A/2")
}

func TestEvaluateAssertions_ResultStepOutOfRange(t *testing.T) {
	err := evaluate(sampleResult(), Assertion{Type: AssertResult, Step: intPtr(9)})
	assert.ErrorContains(t, err, "step 9 out of range")
}

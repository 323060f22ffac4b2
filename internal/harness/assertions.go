package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Result   *Result
}

// Error implements the error interface. The step log and the peers' views
// follow the expected/actual pair for context.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Result != nil {
		fmt.Fprintf(&buf, "\nSteps:\n")
		for _, s := range e.Result.Steps {
			fmt.Fprintf(&buf, "  [%d] %s", s.Index, s.Op)
			if s.Peer != "" {
				fmt.Fprintf(&buf, " by %s", s.Peer)
			}
			if s.Error != "" {
				fmt.Fprintf(&buf, " -> %s", s.Error)
			}
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "\nPeers:\n")
		for _, p := range e.Result.Peers {
			fmt.Fprintf(&buf, "  %s: %s page %d, scene %s\n", p.Name, orNone(p.Task), p.Page, p.ScenePath)
		}
	}
	return buf.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// EvaluateAssertions checks every assertion against result and returns one
// message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertCurrentTask:
		return assertCurrentTask(result, a)
	case AssertAttributeIndex:
		return assertAttributeIndex(result, a)
	case AssertScenePath:
		return assertScenePath(result, a)
	case AssertRendered:
		return assertRendered(result, a)
	case AssertSceneCount:
		return assertSceneCount(result, a)
	case AssertClickable:
		return assertClickable(result, a)
	case AssertResult:
		return assertResult(result, a)
	case AssertLiveSessions:
		return assertLiveSessions(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func fail(result *Result, typ, expected, actual string) error {
	return &AssertionError{Type: typ, Expected: expected, Actual: actual, Result: result}
}

// assertCurrentTask checks the committed current deck. An empty task means
// no deck is current.
func assertCurrentTask(result *Result, a Assertion) error {
	if result.Room.Current != a.Task {
		return fail(result, a.Type, orNone(a.Task), orNone(result.Room.Current))
	}
	return nil
}

// assertAttributeIndex checks the recorded page of a deck. Without a page
// the deck must have no recorded state.
func assertAttributeIndex(result *Result, a Assertion) error {
	index, ok := result.Room.Decks[a.Task]
	switch {
	case a.Page == nil && ok:
		return fail(result, a.Type, fmt.Sprintf("no state for %s", a.Task), fmt.Sprintf("page %d", index))
	case a.Page != nil && !ok:
		return fail(result, a.Type, fmt.Sprintf("%s at page %d", a.Task, *a.Page), "no state recorded")
	case a.Page != nil && index != *a.Page:
		return fail(result, a.Type, fmt.Sprintf("%s at page %d", a.Task, *a.Page), fmt.Sprintf("page %d", index))
	}
	return nil
}

// assertScenePath checks the committed scene, or a peer's local view of it.
func assertScenePath(result *Result, a Assertion) error {
	actual := result.Room.ScenePath
	if a.Peer != "" {
		p, err := peerOf(result, a)
		if err != nil {
			return err
		}
		actual = p.ScenePath
	}
	if actual != a.Path {
		return fail(result, a.Type, a.Path, actual)
	}
	return nil
}

// assertRendered checks what a peer's live renderer shows. An empty task
// means the peer has no live session.
func assertRendered(result *Result, a Assertion) error {
	p, err := peerOf(result, a)
	if err != nil {
		return err
	}
	if a.Task == "" {
		if p.Task != "" {
			return fail(result, a.Type, fmt.Sprintf("%s shows nothing", p.Name), fmt.Sprintf("%s page %d", p.Task, p.Page))
		}
		return nil
	}
	if p.Task != a.Task || (a.Page != nil && p.Page != *a.Page) {
		expected := a.Task
		if a.Page != nil {
			expected = fmt.Sprintf("%s page %d", a.Task, *a.Page)
		}
		return fail(result, a.Type, fmt.Sprintf("%s shows %s", p.Name, expected), fmt.Sprintf("%s page %d", orNone(p.Task), p.Page))
	}
	return nil
}

func assertSceneCount(result *Result, a Assertion) error {
	n := result.Room.Scenes[a.Task]
	if n != *a.Count {
		return fail(result, a.Type, fmt.Sprintf("%d scenes for %s", *a.Count, a.Task), fmt.Sprintf("%d", n))
	}
	return nil
}

func assertClickable(result *Result, a Assertion) error {
	p, err := peerOf(result, a)
	if err != nil {
		return err
	}
	if p.Clickable != *a.Value {
		return fail(result, a.Type, fmt.Sprintf("%s clickable=%t", p.Name, *a.Value), fmt.Sprintf("clickable=%t", p.Clickable))
	}
	return nil
}

// assertResult checks one step's outcome. An empty error means the step
// succeeded.
func assertResult(result *Result, a Assertion) error {
	if *a.Step < 0 || *a.Step >= len(result.Steps) {
		return fmt.Errorf("step %d out of range", *a.Step)
	}
	s := result.Steps[*a.Step]
	if s.Error != a.Error {
		return fail(result, a.Type, fmt.Sprintf("step %d error %s", s.Index, orNone(a.Error)), orNone(s.Error))
	}
	if a.Deleted != nil {
		if s.Deleted == nil {
			return fail(result, a.Type, fmt.Sprintf("step %d deleted=%t", s.Index, *a.Deleted), "not a delete step")
		}
		if *s.Deleted != *a.Deleted {
			return fail(result, a.Type, fmt.Sprintf("step %d deleted=%t", s.Index, *a.Deleted), fmt.Sprintf("deleted=%t", *s.Deleted))
		}
	}
	return nil
}

// assertLiveSessions checks how many renderers a peer has alive.
func assertLiveSessions(result *Result, a Assertion) error {
	p, err := peerOf(result, a)
	if err != nil {
		return err
	}
	if p.Live != *a.Count {
		return fail(result, a.Type, fmt.Sprintf("%d live sessions on %s", *a.Count, p.Name), fmt.Sprintf("%d", p.Live))
	}
	return nil
}

func peerOf(result *Result, a Assertion) (PeerState, error) {
	p, ok := result.Peer(a.Peer)
	if !ok {
		return PeerState{}, fail(result, a.Type, fmt.Sprintf("peer %s joined", a.Peer), "never joined")
	}
	return p, nil
}

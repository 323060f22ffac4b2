package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/projector/internal/headless"
)

// Scenario is a scripted multi-peer session against one in-memory room.
// Peers join, drive the coordinator's public operations and deliver room
// notifications in the order the steps dictate; assertions then check the
// converged room and per-peer state.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Delivery is "auto" (every mutation reaches every peer before the call
	// returns) or "manual" (notifications wait for a flush step).
	Delivery string `yaml:"delivery,omitempty"`

	// Debounce overrides the restore debounce, as a Go duration string.
	Debounce string `yaml:"debounce,omitempty"`

	// Decks is the content library, keyed by task id.
	Decks map[string]headless.Deck `yaml:"decks"`

	// Peers are the room members. Peers marked late join at a join step.
	Peers []PeerSpec `yaml:"peers"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// PeerSpec declares one room member.
type PeerSpec struct {
	Name           string `yaml:"name"`
	ReadOnly       bool   `yaml:"read_only,omitempty"`
	Late           bool   `yaml:"late,omitempty"`
	AnchorDeferred bool   `yaml:"anchor_deferred,omitempty"`
	Appliance      string `yaml:"appliance,omitempty"`
}

// Step is one scripted action. Which fields apply depends on Op.
type Step struct {
	Op       string  `yaml:"op"`
	Peer     string  `yaml:"peer,omitempty"`
	Task     string  `yaml:"task,omitempty"`
	URL      string  `yaml:"url,omitempty"`
	Page     *int    `yaml:"page,omitempty"`
	Path     string  `yaml:"path,omitempty"`
	Duration string  `yaml:"duration,omitempty"`
	Name     string  `yaml:"name,omitempty"`
	X        float64 `yaml:"x,omitempty"`
	Y        float64 `yaml:"y,omitempty"`
	Scale    float64 `yaml:"scale,omitempty"`

	// Async runs a create without waiting for it; an await step collects
	// the outcome. Used with peers whose anchor mounts later.
	Async bool `yaml:"async,omitempty"`

	// ExpectError is the error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpJoin            = "join"
	OpCreate          = "create"
	OpChange          = "change"
	OpNext            = "next"
	OpPrev            = "prev"
	OpDelete          = "delete"
	OpClean           = "clean"
	OpExit            = "exit"
	OpNavigate        = "navigate"
	OpFlush           = "flush"
	OpFlushAttributes = "flush_attributes"
	OpFlushScenes     = "flush_scenes"
	OpAdvance         = "advance"
	OpAppliance       = "appliance"
	OpCamera          = "camera"
	OpMount           = "mount"
	OpAwait           = "await"
)

// Assertion checks the state left by the steps.
type Assertion struct {
	Type    string `yaml:"type"`
	Peer    string `yaml:"peer,omitempty"`
	Task    string `yaml:"task,omitempty"`
	Page    *int   `yaml:"page,omitempty"`
	Path    string `yaml:"path,omitempty"`
	Count   *int   `yaml:"count,omitempty"`
	Step    *int   `yaml:"step,omitempty"`
	Error   string `yaml:"error,omitempty"`
	Deleted *bool  `yaml:"deleted,omitempty"`
	Value   *bool  `yaml:"value,omitempty"`
}

// Assertion types.
const (
	AssertCurrentTask    = "current_task"
	AssertAttributeIndex = "attribute_index"
	AssertScenePath      = "scene_path"
	AssertRendered       = "rendered"
	AssertSceneCount     = "scene_count"
	AssertClickable      = "clickable"
	AssertResult         = "result"
	AssertLiveSessions   = "live_sessions"
)

// Delivery modes.
const (
	DeliveryAuto   = "auto"
	DeliveryManual = "manual"
)

// LoadScenario reads a scenario file, checks it against the scenario schema
// and decodes it. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks what the schema cannot: references between peers,
// steps and decks, and duration syntax.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Peers) == 0 {
		return fmt.Errorf("peers list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	switch s.Delivery {
	case "", DeliveryAuto, DeliveryManual:
	default:
		return fmt.Errorf("unknown delivery %q", s.Delivery)
	}
	if s.Debounce != "" {
		if _, err := time.ParseDuration(s.Debounce); err != nil {
			return fmt.Errorf("debounce: %w", err)
		}
	}

	peers := make(map[string]PeerSpec, len(s.Peers))
	for i, p := range s.Peers {
		if p.Name == "" {
			return fmt.Errorf("peers[%d]: name is required", i)
		}
		if _, dup := peers[p.Name]; dup {
			return fmt.Errorf("peers[%d]: duplicate peer %q", i, p.Name)
		}
		peers[p.Name] = p
	}

	joined := map[string]bool{}
	for _, p := range s.Peers {
		if !p.Late {
			joined[p.Name] = true
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(step, peers, joined); err != nil {
			return fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
		if step.Op == OpJoin {
			joined[step.Peer] = true
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, peers, len(s.Steps)); err != nil {
			return fmt.Errorf("assertions[%d] (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

// opNeedsPeer lists the operations that act through one member.
var opNeedsPeer = map[string]bool{
	OpJoin: true, OpCreate: true, OpChange: true, OpNext: true, OpPrev: true,
	OpDelete: true, OpClean: true, OpExit: true, OpNavigate: true,
	OpAppliance: true, OpCamera: true, OpMount: true, OpAwait: true,
}

func validateStep(step Step, peers map[string]PeerSpec, joined map[string]bool) error {
	switch step.Op {
	case OpJoin, OpCreate, OpChange, OpNext, OpPrev, OpDelete, OpClean, OpExit,
		OpNavigate, OpFlush, OpFlushAttributes, OpFlushScenes, OpAdvance,
		OpAppliance, OpCamera, OpMount, OpAwait:
	default:
		return fmt.Errorf("unknown op")
	}

	if step.Peer != "" {
		p, ok := peers[step.Peer]
		if !ok {
			return fmt.Errorf("unknown peer %q", step.Peer)
		}
		if step.Op == OpJoin {
			if !p.Late {
				return fmt.Errorf("peer %q is not late; it joins at start", step.Peer)
			}
			if joined[step.Peer] {
				return fmt.Errorf("peer %q already joined", step.Peer)
			}
		} else if !joined[step.Peer] {
			return fmt.Errorf("peer %q has not joined yet", step.Peer)
		}
	} else if opNeedsPeer[step.Op] {
		return fmt.Errorf("peer is required")
	}

	switch step.Op {
	case OpCreate, OpChange, OpDelete:
		if step.Task == "" && step.ExpectError == "" {
			return fmt.Errorf("task is required")
		}
	case OpNavigate:
		if step.Path == "" {
			return fmt.Errorf("path is required")
		}
	case OpAdvance:
		if _, err := time.ParseDuration(step.Duration); err != nil {
			return fmt.Errorf("duration: %w", err)
		}
	case OpAppliance:
		if step.Name == "" {
			return fmt.Errorf("name is required")
		}
	case OpMount:
		if !peers[step.Peer].AnchorDeferred {
			return fmt.Errorf("peer %q mounts its anchor at join", step.Peer)
		}
	}
	if step.Async && step.Op != OpCreate {
		return fmt.Errorf("only create may be async")
	}
	return nil
}

func validateAssertion(a Assertion, peers map[string]PeerSpec, steps int) error {
	if a.Peer != "" {
		if _, ok := peers[a.Peer]; !ok {
			return fmt.Errorf("unknown peer %q", a.Peer)
		}
	}

	switch a.Type {
	case AssertCurrentTask, AssertScenePath:
	case AssertAttributeIndex, AssertSceneCount:
		if a.Task == "" {
			return fmt.Errorf("task is required")
		}
		if a.Type == AssertSceneCount && a.Count == nil {
			return fmt.Errorf("count is required")
		}
	case AssertRendered:
		if a.Peer == "" {
			return fmt.Errorf("peer is required")
		}
	case AssertClickable:
		if a.Peer == "" || a.Value == nil {
			return fmt.Errorf("peer and value are required")
		}
	case AssertLiveSessions:
		if a.Peer == "" || a.Count == nil {
			return fmt.Errorf("peer and count are required")
		}
	case AssertResult:
		if a.Step == nil {
			return fmt.Errorf("step is required")
		}
		if *a.Step < 0 || *a.Step >= steps {
			return fmt.Errorf("step %d out of range 0..%d", *a.Step, steps-1)
		}
	default:
		return fmt.Errorf("unknown assertion type")
	}
	return nil
}

package harness

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every step and assertion held.
	Pass bool `json:"pass"`

	// Steps records each step's outcome, in order.
	Steps []StepResult `json:"steps"`

	// Room is the committed room state after the last step.
	Room RoomState `json:"room"`

	// Peers is each member's final local view, in declaration order.
	Peers []PeerState `json:"peers"`

	// Errors contains step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index int    `json:"index"`
	Op    string `json:"op"`
	Peer  string `json:"peer,omitempty"`

	// Error is the error code the step failed with, or the message when the
	// failure carries no code.
	Error string `json:"error,omitempty"`

	// Deleted is set for delete steps.
	Deleted *bool `json:"deleted,omitempty"`
}

// RoomState is the room as the hub committed it.
type RoomState struct {
	Current   string         `json:"current"`
	Decks     map[string]int `json:"decks"`
	ScenePath string         `json:"scene_path"`
	Scenes    map[string]int `json:"scenes"`
}

// PeerState is one member's view.
type PeerState struct {
	Name string `json:"name"`

	// Task and Page describe the live session; empty without one.
	Task string `json:"task,omitempty"`
	Page int    `json:"page,omitempty"`
	Step int    `json:"step,omitempty"`

	// Live counts renderers not yet destroyed; Created counts every one made.
	Live    int `json:"live"`
	Created int `json:"created"`

	Clickable bool   `json:"clickable"`
	ScenePath string `json:"scene_path"`

	// Errors lists the codes reported through the error callback.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Peer returns the named peer's state.
func (r *Result) Peer(name string) (PeerState, bool) {
	for _, p := range r.Peers {
		if p.Name == name {
			return p, true
		}
	}
	return PeerState{}, false
}

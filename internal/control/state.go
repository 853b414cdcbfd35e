package control

import "time"

// State is a control loop state.
type State int32

const (
	Idle State = iota
	Listening
	Interpreting
	Dispatching
	Executing
	Announcing
	ShuttingDown
)

var stateNames = [...]string{
	Idle:         "idle",
	Listening:    "listening",
	Interpreting: "interpreting",
	Dispatching:  "dispatching",
	Executing:    "executing",
	Announcing:   "announcing",
	ShuttingDown: "shutting_down",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Transition is published on every state change.
type Transition struct {
	From        State     `json:"from"`
	To          State     `json:"to"`
	UtteranceID string    `json:"utterance_id,omitempty"`
	At          time.Time `json:"at"`
}

// Announcement is published for every message spoken to the operator.
type Announcement struct {
	UtteranceID string    `json:"utterance_id,omitempty"`
	Text        string    `json:"text"`
	At          time.Time `json:"at"`
}

// MarshalText lets states serialize by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

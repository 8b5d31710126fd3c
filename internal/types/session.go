package types

// SessionStatus is the lifecycle state of a spin session.
// Valid transitions are waiting→chosen and waiting→expired; both are terminal.
type SessionStatus string

const (
	StatusWaiting SessionStatus = "waiting"
	StatusChosen  SessionStatus = "chosen"
	StatusExpired SessionStatus = "expired"
)

// SpinSession is the coordination record for a single wheel spin.
// Items is the ordered option list; its order defines the index→label mapping
// and must match the wheel rendered by the client.
type SpinSession struct {
	ID          string        `json:"id"`
	Items       []string      `json:"items"`
	Status      SessionStatus `json:"status"`
	ChosenIndex *int          `json:"chosenIndex,omitempty"`
	ChosenBy    string        `json:"chosenBy,omitempty"`
	CreatedAt   int64         `json:"createdAt"` // unix milliseconds, diagnostics only
}

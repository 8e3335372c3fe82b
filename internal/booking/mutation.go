package booking

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRequest is returned before any optimistic change when a required
// field is missing or cannot be normalized.
var ErrInvalidRequest = errors.New("please complete all fields")

// OpError is a failed mutation, named by the operation the user attempted.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return e.Op + " error: " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// State is the lifecycle of a mutation.
type State int

const (
	Pending State = iota
	Confirmed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, c := range []State{Pending, Confirmed, RolledBack} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown mutation state %q", b)
}

// Mutation is one write against the backend together with the optimistic
// change shown while it is in flight.
type Mutation struct {
	ID          string    `json:"id"`
	Op          string    `json:"op"`
	Action      string    `json:"action"`
	DateISO     string    `json:"date"`
	TimeSlot    string    `json:"time"`
	StudentCode string    `json:"student_code"`
	Teacher     string    `json:"teacher"`
	State       State     `json:"state"`
	Error       string    `json:"error,omitempty"`
	Started     time.Time `json:"started"`
}

func (m *Mutation) confirm() {
	if m.State == Pending {
		m.State = Confirmed
	}
}

func (m *Mutation) rollback(err error) {
	if m.State == Pending {
		m.State = RolledBack
		if err != nil {
			m.Error = err.Error()
		}
	}
}

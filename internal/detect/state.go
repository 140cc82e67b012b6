// Package detect holds the detection state container: the last-known
// snapshot, the optional narration text and the rolling alert history,
// transitioned only through explicit events.
package detect

import (
	"time"

	"github.com/google/uuid"
)

// MaxHistory is the length of the rolling alert history.
const MaxHistory = 5

// Snapshot is the last-known detection state reported by the backend.
type Snapshot struct {
	Person          bool `json:"person"`
	Gun             bool `json:"gun"`
	Knife           bool `json:"knife"`
	MultiplePersons bool `json:"multiplePersons"`
}

// Any reports whether at least one detection flag is set.
func (s Snapshot) Any() bool {
	return s.Person || s.Gun || s.Knife || s.MultiplePersons
}

// Kind classifies a detection for the alert history.
type Kind string

const (
	KindGun             Kind = "Gun"
	KindKnife           Kind = "Knife"
	KindMultiplePersons Kind = "Multiple Persons"
	KindPerson          Kind = "Person"
)

// Slug returns the lower-case identifier used in webhook filters and metrics.
func (k Kind) Slug() string {
	switch k {
	case KindGun:
		return "gun"
	case KindKnife:
		return "knife"
	case KindMultiplePersons:
		return "multiple_persons"
	case KindPerson:
		return "person"
	}
	return ""
}

// Classify picks the history type for a snapshot: the first set flag in the
// order gun, knife, multiple persons, person. ok is false when nothing is set.
func Classify(s Snapshot) (kind Kind, ok bool) {
	switch {
	case s.Gun:
		return KindGun, true
	case s.Knife:
		return KindKnife, true
	case s.MultiplePersons:
		return KindMultiplePersons, true
	case s.Person:
		return KindPerson, true
	}
	return "", false
}

// HistoryEntry is one client-side alert record. The backend's history
// endpoint remains authoritative; these are never persisted.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      Kind      `json:"type"`
	Message   string    `json:"message,omitempty"`
}

// Label renders the entry the way the dashboard lists it.
func (e HistoryEntry) Label() string {
	if e.Message == "" {
		return string(e.Type) + " detected"
	}
	return string(e.Type) + " detected (" + e.Message + ")"
}

// State is the whole detection view state.
type State struct {
	Connected bool           `json:"connected"`
	Narration bool           `json:"narration"`
	Snapshot  Snapshot       `json:"detections"`
	Message   string         `json:"nlpMessage,omitempty"`
	History   []HistoryEntry `json:"history"`
}

// Event is an input to State.Apply.
type Event interface {
	isEvent()
}

// ConnectivityChanged reports the outcome of a reachability probe.
type ConnectivityChanged struct{ Connected bool }

// NarrationChanged reports a change of the narration preference.
type NarrationChanged struct{ Enabled bool }

// Received carries one inbound detection event.
type Received struct{ Payload Payload }

func (ConnectivityChanged) isEvent() {}
func (NarrationChanged) isEvent()    {}
func (Received) isEvent()            {}

// Reducer applies events to a State. Clock and NewID are injectable for tests.
type Reducer struct {
	Clock func() time.Time
	NewID func() string
}

// DefaultReducer stamps entries with the wall clock and random UUIDs.
func DefaultReducer() Reducer {
	return Reducer{Clock: time.Now, NewID: uuid.NewString}
}

// Apply returns the state that results from ev. The returned entry is the
// history entry the event produced, if any.
func (r Reducer) Apply(s State, ev Event) (State, *HistoryEntry) {
	switch ev := ev.(type) {
	case ConnectivityChanged:
		s.Connected = ev.Connected
		if !ev.Connected {
			s.Snapshot = Snapshot{}
			s.Message = ""
		}
		return s, nil

	case NarrationChanged:
		s.Narration = ev.Enabled
		return s, nil

	case Received:
		s.Snapshot = ev.Payload.Snapshot()
		if s.Narration && ev.Payload.Text != "" {
			s.Message = ev.Payload.Text
		} else {
			s.Message = ""
		}

		kind, ok := Classify(ev.Payload.Snapshot())
		if !ok {
			return s, nil
		}
		entry := HistoryEntry{
			ID:        r.NewID(),
			Timestamp: r.Clock(),
			Type:      kind,
			Message:   s.Message,
		}
		s.History = prepend(s.History, entry)
		return s, &entry
	}
	return s, nil
}

// prepend returns a new slice so that published states never alias.
func prepend(history []HistoryEntry, e HistoryEntry) []HistoryEntry {
	n := len(history) + 1
	if n > MaxHistory {
		n = MaxHistory
	}
	out := make([]HistoryEntry, 0, n)
	out = append(out, e)
	out = append(out, history[:n-1]...)
	return out
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s State) Clone() State {
	if s.History != nil {
		s.History = append([]HistoryEntry(nil), s.History...)
	}
	return s
}

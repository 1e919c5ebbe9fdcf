package models

// Status is the lifecycle state of an IT request.
type Status string

const (
	// StatusNew is the initial state; only reachable at creation.
	StatusNew Status = "new"
	// StatusInProgress indicates the request is being worked on.
	StatusInProgress Status = "inprogress"
	// StatusCompleted is terminal.
	StatusCompleted Status = "completed"
	// StatusRejected is terminal.
	StatusRejected Status = "rejected"
)

// Statuses lists the closed set in lifecycle order. Each value names its mirror partition table.
var Statuses = []Status{StatusNew, StatusInProgress, StatusCompleted, StatusRejected}

var statusLabels = map[Status]string{
	StatusNew:        "New",
	StatusInProgress: "In Progress",
	StatusCompleted:  "Completed",
	StatusRejected:   "Rejected",
}

var allowedTransitions = map[Status][]Status{
	StatusNew:        {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusCompleted, StatusRejected},
}

// ParseStatus returns the Status named by s, or false if s is outside the closed set.
// Matching is exact: no trimming or case folding.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	if _, ok := statusLabels[st]; ok {
		return st, true
	}
	return "", false
}

// Valid reports whether s is one of the four enumerated values.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the display label stored in the status lookup table.
func (s Status) Label() string {
	return statusLabels[s]
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle step.
// A same-status write is accepted as an idempotent re-sync.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StatusDefinitions returns the seed rows for the status lookup table.
func StatusDefinitions() []StatusDefinition {
	defs := make([]StatusDefinition, 0, len(Statuses))
	for _, st := range Statuses {
		defs = append(defs, StatusDefinition{StatusName: st, DisplayLabel: st.Label()})
	}
	return defs
}

package entity

// transitions holds the legal outgoing edges of every status.
// PENDING_VERIFICATION has no incoming edge: it is only assigned at creation.
var transitions = map[Status][]Status{
	StatusPendingVerification: {StatusActive, StatusInactive},
	StatusActive:              {StatusSuspended, StatusInactive, StatusDeleted},
	StatusInactive:            {StatusActive, StatusDeleted},
	StatusSuspended:           {StatusActive, StatusDeleted},
	StatusDeleted:             nil,
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

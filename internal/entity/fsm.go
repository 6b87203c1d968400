package entity

// Transitions is an adjacency table of legal status changes. Tables are
// declared once per entity and only read afterwards.
type Transitions[S ~string] map[S][]S

// Allowed reports whether from -> to is declared in the table.
func (t Transitions[S]) Allowed(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Check returns a *TransitionError when from -> to is not declared.
func (t Transitions[S]) Check(entity string, from, to S) error {
	if t.Allowed(from, to) {
		return nil
	}
	return &TransitionError{Entity: entity, From: string(from), To: string(to)}
}

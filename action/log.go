package action

// Log is the ordered sequence of Actions captured in one session.
// Append order is capture order and is the sole input to code generation.
type Log struct {
	actions []Action
}

// NewLog returns an empty action log.
func NewLog() *Log {
	return &Log{}
}

// Append adds a to the end of the log.
func (l *Log) Append(a Action) {
	l.actions = append(l.actions, a)
}

// Remove deletes the action with the given id. It reports whether an
// action was found; removal of an absent id leaves the log untouched.
func (l *Log) Remove(id string) bool {
	for i, a := range l.actions {
		if a.ID == id {
			l.actions = append(l.actions[:i], l.actions[i+1:]...)
			return true
		}
	}
	return false
}

// Patch merges p into the action with the given id and returns the updated
// action. ID, Type and Timestamp are never modified. The second return
// value reports whether the action was found.
func (l *Log) Patch(id string, p Patch) (Action, bool) {
	for i := range l.actions {
		if l.actions[i].ID == id {
			p.apply(&l.actions[i])
			return l.actions[i], true
		}
	}
	return Action{}, false
}

// Get returns the action with the given id.
func (l *Log) Get(id string) (Action, bool) {
	for _, a := range l.actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// Last returns the most recently appended action.
func (l *Log) Last() (Action, bool) {
	if len(l.actions) == 0 {
		return Action{}, false
	}
	return l.actions[len(l.actions)-1], true
}

// Len returns the number of actions in the log.
func (l *Log) Len() int {
	return len(l.actions)
}

// Snapshot returns a copy of the log in capture order. Mutating the
// returned slice does not affect the log.
func (l *Log) Snapshot() []Action {
	out := make([]Action, len(l.actions))
	copy(out, l.actions)
	return out
}

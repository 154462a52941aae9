package engine

// Signal is the control outcome of executing a step. Signals are not errors:
// they travel up the call chain until the construct that owns them
// consumes them.
type Signal int

const (
	// Next continues with the following step.
	Next Signal = iota
	// Break terminates the nearest enclosing loop.
	Break
	// Continue abandons the current loop pass and re-evaluates the loop's
	// condition.
	Continue
	// Cancel stops the run.
	Cancel
)

func (s Signal) String() string {
	switch s {
	case Next:
		return "next"
	case Break:
		return "break"
	case Continue:
		return "continue"
	case Cancel:
		return "cancel"
	}
	return "unknown"
}

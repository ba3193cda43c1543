package stream

// WakeReason tags a wake-up so the owning scheduler can prioritize.
type WakeReason uint8

const (
	// WakeIO reports completed I/O worth a session-level look.
	WakeIO WakeReason = iota
	// WakeErr reports a fatal transport error on one direction.
	WakeErr
	// WakeShut reports a shutdown-relevant state transition.
	WakeShut
)

func (r WakeReason) String() string {
	switch r {
	case WakeIO:
		return "io"
	case WakeErr:
		return "error"
	case WakeShut:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Task is the schedulable unit owning one or two stream interfaces.
// Wake must be cheap and must not re-enter the transfer engine.
type Task interface {
	Wake(reason WakeReason)
}

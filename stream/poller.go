package stream

// EventFlags carries the readiness bits delivered by the poller for
// one descriptor.
type EventFlags uint8

const (
	// EvIn signals read readiness.
	EvIn EventFlags = 1 << iota
	// EvOut signals write readiness.
	EvOut
	// EvHup signals a hang-up reported by the poller.
	EvHup
	// EvErr signals a descriptor error reported by the poller.
	EvErr
)

// Poller is the readiness-registration surface consumed by the engine.
// The engine only ever requests or cancels interest; it never waits.
//
// WantRecv/WantSend arm persistent interest. PollRecv/PollSend request
// an explicit follow-up notification after an ambiguous would-block;
// with a level-triggered backend they may behave like their Want
// counterparts. Remove withdraws the descriptor entirely.
type Poller interface {
	WantRecv(fd int)
	StopRecv(fd int)
	PollRecv(fd int)

	WantSend(fd int)
	StopSend(fd int)
	PollSend(fd int)

	StopBoth(fd int)
	Remove(fd int)
}

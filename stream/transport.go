package stream

import "errors"

var (
	// ErrAgain is the flow-control condition: the operation would
	// block and must be retried after a readiness notification.
	ErrAgain = errors.New("stream: operation would block")

	// ErrNotSupported reports a capability the platform or socket
	// lacks, such as splicing. It permanently degrades the concern it
	// covers but is never fatal for the connection.
	ErrNotSupported = errors.New("stream: operation not supported")
)

// Transport is the non-blocking socket primitive the engine drives.
// Implementations normalize outcomes to the engine's taxonomy:
//
//   - would-block is (0, ErrAgain)
//   - orderly remote close on a read-side call is (0, io.EOF)
//   - a missing capability is (0, ErrNotSupported)
//   - anything else is fatal for the direction
type Transport interface {
	// Recv reads into p, returning the byte count received.
	Recv(fd int, p []byte) (int, error)

	// Send writes p. When more is set the transport may hint the
	// kernel that further data follows, to coalesce segments.
	Send(fd int, p []byte, more bool) (int, error)

	// SpliceIn moves up to max bytes from the socket into the relay
	// pipe without copying through user memory.
	SpliceIn(fd int, p *Pipe, max int) (int, error)

	// SpliceOut moves up to max bytes from the relay pipe into the
	// socket.
	SpliceOut(p *Pipe, fd int, max int) (int, error)

	// ShutdownWrite half-closes the sending direction.
	ShutdownWrite(fd int) error

	// SetNoLinger arms an abortive close: pending output is discarded
	// when the descriptor closes.
	SetNoLinger(fd int) error

	// Close releases the descriptor.
	Close(fd int) error
}

package stream

import (
	"errors"

	"go.uber.org/multierr"
)

// ErrPoolExhausted is returned by Acquire when the configured maximum
// number of relay pipes is already outstanding. Callers fall back to
// the copy path for the current pass; the condition is not sticky.
var ErrPoolExhausted = errors.New("stream: pipe pool exhausted")

// Pipe is a kernel pipe pair used as a zero-copy relay between two
// sockets: bytes are spliced from the producing socket into prodFd and
// out of consFd into the consuming socket. resident tracks the bytes
// currently parked inside the kernel.
type Pipe struct {
	prodFd   int
	consFd   int
	resident int
}

// Resident returns the byte count currently held inside the pipe.
func (p *Pipe) Resident() int { return p.resident }

// PipePool hands out relay pipes under a fixed global bound. Drained
// pipes are kept on a free list for reuse; releasing transfers
// ownership back, so a released pipe must not be touched again.
//
// The pool is confined to one event-loop worker and needs no locking.
type PipePool struct {
	max     int
	used    int
	free    []*Pipe
	newPipe func() (*Pipe, error)
}

// NewPipePool returns a pool bounded to max outstanding pipes.
func NewPipePool(max int) *PipePool {
	return &PipePool{max: max, newPipe: newKernelPipe}
}

// Used returns the number of pipes currently acquired.
func (pp *PipePool) Used() int { return pp.used }

// Acquire returns a relay pipe, reusing a drained one when available.
// Fails with ErrPoolExhausted at the configured bound, or with the
// platform error when pipe creation is unavailable.
func (pp *PipePool) Acquire() (*Pipe, error) {
	if pp.used >= pp.max {
		return nil, ErrPoolExhausted
	}
	if n := len(pp.free); n > 0 {
		p := pp.free[n-1]
		pp.free = pp.free[:n-1]
		pp.used++
		return p, nil
	}
	p, err := pp.newPipe()
	if err != nil {
		return nil, err
	}
	pp.used++
	return p, nil
}

// Release returns p to the pool. A drained pipe goes back on the free
// list; a pipe still holding bytes cannot be reused and is closed.
func (pp *PipePool) Release(p *Pipe) {
	pp.used--
	if p.resident == 0 {
		pp.free = append(pp.free, p)
		return
	}
	p.close()
}

// Close tears the free list down, closing every kernel pipe.
func (pp *PipePool) Close() error {
	var err error
	for _, p := range pp.free {
		err = multierr.Append(err, p.close())
	}
	pp.free = nil
	return err
}

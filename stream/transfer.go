package stream

import (
	"errors"
	"io"

	"github.com/fzft/go-stream-proxy/tick"
)

// Readable runs one read pass after the poller signaled read readiness
// (or a hang-up) on this endpoint's socket.
func (si *Interface) Readable(ev EventFlags) {
	b := si.ib

	// Don't stop on a poller error alone: the kernel may still hold
	// receivable data after a write error, e.g. a server that rejected
	// a request before reading it all.
	if si.conn.err {
		si.fatal()
		return
	}

	// hang-up without readable data means the end was reached
	if ev&(EvIn|EvHup) == EvHup {
		si.readNull()
		return
	}

	// maybe an asynchronous shutdown already happened
	if b.shutR {
		return
	}

	if b.kernSplicing && si.capSplice &&
		(b.toForward == ForwardInfinite || b.toForward >= int64(si.tune.MinSpliceForward)) {
		// On a hang-up the end is already known; older splice
		// implementations returned EAGAIN on end of read, so skip the
		// relay and go straight to shutdown.
		if ev&EvHup != 0 {
			si.readNull()
			return
		}
		if si.spliceIn(b) == spliceDone {
			if si.err {
				si.fatal()
				return
			}
			if b.readNull {
				si.readNull()
			}
			return
		}
		// relay did no work, fall through to the copy path
	}

	var (
		curRead  int
		reads    int
		sawShort bool
	)
	loops := si.tune.MaxReadPollLoops

	for {
		if b.IsEmpty() {
			// realign to get the whole capacity in one extent
			b.Realign()
		}
		max := b.ContigSpace()
		if max == 0 {
			b.full = true
			si.waitRoom = true
			break
		}

		n, err := si.tr.Recv(si.conn.fd, b.inputSlice(max))
		if err != nil {
			if errors.Is(err, io.EOF) {
				si.classifyRead(b, curRead, reads, sawShort)
				si.readNull()
				return
			}
			if errors.Is(err, ErrAgain) {
				// Nothing left to read. Only re-poll explicitly when
				// little came in, otherwise the work done justifies
				// waking the task first.
				if curRead < si.tune.MinRetForReadLoop {
					si.poller.PollRecv(si.conn.fd)
				}
				break
			}
			si.fatal()
			return
		}

		b.i += n
		curRead += n
		reads++

		// promote up to the forwarding budget into pending output
		if b.toForward > 0 && !b.shutW && !b.shutWNow {
			fwd := n
			if b.toForward != ForwardInfinite && int64(fwd) > b.toForward {
				fwd = int(b.toForward)
			}
			b.Advance(fwd)
		}

		if si.conn.waitL4 {
			si.conn.waitL4 = false
			si.exp = tick.Eternity
		}

		b.readPartial = true
		b.total += uint64(n)

		if b.Space() == 0 {
			// no point looping on a full buffer
			b.full = true
			si.waitRoom = true
			break
		}

		if n < max {
			sawShort = true

			// On level-triggered pollers the hang-up generally arrives
			// after the kernel buffer drained, so this may never match.
			if ev&EvHup != 0 {
				si.classifyRead(b, curRead, reads, sawShort)
				si.readNull()
				return
			}

			// a streamer reading little has exhausted the kernel
			// buffers, not worth another try
			if b.streamer {
				break
			}

			// very small reads rarely have a follow-up worth looping for
			if n < si.tune.MinRetForReadLoop {
				break
			}

			// a large block smaller than requested almost certainly
			// means nothing more will come: treat as a whole message
			if n >= si.tune.RecvEnough {
				break
			}
		}

		loops--
		if loops <= 0 {
			break
		}
	}

	si.classifyRead(b, curRead, reads, sawShort)
}

// classifyRead updates the streamer streaks once per read pass.
// A pass whose entire payload arrived in a single substantial receive
// grows the large streak; three in a row make a fast streamer. A pass
// on a classified stream reading at most half the buffer grows the
// small streak: two demote from fast, three clear the classification.
func (si *Interface) classifyRead(b *Buffer, curRead, reads int, sawShort bool) {
	if curRead == 0 {
		return
	}
	switch {
	case !b.streamerFast && reads == 1 && curRead == b.Len() &&
		curRead >= si.tune.MinRetForReadLoop:
		b.xferSmall = 0
		b.xferLarge++
		if b.xferLarge >= 3 {
			b.streamer = true
			b.streamerFast = true
		}
	case (b.streamer || b.streamerFast) && sawShort && curRead <= b.Size()/2:
		b.xferLarge = 0
		b.xferSmall++
		if b.xferSmall >= 2 {
			b.streamerFast = false
		}
		if b.xferSmall >= 3 {
			b.streamer = false
		}
	default:
		b.xferSmall = 0
		b.xferLarge = 0
	}
}

// readNull handles the orderly remote close seen on the input side.
func (si *Interface) readNull() {
	b := si.ib
	b.readNull = true
	if b.autoClose {
		// schedule the peer's write shutdown once this buffer drains
		b.shutWNow = true
	}
	si.ShutRead()
}

// Writable runs one write pass after the poller signaled write
// readiness.
func (si *Interface) Writable() {
	b := si.ob

	if si.conn.err {
		si.fatal()
		return
	}

	// maybe an asynchronous shutdown already happened
	if b.shutW {
		return
	}

	if err := si.writeLoop(b); err != nil {
		si.fatal()
	}
}

// writeLoop drains the output buffer to the socket: the relay pipe
// first, in arrival order, then the buffered bytes. Flow-control
// conditions return nil with readiness re-requested; only transport
// failures return an error.
func (si *Interface) writeLoop(b *Buffer) error {
	loops := si.tune.MaxWritePollLoops

	for b.pipe != nil {
		n, err := si.tr.SpliceOut(b.pipe, si.conn.fd, b.pipe.resident)
		if err != nil {
			if errors.Is(err, ErrAgain) || errors.Is(err, io.EOF) {
				si.poller.PollSend(si.conn.fd)
				return nil
			}
			return err
		}

		b.writePartial = true
		b.pipe.resident -= n

		if b.pipe.resident == 0 {
			si.pool.Release(b.pipe)
			b.pipe = nil
			break
		}

		loops--
		if loops <= 0 {
			return nil
		}

		// the pipe was not emptied, so the socket buffer is full
		si.poller.PollSend(si.conn.fd)
		return nil
	}

	// the relay is drained; buffered output may remain
	if b.o == 0 {
		b.outEmpty = true
		return nil
	}

	for {
		max := b.ContigOutput()
		n, err := si.tr.Send(si.conn.fd, b.outputSlice(max), si.sendMore(b, max))
		if err != nil {
			if errors.Is(err, ErrAgain) {
				// nothing written, poll for write first
				si.poller.PollSend(si.conn.fd)
				return nil
			}
			return err
		}

		if si.conn.waitL4 {
			si.conn.waitL4 = false
			si.exp = tick.Eternity
		}

		b.writePartial = true
		b.o -= n
		if b.Len() == 0 {
			// optimize alignment for the next exchange
			b.Realign()
		}
		if b.Space() > 0 {
			b.full = false
		}

		if b.o == 0 {
			// both hints are one-shot, clear them once everything left
			b.expectMore = false
			b.sendDontWait = false
			if b.pipe == nil {
				b.outEmpty = true
			}
			break
		}

		// if the system buffer is full, don't insist
		if n < max {
			break
		}

		loops--
		if loops <= 0 {
			break
		}
	}
	return nil
}

// sendMore decides whether to hint the kernel that more data follows,
// so small segments coalesce. Worth doing when a finite forwarding
// budget still runs, when the producer announced more data, when the
// final chunk precedes an impending write shutdown, or when a wrapped
// remainder forces a follow-up send. An explicit send-dont-wait
// overrides everything.
func (si *Interface) sendMore(b *Buffer, max int) bool {
	more := (!b.neverWait &&
		((b.toForward > 0 && b.toForward != ForwardInfinite) || b.expectMore)) ||
		(b.shutWNow && !b.shutW && max == b.o) ||
		max != b.o
	if b.sendDontWait {
		more = false
	}
	return more
}

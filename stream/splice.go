package stream

import (
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/fzft/go-stream-proxy/log"
	"github.com/fzft/go-stream-proxy/tick"
)

// spliceResult tells the read handler what to do after a zero-copy
// attempt.
type spliceResult int

const (
	// spliceDone means the pass is over; flags carry the outcome.
	spliceDone spliceResult = iota
	// spliceSwitchToCopy means zero-copy did no work for this call and
	// the plain copy path must run instead.
	spliceSwitchToCopy
)

// spliceDetectsClose latches once the kernel has been observed to
// report an orderly close distinctly from would-block on a relay read.
// Older kernels return EAGAIN for both, which keeps the empty-pipe
// would-block case ambiguous until proven otherwise.
var spliceDetectsClose bool

// spliceIn moves socket input straight into the attached relay pipe.
// It never coexists relayed and buffered bytes: when the buffer already
// holds data the call is refused and the consumer is nudged to drain.
func (si *Interface) spliceIn(b *Buffer) spliceResult {
	if b.toForward == 0 || !b.kernSplicing {
		return spliceSwitchToCopy
	}

	if !b.IsEmpty() {
		// Data pending in the buffer must not end up in two places at
		// once. Ask the consumer to hurry and wait for room.
		si.waitRoom = true
		si.poller.StopRecv(si.conn.fd)
		b.rex = tick.Eternity
		if b.cons != nil {
			b.cons.ChkSnd()
		}
		return spliceDone
	}

	if b.pipe == nil {
		p, err := si.pool.Acquire()
		if err != nil {
			if !errors.Is(err, ErrPoolExhausted) {
				log.Logger.Debug("pipe acquire failed",
					zap.String("si", si.id), zap.Error(err))
			}
			// No relay available right now. Only this call falls back;
			// splicing stays enabled for the next pass.
			return spliceSwitchToCopy
		}
		b.pipe = p
	}

	res := spliceDone
	for {
		max := si.tune.MaxSpliceAtOnce
		if b.toForward != ForwardInfinite && int64(max) > b.toForward {
			max = int(b.toForward)
		}
		if max == 0 {
			// The pipe already holds everything left to forward; let
			// the consumer push it out.
			res = spliceSwitchToCopy
			break
		}

		n, err := si.tr.SpliceIn(si.conn.fd, b.pipe, max)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Orderly close, reported distinctly: remember this
				// kernel can tell close from would-block.
				spliceDetectsClose = true
				b.readNull = true
				break
			}
			if errors.Is(err, ErrAgain) {
				if b.pipe.resident > 0 {
					// The pipe may simply be full; wait for the
					// consumer to drain it.
					si.waitRoom = true
					break
				}
				// Empty pipe plus would-block is ambiguous: either no
				// input or an undetected close. Once close detection
				// is proven, a plain re-poll is safe; otherwise let
				// the copy path disambiguate.
				if spliceDetectsClose {
					si.poller.PollRecv(si.conn.fd)
				} else {
					res = spliceSwitchToCopy
				}
				break
			}
			if errors.Is(err, ErrNotSupported) {
				// This socket cannot splice; disable the optimization
				// for the rest of the buffer's and endpoint's life.
				b.kernSplicing = false
				si.capSplice = false
				si.pool.Release(b.pipe)
				b.pipe = nil
				return spliceSwitchToCopy
			}
			si.err = true
			break
		}

		if b.toForward != ForwardInfinite {
			b.toForward -= int64(n)
		}
		b.total += uint64(n)
		b.pipe.resident += n
		b.readPartial = true
		b.outEmpty = false

		if b.pipe.resident >= si.tune.SpliceFullHint || n >= si.tune.RecvEnough {
			// read enough for this pass
			break
		}
	}

	if b.pipe != nil && b.pipe.resident == 0 {
		si.pool.Release(b.pipe)
		b.pipe = nil
	}
	return res
}

package stream

import (
	"math"
	"time"

	"github.com/fzft/go-stream-proxy/tick"
)

// ForwardInfinite is the forwarding budget sentinel meaning "forward
// everything without ever consulting an upper layer".
const ForwardInfinite int64 = math.MaxInt64

// Buffer is a fixed-capacity ring carrying one direction of a proxied
// exchange. The o pending-output bytes end at offset p, the i
// pending-input bytes start there; both regions may wrap around the
// physical end of the storage.
//
// A Buffer is written by exactly one producer interface (socket reads
// land in the input region) and drained by exactly one consumer
// interface (sends take from the output region). Status is kept as
// independent named flags rather than a bitmask.
type Buffer struct {
	data []byte
	p    int // offset where pending input starts / pending output ends
	i    int // pending input bytes, not yet released to the consumer
	o    int // pending output bytes, ready to send

	// toForward is the number of input bytes to promote to output
	// without waiting for a consumer decision.
	toForward int64

	// total counts every byte ever accepted into the buffer. Never
	// reset while the buffer is in use.
	total uint64

	// streak counters for the streamer classifier.
	xferSmall int
	xferLarge int

	// read/write idle expirations and the timeouts that arm them.
	rex, wex tick.Tick
	rto, wto time.Duration

	// pipe is the attached zero-copy relay, nil when none. It must be
	// returned to the pool the moment it drains.
	pipe *Pipe

	// prod reads from its socket into this buffer, cons drains it to
	// its own socket.
	prod, cons *Interface

	full         bool // no room left for input
	outEmpty     bool // nothing left to send, pipe included
	readPartial  bool // read activity during the current pass
	writePartial bool // write activity during the current pass
	readNull     bool // end of input seen (orderly remote close)
	shutR        bool // input side definitely shut
	shutRNow     bool // input shutdown requested
	shutW        bool // output side definitely shut
	shutWNow     bool // output shutdown requested once drained
	autoClose    bool // propagate a read shutdown to the write side
	neverWait    bool // never hold data back waiting for more
	expectMore   bool // sender hint: more data follows shortly
	sendDontWait bool // flush immediately, overrides coalescing hints
	kernSplicing bool // zero-copy relay allowed on this buffer
	streamer     bool // bulk-transfer classification
	streamerFast bool // buffer-filling bulk transfer classification
	dontRead     bool // policy: do not read further input
}

// NewBuffer returns an empty buffer of the given capacity. rto and wto
// arm the read and write idle timers; zero means no timeout.
func NewBuffer(size int, rto, wto time.Duration) *Buffer {
	return &Buffer{
		data:     make([]byte, size),
		outEmpty: true,
		rto:      rto,
		wto:      wto,
	}
}

// Size returns the buffer capacity.
func (b *Buffer) Size() int { return len(b.data) }

// Len returns the byte count currently held, input and output regions
// combined.
func (b *Buffer) Len() int { return b.i + b.o }

// IsEmpty reports whether the buffer holds no bytes at all.
func (b *Buffer) IsEmpty() bool { return b.Len() == 0 }

// Space returns the room left for new input.
func (b *Buffer) Space() int { return len(b.data) - b.i - b.o }

// PendingInput returns the input bytes not yet promoted to output.
func (b *Buffer) PendingInput() int { return b.i }

// PendingOutput returns the bytes ready to be sent.
func (b *Buffer) PendingOutput() int { return b.o }

// OutEmpty reports whether nothing sendable remains, relay included.
func (b *Buffer) OutEmpty() bool { return b.outEmpty }

// Total returns the cumulative count of bytes ever accepted.
func (b *Buffer) Total() uint64 { return b.total }

// ToForward returns the remaining forwarding budget.
func (b *Buffer) ToForward() int64 { return b.toForward }

// ContigSpace returns the largest receive extent that does not cross
// the physical end of the storage. A second pass picks up the wrapped
// remainder.
func (b *Buffer) ContigSpace() int {
	avail := b.Space()
	if avail == 0 {
		return 0
	}
	// Only when the output region sits strictly below p and the input
	// region has not wrapped yet does the free space split in two.
	if b.o < b.p && b.p+b.i < len(b.data) {
		if avail > len(b.data)-(b.p+b.i) {
			avail = len(b.data) - (b.p + b.i)
		}
	}
	return avail
}

// ContigOutput returns the largest send extent that does not cross the
// physical end of the storage.
func (b *Buffer) ContigOutput() int {
	max := b.o
	if max > b.p {
		// output wraps: the first chunk runs to the physical end
		max = max - b.p
	}
	return max
}

// inputSlice returns the writable region for the next receive of up to
// max bytes. max must not exceed ContigSpace.
func (b *Buffer) inputSlice(max int) []byte {
	end := b.p + b.i
	if end >= len(b.data) {
		end -= len(b.data)
	}
	return b.data[end : end+max]
}

// outputSlice returns the readable region for the next send of up to
// max bytes. max must not exceed ContigOutput.
func (b *Buffer) outputSlice(max int) []byte {
	start := b.p - b.o
	if start < 0 {
		start += len(b.data)
	}
	return b.data[start : start+max]
}

// Advance promotes n input bytes to the output region, charging a
// finite forwarding budget. n must not exceed the pending input.
func (b *Buffer) Advance(n int) {
	if n == 0 {
		return
	}
	b.p += n
	if b.p >= len(b.data) {
		b.p -= len(b.data)
	}
	b.i -= n
	b.o += n
	if b.toForward != ForwardInfinite && b.toForward > 0 {
		fwd := int64(n)
		if fwd > b.toForward {
			fwd = b.toForward
		}
		b.toForward -= fwd
	}
	if b.o > 0 {
		b.outEmpty = false
	}
}

// Forward schedules n more bytes for automatic promotion, advancing any
// input already pending.
func (b *Buffer) Forward(n int64) {
	if b.toForward != ForwardInfinite {
		b.toForward += n
	}
	if b.i > 0 {
		adv := int64(b.i)
		if adv > b.toForward {
			adv = b.toForward
		}
		b.Advance(int(adv))
	}
}

// ForwardForever switches the buffer to unbounded forwarding and
// promotes everything already pending.
func (b *Buffer) ForwardForever() {
	b.Advance(b.i)
	b.toForward = ForwardInfinite
}

// Realign resets the start offset so the next receive gets the whole
// capacity contiguously. Only legal while the buffer is empty.
func (b *Buffer) Realign() {
	if b.Len() == 0 {
		b.p = 0
	}
}

// Reset empties the buffer between logical exchanges. The cumulative
// total, the classifier streaks and the shut flags survive.
func (b *Buffer) Reset() {
	b.p, b.i, b.o = 0, 0, 0
	b.toForward = 0
	b.full = false
	b.outEmpty = true
	b.readPartial = false
	b.writePartial = false
	b.expectMore = false
	b.sendDontWait = false
}

// EnableKernSplicing marks the buffer eligible for the zero-copy relay
// path.
func (b *Buffer) EnableKernSplicing() { b.kernSplicing = true }

// SetAutoClose makes a read shutdown schedule the write-side shutdown
// of this buffer once it drains.
func (b *Buffer) SetAutoClose(v bool) { b.autoClose = v }

// SetDontRead suspends further reads into this buffer.
func (b *Buffer) SetDontRead(v bool) { b.dontRead = v }

// SetExpectMore hints that the producer will append more data shortly,
// allowing the consumer to coalesce segments.
func (b *Buffer) SetExpectMore(v bool) { b.expectMore = v }

// SetSendDontWait forces immediate flushing, overriding every
// coalescing hint. One-shot: cleared once the output drains.
func (b *Buffer) SetSendDontWait() { b.sendDontWait = true }

// IsFastStreamer reports the buffer-filling bulk classification.
func (b *Buffer) IsFastStreamer() bool { return b.streamerFast }

// IsStreamer reports the bulk-transfer classification.
func (b *Buffer) IsStreamer() bool { return b.streamer }

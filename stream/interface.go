package stream

import (
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/fzft/go-stream-proxy/config"
	"github.com/fzft/go-stream-proxy/log"
	"github.com/fzft/go-stream-proxy/tick"
)

// State is the stream interface life-cycle.
type State uint8

const (
	StateInit State = iota
	StateConnecting
	StateEstablished
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Interface is one endpoint of a proxied exchange. It owns its input
// buffer and connection; the output buffer belongs to the pipeline and
// is shared with the peer interface, whose input it is.
type Interface struct {
	id    string
	state State
	conn  Conn

	ib *Buffer // owned: socket reads land here
	ob *Buffer // shared: drained to the socket, fed by the peer

	// exp bounds the connect phase; cleared once traffic flows.
	exp tick.Tick

	waitRoom  bool // reads suspended until the consumer makes room
	waitData  bool // writes suspended until the producer supplies data
	err       bool // fatal transport error on this endpoint
	noHalf    bool // a read shutdown closes both directions
	noLinger  bool // forced close is abortive, no graceful linger
	indepTo   bool // read and write timeouts run independently
	dontWake  bool // suppress owner wake-ups
	capSplice bool // endpoint may use the zero-copy relay

	owner   Task
	release func(*Interface)

	pool   *PipePool
	tr     Transport
	poller Poller
	tune   config.Tune

	// now supplies the tick clock; injected so timer rules stay
	// testable.
	now func() tick.Tick
}

// NewInterface wraps an established or connecting descriptor. Buffers
// are attached afterwards by the pipeline.
func NewInterface(fd int, pool *PipePool, tr Transport, po Poller, tune config.Tune) *Interface {
	return &Interface{
		id:     xid.New().String(),
		state:  StateInit,
		conn:   Conn{fd: fd},
		pool:   pool,
		tr:     tr,
		poller: po,
		tune:   tune,
		now:    nowTick,
	}
}

func nowTick() tick.Tick { return tick.Now(time.Now()) }

// ID returns the interface's log identifier.
func (si *Interface) ID() string { return si.id }

// State returns the current life-cycle state.
func (si *Interface) State() State { return si.state }

// Conn exposes the owned connection.
func (si *Interface) Conn() *Conn { return &si.conn }

// In returns the owned input buffer.
func (si *Interface) In() *Buffer { return si.ib }

// Out returns the shared output buffer.
func (si *Interface) Out() *Buffer { return si.ob }

// HasError reports a fatal transport error on this endpoint.
func (si *Interface) HasError() bool { return si.err }

// SetOwner attaches the schedulable unit woken on notable events.
func (si *Interface) SetOwner(t Task) { si.owner = t }

// OnRelease registers the callback run once the interface fully
// closes.
func (si *Interface) OnRelease(fn func(*Interface)) { si.release = fn }

// SetNoHalf disables half-close: an orderly remote close tears both
// directions down. With abortive set the close skips the graceful
// linger.
func (si *Interface) SetNoHalf(abortive bool) {
	si.noHalf = true
	si.noLinger = abortive
}

// SetIndependentTimeouts stops write activity from refreshing the read
// timer.
func (si *Interface) SetIndependentTimeouts() { si.indepTo = true }

// SetDontWake suppresses owner wake-ups, for callers already inside
// the owner.
func (si *Interface) SetDontWake(v bool) { si.dontWake = v }

// EnableSplice marks the endpoint zero-copy capable.
func (si *Interface) EnableSplice() { si.capSplice = true }

// SpliceCapable reports whether the zero-copy relay is still allowed.
func (si *Interface) SpliceCapable() bool { return si.capSplice }

// Connecting records a transport handshake in flight; deadline bounds
// it.
func (si *Interface) Connecting(deadline tick.Tick) {
	si.state = StateConnecting
	si.conn.waitL4 = true
	si.exp = deadline
}

// Established marks the endpoint ready for traffic.
func (si *Interface) Established() {
	si.state = StateEstablished
	si.conn.waitL4 = false
	si.exp = tick.Eternity
}

func (si *Interface) wake(reason WakeReason) {
	if si.dontWake || si.owner == nil {
		return
	}
	si.owner.Wake(reason)
}

// fatal records a fatal transport error: both directions stop and the
// owner is woken so higher layers can tear the exchange down.
func (si *Interface) fatal() {
	si.conn.err = true
	si.err = true
	si.poller.StopBoth(si.conn.fd)
	si.wake(WakeErr)
}

// ShutRead propagates an orderly remote close seen on the input side.
// Idempotent. Depending on the peer's output state and the no-half
// policy this is either a pure half-close or escalates to a full
// close.
func (si *Interface) ShutRead() {
	ib := si.ib
	ib.shutRNow = false
	if ib.shutR {
		return
	}
	ib.shutR = true
	ib.rex = tick.Eternity
	si.waitRoom = false

	if si.state != StateEstablished && si.state != StateConnecting {
		return
	}

	if si.ob.shutW {
		si.closeBoth()
		return
	}

	if si.noHalf {
		// Closing with unread input or nolinger set may drop short
		// messages still queued in the kernel, so an abortive close is
		// only done when explicitly requested.
		if si.noLinger {
			si.noLinger = false
			if err := si.tr.SetNoLinger(si.conn.fd); err != nil {
				log.Logger.Debug("nolinger failed",
					zap.String("si", si.id), zap.Error(err))
			}
		}
		si.closeBoth()
		return
	}

	// plain half-close: just stop reading
	si.poller.StopRecv(si.conn.fd)
}

// ShutWrite shuts the sending direction. If the input side is already
// shut, or half-close is disabled, the whole endpoint closes.
func (si *Interface) ShutWrite() {
	ob := si.ob
	ob.shutWNow = false
	if ob.shutW {
		return
	}
	ob.shutW = true
	ob.wex = tick.Eternity
	si.waitData = false

	// bytes parked in the relay can never be delivered now
	if ob.pipe != nil {
		si.pool.Release(ob.pipe)
		ob.pipe = nil
	}

	switch si.state {
	case StateEstablished, StateConnecting:
		if si.ib.shutR || si.noHalf || si.noLinger {
			if si.noLinger {
				si.noLinger = false
				if err := si.tr.SetNoLinger(si.conn.fd); err != nil {
					log.Logger.Debug("nolinger failed",
						zap.String("si", si.id), zap.Error(err))
				}
			}
			si.closeBoth()
			return
		}
		if err := si.tr.ShutdownWrite(si.conn.fd); err != nil {
			si.closeBoth()
			return
		}
		si.poller.StopSend(si.conn.fd)
	case StateDisconnected:
	default:
		si.closeBoth()
	}
}

// Close force-closes the endpoint regardless of pending data.
func (si *Interface) Close() {
	if si.state == StateDisconnected {
		return
	}
	si.closeBoth()
}

// NextExpiry returns the earliest deadline of the connect phase and
// both idle timers, as a poll wait hint.
func (si *Interface) NextExpiry() tick.Tick {
	if si.state == StateDisconnected {
		return tick.Eternity
	}
	return tick.First(si.exp, tick.First(si.ib.rex, si.ob.wex))
}

// ProcessExpirations applies due timeouts: an expired connect deadline
// kills the endpoint, an expired read timer shuts the input side, an
// expired write timer the output side. Timers are disarmed before the
// shutdown so a stale deadline cannot fire twice.
func (si *Interface) ProcessExpirations(now tick.Tick) {
	if si.state == StateDisconnected {
		return
	}
	if si.exp.Expired(now) {
		si.fatal()
		return
	}
	if si.ib.rex.Expired(now) && !si.ib.shutR {
		si.ib.rex = tick.Eternity
		si.ShutRead()
	}
	if si.state != StateDisconnected && si.ob.wex.Expired(now) && !si.ob.shutW {
		si.ob.wex = tick.Eternity
		si.ShutWrite()
	}
}

// closeBoth releases the connection: the descriptor leaves the poller
// and closes, the state machine reaches Disconnected and the release
// callback runs.
func (si *Interface) closeBoth() {
	si.ib.shutR = true
	si.ib.rex = tick.Eternity
	si.ob.shutW = true
	si.ob.wex = tick.Eternity

	if si.ob.pipe != nil {
		si.pool.Release(si.ob.pipe)
		si.ob.pipe = nil
	}

	si.poller.Remove(si.conn.fd)
	if err := si.tr.Close(si.conn.fd); err != nil {
		log.Logger.Debug("close failed",
			zap.String("si", si.id), zap.Error(err))
	}
	si.state = StateDisconnected
	si.exp = tick.Eternity
	if si.release != nil {
		si.release(si)
	}
	si.wake(WakeShut)
}

package stream

import (
	"github.com/fzft/go-stream-proxy/tick"
)

// Update reconciles readiness registration and idle timers with the
// buffer flags once they settled after an I/O pass. Calling it more
// than once is harmless.
func (si *Interface) Update() {
	if si.state == StateDisconnected {
		return
	}

	ib, ob := si.ib, si.ob
	fd := si.conn.fd
	now := si.now()

	// read side
	if !ib.shutR {
		if ib.full || ib.dontRead {
			// stop reading
			if !si.waitRoom {
				if ib.full && !ib.dontRead {
					si.waitRoom = true
				}
				si.poller.StopRecv(fd)
				ib.rex = tick.Eternity
			}
		} else {
			// (re)start reading. The timer is only armed when unset:
			// recomputing it on every pass would risk never expiring.
			// The I/O handlers already refreshed it on completed I/O.
			si.waitRoom = false
			si.poller.WantRecv(fd)
			if !ib.rex.IsSet() {
				ib.rex = tick.AddIfSet(now, ib.rto)
			}
		}
	}

	// write side
	if !ob.shutW {
		if ob.outEmpty && ob.autoClose && ob.shutWNow {
			// the last chunk already left and the exchange wants the
			// write side closed behind it
			si.ShutWrite()
			return
		}
		if ob.outEmpty {
			// stop writing
			if !si.waitData {
				if !ob.full && !ob.shutWNow {
					si.waitData = true
				}
				si.poller.StopSend(fd)
				ob.wex = tick.Eternity
			}
		} else {
			// (re)start writing, arming the timer only when unset
			si.waitData = false
			si.poller.WantSend(fd)
			if !ob.wex.IsSet() {
				ob.wex = tick.AddIfSet(now, ob.wto)
				if ib.rex.IsSet() && !si.indepTo {
					// The protocol may leave us unsure whether replies
					// are awaited; refresh the read timer alongside
					// writes so steady writers don't spuriously time
					// out reading, unless independent timeouts were
					// asked for.
					ib.rex = tick.AddIfSet(now, ib.rto)
				}
			}
		}
	}
}

// ChkRcv is called by the consumer to tell this producer that room may
// be available again. Timers are deliberately left alone so real
// idleness still expires.
func (si *Interface) ChkRcv() {
	ib := si.ib

	if si.state != StateEstablished || ib.shutR {
		return
	}

	if ib.full || ib.dontRead {
		if ib.full && !ib.dontRead {
			si.waitRoom = true
		}
		si.poller.StopRecv(si.conn.fd)
	} else {
		si.waitRoom = false
		si.poller.WantRecv(si.conn.fd)
	}
}

// ChkSnd is called by the producer to tell this consumer that data is
// available. It attempts an immediate write, handles the auto-close
// completion, and wakes the owner on completion conditions.
func (si *Interface) ChkSnd() {
	ob := si.ob

	if si.state != StateEstablished || ob.shutW {
		return
	}

	if ob.outEmpty {
		// called with nothing to send
		return
	}

	if ob.pipe == nil && !si.waitData {
		// already in the middle of sending; spliced data however wants
		// to be forwarded as soon as possible
		return
	}

	if err := si.writeLoop(ob); err != nil {
		si.fatal()
		return
	}

	now := si.now()
	wakeup := false

	if ob.outEmpty {
		// Everything went out, or sending is withheld. Maybe the last
		// chunk just left and the exchange wants to close.
		if ob.autoClose && ob.shutWNow && si.state == StateEstablished {
			si.ShutWrite()
			wakeup = true
		} else {
			if !ob.shutWNow && !ob.full {
				si.waitData = true
			}
			ob.wex = tick.Eternity
		}
	} else {
		// data remains, poll before sending more
		si.poller.WantSend(si.conn.fd)
		si.waitData = false
		if !ob.wex.IsSet() {
			ob.wex = tick.AddIfSet(now, ob.wto)
		}
	}

	if ob.writePartial {
		// refresh the write timer after actual progress
		if !ob.outEmpty && !ob.shutW {
			ob.wex = tick.AddIfSet(now, ob.wto)
		}
		if si.ib.rex.IsSet() && !si.indepTo {
			// keep steady writers from expiring their read side,
			// unless independent timeouts were asked for
			si.ib.rex = tick.AddIfSet(now, si.ib.rto)
		}
	}

	// anything that ends or empties the exchange needs a session-level
	// look; routine mid-stream progress does not
	if wakeup || ob.shutW ||
		(ob.outEmpty && ob.toForward == 0) ||
		si.state != StateEstablished {
		si.wake(WakeIO)
	}
}

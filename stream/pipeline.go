package stream

// Pipeline owns the two buffers of a proxied exchange and cross-wires
// the endpoints: each interface's output buffer is the peer's input
// buffer, so bytes read on one side become sendable on the other.
type Pipeline struct {
	front *Interface // client-facing endpoint
	back  *Interface // server-facing endpoint

	req *Buffer // front reads produce, back sends consume
	res *Buffer // back reads produce, front sends consume
}

// NewPipeline wires front and back through the req and res buffers,
// assigning exactly one producer and one consumer role per buffer.
func NewPipeline(front, back *Interface, req, res *Buffer) *Pipeline {
	front.ib, front.ob = req, res
	back.ib, back.ob = res, req
	req.prod, req.cons = front, back
	res.prod, res.cons = back, front

	if front.capSplice {
		req.kernSplicing = true
	}
	if back.capSplice {
		res.kernSplicing = true
	}

	return &Pipeline{front: front, back: back, req: req, res: res}
}

// Front returns the client-facing endpoint.
func (pl *Pipeline) Front() *Interface { return pl.front }

// Back returns the server-facing endpoint.
func (pl *Pipeline) Back() *Interface { return pl.back }

// Request returns the client-to-server buffer.
func (pl *Pipeline) Request() *Buffer { return pl.req }

// Response returns the server-to-client buffer.
func (pl *Pipeline) Response() *Buffer { return pl.res }

// OnReadable dispatches a read-readiness event on si: run the read
// pass, give the freshly produced data to the consumer, then reconcile
// both endpoints' registration and timers.
func (pl *Pipeline) OnReadable(si *Interface, ev EventFlags) {
	si.Readable(ev)
	if cons := si.ib.cons; cons != nil {
		cons.ChkSnd()
		cons.Update()
	}
	si.Update()
}

// OnWritable dispatches a write-readiness event on si: run the write
// pass, tell the producer that room freed up, then reconcile.
func (pl *Pipeline) OnWritable(si *Interface) {
	si.Writable()
	if prod := si.ob.prod; prod != nil {
		prod.ChkRcv()
		prod.Update()
	}
	si.Update()
}

// OnError handles a poller-reported descriptor error: fatal for both
// directions of this endpoint.
func (pl *Pipeline) OnError(si *Interface) {
	si.fatal()
}

// Closed reports whether both endpoints reached Disconnected.
func (pl *Pipeline) Closed() bool {
	return pl.front.state == StateDisconnected && pl.back.state == StateDisconnected
}

package stream

import (
	"github.com/fzft/go-stream-proxy/config"
	"github.com/fzft/go-stream-proxy/tick"
)

// ioStep scripts one outcome of a fake transport operation: either err
// fires, or up to n bytes (or data, for receives) are accepted.
type ioStep struct {
	data []byte
	n    int
	err  error
}

// fakeTransport replays scripted results per operation and records the
// side effects, so transfer passes run without sockets.
type fakeTransport struct {
	recvQ      []ioStep
	sendQ      []ioStep
	spliceInQ  []ioStep
	spliceOutQ []ioStep

	sent      [][]byte
	sentMore  []bool
	shutW     []int
	noLinger  []int
	closed    []int
	recvCalls int
	sendCalls int
}

func (t *fakeTransport) Recv(fd int, p []byte) (int, error) {
	t.recvCalls++
	if len(t.recvQ) == 0 {
		return 0, ErrAgain
	}
	st := t.recvQ[0]
	t.recvQ = t.recvQ[1:]
	if st.err != nil {
		return 0, st.err
	}
	return copy(p, st.data), nil
}

func (t *fakeTransport) Send(fd int, p []byte, more bool) (int, error) {
	t.sendCalls++
	if len(t.sendQ) == 0 {
		return 0, ErrAgain
	}
	st := t.sendQ[0]
	t.sendQ = t.sendQ[1:]
	if st.err != nil {
		return 0, st.err
	}
	n := st.n
	if n > len(p) {
		n = len(p)
	}
	t.sent = append(t.sent, append([]byte(nil), p[:n]...))
	t.sentMore = append(t.sentMore, more)
	return n, nil
}

func (t *fakeTransport) SpliceIn(fd int, p *Pipe, max int) (int, error) {
	if len(t.spliceInQ) == 0 {
		return 0, ErrAgain
	}
	st := t.spliceInQ[0]
	t.spliceInQ = t.spliceInQ[1:]
	if st.err != nil {
		return 0, st.err
	}
	n := st.n
	if n > max {
		n = max
	}
	return n, nil
}

func (t *fakeTransport) SpliceOut(p *Pipe, fd int, max int) (int, error) {
	if len(t.spliceOutQ) == 0 {
		return 0, ErrAgain
	}
	st := t.spliceOutQ[0]
	t.spliceOutQ = t.spliceOutQ[1:]
	if st.err != nil {
		return 0, st.err
	}
	n := st.n
	if n > max {
		n = max
	}
	return n, nil
}

func (t *fakeTransport) ShutdownWrite(fd int) error {
	t.shutW = append(t.shutW, fd)
	return nil
}

func (t *fakeTransport) SetNoLinger(fd int) error {
	t.noLinger = append(t.noLinger, fd)
	return nil
}

func (t *fakeTransport) Close(fd int) error {
	t.closed = append(t.closed, fd)
	return nil
}

// allSent concatenates everything accepted by the fake socket.
func (t *fakeTransport) allSent() []byte {
	var out []byte
	for _, chunk := range t.sent {
		out = append(out, chunk...)
	}
	return out
}

// fakePoller counts registration calls.
type fakePoller struct {
	wantRecv, stopRecv, pollRecv int
	wantSend, stopSend, pollSend int
	stopBoth, removed            int
}

func (p *fakePoller) WantRecv(fd int) { p.wantRecv++ }
func (p *fakePoller) StopRecv(fd int) { p.stopRecv++ }
func (p *fakePoller) PollRecv(fd int) { p.pollRecv++ }
func (p *fakePoller) WantSend(fd int) { p.wantSend++ }
func (p *fakePoller) StopSend(fd int) { p.stopSend++ }
func (p *fakePoller) PollSend(fd int) { p.pollSend++ }
func (p *fakePoller) StopBoth(fd int) { p.stopBoth++ }
func (p *fakePoller) Remove(fd int)   { p.removed++ }

// fakeTask records wake-ups.
type fakeTask struct {
	reasons []WakeReason
}

func (t *fakeTask) Wake(reason WakeReason) { t.reasons = append(t.reasons, reason) }

func (t *fakeTask) woken() bool { return len(t.reasons) > 0 }

// testRig is a fully wired pipeline over fakes with a frozen clock.
type testRig struct {
	tr    *fakeTransport
	po    *fakePoller
	pool  *PipePool
	task  *fakeTask
	pl    *Pipeline
	front *Interface
	back  *Interface
	req   *Buffer
	res   *Buffer
	now   tick.Tick
}

func testTune() config.Tune {
	return config.DefaultTune()
}

// fakePipes makes the pool hand out inert pipes so no kernel resources
// are involved.
func fakePipes(pp *PipePool) {
	pp.newPipe = func() (*Pipe, error) {
		return &Pipe{prodFd: -1, consFd: -1}, nil
	}
}

func newTestRig(tune config.Tune, bufSize int) *testRig {
	rig := &testRig{
		tr:   &fakeTransport{},
		po:   &fakePoller{},
		pool: NewPipePool(tune.MaxPipes),
		task: &fakeTask{},
		now:  1000,
	}
	fakePipes(rig.pool)

	rig.front = NewInterface(3, rig.pool, rig.tr, rig.po, tune)
	rig.back = NewInterface(4, rig.pool, rig.tr, rig.po, tune)
	rig.front.now = func() tick.Tick { return rig.now }
	rig.back.now = func() tick.Tick { return rig.now }
	rig.front.SetOwner(rig.task)
	rig.back.SetOwner(rig.task)

	rig.req = NewBuffer(bufSize, 0, 0)
	rig.res = NewBuffer(bufSize, 0, 0)
	rig.pl = NewPipeline(rig.front, rig.back, rig.req, rig.res)

	rig.front.Established()
	rig.back.Established()
	return rig
}

// seedOutput plants sendable bytes starting at physical offset 0.
func seedOutput(b *Buffer, data []byte) {
	copy(b.data, data)
	b.p = len(data) % len(b.data)
	b.o = len(data)
	b.outEmpty = false
}

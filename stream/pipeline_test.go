package stream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

// wireProxy puts the rig into the shape a proxy session uses: both
// directions forward everything unconditionally, a remote close on one
// side schedules the matching write shutdown on the other, and both
// endpoints reconciled their registration once.
func wireProxy(rig *testRig) {
	rig.req.ForwardForever()
	rig.req.SetAutoClose(true)
	rig.res.ForwardForever()
	rig.res.SetAutoClose(true)
	rig.front.Update()
	rig.back.Update()
}

func TestPipelineWiring(t *testing.T) {
	rig := newTestRig(testTune(), 16384)

	assert.Same(t, rig.front, rig.pl.Front())
	assert.Same(t, rig.back, rig.pl.Back())
	assert.Same(t, rig.req, rig.pl.Request())
	assert.Same(t, rig.res, rig.pl.Response())

	assert.Same(t, rig.req, rig.front.In())
	assert.Same(t, rig.req, rig.back.Out())
	assert.Same(t, rig.front, rig.req.prod)
	assert.Same(t, rig.back, rig.req.cons)
}

// Bytes read on the front leave on the back within the same event: the
// consumer was waiting for data, so the notification sends right away.
func TestPipelineForwardsWithinOneEvent(t *testing.T) {
	rig := newTestRig(testTune(), 16384)
	wireProxy(rig)
	data := payload(1000)
	rig.tr.recvQ = []ioStep{{data: data}}
	rig.tr.sendQ = []ioStep{{n: 1000}}

	rig.pl.OnReadable(rig.front, EvIn)

	assert.True(t, bytes.Equal(data, rig.tr.allSent()))
	assert.True(t, rig.req.outEmpty)
	assert.True(t, rig.back.waitData, "consumer waits for the next chunk")
	assert.Equal(t, uint64(1000), rig.req.Total())
	assert.False(t, rig.task.woken(), "mid-stream traffic needs no session pass")
}

// A consumer that cannot send holds the data; the later writable event
// flushes it and re-opens the producer.
func TestPipelineBlockedConsumerThenWritable(t *testing.T) {
	rig := newTestRig(testTune(), 256)
	wireProxy(rig)
	data := payload(256)
	rig.tr.recvQ = []ioStep{{data: data}}
	// sendQ empty: the back socket refuses everything for now

	rig.pl.OnReadable(rig.front, EvIn)

	assert.Equal(t, 256, rig.req.PendingOutput())
	assert.True(t, rig.req.full)
	assert.True(t, rig.front.waitRoom, "producer stalls on a full ring")

	rig.tr.sendQ = []ioStep{{n: 256}}
	rig.pl.OnWritable(rig.back)

	assert.True(t, bytes.Equal(data, rig.tr.allSent()))
	assert.False(t, rig.req.full)
	assert.False(t, rig.front.waitRoom, "room freed, producer reads again")
}

// A client close travels through: the forward direction half-closes at
// both ends, then the backend's close collapses the whole exchange.
func TestPipelineTeardownOnBothCloses(t *testing.T) {
	rig := newTestRig(testTune(), 16384)
	wireProxy(rig)

	// client sends EOF
	rig.tr.recvQ = []ioStep{{err: io.EOF}}
	rig.pl.OnReadable(rig.front, EvIn)

	assert.True(t, rig.req.shutR)
	assert.True(t, rig.req.shutW, "write shutdown follows the drained buffer")
	assert.Equal(t, []int{4}, rig.tr.shutW, "FIN relayed to the backend")
	assert.False(t, rig.pl.Closed())

	// backend answers with its own EOF
	rig.tr.recvQ = []ioStep{{err: io.EOF}}
	rig.pl.OnReadable(rig.back, EvIn)

	assert.True(t, rig.pl.Closed())
	assert.ElementsMatch(t, []int{3, 4}, rig.tr.closed)
	assert.Contains(t, rig.task.reasons, WakeShut)
}

// The close sequencing holds when buffered data is still in flight:
// the FIN must not overtake the payload.
func TestPipelineCloseWaitsForDrain(t *testing.T) {
	rig := newTestRig(testTune(), 16384)
	wireProxy(rig)

	// payload and EOF arrive together; the backend accepts nothing yet
	rig.tr.recvQ = []ioStep{{data: payload(4096)}, {err: io.EOF}}
	rig.pl.OnReadable(rig.front, EvIn)

	assert.True(t, rig.req.shutWNow, "shutdown pending, not done")
	assert.False(t, rig.req.shutW)
	assert.Empty(t, rig.tr.shutW)
	assert.Equal(t, 4096, rig.req.PendingOutput())

	// now the backend drains: data first, then the shutdown completes
	rig.tr.sendQ = []ioStep{{n: 4096}}
	rig.pl.OnWritable(rig.back)

	assert.True(t, bytes.Equal(payload(4096), rig.tr.allSent()))
	assert.True(t, rig.req.shutW)
	assert.Equal(t, []int{4}, rig.tr.shutW)
}

func TestPipelineErrorWakesOwner(t *testing.T) {
	rig := newTestRig(testTune(), 16384)
	wireProxy(rig)

	rig.pl.OnError(rig.front)

	assert.True(t, rig.front.HasError())
	assert.Equal(t, 1, rig.po.stopBoth)
	assert.Contains(t, rig.task.reasons, WakeErr)
}

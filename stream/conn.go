package stream

// Conn is a non-blocking stream socket exclusively owned by one
// Interface.
type Conn struct {
	fd int

	// err is latched on the first fatal transport error; every entry
	// point checks it before attempting further I/O.
	err bool

	// waitL4 is set while the transport-level handshake (connect) has
	// not completed yet.
	waitL4 bool
}

// Fd returns the socket descriptor.
func (c *Conn) Fd() int { return c.fd }

// HasError reports whether a fatal transport error was recorded.
func (c *Conn) HasError() bool { return c.err }

// SetError latches the fatal-error flag.
func (c *Conn) SetError() { c.err = true }

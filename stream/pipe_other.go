//go:build !linux
// +build !linux

package stream

// Kernel pipe relays are a Linux facility; elsewhere acquisition fails
// and the engine stays on the copy path.
func newKernelPipe() (*Pipe, error) {
	return nil, ErrNotSupported
}

func (p *Pipe) close() error { return nil }

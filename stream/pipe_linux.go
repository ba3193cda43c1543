//go:build linux
// +build linux

package stream

import (
	"golang.org/x/sys/unix"
)

// newKernelPipe opens a non-blocking kernel pipe pair for use as a
// zero-copy relay.
func newKernelPipe() (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	// fds[0] is the read end drained towards the consuming socket,
	// fds[1] the write end fed from the producing socket.
	return &Pipe{prodFd: fds[1], consFd: fds[0]}, nil
}

func (p *Pipe) close() error {
	err := unix.Close(p.prodFd)
	if cerr := unix.Close(p.consFd); err == nil {
		err = cerr
	}
	return err
}

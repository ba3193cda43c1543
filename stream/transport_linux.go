//go:build linux
// +build linux

package stream

import (
	"io"

	"golang.org/x/sys/unix"
)

// SockTransport drives non-blocking stream sockets through raw
// syscalls, mapping kernel errnos onto the engine's error taxonomy.
type SockTransport struct{}

func (SockTransport) Recv(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		switch err {
		case nil:
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, ErrAgain
		default:
			return 0, err
		}
	}
}

func (SockTransport) Send(fd int, p []byte, more bool) (int, error) {
	flags := unix.MSG_DONTWAIT | unix.MSG_NOSIGNAL
	if more {
		flags |= unix.MSG_MORE
	}
	for {
		n, err := unix.SendmsgN(fd, p, nil, nil, flags)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, ErrAgain
		default:
			return 0, err
		}
	}
}

func (SockTransport) SpliceIn(fd int, p *Pipe, max int) (int, error) {
	return spliceMove(fd, p.prodFd, max)
}

func (SockTransport) SpliceOut(p *Pipe, fd int, max int) (int, error) {
	return spliceMove(p.consFd, fd, max)
}

func spliceMove(fromFd, toFd, max int) (int, error) {
	for {
		n, err := unix.Splice(fromFd, nil, toFd, nil, max,
			unix.SPLICE_F_MOVE|unix.SPLICE_F_NONBLOCK)
		switch err {
		case nil:
			if n == 0 {
				return 0, io.EOF
			}
			return int(n), nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, ErrAgain
		case unix.ENOSYS, unix.EINVAL:
			// splice unusable on this descriptor pair
			return 0, ErrNotSupported
		default:
			return 0, err
		}
	}
}

func (SockTransport) ShutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

func (SockTransport) SetNoLinger(fd int) error {
	return unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER,
		&unix.Linger{Onoff: 1, Linger: 0})
}

func (SockTransport) Close(fd int) error {
	return unix.Close(fd)
}

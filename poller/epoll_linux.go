//go:build linux
// +build linux

package poller

import (
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/fzft/go-stream-proxy/log"
	"github.com/fzft/go-stream-proxy/stream"
)

const (
	readEvents  = unix.EPOLLPRI | unix.EPOLLIN
	writeEvents = unix.EPOLLOUT
)

// Event is one normalized readiness notification.
type Event struct {
	Fd    int
	Flags stream.EventFlags
}

// Epoll is a level-triggered epoll wrapper implementing stream.Poller.
// It tracks the interest set per descriptor so registration calls can
// pick add versus mod without querying the kernel.
type Epoll struct {
	epollFd  int
	interest map[int]uint32
	events   []unix.EpollEvent
}

// New creates an epoll instance sized for maxEvents per wait.
func New(maxEvents int) (*Epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		log.Logger.Error("failed to create epoll", zap.Error(err))
		return nil, err
	}
	return &Epoll{
		epollFd:  epfd,
		interest: make(map[int]uint32),
		events:   make([]unix.EpollEvent, maxEvents),
	}, nil
}

func (e *Epoll) set(fd int, events uint32) {
	old, ok := e.interest[fd]
	if ok && old == events {
		return
	}

	var err error
	switch {
	case events == 0 && ok:
		err = unix.EpollCtl(e.epollFd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(e.interest, fd)
	case events == 0:
		return
	case ok:
		err = unix.EpollCtl(e.epollFd, unix.EPOLL_CTL_MOD, fd,
			&unix.EpollEvent{Fd: int32(fd), Events: events})
		e.interest[fd] = events
	default:
		err = unix.EpollCtl(e.epollFd, unix.EPOLL_CTL_ADD, fd,
			&unix.EpollEvent{Fd: int32(fd), Events: events})
		e.interest[fd] = events
	}
	if err != nil {
		log.Logger.Error("epoll_ctl failed", zap.Int("fd", fd), zap.Error(err))
	}
}

// WantRecv arms read interest for fd.
func (e *Epoll) WantRecv(fd int) { e.set(fd, e.interest[fd]|readEvents) }

// StopRecv drops read interest for fd.
func (e *Epoll) StopRecv(fd int) { e.set(fd, e.interest[fd]&^uint32(readEvents)) }

// PollRecv requests a follow-up read notification. Level triggered, so
// identical to WantRecv.
func (e *Epoll) PollRecv(fd int) { e.WantRecv(fd) }

// WantSend arms write interest for fd.
func (e *Epoll) WantSend(fd int) { e.set(fd, e.interest[fd]|writeEvents) }

// StopSend drops write interest for fd.
func (e *Epoll) StopSend(fd int) { e.set(fd, e.interest[fd]&^uint32(writeEvents)) }

// PollSend requests a follow-up write notification.
func (e *Epoll) PollSend(fd int) { e.WantSend(fd) }

// StopBoth drops all interest for fd without removing it.
func (e *Epoll) StopBoth(fd int) { e.set(fd, 0) }

// Remove withdraws fd entirely.
func (e *Epoll) Remove(fd int) { e.set(fd, 0) }

// Wait blocks up to msec milliseconds (-1 forever) and returns the
// pending events, normalized to the engine's flag set.
func (e *Epoll) Wait(msec int) ([]Event, error) {
	var out []Event
	for {
		n, err := unix.EpollWait(e.epollFd, e.events, msec)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, os.NewSyscallError("epoll_wait", err)
		}

		for i := 0; i < n; i++ {
			ev := &e.events[i]
			var flags stream.EventFlags
			if ev.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
				flags |= stream.EvIn
			}
			if ev.Events&unix.EPOLLOUT != 0 {
				flags |= stream.EvOut
			}
			if ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
				flags |= stream.EvHup
			}
			if ev.Events&unix.EPOLLERR != 0 {
				flags |= stream.EvErr
			}
			out = append(out, Event{Fd: int(ev.Fd), Flags: flags})
		}
		return out, nil
	}
}

// Close drops every registered descriptor from the interest set and
// closes the epoll descriptor. The sockets themselves belong to their
// interfaces and stay open.
func (e *Epoll) Close() error {
	var errs error
	for fd := range e.interest {
		if err := unix.EpollCtl(e.epollFd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			errs = multierr.Append(errs, os.NewSyscallError("epoll_ctl del", err))
		}
	}
	e.interest = make(map[int]uint32)
	errs = multierr.Append(errs, unix.Close(e.epollFd))
	return errs
}

//go:build linux
// +build linux

package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/fzft/go-stream-proxy/config"
	"github.com/fzft/go-stream-proxy/log"
	"github.com/fzft/go-stream-proxy/poller"
	"github.com/fzft/go-stream-proxy/stream"
	"github.com/fzft/go-stream-proxy/tick"
)

const listenBacklog = 511

// maxWait caps the poll wait so signals and timers are observed even
// on idle loops.
const maxWait = 1000

// session is the schedulable unit owning one proxied exchange: the
// client-facing and server-facing interfaces cross-wired through a
// pipeline.
type session struct {
	id    string
	pl    *stream.Pipeline
	woken bool
}

func (s *session) Wake(reason stream.WakeReason) {
	s.woken = true
	log.Logger.Debug("session woken",
		zap.String("session", s.id), zap.Stringer("reason", reason))
}

// Server accepts clients, opens a backend leg per client and runs the
// single-threaded event loop moving bytes between them.
type Server struct {
	settings config.Settings

	ep   *poller.Epoll
	tr   stream.SockTransport
	pool *stream.PipePool

	lnFd      int
	backendSA unix.Sockaddr

	endpoints map[int]*stream.Interface
	owners    map[int]*session
	sessions  map[*session]struct{}
}

func NewServer(settings config.Settings) *Server {
	return &Server{
		settings:  settings,
		pool:      stream.NewPipePool(settings.Tune.MaxPipes),
		endpoints: make(map[int]*stream.Interface),
		owners:    make(map[int]*session),
		sessions:  make(map[*session]struct{}),
	}
}

// Run blocks until a termination signal arrives.
func (s *Server) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sa, err := resolveSockaddr(s.settings.BackendAddr)
	if err != nil {
		return fmt.Errorf("resolve backend %s: %w", s.settings.BackendAddr, err)
	}
	s.backendSA = sa

	if err := s.listen(); err != nil {
		return err
	}

	ep, err := poller.New(1024)
	if err != nil {
		return err
	}
	s.ep = ep
	defer s.shutdown()

	s.ep.WantRecv(s.lnFd)
	log.Logger.Info("listening",
		zap.String("addr", s.settings.ListenAddr),
		zap.String("backend", s.settings.BackendAddr))

	for {
		evs, err := s.ep.Wait(s.nextWait())
		if err != nil {
			return err
		}

		for _, ev := range evs {
			s.dispatch(ev)
		}

		now := tick.Now(time.Now())
		for sess := range s.sessions {
			sess.pl.Front().ProcessExpirations(now)
			sess.pl.Back().ProcessExpirations(now)
		}
		s.reap()

		select {
		case sig := <-sigCh:
			log.Logger.Info("shutting down", zap.String("signal", sig.String()))
			return nil
		default:
		}
	}
}

func (s *Server) listen() error {
	sa, err := resolveSockaddr(s.settings.ListenAddr)
	if err != nil {
		return fmt.Errorf("resolve listen %s: %w", s.settings.ListenAddr, err)
	}

	fd, err := unix.Socket(family(sa), unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return err
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return err
	}
	s.lnFd = fd
	return nil
}

// nextWait returns the poll timeout in milliseconds bounded by the
// nearest session deadline.
func (s *Server) nextWait() int {
	next := tick.Eternity
	for sess := range s.sessions {
		next = tick.First(next, sess.pl.Front().NextExpiry())
		next = tick.First(next, sess.pl.Back().NextExpiry())
	}
	wait := tick.Remaining(next, tick.Now(time.Now()))
	if wait < 0 || wait > maxWait {
		wait = maxWait
	}
	return wait
}

func (s *Server) dispatch(ev poller.Event) {
	if ev.Fd == s.lnFd {
		s.accept()
		return
	}

	si, ok := s.endpoints[ev.Fd]
	if !ok {
		return
	}
	sess := s.owners[ev.Fd]

	if ev.Flags&stream.EvErr != 0 {
		sess.pl.OnError(si)
		return
	}

	if si.State() == stream.StateConnecting && ev.Flags&stream.EvOut != 0 {
		s.finishConnect(si, sess)
	}
	if ev.Flags&(stream.EvIn|stream.EvHup) != 0 {
		sess.pl.OnReadable(si, ev.Flags)
	}
	if ev.Flags&stream.EvOut != 0 && si.State() == stream.StateEstablished {
		sess.pl.OnWritable(si)
	}
}

func (s *Server) accept() {
	for {
		cliFd, _, err := unix.Accept4(s.lnFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err != unix.EAGAIN {
				log.Logger.Error("accept failed", zap.Error(err))
			}
			return
		}

		if err := s.startSession(cliFd); err != nil {
			log.Logger.Error("session setup failed", zap.Error(err))
			unix.Close(cliFd)
		}
	}
}

func (s *Server) startSession(cliFd int) error {
	bckFd, err := unix.Socket(family(s.backendSA),
		unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return err
	}

	connecting := false
	if err := unix.Connect(bckFd, s.backendSA); err != nil {
		if err != unix.EINPROGRESS {
			unix.Close(bckFd)
			return err
		}
		connecting = true
	}

	tune := s.settings.Tune

	// req carries client bytes to the backend, res the replies back.
	req := stream.NewBuffer(tune.BufSize, s.settings.ClientTimeout, s.settings.ServerTimeout)
	res := stream.NewBuffer(tune.BufSize, s.settings.ServerTimeout, s.settings.ClientTimeout)
	req.ForwardForever()
	res.ForwardForever()
	req.SetAutoClose(true)
	res.SetAutoClose(true)

	front := stream.NewInterface(cliFd, s.pool, s.tr, s.ep, tune)
	back := stream.NewInterface(bckFd, s.pool, s.tr, s.ep, tune)
	if tune.MaxPipes > 0 {
		front.EnableSplice()
		back.EnableSplice()
	}

	sess := &session{id: xid.New().String(), pl: stream.NewPipeline(front, back, req, res)}
	front.SetOwner(sess)
	back.SetOwner(sess)
	front.OnRelease(s.onRelease)
	back.OnRelease(s.onRelease)

	now := tick.Now(time.Now())
	front.Established()
	if connecting {
		back.Connecting(tick.AddIfSet(now, s.settings.ServerTimeout))
		s.ep.WantSend(bckFd)
	} else {
		back.Established()
	}

	s.endpoints[cliFd] = front
	s.endpoints[bckFd] = back
	s.owners[cliFd] = sess
	s.owners[bckFd] = sess
	s.sessions[sess] = struct{}{}

	front.Update()
	back.Update()

	log.Logger.Debug("session started",
		zap.String("session", sess.id),
		zap.Int("client_fd", cliFd), zap.Int("backend_fd", bckFd))
	return nil
}

func (s *Server) finishConnect(si *stream.Interface, sess *session) {
	soerr, err := unix.GetsockoptInt(si.Conn().Fd(), unix.SOL_SOCKET, unix.SO_ERROR)
	if err == nil && soerr != 0 {
		err = unix.Errno(soerr)
	}
	if err != nil {
		log.Logger.Warn("backend connect failed",
			zap.String("session", sess.id), zap.Error(err))
		sess.pl.OnError(si)
		return
	}
	si.Established()
	si.Update()
}

func (s *Server) onRelease(si *stream.Interface) {
	fd := si.Conn().Fd()
	delete(s.endpoints, fd)
	delete(s.owners, fd)
}

// reap tears down sessions whose exchange is over: a fatal error on
// either leg kills both, and fully closed pairs are dropped.
func (s *Server) reap() {
	for sess := range s.sessions {
		if !sess.woken {
			continue
		}
		sess.woken = false

		front, back := sess.pl.Front(), sess.pl.Back()

		if front.HasError() || back.HasError() {
			front.Close()
			back.Close()
		}

		if sess.pl.Closed() {
			log.Logger.Debug("session finished",
				zap.String("session", sess.id),
				zap.Uint64("client_bytes", sess.pl.Request().Total()),
				zap.Uint64("backend_bytes", sess.pl.Response().Total()))
			delete(s.sessions, sess)
		}
	}
}

func (s *Server) shutdown() {
	for sess := range s.sessions {
		sess.pl.Front().Close()
		sess.pl.Back().Close()
	}
	unix.Close(s.lnFd)
	if err := s.ep.Close(); err != nil {
		log.Logger.Debug("poller close", zap.Error(err))
	}
	if err := s.pool.Close(); err != nil {
		log.Logger.Debug("pipe pool close", zap.Error(err))
	}
}

func resolveSockaddr(addr string) (unix.Sockaddr, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	ip := tcpAddr.IP
	if ip == nil {
		ip = net.IPv4zero
	}
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	sa := &unix.SockaddrInet6{Port: tcpAddr.Port}
	copy(sa.Addr[:], ip.To16())
	return sa, nil
}

func family(sa unix.Sockaddr) int {
	if _, ok := sa.(*unix.SockaddrInet6); ok {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

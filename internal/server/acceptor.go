package server

import (
	"context"
	"net"
	"time"

	"lanchat/internal/wire"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// acceptor turns incoming TCP connections into registered sessions.
type acceptor struct {
	ln           *net.TCPListener
	pollInterval time.Duration
	adopt        func(conn wire.LineConn, transport string) *Session
	logger       logrus.FieldLogger
}

func listenAcceptor(addr string, s *Server) (*acceptor, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve session address %s failed", addr)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen for sessions on %s failed", addr)
	}
	return &acceptor{
		ln:           ln,
		pollInterval: s.pollInterval,
		adopt:        s.adopt,
		logger:       s.logger.WithField("component", "acceptor"),
	}, nil
}

func (a *acceptor) addr() net.Addr {
	return a.ln.Addr()
}

func (a *acceptor) run(ctx context.Context) {
	defer func() {
		if err := a.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			a.logger.WithError(err).Warn("close session listener failed")
		}
		a.logger.Info("session acceptor stopped")
	}()
	a.logger.WithField("addr", a.addr().String()).Info("session acceptor started")

	var delay time.Duration
	for ctx.Err() == nil {
		if err := a.ln.SetDeadline(time.Now().Add(a.pollInterval)); err != nil {
			a.logger.WithError(err).Error("set accept deadline failed")
			return
		}
		conn, err := a.ln.Accept()
		if err != nil {
			if wire.IsTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			delay = nextAcceptDelay(delay)
			a.logger.WithError(err).WithField("retry_in", delay).Error("accept session connection failed")
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		sess := a.adopt(wire.NewStreamConn(conn), "tcp")
		if sess == nil {
			continue
		}
		a.logger.WithFields(logrus.Fields{
			"session": sess.ID(),
			"remote":  conn.RemoteAddr().String(),
		}).Info("new connection accepted")
	}
}

// nextAcceptDelay backs off after a failed Accept: 5ms doubling up to 1s.
func nextAcceptDelay(d time.Duration) time.Duration {
	const (
		minDelay = 5 * time.Millisecond
		maxDelay = time.Second
	)
	if d < minDelay {
		return minDelay
	}
	if d *= 2; d > maxDelay {
		return maxDelay
	}
	return d
}

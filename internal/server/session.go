// session.go
// A Session owns one peer connection. Run is the read goroutine: it decodes
// each line and either renames the session, deregisters it, or hands the
// payload to the MessageHandler. Send may be called from any goroutine.
// Reads are bounded by the poll interval so Cancel is observed promptly.

package server

import (
	"io"
	"net"
	"sync"
	"time"

	"lanchat/internal/wire"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PlaceholderName is a session's name until the peer announces itself.
const PlaceholderName = "ClientName"

// MessageHandler receives payload lines together with the sender's current
// name. It runs on the sending session's goroutine, concurrently with other
// sessions' handlers.
type MessageHandler func(sender, text string)

// sessionConfig is what a Session borrows from its Server.
type sessionConfig struct {
	manager      *ClientManager
	handler      MessageHandler
	pollInterval time.Duration
	logger       logrus.FieldLogger
	metrics      *metrics
}

// Session is the server side of one connected peer.
type Session struct {
	id        string
	transport string
	conn      wire.LineConn
	cfg       sessionConfig
	logger    logrus.FieldLogger

	mu   sync.RWMutex
	name string

	cancel     chan struct{}
	cancelOnce sync.Once
	finished   chan struct{}
}

func newSession(conn wire.LineConn, transport string, cfg sessionConfig) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		transport: transport,
		conn:      conn,
		cfg:       cfg,
		logger: cfg.logger.WithFields(logrus.Fields{
			"session":   id,
			"transport": transport,
			"remote":    remoteString(conn),
		}),
		name:     PlaceholderName,
		cancel:   make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Name returns the session's current display name.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// RemoteAddr returns the peer address as text.
func (s *Session) RemoteAddr() string {
	return remoteString(s.conn)
}

// Announce renames the session.
func (s *Session) Announce(name string) {
	s.mu.Lock()
	old := s.name
	s.name = name
	s.mu.Unlock()
	s.logger.WithFields(logrus.Fields{"old": old, "name": name}).Info("session announced")
}

// Send writes text to the peer as a payload line. Failures are logged and
// reported as false.
func (s *Session) Send(text string) bool {
	if err := s.conn.WriteLine(wire.Payload(text).Line()); err != nil {
		s.cfg.metrics.messagesSent.WithLabelValues("failed").Inc()
		s.logger.WithError(err).WithField("name", s.Name()).Warn("send to session failed")
		return false
	}
	s.cfg.metrics.messagesSent.WithLabelValues("ok").Inc()
	return true
}

// Cancel asks the receive loop to stop. It returns immediately.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancel)
	})
}

// Done is closed once the receive loop has exited and the connection is closed.
func (s *Session) Done() <-chan struct{} {
	return s.finished
}

func (s *Session) cancelled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

// Run is the receive loop. It returns when the peer disconnects, the peer
// deregisters, or Cancel is called.
func (s *Session) Run() {
	s.cfg.metrics.sessionsActive.Inc()
	defer func() {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.WithError(err).Debug("close session connection failed")
		}
		s.cfg.metrics.sessionsActive.Dec()
		close(s.finished)
	}()

	for !s.cancelled() {
		line, err := s.conn.ReadLine(s.cfg.pollInterval)
		if err != nil {
			if wire.IsTimeout(err) {
				continue
			}
			if isDisconnect(err) {
				s.logger.WithField("name", s.Name()).Info("peer disconnected")
			} else {
				s.logger.WithError(err).WithField("name", s.Name()).Warn("read from session failed")
			}
			s.cfg.manager.Remove(s)
			return
		}

		msg := wire.Decode(line)
		s.cfg.metrics.messagesReceived.WithLabelValues(msg.Kind.String()).Inc()
		switch msg.Kind {
		case wire.KindAnnounce:
			s.Announce(msg.Text)
		case wire.KindDeregister:
			s.deregister(msg.Text)
			return
		default:
			s.deliver(msg.Text)
		}
	}
	s.logger.WithField("name", s.Name()).Debug("session cancelled")
}

// deregister removes every session carrying the claimed name, not only this
// one. The other removed sessions are cancelled so they release their
// connections.
func (s *Session) deregister(claimed string) {
	removed := s.cfg.manager.RemoveByName(claimed)
	s.cfg.manager.Remove(s)
	for _, other := range removed {
		if other != s {
			other.Cancel()
		}
	}
	s.Cancel()
	s.logger.WithFields(logrus.Fields{
		"name":    s.Name(),
		"claimed": claimed,
		"removed": len(removed),
	}).Info("session deregistered")
}

func (s *Session) deliver(text string) {
	if s.cfg.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("message handler panicked")
		}
	}()
	s.cfg.handler(s.Name(), text)
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

func remoteString(conn wire.LineConn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

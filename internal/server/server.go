package server

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"lanchat/internal/wire"

	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const banner = "--------------------------------------------"

// Server makes itself discoverable by name and keeps a session per peer.
type Server struct {
	name string

	host          string
	discoveryPort int
	sessionPort   int
	gatewayAddr   string
	advertise     bool
	pollInterval  time.Duration
	gracePeriod   time.Duration
	handler       MessageHandler
	logger        logrus.FieldLogger
	registry      *prometheus.Registry
	metrics       *metrics

	clients *ClientManager

	// adoptMu orders adopt against the session snapshot taken by Stop.
	adoptMu sync.Mutex
	closed  bool

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	loops     *sync.WaitGroup
	responder *responder
	acceptor  *acceptor
	gateway   *gateway
	mdns      *zeroconf.Server
}

// New creates a stopped Server. The name is matched case-insensitively and
// stored lower-cased.
func New(name string, opts ...Option) (*Server, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	s := &Server{
		name:    strings.ToLower(name),
		clients: NewClientManager(),
	}
	defaults(s)
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.Wrap(err, "apply Server option failed")
		}
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	m, err := newMetrics(s.registry, s.name)
	if err != nil {
		return nil, err
	}
	s.metrics = m
	s.logger = s.logger.WithField("server", s.name)
	return s, nil
}

// Name returns the server identity.
func (s *Server) Name() string {
	return s.name
}

// Running reports whether Start succeeded and Stop has not been called since.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start binds the discovery and session listeners (and the gateway, if
// configured) and starts serving. A bind failure is returned and nothing is
// left running.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	resp, err := listenResponder(net.JoinHostPort(s.host, strconv.Itoa(s.discoveryPort)), s)
	if err != nil {
		return errors.Wrap(err, "start discovery responder failed")
	}
	acc, err := listenAcceptor(net.JoinHostPort(s.host, strconv.Itoa(s.sessionPort)), s)
	if err != nil {
		_ = resp.conn.Close()
		return errors.Wrap(err, "start session acceptor failed")
	}
	var gw *gateway
	if s.gatewayAddr != "" {
		gw, err = listenGateway(s.gatewayAddr, s)
		if err != nil {
			_ = resp.conn.Close()
			_ = acc.ln.Close()
			return errors.Wrap(err, "start gateway failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	loops := &sync.WaitGroup{}
	loops.Add(2)
	go func() {
		defer loops.Done()
		resp.run(ctx)
	}()
	go func() {
		defer loops.Done()
		acc.run(ctx)
	}()
	if gw != nil {
		loops.Add(1)
		go func() {
			defer loops.Done()
			gw.run(ctx, s.gracePeriod)
		}()
	}

	s.responder, s.acceptor, s.gateway = resp, acc, gw
	s.cancel, s.loops = cancel, loops
	s.running = true
	s.adoptMu.Lock()
	s.closed = false
	s.adoptMu.Unlock()

	if s.advertise {
		port := acc.addr().(*net.TCPAddr).Port
		if srv, err := advertise(s.name, port); err != nil {
			s.logger.WithError(err).Warn("mDNS advertisement unavailable")
		} else {
			s.mdns = srv
		}
	}

	s.logger.WithFields(logrus.Fields{
		"discovery": resp.addr().String(),
		"sessions":  acc.addr().String(),
	}).Info("server started")
	return nil
}

// Stop cancels the listeners, waits up to the grace period for them, then
// cancels every session and waits again before clearing the registry.
// Goroutines still running after a grace period are abandoned.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false

	s.cancel()
	if s.mdns != nil {
		s.mdns.Shutdown()
		s.mdns = nil
	}
	if !waitTimeout(s.loops, s.gracePeriod) {
		s.logger.WithField("grace", s.gracePeriod).Warn("listeners did not stop in time, abandoning them")
	}

	// Upgraded WebSockets outlive the gateway shutdown; refuse them from here on.
	s.adoptMu.Lock()
	s.closed = true
	s.adoptMu.Unlock()

	sessions := s.clients.Sessions()
	for _, sess := range sessions {
		sess.Cancel()
	}
	deadline := time.NewTimer(s.gracePeriod)
	defer deadline.Stop()
	abandoned := 0
wait:
	for i, sess := range sessions {
		select {
		case <-sess.Done():
		case <-deadline.C:
			abandoned = len(sessions) - i
			break wait
		}
	}
	if abandoned > 0 {
		s.logger.WithField("sessions", abandoned).Warn("sessions did not stop in time, abandoning them")
	}
	s.clients.Clear()
	s.logger.Info("server stopped")
}

// adopt registers a session for conn and starts its receive loop. Once Stop
// has begun the connection is closed instead and adopt returns nil.
func (s *Server) adopt(conn wire.LineConn, transport string) *Session {
	s.adoptMu.Lock()
	defer s.adoptMu.Unlock()
	if s.closed {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.WithError(err).Debug("close refused connection failed")
		}
		s.logger.WithField("transport", transport).Info("server stopping, connection refused")
		return nil
	}
	sess := newSession(conn, transport, sessionConfig{
		manager:      s.clients,
		handler:      s.handler,
		pollInterval: s.pollInterval,
		logger:       s.logger,
		metrics:      s.metrics,
	})
	s.metrics.sessionsAccepted.WithLabelValues(transport).Inc()
	s.clients.Add(sess)
	go sess.Run()
	return sess
}

// SendTo sends text to the first session named name. It returns false when
// no such session is registered.
func (s *Server) SendTo(name, text string) bool {
	sess, ok := s.clients.Find(name)
	if !ok {
		return false
	}
	sess.Send(text)
	return true
}

// SendToAll sends text to every registered session and returns the number of
// successful writes.
func (s *Server) SendToAll(text string) int {
	return s.clients.Broadcast(text)
}

// Names returns the registered session names.
func (s *Server) Names() []string {
	return s.clients.Snapshot()
}

// Clients returns id, name and address of every registered session.
func (s *Server) Clients() []ClientInfo {
	return s.clients.Infos()
}

// Describe renders the server name and the registered session names.
func (s *Server) Describe() string {
	var b strings.Builder
	b.WriteString(banner + "\n")
	b.WriteString("Servername: " + s.name + "\nClients:\n")
	for _, name := range s.clients.Snapshot() {
		b.WriteString(name + "\n")
	}
	b.WriteString(banner)
	return b.String()
}

// DiscoveryAddr returns the bound discovery address, or nil before Start.
func (s *Server) DiscoveryAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.responder == nil {
		return nil
	}
	return s.responder.addr()
}

// SessionAddr returns the bound session address, or nil before Start.
func (s *Server) SessionAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptor == nil {
		return nil
	}
	return s.acceptor.addr()
}

// GatewayAddr returns the bound gateway address, or nil when disabled.
func (s *Server) GatewayAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gateway == nil {
		return nil
	}
	return s.gateway.addr()
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

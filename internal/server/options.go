package server

import (
	"time"

	"lanchat/internal/wire"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPollInterval bounds every blocking read so cancellation is noticed.
	DefaultPollInterval = time.Second

	// DefaultGracePeriod is how long each Stop phase waits before abandoning
	// goroutines that have not exited.
	DefaultGracePeriod = 2 * time.Second
)

// Option configures a Server.
type Option func(*Server) error

// WithDiscoveryPort sets the UDP port discovery queries are answered on.
// Zero picks an ephemeral port.
func WithDiscoveryPort(port int) Option {
	return func(s *Server) error {
		if port < 0 || port > 65535 {
			return errors.Errorf("invalid discovery port %d", port)
		}
		s.discoveryPort = port
		return nil
	}
}

// WithSessionPort sets the TCP port sessions connect to. Zero picks an
// ephemeral port.
func WithSessionPort(port int) Option {
	return func(s *Server) error {
		if port < 0 || port > 65535 {
			return errors.Errorf("invalid session port %d", port)
		}
		s.sessionPort = port
		return nil
	}
}

// WithListenHost binds both listeners to host instead of all interfaces.
func WithListenHost(host string) Option {
	return func(s *Server) error {
		s.host = host
		return nil
	}
}

// WithPollInterval sets the bounded wait used by every listener and session.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return errors.Errorf("poll interval must be positive, got %s", d)
		}
		s.pollInterval = d
		return nil
	}
}

// WithGracePeriod sets how long each phase of Stop waits.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return errors.Errorf("grace period must be positive, got %s", d)
		}
		s.gracePeriod = d
		return nil
	}
}

// WithMessageHandler sets the callback for payload lines.
func WithMessageHandler(h MessageHandler) Option {
	return func(s *Server) error {
		s.handler = h
		return nil
	}
}

// WithLogger replaces the default logrus standard logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithRegistry registers the server's metrics on reg instead of a private
// registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) error {
		if reg == nil {
			return errors.New("registry must not be nil")
		}
		s.registry = reg
		return nil
	}
}

// WithGatewayAddr enables the HTTP/WebSocket gateway on addr.
func WithGatewayAddr(addr string) Option {
	return func(s *Server) error {
		s.gatewayAddr = addr
		return nil
	}
}

// WithAdvertise additionally announces the session port over mDNS.
func WithAdvertise(enabled bool) Option {
	return func(s *Server) error {
		s.advertise = enabled
		return nil
	}
}

func defaults(s *Server) {
	s.discoveryPort = wire.DefaultDiscoveryPort
	s.sessionPort = wire.DefaultSessionPort
	s.pollInterval = DefaultPollInterval
	s.gracePeriod = DefaultGracePeriod
	s.logger = logrus.StandardLogger()
}

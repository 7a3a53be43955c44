package client

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"lanchat/internal/wire"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPollInterval bounds each read of the background receive loop.
	DefaultPollInterval = time.Second

	// DefaultDialTimeout bounds the TCP connect after discovery.
	DefaultDialTimeout = 5 * time.Second

	banner = "--------------------------------------------"
)

// Listener receives every line the server sends. It runs on the client's
// receive goroutine.
type Listener func(text string)

// Client is the peer side of a lanchat session.
type Client struct {
	name        string
	serverName  string
	sessionPort int
	dialTimeout time.Duration
	poll        time.Duration
	discoverer  *Discoverer
	listener    Listener
	logger      logrus.FieldLogger

	mu         sync.Mutex
	conn       wire.LineConn
	serverIP   net.IP
	cancel     chan struct{}
	cancelOnce *sync.Once
	finished   chan struct{}
}

// Option configures a Client.
type Option func(*Client) error

// WithSessionPort sets the TCP port dialled after discovery.
func WithSessionPort(port int) Option {
	return func(c *Client) error {
		if port <= 0 || port > 65535 {
			return errors.Errorf("invalid session port %d", port)
		}
		c.sessionPort = port
		return nil
	}
}

// WithDiscoveryPort sets the UDP port queries are sent to.
func WithDiscoveryPort(port int) Option {
	return func(c *Client) error {
		if port <= 0 || port > 65535 {
			return errors.Errorf("invalid discovery port %d", port)
		}
		c.discoverer.Port = port
		return nil
	}
}

// WithBroadcastAddr sends discovery queries to addr instead of the limited
// broadcast address.
func WithBroadcastAddr(addr string) Option {
	return func(c *Client) error {
		if net.ParseIP(addr) == nil {
			return errors.Errorf("invalid broadcast address %q", addr)
		}
		c.discoverer.BroadcastAddr = addr
		return nil
	}
}

// WithDiscoveryTimeout sets how long Connect waits for a discovery reply.
func WithDiscoveryTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.Errorf("discovery timeout must be positive, got %s", d)
		}
		c.discoverer.Timeout = d
		return nil
	}
}

// WithPollInterval sets the bounded wait of the receive loop.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.Errorf("poll interval must be positive, got %s", d)
		}
		c.poll = d
		return nil
	}
}

// WithListener forwards received lines to l. Without a listener they are
// read and dropped.
func WithListener(l Listener) Option {
	return func(c *Client) error {
		c.listener = l
		return nil
	}
}

// WithLogger replaces the default logrus standard logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger
		c.discoverer.Logger = logger
		return nil
	}
}

// New creates a disconnected Client. Both names are lower-cased.
func New(clientName, serverName string, opts ...Option) (*Client, error) {
	clientName = strings.TrimSpace(clientName)
	serverName = strings.TrimSpace(serverName)
	if clientName == "" || serverName == "" {
		return nil, ErrInvalidName
	}
	c := &Client{
		name:        strings.ToLower(clientName),
		serverName:  strings.ToLower(serverName),
		sessionPort: wire.DefaultSessionPort,
		dialTimeout: DefaultDialTimeout,
		poll:        DefaultPollInterval,
		discoverer:  NewDiscoverer(),
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "apply Client option failed")
		}
	}
	c.logger = c.logger.WithFields(logrus.Fields{"client": c.name, "server": c.serverName})
	return c, nil
}

// Name returns the client's name.
func (c *Client) Name() string {
	return c.name
}

// Connect discovers the server, opens the session, starts the receive loop
// and announces the client's name. It returns once the announce line is
// written; the protocol has no acknowledgement.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return ErrAlreadyConnected
	}

	ip, ok := c.discoverer.Lookup(ctx, c.serverName)
	if !ok {
		return ErrServerNotFound
	}
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(c.sessionPort))
	dialer := net.Dialer{Timeout: c.dialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "connect to %s failed", addr)
	}
	conn := wire.NewStreamConn(raw)

	cancel := make(chan struct{})
	finished := make(chan struct{})
	go c.receive(conn, cancel, finished)

	if err := conn.WriteLine(wire.Announce(c.name).Line()); err != nil {
		close(cancel)
		_ = conn.Close()
		return errors.Wrap(err, "announce client name failed")
	}

	c.conn, c.serverIP = conn, ip
	c.cancel, c.cancelOnce, c.finished = cancel, &sync.Once{}, finished
	c.logger.WithField("addr", addr).Info("connected to server")
	return nil
}

// receive drains the session until it is cancelled or the connection ends.
func (c *Client) receive(conn wire.LineConn, cancel <-chan struct{}, finished chan<- struct{}) {
	defer close(finished)
	for {
		select {
		case <-cancel:
			return
		default:
		}
		line, err := conn.ReadLine(c.poll)
		if err != nil {
			if wire.IsTimeout(err) {
				continue
			}
			select {
			case <-cancel:
			default:
				c.logger.WithError(err).Info("server connection closed")
			}
			return
		}
		if c.listener != nil {
			c.listener(line)
		}
	}
}

// Send writes text as a payload line. Failures are logged and reported as
// false.
func (c *Client) Send(text string) bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.logger.WithError(ErrNotConnected).Warn("send to server failed")
		return false
	}
	if err := conn.WriteLine(wire.Payload(text).Line()); err != nil {
		c.logger.WithError(err).Warn("send to server failed")
		return false
	}
	return true
}

// Disconnect stops the receive loop, deregisters from the server and closes
// the connection. A failed deregistration write is ignored.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.cancelOnce.Do(func() { close(c.cancel) })
	if err := c.conn.WriteLine(wire.Deregister(c.name).Line()); err != nil {
		c.logger.WithError(err).Debug("deregister from server failed")
	}
	err := c.conn.Close()
	c.conn, c.serverIP = nil, nil
	c.logger.Info("disconnected from server")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "close server connection failed")
	}
	return nil
}

// Done is closed when the receive loop of the current connection exits. It
// returns nil before the first Connect.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ServerAddr returns the discovered server address, or nil when disconnected.
func (c *Client) ServerAddr() net.IP {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverIP
}

// Describe renders the client and server names.
func (c *Client) Describe() string {
	return banner + "\n" +
		"Client: " + c.name + " connected to " + c.serverName + "\n" +
		banner
}

// gateway.go
// The gateway lets browsers join as ordinary sessions: /ws upgrades the HTTP
// request, wraps the socket as a wire.LineConn (one text frame per line) and
// hands it to the same adopt path the TCP acceptor uses.
// The read pump feeds a channel so ReadLine can time out without touching the
// socket; a timed-out gorilla read would poison the connection.
// Keep CheckOrigin permissive only on trusted networks.

package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"lanchat/internal/wire"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN-only tool; there is no origin to trust.
	},
}

// gateway serves the optional HTTP surface of a Server.
type gateway struct {
	ln     net.Listener
	http   *http.Server
	logger logrus.FieldLogger
}

func listenGateway(addr string, s *Server) (*gateway, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen for gateway on %s failed", addr)
	}
	g := &gateway{
		ln:     ln,
		logger: s.logger.WithField("component", "gateway"),
	}
	g.http = &http.Server{
		Handler:           g.routes(s),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

func (g *gateway) routes(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		g.wsHandler(s, w, req)
	})
	r.Get("/clients", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := struct {
			Server  string       `json:"server"`
			Clients []ClientInfo `json:"clients"`
		}{Server: s.Name(), Clients: s.Clients()}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			g.logger.WithError(err).Warn("encode client list failed")
		}
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

func (g *gateway) wsHandler(s *Server, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	sess := s.adopt(newWSConn(conn), "websocket")
	if sess == nil {
		return
	}
	g.logger.WithFields(logrus.Fields{
		"session": sess.ID(),
		"remote":  conn.RemoteAddr().String(),
	}).Info("new websocket session")
}

func (g *gateway) addr() net.Addr {
	return g.ln.Addr()
}

func (g *gateway) run(ctx context.Context, grace time.Duration) {
	errc := make(chan error, 1)
	go func() {
		errc <- g.http.Serve(g.ln)
	}()
	g.logger.WithField("addr", g.addr().String()).Info("gateway started")

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			g.logger.WithError(err).Error("gateway stopped unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := g.http.Shutdown(shutdownCtx); err != nil {
		g.logger.WithError(err).Warn("gateway shutdown failed")
	}
	g.logger.Info("gateway stopped")
}

// wsConn adapts a WebSocket to wire.LineConn.
type wsConn struct {
	conn    *websocket.Conn
	lines   chan string
	failed  chan struct{}
	err     error
	closed  chan struct{}
	once    sync.Once
	writeMu sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{
		conn:   conn,
		lines:  make(chan string),
		failed: make(chan struct{}),
		closed: make(chan struct{}),
	}
	go c.read()
	return c
}

// read is the pump: it owns every ReadMessage call on the socket.
func (c *wsConn) read() {
	defer close(c.failed)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.err = err
			return
		}
		select {
		case c.lines <- strings.TrimRight(string(message), "\r\n"):
		case <-c.closed:
			c.err = net.ErrClosed
			return
		}
	}
}

func (c *wsConn) ReadLine(timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case line := <-c.lines:
		return line, nil
	case <-c.failed:
		return "", c.err
	case <-expired:
		return "", wire.ErrTimeout
	}
}

func (c *wsConn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wire.DefaultWriteTimeout)); err != nil {
		return errors.Wrap(err, "set websocket write deadline failed")
	}
	return errors.Wrap(c.conn.WriteMessage(websocket.TextMessage, []byte(line)), "write websocket message failed")
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

package server

import (
	"context"
	"net"
	"strings"
	"time"

	"lanchat/internal/wire"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// responder answers discovery queries that name this server.
type responder struct {
	name         string
	conn         *net.UDPConn
	pollInterval time.Duration
	logger       logrus.FieldLogger
	metrics      *metrics
}

func listenResponder(addr string, s *Server) (*responder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve discovery address %s failed", addr)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen for discovery on %s failed", addr)
	}
	return &responder{
		name:         s.name,
		conn:         conn,
		pollInterval: s.pollInterval,
		logger:       s.logger.WithField("component", "responder"),
		metrics:      s.metrics,
	}, nil
}

func (r *responder) addr() net.Addr {
	return r.conn.LocalAddr()
}

func (r *responder) run(ctx context.Context) {
	defer func() {
		if err := r.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			r.logger.WithError(err).Warn("close discovery socket failed")
		}
		r.logger.Info("discovery responder stopped")
	}()
	r.logger.WithField("addr", r.addr().String()).Info("discovery responder started")

	buf := make([]byte, wire.MaxDatagramSize)
	for ctx.Err() == nil {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.pollInterval)); err != nil {
			r.logger.WithError(err).Error("set discovery read deadline failed")
			return
		}
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if wire.IsTimeout(err) {
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				r.logger.WithError(err).Error("read discovery datagram failed")
			}
			return
		}

		requested := wire.DecodeQuery(buf[:n])
		if !strings.EqualFold(requested, r.name) {
			r.metrics.discoveryQueries.WithLabelValues("ignored").Inc()
			r.logger.WithFields(logrus.Fields{"requested": requested, "from": from.String()}).Debug("ignoring discovery query")
			continue
		}
		r.metrics.discoveryQueries.WithLabelValues("matched").Inc()
		if _, err := r.conn.WriteToUDP(wire.EncodeReply(r.name), from); err != nil {
			r.logger.WithError(err).WithField("to", from.String()).Warn("send discovery reply failed")
			continue
		}
		r.logger.WithField("to", from.String()).Debug("answered discovery query")
	}
}

package client

import (
	"context"
	"net"
	"strconv"
	"time"

	"lanchat/internal/wire"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBroadcastAddr is the limited broadcast address queries go to.
	DefaultBroadcastAddr = "255.255.255.255"

	// DefaultDiscoveryTimeout is how long Lookup waits for a reply.
	DefaultDiscoveryTimeout = 1500 * time.Millisecond
)

// Discoverer resolves a server name to an address with one broadcast query.
type Discoverer struct {
	// BroadcastAddr is where the query is sent.
	BroadcastAddr string
	// Port is the server's discovery port.
	Port int
	// Timeout bounds the wait for a reply.
	Timeout time.Duration
	// Logger receives debug output about failed lookups.
	Logger logrus.FieldLogger
}

// NewDiscoverer returns a Discoverer with the well-known defaults.
func NewDiscoverer() *Discoverer {
	return &Discoverer{
		BroadcastAddr: DefaultBroadcastAddr,
		Port:          wire.DefaultDiscoveryPort,
		Timeout:       DefaultDiscoveryTimeout,
		Logger:        logrus.StandardLogger(),
	}
}

// Lookup broadcasts a query for serverName and returns the source address of
// the first reply. The reply payload is not checked. Timeouts and I/O errors
// yield false; Lookup never retries.
func (d *Discoverer) Lookup(ctx context.Context, serverName string) (net.IP, bool) {
	ip, err := d.lookup(ctx, serverName)
	if err != nil {
		d.Logger.WithError(err).WithField("server", serverName).Debug("discovery found no server")
		return nil, false
	}
	return ip, true
}

func (d *Discoverer) lookup(ctx context.Context, serverName string) (net.IP, error) {
	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(d.BroadcastAddr, strconv.Itoa(d.Port)))
	if err != nil {
		return nil, errors.Wrap(err, "resolve broadcast address failed")
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, errors.Wrap(err, "open discovery socket failed")
	}
	defer conn.Close()

	deadline := time.Now().Add(d.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set discovery deadline failed")
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.WriteToUDP(wire.EncodeQuery(serverName), dst); err != nil {
		return nil, errors.Wrap(err, "send discovery query failed")
	}
	buf := make([]byte, wire.MaxDatagramSize)
	n, from, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, errors.Wrap(err, "receive discovery reply failed")
	}
	d.Logger.WithFields(logrus.Fields{
		"server": serverName,
		"reply":  wire.DecodeReply(buf[:n]),
		"from":   from.String(),
	}).Debug("discovery reply received")
	return from.IP, nil
}

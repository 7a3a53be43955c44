package server

import (
	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"
)

const (
	mdnsService = "_lanchat._tcp"
	mdnsDomain  = "local."
)

// advertise registers the session port over mDNS so generic service
// browsers can see the server next to the native discovery protocol.
func advertise(name string, port int) (*zeroconf.Server, error) {
	server, err := zeroconf.Register(
		name,
		mdnsService,
		mdnsDomain,
		port,
		[]string{"name=" + name},
		nil, // all interfaces
	)
	if err != nil {
		return nil, errors.Wrap(err, "register mDNS service failed")
	}
	return server, nil
}

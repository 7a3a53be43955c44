package client

import "github.com/pkg/errors"

// ErrServerNotFound is returned by Connect when no server answered discovery.
var ErrServerNotFound = errors.New("client: server not found")

// ErrNotConnected is returned when an operation needs an open session.
var ErrNotConnected = errors.New("client: not connected")

// ErrAlreadyConnected is returned by Connect on a connected client.
var ErrAlreadyConnected = errors.New("client: already connected")

// ErrInvalidName is returned when a client or server name is empty.
var ErrInvalidName = errors.New("client: name must not be empty")

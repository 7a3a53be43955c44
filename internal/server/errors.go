package server

import "github.com/pkg/errors"

// ErrInvalidName is returned when a server is created without a name.
var ErrInvalidName = errors.New("server: name must not be empty")

// ErrAlreadyRunning is returned by Start on a server that has not been stopped.
var ErrAlreadyRunning = errors.New("server: already running")

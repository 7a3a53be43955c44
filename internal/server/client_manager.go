// client_manager.go
package server

import "sync"

// ClientManager tracks connected sessions by name. Every operation runs
// under mu, and mu is never held while writing to a connection.
type ClientManager struct {
	mu       sync.Mutex
	sessions []*Session
}

// ClientInfo describes one registered session for introspection.
type ClientInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Remote string `json:"remote,omitempty"`
}

// NewClientManager creates an empty registry.
func NewClientManager() *ClientManager {
	return &ClientManager{}
}

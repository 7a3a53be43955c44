// Package client implements the peer side of lanchat.
//
// A Client knows only the logical name of a server. Connect performs these
// steps:
//  1. Broadcast the server name on the discovery port and take the source
//     address of the first reply (Discoverer.Lookup).
//  2. Dial the session port on that address.
//  3. Start a background receive loop that hands server lines to the
//     Listener, or drops them when none is set.
//  4. Send "#<name>" to announce the client.
//
// Disconnect sends "#STOP<name>" and closes the connection. Nothing is
// acknowledged and nothing is retried; callers retry by calling again.
package client

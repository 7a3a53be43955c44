// Package server implements the server side of lanchat.
//
// A Server composes three loops:
//  1. The discovery responder listens for UDP datagrams naming this server
//     and answers each one with a unicast datagram carrying its own name.
//  2. The session acceptor accepts TCP connections and starts a Session for
//     each, registered in the ClientManager under a placeholder name.
//  3. The optional gateway accepts WebSocket peers and treats them like TCP
//     sessions, one text frame per line.
//
// Each Session reads lines until the peer disconnects, deregisters, or the
// server stops. "#name" renames the session, "#STOPname" removes every
// session called name, anything else goes to the MessageHandler.
//
// Every blocking read is bounded by the poll interval so that Stop finishes
// within two grace periods. Delivery is best effort: there are no
// acknowledgements and nothing is retried.
package server

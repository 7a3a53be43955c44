// Package wire defines what goes over the network between lanchat peers.
//
// Two channels exist. Discovery uses single UDP datagrams whose payload is a
// bare server name, both for the broadcast query and for the unicast reply.
// Sessions use a newline-delimited text stream carrying one of three forms:
//
//	#alice       announce: the sending session is now called "alice"
//	#STOPalice   deregister: sessions called "alice" are removed
//	hello        payload: delivered to the message listener
//
// The server only ever writes payload lines back to its peers.
package wire

package wire

// MaxDatagramSize is the receive buffer for discovery datagrams. Longer
// payloads are truncated by the socket.
const MaxDatagramSize = 1024

// EncodeQuery builds the discovery query for serverName. The name is the
// whole payload; there is no length prefix or version.
func EncodeQuery(serverName string) []byte {
	return []byte(serverName)
}

// DecodeQuery returns the server name a query asks for.
func DecodeQuery(payload []byte) string {
	return string(payload)
}

// EncodeReply builds the reply a server sends back: its own name.
func EncodeReply(serverName string) []byte {
	return []byte(serverName)
}

// DecodeReply returns the responding server's name.
func DecodeReply(payload []byte) string {
	return string(payload)
}

// message.go
// Session lines are decoded exactly once, here, into a closed set of kinds.
// Everything downstream switches on Kind instead of re-testing prefixes.
// There is no escaping: a payload that starts with '#' reads as a control line.

package wire

import "strings"

const (
	// DefaultDiscoveryPort is the well-known UDP port discovery queries go to.
	DefaultDiscoveryPort = 9999

	// DefaultSessionPort is the well-known TCP port sessions connect to.
	DefaultSessionPort = 3333

	// ControlPrefix starts every control line.
	ControlPrefix = "#"

	// StopMarker starts a deregistration line. It is checked before ControlPrefix.
	StopMarker = "#STOP"

	// Terminator ends every line on the session stream.
	Terminator = "\n"
)

// Kind identifies which of the three line forms a Message is.
type Kind int

const (
	// KindPayload is application text for the message listener.
	KindPayload Kind = iota
	// KindAnnounce renames the sending session.
	KindAnnounce
	// KindDeregister removes the named session(s) and ends the connection.
	KindDeregister
)

func (k Kind) String() string {
	switch k {
	case KindPayload:
		return "payload"
	case KindAnnounce:
		return "announce"
	case KindDeregister:
		return "deregister"
	default:
		return "unknown"
	}
}

// Message is one decoded session line. Text holds the name for control
// kinds and the raw line for payloads.
type Message struct {
	Kind Kind
	Text string
}

// Announce builds an announce message for name.
func Announce(name string) Message {
	return Message{Kind: KindAnnounce, Text: name}
}

// Deregister builds a deregistration message for name.
func Deregister(name string) Message {
	return Message{Kind: KindDeregister, Text: name}
}

// Payload builds an application message.
func Payload(text string) Message {
	return Message{Kind: KindPayload, Text: text}
}

// Decode classifies a single line. Trailing CR/LF is ignored.
func Decode(line string) Message {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case strings.HasPrefix(line, StopMarker):
		return Deregister(line[len(StopMarker):])
	case strings.HasPrefix(line, ControlPrefix):
		return Announce(line[len(ControlPrefix):])
	default:
		return Payload(line)
	}
}

// Line renders the message without the terminator.
func (m Message) Line() string {
	switch m.Kind {
	case KindAnnounce:
		return ControlPrefix + m.Text
	case KindDeregister:
		return StopMarker + m.Text
	default:
		return m.Text
	}
}

// Encode renders the message as it goes on the wire, terminator included.
func (m Message) Encode() string {
	return m.Line() + Terminator
}

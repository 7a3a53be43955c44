package wire

import (
	"bufio"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultWriteTimeout bounds a single line write on a stream connection.
const DefaultWriteTimeout = 10 * time.Second

// ErrTimeout is returned by ReadLine when no complete line arrived in time.
var ErrTimeout = errors.New("wire: read timeout")

// LineConn is a bidirectional line transport. ReadLine is called from a
// single goroutine; WriteLine may be called from any goroutine.
type LineConn interface {
	// ReadLine blocks for at most timeout and returns one line without its
	// terminator. A zero timeout blocks until a line or an error arrives.
	ReadLine(timeout time.Duration) (string, error)
	// WriteLine writes line plus the terminator and flushes it.
	WriteLine(line string) error
	RemoteAddr() net.Addr
	Close() error
}

// IsTimeout reports whether err is a poll timeout rather than a failure.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StreamConn adapts a net.Conn (normally TCP) to LineConn.
type StreamConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	partial      strings.Builder
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

// NewStreamConn wraps conn. Lines split across read timeouts are stitched
// back together.
func NewStreamConn(conn net.Conn) *StreamConn {
	return &StreamConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writeTimeout: DefaultWriteTimeout,
	}
}

// ReadLine implements LineConn.
func (c *StreamConn) ReadLine(timeout time.Duration) (string, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	// A closed connection still gets one read so buffered data and the
	// terminating EOF come back through the normal path.
	if err := c.conn.SetReadDeadline(deadline); err != nil && !isClosed(err) {
		return "", errors.Wrap(err, "set read deadline failed")
	}
	chunk, err := c.reader.ReadString('\n')
	c.partial.WriteString(chunk)
	if err != nil {
		if IsTimeout(err) {
			return "", ErrTimeout
		}
		// An unterminated last line is still a line; the next call sees EOF.
		if c.partial.Len() > 0 && errors.Is(err, io.EOF) {
			return c.takeLine(), nil
		}
		return "", err
	}
	return c.takeLine(), nil
}

func isClosed(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}

func (c *StreamConn) takeLine() string {
	line := strings.TrimRight(c.partial.String(), "\r\n")
	c.partial.Reset()
	return line
}

// WriteLine implements LineConn.
func (c *StreamConn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return errors.Wrap(err, "set write deadline failed")
		}
	}
	if _, err := c.conn.Write([]byte(line + Terminator)); err != nil {
		return errors.Wrap(err, "write line failed")
	}
	return nil
}

// RemoteAddr implements LineConn.
func (c *StreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close implements LineConn.
func (c *StreamConn) Close() error {
	return c.conn.Close()
}

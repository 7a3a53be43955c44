package server

import (
	"context"
	"net"
	"sort"
	"testing"
	"time"

	"lanchat/internal/client"
	"lanchat/internal/wire"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPoll  = 20 * time.Millisecond
	testGrace = 500 * time.Millisecond
	waitFor   = 2 * time.Second
	tick      = 10 * time.Millisecond
)

func startTestServer(t *testing.T, name string, opts ...Option) *Server {
	t.Helper()
	logger, _ := test.NewNullLogger()
	base := []Option{
		WithListenHost("127.0.0.1"),
		WithDiscoveryPort(0),
		WithSessionPort(0),
		WithPollInterval(testPoll),
		WithGracePeriod(testGrace),
		WithLogger(logger),
	}
	s, err := New(name, append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

// dialSession opens a raw session and optionally announces name.
func dialSession(t *testing.T, s *Server, name string) *wire.StreamConn {
	t.Helper()
	raw, err := net.Dial("tcp", s.SessionAddr().String())
	require.NoError(t, err)
	conn := wire.NewStreamConn(raw)
	t.Cleanup(func() { _ = conn.Close() })
	if name != "" {
		require.NoError(t, conn.WriteLine(wire.Announce(name).Line()))
	}
	return conn
}

func waitForNames(t *testing.T, s *Server, names ...string) {
	t.Helper()
	want := append([]string(nil), names...)
	sort.Strings(want)
	require.Eventually(t, func() bool {
		have := s.Names()
		sort.Strings(have)
		return len(have) == len(want) && (len(want) == 0 || assert.ObjectsAreEqual(want, have))
	}, waitFor, tick, "registry never became %v", names)
}

func discoverer(s *Server) *client.Discoverer {
	d := client.NewDiscoverer()
	d.BroadcastAddr = "127.0.0.1"
	d.Port = s.DiscoveryAddr().(*net.UDPAddr).Port
	d.Timeout = 500 * time.Millisecond
	logger, _ := test.NewNullLogger()
	d.Logger = logger
	return d
}

func TestNewRejectsEmptyName(t *testing.T) {
	_, err := New("   ")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestNewLowercasesName(t *testing.T) {
	s, err := New("ServerA")
	require.NoError(t, err)
	assert.Equal(t, "servera", s.Name())
	assert.False(t, s.Running())
}

func TestNewRejectsInvalidOption(t *testing.T) {
	_, err := New("s", WithPollInterval(0))
	assert.Error(t, err)
	_, err = New("s", WithSessionPort(70000))
	assert.Error(t, err)
}

func TestNewSharesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	var first, second *Server
	require.NotPanics(t, func() {
		var err error
		first, err = New("office", WithRegistry(reg))
		require.NoError(t, err)
		second, err = New("Office", WithRegistry(reg))
		require.NoError(t, err)
	})
	assert.Same(t, first.metrics.sessionsAccepted, second.metrics.sessionsAccepted)

	other, err := New("lab", WithRegistry(reg))
	require.NoError(t, err)
	assert.NotSame(t, first.metrics.sessionsAccepted, other.metrics.sessionsAccepted)
}

func TestNewReportsConflictingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lanchat",
		Name:      "sessions_active",
		Help:      "something else entirely",
	}))

	_, err := New("office", WithRegistry(reg))
	assert.Error(t, err)
}

func TestAdoptAfterStopClosesConnection(t *testing.T) {
	s := startTestServer(t, "s")
	s.Stop()

	conn := &recordingConn{}
	assert.Nil(t, s.adopt(conn, "websocket"))
	conn.mu.Lock()
	assert.True(t, conn.closed)
	conn.mu.Unlock()
	assert.Empty(t, s.Names())

	require.NoError(t, s.Start())
	assert.NotNil(t, s.adopt(&recordingConn{}, "websocket"))
}

func TestNextAcceptDelay(t *testing.T) {
	d := nextAcceptDelay(0)
	assert.Equal(t, 5*time.Millisecond, d)
	d = nextAcceptDelay(d)
	assert.Equal(t, 10*time.Millisecond, d)
	for i := 0; i < 20; i++ {
		d = nextAcceptDelay(d)
	}
	assert.Equal(t, time.Second, d)
}

func TestDiscoveryAnswersMatchingName(t *testing.T) {
	s := startTestServer(t, "ServerA")

	ip, ok := discoverer(s).Lookup(context.Background(), "SERVERA")
	require.True(t, ok)
	assert.True(t, ip.IsLoopback())
}

func TestDiscoveryIgnoresOtherNames(t *testing.T) {
	s := startTestServer(t, "ServerA")

	start := time.Now()
	_, ok := discoverer(s).Lookup(context.Background(), "ServerB")
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestStartTwiceFails(t *testing.T) {
	s := startTestServer(t, "s")
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)
}

func TestStartReportsBindFailure(t *testing.T) {
	first := startTestServer(t, "first")
	port := first.SessionAddr().(*net.TCPAddr).Port

	logger, _ := test.NewNullLogger()
	second, err := New("second",
		WithListenHost("127.0.0.1"),
		WithDiscoveryPort(0),
		WithSessionPort(port),
		WithLogger(logger),
	)
	require.NoError(t, err)
	assert.Error(t, second.Start())
	assert.False(t, second.Running())
	assert.Nil(t, second.SessionAddr())
}

func TestAnnounceAndSendTo(t *testing.T) {
	s := startTestServer(t, "s")
	conn := dialSession(t, s, "Alice")
	waitForNames(t, s, "Alice")

	assert.True(t, s.SendTo("ALICE", "hi"))
	line, err := conn.ReadLine(waitFor)
	require.NoError(t, err)
	assert.Equal(t, "hi", line)

	assert.False(t, s.SendTo("nobody", "hi"))
	_, err = conn.ReadLine(100 * time.Millisecond)
	assert.ErrorIs(t, err, wire.ErrTimeout)
}

func TestUnannouncedSessionUsesPlaceholder(t *testing.T) {
	s := startTestServer(t, "s")
	dialSession(t, s, "")
	waitForNames(t, s, PlaceholderName)
}

func TestReannounceRenames(t *testing.T) {
	s := startTestServer(t, "s")
	conn := dialSession(t, s, "alice")
	waitForNames(t, s, "alice")

	require.NoError(t, conn.WriteLine(wire.Announce("carol").Line()))
	waitForNames(t, s, "carol")
	assert.False(t, s.SendTo("alice", "x"))
}

func TestPayloadReachesHandler(t *testing.T) {
	type received struct{ sender, text string }
	got := make(chan received, 4)
	s := startTestServer(t, "s", WithMessageHandler(func(sender, text string) {
		got <- received{sender, text}
	}))
	conn := dialSession(t, s, "alice")
	require.NoError(t, conn.WriteLine("hello world"))

	select {
	case r := <-got:
		assert.Equal(t, received{"alice", "hello world"}, r)
	case <-time.After(waitFor):
		t.Fatal("handler was not called")
	}
}

func TestSendToAllReachesEverySession(t *testing.T) {
	s := startTestServer(t, "s")
	conns := []*wire.StreamConn{
		dialSession(t, s, "a"),
		dialSession(t, s, "b"),
		dialSession(t, s, "c"),
		dialSession(t, s, ""),
	}
	waitForNames(t, s, "a", "b", "c", PlaceholderName)

	assert.Equal(t, 4, s.SendToAll("everyone"))
	for _, conn := range conns {
		line, err := conn.ReadLine(waitFor)
		require.NoError(t, err)
		assert.Equal(t, "everyone", line)
	}
	for _, conn := range conns {
		_, err := conn.ReadLine(100 * time.Millisecond)
		assert.ErrorIs(t, err, wire.ErrTimeout)
	}
}

func TestDeregisterRemovesSession(t *testing.T) {
	s := startTestServer(t, "s")
	conn := dialSession(t, s, "alice")
	dialSession(t, s, "bob")
	waitForNames(t, s, "alice", "bob")

	require.NoError(t, conn.WriteLine(wire.Deregister("alice").Line()))
	waitForNames(t, s, "bob")
	assert.False(t, s.SendTo("alice", "gone"))

	// The server closes the deregistered connection.
	require.Eventually(t, func() bool {
		_, err := conn.ReadLine(tick)
		return err != nil && !wire.IsTimeout(err)
	}, waitFor, tick)
}

func TestDeregisterRemovesEveryHolderOfName(t *testing.T) {
	s := startTestServer(t, "s")
	first := dialSession(t, s, "dup")
	dialSession(t, s, "dup")
	dialSession(t, s, "other")
	waitForNames(t, s, "dup", "dup", "other")

	require.NoError(t, first.WriteLine(wire.Deregister("dup").Line()))
	waitForNames(t, s, "other")
}

func TestDisconnectedPeerIsRemoved(t *testing.T) {
	s := startTestServer(t, "s")
	conn := dialSession(t, s, "alice")
	dialSession(t, s, "bob")
	waitForNames(t, s, "alice", "bob")

	require.NoError(t, conn.Close())
	waitForNames(t, s, "bob")
	assert.Equal(t, 1, s.SendToAll("still here"))
}

func TestStopClearsRegistryAndReleasesPorts(t *testing.T) {
	s := startTestServer(t, "s")
	conn := dialSession(t, s, "alice")
	waitForNames(t, s, "alice")
	sessionAddr := s.SessionAddr().String()

	start := time.Now()
	s.Stop()
	assert.Less(t, time.Since(start), 3*testGrace)
	assert.False(t, s.Running())
	assert.Empty(t, s.Names())
	assert.False(t, s.SendTo("alice", "x"))

	require.Eventually(t, func() bool {
		_, err := conn.ReadLine(tick)
		return err != nil && !wire.IsTimeout(err)
	}, waitFor, tick)

	ln, err := net.Listen("tcp", sessionAddr)
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	s.Stop()
}

func TestRestartAfterStop(t *testing.T) {
	s := startTestServer(t, "s")
	s.Stop()

	require.NoError(t, s.Start())
	assert.True(t, s.Running())
	dialSession(t, s, "again")
	waitForNames(t, s, "again")
}

func TestDescribe(t *testing.T) {
	s := startTestServer(t, "ServerA")
	dialSession(t, s, "alice")
	waitForNames(t, s, "alice")

	want := banner + "\nServername: servera\nClients:\nalice\n" + banner
	assert.Equal(t, want, s.Describe())
}

func TestClientRoundTrip(t *testing.T) {
	received := make(chan string, 4)
	s := startTestServer(t, "ServerA", WithMessageHandler(func(sender, text string) {
		received <- sender + ":" + text
	}))
	logger, _ := test.NewNullLogger()
	fromServer := make(chan string, 4)

	c, err := client.New("Alice", "servera",
		client.WithBroadcastAddr("127.0.0.1"),
		client.WithDiscoveryPort(s.DiscoveryAddr().(*net.UDPAddr).Port),
		client.WithSessionPort(s.SessionAddr().(*net.TCPAddr).Port),
		client.WithDiscoveryTimeout(500*time.Millisecond),
		client.WithPollInterval(testPoll),
		client.WithListener(func(text string) { fromServer <- text }),
		client.WithLogger(logger),
	)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	waitForNames(t, s, "alice")

	require.True(t, c.Send("ping"))
	select {
	case got := <-received:
		assert.Equal(t, "alice:ping", got)
	case <-time.After(waitFor):
		t.Fatal("server did not receive payload")
	}

	require.True(t, s.SendTo("alice", "pong"))
	select {
	case got := <-fromServer:
		assert.Equal(t, "pong", got)
	case <-time.After(waitFor):
		t.Fatal("client did not receive payload")
	}

	require.NoError(t, c.Disconnect())
	waitForNames(t, s)
}

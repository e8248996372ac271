package ws

import (
	"log/slog"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiseops/wise/internal/config"
	"github.com/wiseops/wise/internal/event"
	"github.com/wiseops/wise/internal/pool"
	"github.com/wiseops/wise/internal/rcon"
	"github.com/wiseops/wise/internal/rcon/parsing"
	"github.com/wiseops/wise/internal/testutil"
)

func logLine(content string) parsing.LogLine {
	return parsing.LogLine{
		Timestamp: 1718194470,
		Kind: parsing.ChatLog{
			Sender:  parsing.NewPlayer("One", parsing.SteamID(1)),
			Team:    "Allies",
			Reach:   "Team",
			Content: content,
		},
	}
}

type wsFixture struct {
	server *Server
	store  *config.Store
	bus    *event.Bus
	fake   *testutil.FakeRcon
	url    string
}

func newWsFixture(t *testing.T, mutate func(*config.FileConfig)) *wsFixture {
	t.Helper()

	fake, addr := testutil.NewFakeRcon(t)

	cfg := config.Default()
	cfg.Rcon = rcon.Credentials{Address: addr, Password: fake.Password}
	cfg.Auth.Tokens = []config.TokenConfig{{
		Name:  "bot",
		Value: "secret-token",
		Perms: config.PermsConfig{ReadRconEvents: true, WriteRcon: true},
	}}
	if mutate != nil {
		mutate(&cfg)
	}
	store := config.NewStore(cfg)

	p := pool.New(slog.Default(), func() rcon.Credentials {
		return store.Get().Rcon
	})
	t.Cleanup(p.Close)

	bus := event.NewBus(1000)
	server := NewServer(slog.Default(), store, p, bus)

	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)

	return &wsFixture{
		server: server,
		store:  store,
		bus:    bus,
		fake:   fake,
		url:    "ws" + strings.TrimPrefix(httpServer.URL, "http"),
	}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *wsFixture) dialAuthenticated(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	conn := f.dial(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(token)))

	msg := readServerMessage(t, conn, 2*time.Second)
	require.Equal(t, event.AuthenticatedMessage{}, msg)
	return conn
}

func readServerMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) event.ServerWsMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := event.UnmarshalServerWsMessage(data)
	require.NoError(t, err)
	return msg
}

func assertNoFrame(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(window)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame")
	netErr, ok := err.(interface{ Timeout() bool })
	require.True(t, ok && netErr.Timeout(), "connection failed instead of staying quiet: %v", err)
}

func TestHandshake_ValidToken(t *testing.T) {
	f := newWsFixture(t, nil)
	f.dialAuthenticated(t, "secret-token")
}

func TestHandshake_UnknownTokenIsDropped(t *testing.T) {
	f := newWsFixture(t, nil)
	conn := f.dial(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("wrong")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHandshake_PasswordMode(t *testing.T) {
	f := newWsFixture(t, func(cfg *config.FileConfig) {
		cfg.Exporting.WebSocket.Password = "hunter2"
	})

	t.Run("wrong password", func(t *testing.T) {
		conn := f.dial(t)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("nope")))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	})

	t.Run("password then token", func(t *testing.T) {
		conn := f.dial(t)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hunter2")))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("secret-token")))

		msg := readServerMessage(t, conn, 2*time.Second)
		assert.Equal(t, event.AuthenticatedMessage{}, msg)
	})
}

func TestFanOut_EventsReachReader(t *testing.T) {
	f := newWsFixture(t, nil)
	conn := f.dialAuthenticated(t, "secret-token")

	line := event.RconMessage{Event: event.LogEvent{Line: logLine("hello")}}
	// The subscription is registered by the client goroutine; give it a
	// moment before publishing.
	require.Eventually(t, func() bool {
		f.bus.Send(line)
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return false
		}
		msg, err := event.UnmarshalServerWsMessage(data)
		return err == nil && assert.ObjectsAreEqual(line, msg)
	}, 5*time.Second, 100*time.Millisecond)
}

func TestAuthGate_NoReadPermission(t *testing.T) {
	f := newWsFixture(t, func(cfg *config.FileConfig) {
		cfg.Auth.Tokens[0].Perms = config.PermsConfig{ReadRconEvents: false, WriteRcon: true}
	})
	conn := f.dialAuthenticated(t, "secret-token")

	// Give the fan-out loop time to subscribe, then publish an event the
	// client must never see.
	time.Sleep(100 * time.Millisecond)
	f.bus.Send(event.RconMessage{Event: event.LogEvent{Line: logLine("secret")}})
	assertNoFrame(t, conn, 300*time.Millisecond)

	// Commands still work: a broadcast comes back as a success response.
	request := `{"Request":{"id":"req-1","value":{"Execute":{"Broadcast":"hi"}}}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(request)))

	msg := readServerMessage(t, conn, 5*time.Second)
	response, ok := msg.(event.ResponseMessage)
	require.True(t, ok, "expected a response, got %T", msg)
	assert.Equal(t, "req-1", response.ID)
	assert.False(t, response.Value.Failure)
	assert.Equal(t, event.SuccessResponse{}, response.Value.Response)
}

func TestDispatch_NoWritePermission(t *testing.T) {
	f := newWsFixture(t, func(cfg *config.FileConfig) {
		cfg.Auth.Tokens[0].Perms = config.PermsConfig{ReadRconEvents: true, WriteRcon: false}
	})
	conn := f.dialAuthenticated(t, "secret-token")

	request := `{"Request":{"id":"req-1","value":{"Execute":{"Broadcast":"hi"}}}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(request)))

	assertNoFrame(t, conn, 500*time.Millisecond)
}

func TestDispatch_MalformedFrameIgnored(t *testing.T) {
	f := newWsFixture(t, nil)
	conn := f.dialAuthenticated(t, "secret-token")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assertNoFrame(t, conn, 300*time.Millisecond)

	// The connection survives and still serves requests.
	request := `{"Request":{"id":"req-2","value":{"Execute":{"Broadcast":"hi"}}}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(request)))

	msg := readServerMessage(t, conn, 5*time.Second)
	response, ok := msg.(event.ResponseMessage)
	require.True(t, ok)
	assert.Equal(t, "req-2", response.ID)
}

func TestDispatch_GetPlayers(t *testing.T) {
	f := newWsFixture(t, nil)
	f.fake.Handle = func(name, contentBody string) testutil.FakeResponse {
		return testutil.FakeResponse{
			StatusCode:  200,
			ContentBody: `{"players":[{"name":"One","iD":"u1"}]}`,
		}
	}
	conn := f.dialAuthenticated(t, "secret-token")

	request := `{"Request":{"id":"req-3","value":{"Execute":{"GetPlayers":null}}}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(request)))

	msg := readServerMessage(t, conn, 5*time.Second)
	response, ok := msg.(event.ResponseMessage)
	require.True(t, ok)

	players, ok := response.Value.Response.(event.PlayersResponse)
	require.True(t, ok, "expected players, got %#v", response.Value)
	require.Len(t, players, 1)
	assert.Equal(t, "One", players[0].Name)
}

func TestDispatch_CompletesAfterDisconnect(t *testing.T) {
	f := newWsFixture(t, nil)

	var mu sync.Mutex
	var commands []string
	f.fake.Handle = func(name, contentBody string) testutil.FakeResponse {
		mu.Lock()
		commands = append(commands, name)
		mu.Unlock()
		return testutil.FakeResponse{StatusCode: 200}
	}
	conn := f.dialAuthenticated(t, "secret-token")

	// Fire a command and drop the connection straight away; the kick
	// must still reach the game server.
	request := `{"Request":{"id":"req-9","value":{"Execute":{"KickPlayer":{"id":"u1","reason":"afk"}}}}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(request)))
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return slices.Contains(commands, "Kick")
	}, 5*time.Second, 20*time.Millisecond, "kick was aborted by the disconnect")
}

func TestDispatch_NotImplementedIsFailure(t *testing.T) {
	f := newWsFixture(t, nil)
	conn := f.dialAuthenticated(t, "secret-token")

	request := `{"Request":{"id":"req-4","value":{"Execute":"GetGameState"}}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(request)))

	msg := readServerMessage(t, conn, 5*time.Second)
	response, ok := msg.(event.ResponseMessage)
	require.True(t, ok)
	assert.True(t, response.Value.Failure)
	assert.Nil(t, response.Value.Response)
}

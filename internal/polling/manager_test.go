package polling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiseops/wise/internal/event"
	"github.com/wiseops/wise/internal/master"
	"github.com/wiseops/wise/internal/pool"
	"github.com/wiseops/wise/internal/rcon"
	"github.com/wiseops/wise/internal/testutil"
)

// fakeGameServer scripts the fake rcon responses the pollers fetch.
type fakeGameServer struct {
	mu      sync.Mutex
	players map[string]uint64
	logs    []string
}

func (g *fakeGameServer) setKills(id string, kills uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.players[id] = kills
}

func (g *fakeGameServer) addLog(line string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logs = append(g.logs, line)
}

func (g *fakeGameServer) handle(name, contentBody string) testutil.FakeResponse {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch name {
	case "ServerInformation":
		var query struct {
			Name  string `json:"Name"`
			Value string `json:"Value"`
		}
		if err := json.Unmarshal([]byte(contentBody), &query); err != nil {
			return testutil.FakeResponse{StatusCode: 400}
		}
		if query.Name == "players" {
			type entry struct {
				Name  string `json:"name"`
				ID    string `json:"iD"`
				Kills uint64 `json:"kills"`
			}
			list := make([]entry, 0, len(g.players))
			for id, kills := range g.players {
				list = append(list, entry{Name: "Player " + id, ID: id, Kills: kills})
			}
			body, _ := json.Marshal(map[string]any{"players": list})
			return testutil.FakeResponse{StatusCode: 200, ContentBody: string(body)}
		}
		kills, ok := g.players[query.Value]
		if !ok {
			return testutil.FakeResponse{StatusCode: 400, StatusMessage: "no such player"}
		}
		body, _ := json.Marshal(map[string]any{
			"name":  "Player " + query.Value,
			"iD":    query.Value,
			"kills": kills,
		})
		return testutil.FakeResponse{StatusCode: 200, ContentBody: string(body)}

	case "AdminLog":
		type entry struct {
			Message string `json:"message"`
		}
		entries := make([]entry, 0, len(g.logs))
		for _, line := range g.logs {
			entries = append(entries, entry{Message: line})
		}
		body, _ := json.Marshal(map[string]any{"entries": entries})
		return testutil.FakeResponse{StatusCode: 200, ContentBody: string(body)}

	default:
		return testutil.FakeResponse{StatusCode: 400, StatusMessage: "unknown command"}
	}
}

func newTestManager(t *testing.T, game *fakeGameServer, settings Settings) (*Manager, *master.GameMaster, *event.Subscription) {
	t.Helper()

	fake, addr := testutil.NewFakeRcon(t)
	fake.Handle = game.handle

	p := pool.New(slog.Default(), func() rcon.Credentials {
		return rcon.Credentials{Address: addr, Password: fake.Password}
	})
	t.Cleanup(p.Close)

	bus := event.NewBus(1000)
	sub := bus.Subscribe()
	t.Cleanup(sub.Unsubscribe)

	gameMaster := master.New(slog.Default(), bus)
	m := NewManager(slog.Default(), p, gameMaster, func() Settings {
		return settings
	})
	t.Cleanup(m.Stop)
	return m, gameMaster, sub
}

func waitForPlayerEvent(t *testing.T, sub *event.Subscription) event.PlayerEvent {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		msg, err := sub.Recv(ctx)
		require.NoError(t, err, "no player event arrived")
		if rconMsg, ok := msg.(event.RconMessage); ok {
			if playerEvent, ok := rconMsg.Event.(event.PlayerEvent); ok {
				return playerEvent
			}
		}
	}
}

func TestResume_PollsPresentPlayers(t *testing.T) {
	game := &fakeGameServer{players: map[string]uint64{"u1": 3}}
	m, gameMaster, sub := newTestManager(t, game, Settings{Wait: 50 * time.Millisecond})

	require.NoError(t, m.Resume(context.Background()))
	assert.ElementsMatch(t, []string{"u1"}, m.PolledPlayers())

	// The first snapshot must land before the change or the poller would
	// record kills=4 as the initial sighting.
	require.Eventually(t, func() bool {
		_, ok := gameMaster.Player("u1")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	game.setKills("u1", 4)

	playerEvent := waitForPlayerEvent(t, sub)
	assert.Equal(t, "u1", playerEvent.New.ID)
	require.Len(t, playerEvent.Changes, 1)
	assert.Equal(t, event.KillsChange{Old: 3, New: 4}, playerEvent.Changes[0])
}

func TestShowLogPoller_PublishesEachLineOnce(t *testing.T) {
	game := &fakeGameServer{players: map[string]uint64{}}
	now := uint64(time.Now().Unix())
	game.addLog(fmt.Sprintf("[1 sec (%d)] MATCH START FOY WARFARE", now))

	m, _, sub := newTestManager(t, game, Settings{Wait: time.Hour})
	require.NoError(t, m.Resume(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := sub.Recv(ctx)
	require.NoError(t, err)
	rconMsg, ok := msg.(event.RconMessage)
	require.True(t, ok)
	logEvent, ok := rconMsg.Event.(event.LogEvent)
	require.True(t, ok)
	assert.Equal(t, now, logEvent.Line.Timestamp)

	// The same line keeps being fetched but must not be published again.
	quiet, quietCancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer quietCancel()
	_, err = sub.Recv(quiet)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShowLogPoller_ManagesPlayerLifecycle(t *testing.T) {
	game := &fakeGameServer{players: map[string]uint64{}}
	m, _, _ := newTestManager(t, game, Settings{Wait: time.Hour, ManageLifecycle: true})
	require.NoError(t, m.Resume(context.Background()))
	assert.Empty(t, m.PolledPlayers())

	now := uint64(time.Now().Unix())
	game.setKills("76561198012345678", 0)
	game.addLog(fmt.Sprintf("[1 sec (%d)] CONNECTED One (76561198012345678)", now))

	assert.Eventually(t, func() bool {
		return len(m.PolledPlayers()) == 1
	}, 5*time.Second, 20*time.Millisecond, "connect log did not start a poller")

	game.addLog(fmt.Sprintf("[1 sec (%d)] DISCONNECTED One (76561198012345678)", now+1))

	assert.Eventually(t, func() bool {
		return len(m.PolledPlayers()) == 0
	}, 5*time.Second, 20*time.Millisecond, "disconnect log did not stop the poller")
}

func TestStartPlayerPoller_Idempotent(t *testing.T) {
	game := &fakeGameServer{players: map[string]uint64{"u1": 0}}
	m, _, _ := newTestManager(t, game, Settings{Wait: time.Hour})

	ctx := context.Background()
	m.StartPlayerPoller(ctx, "u1")
	m.StartPlayerPoller(ctx, "u1")
	assert.Len(t, m.PolledPlayers(), 1)

	m.StopPlayerPoller("u1")
	assert.Empty(t, m.PolledPlayers())
}

func TestStartPlayerPoller_ConcurrentStartsSpawnOne(t *testing.T) {
	game := &fakeGameServer{players: map[string]uint64{"u1": 0}}
	m, _, _ := newTestManager(t, game, Settings{Wait: time.Hour})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.StartPlayerPoller(context.Background(), "u1")
		}()
	}
	wg.Wait()

	assert.Len(t, m.PolledPlayers(), 1)

	// Exactly one poller is registered; the losing starts left nothing
	// behind to leak.
	m.mu.Lock()
	registered := len(m.cancels)
	m.mu.Unlock()
	assert.Equal(t, 1, registered)
}

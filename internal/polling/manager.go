package polling

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wiseops/wise/internal/master"
	"github.com/wiseops/wise/internal/pool"
	"github.com/wiseops/wise/internal/rcon"
	"github.com/wiseops/wise/internal/rcon/parsing"
)

const (
	playerPollPeriod  = 100 * time.Millisecond
	showLogPollPeriod = time.Second
)

// Settings is the snapshot of polling configuration a manager works with.
// It is re-read on every use so a configuration reload takes effect
// without a restart.
type Settings struct {
	// Wait is the period of the game state poller.
	Wait time.Duration

	// Cooldown spaces the player poller launches on resume.
	Cooldown time.Duration

	// ManageLifecycle lets connect and disconnect log lines start and
	// stop player pollers.
	ManageLifecycle bool
}

// Manager supervises all pollers: it hands out ids, keeps their cancel
// functions, and maps players to their pollers so log events can manage
// the poller lifecycle.
type Manager struct {
	log      *slog.Logger
	pool     *pool.Pool
	master   *master.GameMaster
	settings func() Settings

	ids atomic.Uint64

	mu      sync.Mutex
	cancels map[uint64]context.CancelFunc
	players map[string]uint64
	wg      sync.WaitGroup
}

// NewManager creates a manager without any running pollers.
func NewManager(log *slog.Logger, p *pool.Pool, m *master.GameMaster, settings func() Settings) *Manager {
	return &Manager{
		log:      log,
		pool:     p,
		master:   m,
		settings: settings,
		cancels:  make(map[uint64]context.CancelFunc),
		players:  make(map[string]uint64),
	}
}

// Resume starts polling from a cold state: one players fetch seeds a
// poller per present player, spaced by the configured cooldown, then the
// admin log and game state pollers come up.
func (m *Manager) Resume(ctx context.Context) error {
	players, err := pool.Execute(ctx, m.pool, func(ctx context.Context, s *rcon.Session) ([]parsing.PlayerData, error) {
		return s.FetchPlayers(ctx)
	})
	if err != nil {
		return err
	}

	cooldown := m.settings().Cooldown
	for _, player := range players {
		m.StartPlayerPoller(ctx, player.ID)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cooldown):
		}
	}

	m.spawn(ctx, "showlog", "", m.runShowLogPoller)
	m.spawn(ctx, "gamestate", "", m.runGameStatePoller)
	m.log.Info("polling resumed", "players", len(players))
	return nil
}

// StartPlayerPoller begins polling one player's info every hundred
// milliseconds. Starting an already polled player is a no-op.
func (m *Manager) StartPlayerPoller(ctx context.Context, id string) {
	pollerID := m.spawn(ctx, "player", id, func(ctx context.Context) {
		m.runPlayerPoller(ctx, id)
	})
	if pollerID != 0 {
		m.log.Debug("started player poller", "player", id, "poller", pollerID)
	}
}

// StopPlayerPoller cancels the poller for one player, if any.
func (m *Manager) StopPlayerPoller(id string) {
	m.mu.Lock()
	pollerID, running := m.players[id]
	if !running {
		m.mu.Unlock()
		return
	}
	delete(m.players, id)
	cancel := m.cancels[pollerID]
	delete(m.cancels, pollerID)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.log.Debug("stopped player poller", "player", id, "poller", pollerID)
}

// PolledPlayers returns the ids of players currently being polled.
func (m *Manager) PolledPlayers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.players))
	for id := range m.players {
		ids = append(ids, id)
	}
	return ids
}

// Stop cancels every poller and waits for them to finish their current
// iteration.
func (m *Manager) Stop() {
	m.mu.Lock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
	m.players = make(map[string]uint64)
	m.mu.Unlock()
	m.wg.Wait()
}

// spawn registers a poller under a fresh id and runs it until its context
// is cancelled. A non-empty player reserves the player slot in the same
// critical section as the registration, so concurrent starts for one
// player cannot both spawn; the losers get id 0 and nothing runs.
func (m *Manager) spawn(ctx context.Context, name, player string, run func(ctx context.Context)) uint64 {
	id := m.ids.Add(1)
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if player != "" {
		if _, running := m.players[player]; running {
			m.mu.Unlock()
			cancel()
			return 0
		}
		m.players[player] = id
	}
	m.cancels[id] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		run(ctx)

		m.mu.Lock()
		delete(m.cancels, id)
		if player != "" && m.players[player] == id {
			delete(m.players, player)
		}
		m.mu.Unlock()
		m.log.Debug("poller finished", "kind", name, "poller", id)
	}()
	return id
}

func (m *Manager) runPlayerPoller(ctx context.Context, id string) {
	waiter := NewPollWaiter(playerPollPeriod)
	for {
		if err := waiter.Wait(ctx); err != nil {
			return
		}

		data, err := pool.Execute(ctx, m.pool, func(ctx context.Context, s *rcon.Session) (parsing.PlayerData, error) {
			return s.FetchPlayer(ctx, id)
		})
		if err != nil {
			if isPollerFatal(ctx, err) {
				m.log.Error("player poller giving up", "player", id, "error", err)
				return
			}
			m.log.Debug("player fetch failed", "player", id, "error", err)
			continue
		}
		m.master.SubmitPlayer(data)
	}
}

func (m *Manager) runGameStatePoller(ctx context.Context) {
	waiter := NewPollWaiter(m.settings().Wait)
	for {
		if err := waiter.Wait(ctx); err != nil {
			return
		}

		state, err := pool.Execute(ctx, m.pool, func(ctx context.Context, s *rcon.Session) (parsing.GameState, error) {
			return s.FetchGameState(ctx)
		})
		if err != nil {
			if isPollerFatal(ctx, err) {
				m.log.Error("game state poller giving up", "error", err)
				return
			}
			m.log.Debug("game state fetch failed", "error", err)
			continue
		}
		m.master.SubmitGameState(state)
	}
}

func (m *Manager) runShowLogPoller(ctx context.Context) {
	waiter := NewPollWaiter(showLogPollPeriod)
	known := make(map[parsing.LogLine]struct{})
	for {
		if err := waiter.Wait(ctx); err != nil {
			return
		}

		lines, err := pool.Execute(ctx, m.pool, func(ctx context.Context, s *rcon.Session) ([]parsing.LogLine, error) {
			return s.FetchShowLog(ctx)
		})
		if err != nil {
			if isPollerFatal(ctx, err) {
				m.log.Error("showlog poller giving up", "error", err)
				return
			}
			m.log.Debug("showlog fetch failed", "error", err)
			continue
		}

		now := latestTimestamp(lines)
		untracked := mergeLogs(known, lines, now)
		if len(untracked) == 0 {
			continue
		}

		m.master.SubmitLogs(untracked)
		if m.settings().ManageLifecycle {
			m.applyLifecycle(ctx, untracked)
		}
	}
}

// applyLifecycle starts and stops player pollers as players connect and
// disconnect.
func (m *Manager) applyLifecycle(ctx context.Context, lines []parsing.LogLine) {
	for _, line := range lines {
		connect, ok := line.Kind.(parsing.ConnectLog)
		if !ok {
			continue
		}
		id := connect.Player.ID.String()
		if connect.HasConnected {
			m.StartPlayerPoller(ctx, id)
		} else {
			m.StopPlayerPoller(id)
		}
	}
}

// latestTimestamp treats the newest fetched line as the current time for
// pruning, keeping the window independent of local clock skew.
func latestTimestamp(lines []parsing.LogLine) uint64 {
	var latest uint64
	for _, line := range lines {
		if line.Timestamp > latest {
			latest = line.Timestamp
		}
	}
	return latest
}

// isPollerFatal decides whether a poller should terminate. Only pool
// exhaustion and cancellation end a poller; everything else is a
// transient per-tick failure.
func isPollerFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var unrecoverable *pool.UnrecoverableError
	return errors.As(err, &unrecoverable)
}

// Package master keeps the in-memory model of the game server and turns
// freshly polled snapshots into change events on the bus.
package master

import (
	"log/slog"
	"sync"

	"github.com/wiseops/wise/internal/event"
	"github.com/wiseops/wise/internal/rcon/parsing"
)

// GameMaster is the source of truth for the last observed state of every
// player and of the match. Snapshots come in from the pollers; diffs go
// out as events.
type GameMaster struct {
	log *slog.Logger
	bus *event.Bus

	mu        sync.Mutex
	players   map[string]parsing.PlayerData
	gameState *parsing.GameState
}

// New creates an empty game master publishing to bus.
func New(log *slog.Logger, bus *event.Bus) *GameMaster {
	return &GameMaster{
		log:     log,
		bus:     bus,
		players: make(map[string]parsing.PlayerData),
	}
}

// SubmitPlayers records a snapshot of players. The first sighting of an
// id is stored silently; afterwards every changed field produces one
// entry in a single Player event for that id.
func (m *GameMaster) SubmitPlayers(players []parsing.PlayerData) {
	for _, player := range players {
		m.SubmitPlayer(player)
	}
}

// SubmitPlayer records a snapshot of a single player.
func (m *GameMaster) SubmitPlayer(player parsing.PlayerData) {
	m.mu.Lock()
	old, seen := m.players[player.ID]
	if !seen {
		m.players[player.ID] = player
		m.mu.Unlock()
		return
	}

	changes := diffPlayer(old, player)
	if len(changes) == 0 {
		m.mu.Unlock()
		return
	}
	m.players[player.ID] = player
	m.mu.Unlock()

	m.log.Debug("player changed", "id", player.ID, "changes", len(changes))
	m.bus.Send(event.RconMessage{Event: event.PlayerEvent{
		Old:     old,
		New:     player,
		Changes: changes,
	}})
}

// SubmitGameState records a snapshot of the match state and emits a Game
// event when anything but the clock moved.
func (m *GameMaster) SubmitGameState(state parsing.GameState) {
	m.mu.Lock()
	old := m.gameState
	m.gameState = &state
	m.mu.Unlock()

	if old == nil {
		return
	}
	changes := diffGameState(*old, state)
	if len(changes) == 0 {
		return
	}

	m.log.Debug("game state changed", "changes", len(changes))
	m.bus.Send(event.RconMessage{Event: event.GameEvent{
		Changes:  changes,
		NewState: state,
	}})
}

// SubmitLogs forwards new log lines verbatim.
func (m *GameMaster) SubmitLogs(lines []parsing.LogLine) {
	for _, line := range lines {
		m.bus.Send(event.RconMessage{Event: event.LogEvent{Line: line}})
	}
}

// Player returns the last observed snapshot for an id.
func (m *GameMaster) Player(id string) (parsing.PlayerData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	player, ok := m.players[id]
	return player, ok
}

// diffPlayer lists the tracked fields in which old and new differ.
// Identity fields are assumed stable within a match; score is part of the
// model but deliberately not diffed, it changes on nearly every tick.
func diffPlayer(old, new parsing.PlayerData) []event.PlayerChange {
	var changes []event.PlayerChange
	if old.ClanTag != new.ClanTag {
		changes = append(changes, event.ClanTagChange{Old: old.ClanTag, New: new.ClanTag})
	}
	if old.Level != new.Level {
		changes = append(changes, event.LevelChange{Old: old.Level, New: new.Level})
	}
	if old.Team != new.Team {
		changes = append(changes, event.TeamChange{Old: old.Team, New: new.Team})
	}
	if old.Role != new.Role {
		changes = append(changes, event.RoleChange{Old: old.Role, New: new.Role})
	}
	if old.Platoon != new.Platoon {
		changes = append(changes, event.PlatoonChange{Old: old.Platoon, New: new.Platoon})
	}
	if old.Kills != new.Kills {
		changes = append(changes, event.KillsChange{Old: old.Kills, New: new.Kills})
	}
	if old.Deaths != new.Deaths {
		changes = append(changes, event.DeathsChange{Old: old.Deaths, New: new.Deaths})
	}
	if old.WorldPosition != new.WorldPosition {
		changes = append(changes, event.WorldPositionChange{Old: old.WorldPosition, New: new.WorldPosition})
	}
	if old.Loadout != new.Loadout {
		changes = append(changes, event.LoadoutChange{Old: old.Loadout, New: new.Loadout})
	}
	return changes
}

// diffGameState lists the fields in which old and new differ. The match
// clock is continuous and never reported.
func diffGameState(old, new parsing.GameState) []event.GameStateChange {
	var changes []event.GameStateChange
	if old.AlliedPlayers != new.AlliedPlayers {
		changes = append(changes, event.AlliedPlayersChange{Old: old.AlliedPlayers, New: new.AlliedPlayers})
	}
	if old.AxisPlayers != new.AxisPlayers {
		changes = append(changes, event.AxisPlayersChange{Old: old.AxisPlayers, New: new.AxisPlayers})
	}
	if old.AlliedScore != new.AlliedScore {
		changes = append(changes, event.AlliedScoreChange{Old: old.AlliedScore, New: new.AlliedScore})
	}
	if old.AxisScore != new.AxisScore {
		changes = append(changes, event.AxisScoreChange{Old: old.AxisScore, New: new.AxisScore})
	}
	if old.Map != new.Map {
		changes = append(changes, event.MapChange{Old: old.Map, New: new.Map})
	}
	if old.NextMap != new.NextMap {
		changes = append(changes, event.NextMapChange{Old: old.NextMap, New: new.NextMap})
	}
	return changes
}

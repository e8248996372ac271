// Package event defines the messages flowing from the server to
// subscribers and the bounded broadcast bus carrying them.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/wiseops/wise/internal/rcon/parsing"
)

// RconEvent is something that happened on the game server, derived from
// polled snapshots or the admin log.
type RconEvent interface {
	isRconEvent()
	eventTag() string
}

// PlayerEvent reports changes between two snapshots of one player. An
// empty change list means polling for this player has just started.
type PlayerEvent struct {
	Old     parsing.PlayerData `json:"old"`
	New     parsing.PlayerData `json:"new"`
	Changes []PlayerChange     `json:"changes"`
}

// LogEvent carries a single new admin log line.
type LogEvent struct {
	Line parsing.LogLine
}

// GameEvent reports changes between two snapshots of the match state.
type GameEvent struct {
	Changes  []GameStateChange `json:"changes"`
	NewState parsing.GameState `json:"new_state"`
}

func (PlayerEvent) isRconEvent() {}
func (LogEvent) isRconEvent()    {}
func (GameEvent) isRconEvent()   {}

func (PlayerEvent) eventTag() string { return "Player" }
func (LogEvent) eventTag() string    { return "Log" }
func (GameEvent) eventTag() string   { return "Game" }

func marshalRconEvent(e RconEvent) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("marshal rcon event: missing event")
	}
	var inner any = e
	if log, ok := e.(LogEvent); ok {
		// The Log variant wraps the line directly instead of a struct.
		inner = log.Line
	}
	return json.Marshal(map[string]any{e.eventTag(): inner})
}

func unmarshalRconEvent(data []byte) (RconEvent, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal rcon event: %w", err)
	}
	if len(raw) != 1 {
		return nil, fmt.Errorf("unmarshal rcon event: expected exactly one tag, got %d", len(raw))
	}
	for tag, value := range raw {
		switch tag {
		case "Player":
			var e PlayerEvent
			if err := json.Unmarshal(value, &e); err != nil {
				return nil, fmt.Errorf("unmarshal player event: %w", err)
			}
			return e, nil
		case "Log":
			var line parsing.LogLine
			if err := json.Unmarshal(value, &line); err != nil {
				return nil, fmt.Errorf("unmarshal log event: %w", err)
			}
			return LogEvent{Line: line}, nil
		case "Game":
			var e GameEvent
			if err := json.Unmarshal(value, &e); err != nil {
				return nil, fmt.Errorf("unmarshal game event: %w", err)
			}
			return e, nil
		default:
			return nil, fmt.Errorf("unmarshal rcon event: unknown tag %q", tag)
		}
	}
	return nil, fmt.Errorf("unmarshal rcon event: empty object")
}

// PlayerChange is one field that differs between two player snapshots,
// carrying the old and the new value.
type PlayerChange interface {
	isPlayerChange()
	changeTag() string
}

type NameChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type ClanTagChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type PlatoonChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type TeamChange struct {
	Old int32 `json:"old"`
	New int32 `json:"new"`
}

type RoleChange struct {
	Old int32 `json:"old"`
	New int32 `json:"new"`
}

type LoadoutChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type KillsChange struct {
	Old uint64 `json:"old"`
	New uint64 `json:"new"`
}

type DeathsChange struct {
	Old uint64 `json:"old"`
	New uint64 `json:"new"`
}

type LevelChange struct {
	Old int32 `json:"old"`
	New int32 `json:"new"`
}

// ScoreChange is part of the wire vocabulary but currently never emitted;
// score updates are too frequent to be useful as events.
type ScoreChange struct {
	Kind ScoreKind `json:"kind"`
	Old  uint64    `json:"old"`
	New  uint64    `json:"new"`
}

type WorldPositionChange struct {
	Old parsing.WorldPosition `json:"old"`
	New parsing.WorldPosition `json:"new"`
}

// ScoreKind names one of the per-category scores.
type ScoreKind string

const (
	ScoreCombat  ScoreKind = "Combat"
	ScoreOffense ScoreKind = "Offense"
	ScoreDefense ScoreKind = "Defense"
	ScoreSupport ScoreKind = "Support"
)

func (NameChange) isPlayerChange()          {}
func (ClanTagChange) isPlayerChange()       {}
func (PlatoonChange) isPlayerChange()       {}
func (TeamChange) isPlayerChange()          {}
func (RoleChange) isPlayerChange()          {}
func (LoadoutChange) isPlayerChange()       {}
func (KillsChange) isPlayerChange()         {}
func (DeathsChange) isPlayerChange()        {}
func (LevelChange) isPlayerChange()         {}
func (ScoreChange) isPlayerChange()         {}
func (WorldPositionChange) isPlayerChange() {}

func (NameChange) changeTag() string          { return "Name" }
func (ClanTagChange) changeTag() string       { return "ClanTag" }
func (PlatoonChange) changeTag() string       { return "Platoon" }
func (TeamChange) changeTag() string          { return "Team" }
func (RoleChange) changeTag() string          { return "Role" }
func (LoadoutChange) changeTag() string       { return "Loadout" }
func (KillsChange) changeTag() string         { return "Kills" }
func (DeathsChange) changeTag() string        { return "Deaths" }
func (LevelChange) changeTag() string         { return "Level" }
func (ScoreChange) changeTag() string         { return "Score" }
func (WorldPositionChange) changeTag() string { return "WorldPosition" }

// GameStateChange is one field that differs between two snapshots of the
// match state.
type GameStateChange interface {
	isGameStateChange()
	changeTag() string
}

type AlliedPlayersChange struct {
	Old uint64 `json:"old"`
	New uint64 `json:"new"`
}

type AxisPlayersChange struct {
	Old uint64 `json:"old"`
	New uint64 `json:"new"`
}

type AlliedScoreChange struct {
	Old uint64 `json:"old"`
	New uint64 `json:"new"`
}

type AxisScoreChange struct {
	Old uint64 `json:"old"`
	New uint64 `json:"new"`
}

type MapChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type NextMapChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

func (AlliedPlayersChange) isGameStateChange() {}
func (AxisPlayersChange) isGameStateChange()   {}
func (AlliedScoreChange) isGameStateChange()   {}
func (AxisScoreChange) isGameStateChange()     {}
func (MapChange) isGameStateChange()           {}
func (NextMapChange) isGameStateChange()       {}

func (AlliedPlayersChange) changeTag() string { return "AlliedPlayers" }
func (AxisPlayersChange) changeTag() string   { return "AxisPlayers" }
func (AlliedScoreChange) changeTag() string   { return "AlliedScore" }
func (AxisScoreChange) changeTag() string     { return "AxisScore" }
func (MapChange) changeTag() string           { return "Map" }
func (NextMapChange) changeTag() string       { return "NextMap" }

// playerChangeList carries the externally tagged encoding of a change
// slice through the standard struct marshalling of the event types.
type playerChangeList []PlayerChange

func (cs playerChangeList) MarshalJSON() ([]byte, error) {
	out := make([]map[string]PlayerChange, 0, len(cs))
	for _, c := range cs {
		out = append(out, map[string]PlayerChange{c.changeTag(): c})
	}
	return json.Marshal(out)
}

// MarshalJSON encodes the event with externally tagged changes, e.g.
// {"old":{...},"new":{...},"changes":[{"Kills":{"old":3,"new":4}}]}.
func (e PlayerEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Old     parsing.PlayerData `json:"old"`
		New     parsing.PlayerData `json:"new"`
		Changes playerChangeList   `json:"changes"`
	}{Old: e.Old, New: e.New, Changes: playerChangeList(e.Changes)})
}

// UnmarshalJSON decodes a player event with externally tagged changes.
func (e *PlayerEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Old     parsing.PlayerData           `json:"old"`
		New     parsing.PlayerData           `json:"new"`
		Changes []map[string]json.RawMessage `json:"changes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal player event: %w", err)
	}
	e.Old = raw.Old
	e.New = raw.New
	e.Changes = nil
	for _, entry := range raw.Changes {
		if len(entry) != 1 {
			return fmt.Errorf("unmarshal player change: expected exactly one tag, got %d", len(entry))
		}
		for tag, value := range entry {
			change, err := unmarshalPlayerChange(tag, value)
			if err != nil {
				return err
			}
			e.Changes = append(e.Changes, change)
		}
	}
	return nil
}

func unmarshalPlayerChange(tag string, data []byte) (PlayerChange, error) {
	decode := func(v any) error {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("unmarshal player change %s: %w", tag, err)
		}
		return nil
	}
	switch tag {
	case "Name":
		var c NameChange
		return c, decode(&c)
	case "ClanTag":
		var c ClanTagChange
		return c, decode(&c)
	case "Platoon":
		var c PlatoonChange
		return c, decode(&c)
	case "Team":
		var c TeamChange
		return c, decode(&c)
	case "Role":
		var c RoleChange
		return c, decode(&c)
	case "Loadout":
		var c LoadoutChange
		return c, decode(&c)
	case "Kills":
		var c KillsChange
		return c, decode(&c)
	case "Deaths":
		var c DeathsChange
		return c, decode(&c)
	case "Level":
		var c LevelChange
		return c, decode(&c)
	case "Score":
		var c ScoreChange
		return c, decode(&c)
	case "WorldPosition":
		var c WorldPositionChange
		return c, decode(&c)
	default:
		return nil, fmt.Errorf("unmarshal player change: unknown tag %q", tag)
	}
}

type gameChangeList []GameStateChange

func (cs gameChangeList) MarshalJSON() ([]byte, error) {
	out := make([]map[string]GameStateChange, 0, len(cs))
	for _, c := range cs {
		out = append(out, map[string]GameStateChange{c.changeTag(): c})
	}
	return json.Marshal(out)
}

// MarshalJSON encodes the event with externally tagged changes.
func (e GameEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Changes  gameChangeList    `json:"changes"`
		NewState parsing.GameState `json:"new_state"`
	}{Changes: gameChangeList(e.Changes), NewState: e.NewState})
}

// UnmarshalJSON decodes a game event with externally tagged changes.
func (e *GameEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Changes  []map[string]json.RawMessage `json:"changes"`
		NewState parsing.GameState            `json:"new_state"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal game event: %w", err)
	}
	e.NewState = raw.NewState
	e.Changes = nil
	for _, entry := range raw.Changes {
		if len(entry) != 1 {
			return fmt.Errorf("unmarshal game change: expected exactly one tag, got %d", len(entry))
		}
		for tag, value := range entry {
			change, err := unmarshalGameStateChange(tag, value)
			if err != nil {
				return err
			}
			e.Changes = append(e.Changes, change)
		}
	}
	return nil
}

func unmarshalGameStateChange(tag string, data []byte) (GameStateChange, error) {
	decode := func(v any) error {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("unmarshal game change %s: %w", tag, err)
		}
		return nil
	}
	switch tag {
	case "AlliedPlayers":
		var c AlliedPlayersChange
		return c, decode(&c)
	case "AxisPlayers":
		var c AxisPlayersChange
		return c, decode(&c)
	case "AlliedScore":
		var c AlliedScoreChange
		return c, decode(&c)
	case "AxisScore":
		var c AxisScoreChange
		return c, decode(&c)
	case "Map":
		var c MapChange
		return c, decode(&c)
	case "NextMap":
		var c NextMapChange
		return c, decode(&c)
	default:
		return nil, fmt.Errorf("unmarshal game change: unknown tag %q", tag)
	}
}

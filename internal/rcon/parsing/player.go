package parsing

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Player is the identity of a player as it appears in admin log lines.
type Player struct {
	Name string   `json:"name"`
	ID   PlayerID `json:"id"`
}

// NewPlayer creates a Player from a name and id.
func NewPlayer(name string, id PlayerID) Player {
	return Player{Name: name, ID: id}
}

type playerIDKind uint8

const (
	playerIDSteam playerIDKind = iota + 1
	playerIDWindows
)

// PlayerID identifies a player on either platform. Steam ids are 17-digit
// numbers; Windows ids are kept as opaque strings since the server has
// reported more than one shape for them.
type PlayerID struct {
	kind    playerIDKind
	steam   uint64
	windows string
}

// SteamID creates a PlayerID for a Steam player.
func SteamID(id uint64) PlayerID {
	return PlayerID{kind: playerIDSteam, steam: id}
}

// WindowsID creates a PlayerID for a Windows player.
func WindowsID(id string) PlayerID {
	return PlayerID{kind: playerIDWindows, windows: id}
}

// ParsePlayerID parses an id string as reported by the server.
// Purely numeric ids are Steam ids, everything else is a Windows id.
func ParsePlayerID(s string) (PlayerID, bool) {
	if s == "" {
		return PlayerID{}, false
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return SteamID(n), true
	}
	return WindowsID(s), true
}

// IsSteam reports whether the id belongs to a Steam player.
func (id PlayerID) IsSteam() bool { return id.kind == playerIDSteam }

// String returns the id the way the server prints it.
func (id PlayerID) String() string {
	switch id.kind {
	case playerIDSteam:
		return strconv.FormatUint(id.steam, 10)
	case playerIDWindows:
		return id.windows
	default:
		return ""
	}
}

// MarshalJSON encodes the id as an externally tagged variant,
// {"Steam":765...} or {"Windows":"..."}.
func (id PlayerID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case playerIDSteam:
		return json.Marshal(map[string]uint64{"Steam": id.steam})
	case playerIDWindows:
		return json.Marshal(map[string]string{"Windows": id.windows})
	default:
		return nil, fmt.Errorf("marshal player id: empty id")
	}
}

// UnmarshalJSON decodes an externally tagged player id.
func (id *PlayerID) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal player id: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("unmarshal player id: expected exactly one tag, got %d", len(raw))
	}
	for tag, value := range raw {
		switch tag {
		case "Steam":
			if err := json.Unmarshal(value, &id.steam); err != nil {
				return fmt.Errorf("unmarshal steam id: %w", err)
			}
			id.kind = playerIDSteam
		case "Windows":
			if err := json.Unmarshal(value, &id.windows); err != nil {
				return fmt.Errorf("unmarshal windows id: %w", err)
			}
			id.kind = playerIDWindows
		default:
			return fmt.Errorf("unmarshal player id: unknown tag %q", tag)
		}
	}
	return nil
}

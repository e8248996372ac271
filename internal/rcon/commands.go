package rcon

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/wiseops/wise/internal/rcon/parsing"
)

// serverInformationQuery is the body of every ServerInformation request.
type serverInformationQuery struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// FetchPlayers returns all players currently on the server.
func (s *Session) FetchPlayers(ctx context.Context) ([]parsing.PlayerData, error) {
	req, err := NewRequestJSON("ServerInformation", serverInformationQuery{Name: "players"})
	if err != nil {
		return nil, err
	}
	resp, err := s.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	players := gjson.Get(resp.ContentBody, "players")
	if !players.Exists() || !players.IsArray() {
		return nil, ErrInvalidJSON
	}
	var out []parsing.PlayerData
	if err := json.Unmarshal([]byte(players.Raw), &out); err != nil {
		return nil, ErrInvalidJSON
	}
	return out, nil
}

// FetchPlayer returns the information block for a single player.
func (s *Session) FetchPlayer(ctx context.Context, id string) (parsing.PlayerData, error) {
	req, err := NewRequestJSON("ServerInformation", serverInformationQuery{Name: "player", Value: id})
	if err != nil {
		return parsing.PlayerData{}, err
	}
	resp, err := s.Execute(ctx, req)
	if err != nil {
		return parsing.PlayerData{}, err
	}

	var out parsing.PlayerData
	if err := json.Unmarshal([]byte(resp.ContentBody), &out); err != nil {
		return parsing.PlayerData{}, ErrInvalidJSON
	}
	return out, nil
}

// FetchShowLog returns the recent admin log. Messages the log grammar does
// not cover are silently dropped.
func (s *Session) FetchShowLog(ctx context.Context) ([]parsing.LogLine, error) {
	req, err := NewRequestJSON("AdminLog", struct {
		LogBackTrackTime string   `json:"LogBackTrackTime"`
		Filters          []string `json:"Filters"`
	}{LogBackTrackTime: "60", Filters: []string{}})
	if err != nil {
		return nil, err
	}
	resp, err := s.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	entries := gjson.Get(resp.ContentBody, "entries")
	if !entries.Exists() || !entries.IsArray() {
		return nil, ErrInvalidJSON
	}
	var lines []parsing.LogLine
	entries.ForEach(func(_, entry gjson.Result) bool {
		message := entry.Get("message")
		if message.Type != gjson.String {
			return true
		}
		if line, ok := parsing.ParseLogLine(message.String()); ok {
			lines = append(lines, line)
		}
		return true
	})
	return lines, nil
}

// FetchGameState is part of the v2 surface the server has not shipped
// yet; it fails without touching the wire.
func (s *Session) FetchGameState(ctx context.Context) (parsing.GameState, error) {
	return parsing.GameState{}, ErrNotImplemented
}

// BroadcastMessage shows a message to every player on the server.
func (s *Session) BroadcastMessage(ctx context.Context, message string) error {
	return s.fireAndForget(ctx, NewRequest("ServerBroadcast", message))
}

// IndividualMessage sends a message to one player.
func (s *Session) IndividualMessage(ctx context.Context, id, message string) error {
	req, err := NewRequestJSON("MessagePlayer", struct {
		PlayerID string `json:"PlayerId"`
		Message  string `json:"Message"`
	}{PlayerID: id, Message: message})
	if err != nil {
		return err
	}
	return s.fireAndForget(ctx, req)
}

// PunishPlayer kills a player in game as a warning.
func (s *Session) PunishPlayer(ctx context.Context, id, reason string) error {
	req, err := NewRequestJSON("PunishPlayer", struct {
		PlayerID string `json:"PlayerId"`
		Reason   string `json:"Reason"`
	}{PlayerID: id, Reason: reason})
	if err != nil {
		return err
	}
	return s.fireAndForget(ctx, req)
}

// KickPlayer removes a player from the server.
func (s *Session) KickPlayer(ctx context.Context, id, reason string) error {
	req, err := NewRequestJSON("Kick", struct {
		PlayerID string `json:"PlayerId"`
		Reason   string `json:"Reason"`
	}{PlayerID: id, Reason: reason})
	if err != nil {
		return err
	}
	return s.fireAndForget(ctx, req)
}

// TempBan is part of the v2 surface the server has not shipped yet.
func (s *Session) TempBan(ctx context.Context, id, reason string) error {
	return ErrNotImplemented
}

// RemoveTempBan is part of the v2 surface the server has not shipped yet.
func (s *Session) RemoveTempBan(ctx context.Context, id string) error {
	return ErrNotImplemented
}

// fireAndForget executes a request and only checks the status code.
func (s *Session) fireAndForget(ctx context.Context, req Request) error {
	resp, err := s.Execute(ctx, req)
	if err != nil {
		return err
	}
	return resp.ok(ErrFailure)
}

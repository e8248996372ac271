package parsing

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LogLine is one admin log entry with the server timestamp extracted from
// its prelude. Lines are comparable; the showlog poller relies on that for
// de-duplication.
type LogLine struct {
	Timestamp uint64
	Kind      LogKind
}

// LogKind is the tagged payload of a log line. All implementations are
// plain value structs so a LogLine can be used as a map key.
type LogKind interface {
	isLogKind()
	logTag() string
}

// ConnectLog reports a player connecting to or disconnecting from the server.
type ConnectLog struct {
	Player       Player `json:"player"`
	HasConnected bool   `json:"has_connected"`
}

// TeamSwitchLog reports a player switching teams.
type TeamSwitchLog struct {
	Player  Player `json:"player"`
	OldTeam string `json:"old_team"`
	NewTeam string `json:"new_team"`
}

// KillLog reports one player killing another.
type KillLog struct {
	Killer        Player `json:"killer"`
	KillerFaction string `json:"killer_faction"`
	Victim        Player `json:"victim"`
	VictimFaction string `json:"victim_faction"`
	IsTeamkill    bool   `json:"is_teamkill"`
	Weapon        string `json:"weapon"`
}

// MatchStartLog reports the start of a new match.
type MatchStartLog struct {
	Map string `json:"map"`
}

// MatchEndedLog reports the end of a match with the final scores.
type MatchEndedLog struct {
	Map         string `json:"map"`
	AlliedScore uint64 `json:"allied_score"`
	AxisScore   uint64 `json:"axis_score"`
}

// ChatLog reports a chat message.
type ChatLog struct {
	Sender  Player `json:"sender"`
	Team    string `json:"team"`
	Reach   string `json:"reach"`
	Content string `json:"content"`
}

func (ConnectLog) isLogKind()    {}
func (TeamSwitchLog) isLogKind() {}
func (KillLog) isLogKind()       {}
func (MatchStartLog) isLogKind() {}
func (MatchEndedLog) isLogKind() {}
func (ChatLog) isLogKind()       {}

func (ConnectLog) logTag() string    { return "Connect" }
func (TeamSwitchLog) logTag() string { return "TeamSwitch" }
func (KillLog) logTag() string       { return "Kill" }
func (MatchStartLog) logTag() string { return "MatchStart" }
func (MatchEndedLog) logTag() string { return "MatchEnded" }
func (ChatLog) logTag() string       { return "Chat" }

// MarshalJSON encodes the line with an externally tagged kind, e.g.
// {"timestamp":1718194470,"kind":{"Kill":{...}}}.
func (l LogLine) MarshalJSON() ([]byte, error) {
	if l.Kind == nil {
		return nil, fmt.Errorf("marshal log line: missing kind")
	}
	return json.Marshal(struct {
		Timestamp uint64             `json:"timestamp"`
		Kind      map[string]LogKind `json:"kind"`
	}{
		Timestamp: l.Timestamp,
		Kind:      map[string]LogKind{l.Kind.logTag(): l.Kind},
	})
}

// UnmarshalJSON decodes an externally tagged log line.
func (l *LogLine) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp uint64                     `json:"timestamp"`
		Kind      map[string]json.RawMessage `json:"kind"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal log line: %w", err)
	}
	if len(raw.Kind) != 1 {
		return fmt.Errorf("unmarshal log line: expected exactly one kind tag, got %d", len(raw.Kind))
	}
	l.Timestamp = raw.Timestamp
	for tag, value := range raw.Kind {
		kind, err := unmarshalLogKind(tag, value)
		if err != nil {
			return err
		}
		l.Kind = kind
	}
	return nil
}

func unmarshalLogKind(tag string, data []byte) (LogKind, error) {
	decode := func(v any) error {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("unmarshal log kind %s: %w", tag, err)
		}
		return nil
	}
	switch tag {
	case "Connect":
		var k ConnectLog
		return k, decode(&k)
	case "TeamSwitch":
		var k TeamSwitchLog
		return k, decode(&k)
	case "Kill":
		var k KillLog
		return k, decode(&k)
	case "MatchStart":
		var k MatchStartLog
		return k, decode(&k)
	case "MatchEnded":
		var k MatchEndedLog
		return k, decode(&k)
	case "Chat":
		var k ChatLog
		return k, decode(&k)
	default:
		return nil, fmt.Errorf("unmarshal log kind: unknown tag %q", tag)
	}
}

// preludeRe matches the "[38:03 min (1718194470)] " prefix of every line.
var preludeRe = regexp.MustCompile(`^\[[^\]]*\((\d+)\)\] `)

// matchEndedRe matches "MATCH ENDED `CARENTAN WARFARE` ALLIED (2 - 2) AXIS".
var matchEndedRe = regexp.MustCompile("^MATCH ENDED `(.*)` ALLIED \\((\\d+) - (\\d+)\\) AXIS$")

// chatRe matches "CHAT[Team][Some Name(Allies/76561198012345678)]: hello".
var chatRe = regexp.MustCompile(`^CHAT\[([^\]]+)\]\[(.+)\((Allies|Axis)/([^)]+)\)\]: (.*)$`)

// ParseLogLine parses a single admin log message. It returns false for
// messages the grammar does not cover (multi-line messages, unknown
// events); those are skipped by the caller.
func ParseLogLine(input string) (LogLine, bool) {
	m := preludeRe.FindStringSubmatch(input)
	if m == nil {
		return LogLine{}, false
	}
	timestamp, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return LogLine{}, false
	}
	rest := input[len(m[0]):]

	for _, parse := range []func(string) (LogKind, bool){
		parseConnect,
		parseKill,
		parseMatch,
		parseChat,
	} {
		if kind, ok := parse(rest); ok {
			return LogLine{Timestamp: timestamp, Kind: kind}, true
		}
	}
	return LogLine{}, false
}

// parseConnect parses "CONNECTED Player Name (76561198012345678)" and its
// DISCONNECTED counterpart.
func parseConnect(input string) (LogKind, bool) {
	rest, connected := strings.CutPrefix(input, "CONNECTED ")
	if !connected {
		var ok bool
		rest, ok = strings.CutPrefix(input, "DISCONNECTED ")
		if !ok {
			return nil, false
		}
	}

	if !strings.HasSuffix(rest, ")") {
		return nil, false
	}
	// The id lives in the last parenthesized group; the name may contain
	// anything, including spaces and parentheses.
	open := strings.LastIndex(rest, " (")
	if open < 1 {
		return nil, false
	}
	name := rest[:open]
	id, ok := ParsePlayerID(rest[open+2 : len(rest)-1])
	if !ok {
		return nil, false
	}

	return ConnectLog{
		Player:       NewPlayer(name, id),
		HasConnected: connected,
	}, true
}

// parseKill parses kill and team kill lines:
//
//	KILL: Name(Allies/7656...) -> Other(Axis/7656...) with M1 GARAND
//	TEAM KILL: Name(Axis/7656...) -> Other(Axis/7656...) with Opel Blitz (Transport)
func parseKill(input string) (LogKind, bool) {
	rest, isKill := strings.CutPrefix(input, "KILL: ")
	isTeamkill := false
	if !isKill {
		var ok bool
		rest, ok = strings.CutPrefix(input, "TEAM KILL: ")
		if !ok {
			return nil, false
		}
		isTeamkill = true
	}

	// Weapon names may contain parentheses, player names may not contain
	// " with " because names are capped well below that; split at the last
	// occurrence.
	withIdx := strings.LastIndex(rest, " with ")
	if withIdx < 0 {
		return nil, false
	}
	weapon := rest[withIdx+len(" with "):]
	pair := rest[:withIdx]

	killerPart, victimPart, ok := strings.Cut(pair, ") -> ")
	if !ok {
		return nil, false
	}
	killerFaction, killer, ok := parseFactionPlayer(killerPart + ")")
	if !ok {
		return nil, false
	}
	victimFaction, victim, ok := parseFactionPlayer(victimPart)
	if !ok {
		return nil, false
	}

	return KillLog{
		Killer:        killer,
		KillerFaction: killerFaction,
		Victim:        victim,
		VictimFaction: victimFaction,
		IsTeamkill:    isTeamkill,
		Weapon:        weapon,
	}, true
}

// parseFactionPlayer parses "Player Name(Allies/76561198012345678)".
func parseFactionPlayer(input string) (string, Player, bool) {
	if !strings.HasSuffix(input, ")") {
		return "", Player{}, false
	}
	open := strings.LastIndex(input, "(")
	if open < 1 {
		return "", Player{}, false
	}
	name := input[:open]
	faction, idStr, ok := strings.Cut(input[open+1:len(input)-1], "/")
	if !ok {
		return "", Player{}, false
	}
	id, ok := ParsePlayerID(idStr)
	if !ok {
		return "", Player{}, false
	}
	return faction, NewPlayer(name, id), true
}

// parseMatch parses "MATCH START SAINTE-MÈRE-ÉGLISE WARFARE" and
// "MATCH ENDED `CARENTAN WARFARE` ALLIED (2 - 2) AXIS".
func parseMatch(input string) (LogKind, bool) {
	if mapName, ok := strings.CutPrefix(input, "MATCH START "); ok {
		return MatchStartLog{Map: mapName}, true
	}
	m := matchEndedRe.FindStringSubmatch(input)
	if m == nil {
		return nil, false
	}
	allied, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return nil, false
	}
	axis, err := strconv.ParseUint(m[3], 10, 64)
	if err != nil {
		return nil, false
	}
	return MatchEndedLog{Map: m[1], AlliedScore: allied, AxisScore: axis}, true
}

// parseChat parses "CHAT[Team][Name(Allies/7656...)]: message".
func parseChat(input string) (LogKind, bool) {
	m := chatRe.FindStringSubmatch(input)
	if m == nil {
		return nil, false
	}
	id, ok := ParsePlayerID(m[4])
	if !ok {
		return nil, false
	}
	return ChatLog{
		Sender:  NewPlayer(m[2], id),
		Team:    m[3],
		Reach:   m[1],
		Content: m[5],
	}, true
}

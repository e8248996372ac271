package parsing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GameState is a snapshot of the current match.
type GameState struct {
	AlliedPlayers uint64        `json:"allied_players"`
	AxisPlayers   uint64        `json:"axis_players"`
	AlliedScore   uint64        `json:"allied_score"`
	AxisScore     uint64        `json:"axis_score"`
	RemainingTime time.Duration `json:"remaining_time"`
	Map           string        `json:"map"`
	NextMap       string        `json:"next_map"`
}

// ParseGameState parses the textual game state report:
//
//	Players: Allied: 40 - Axis: 38
//	Score: Allied: 2 - Axis: 3
//	Remaining Time: 0:23:14
//	Map: CARENTAN WARFARE
//	Next Map: UTAH BEACH WARFARE
func ParseGameState(input string) (GameState, error) {
	var gs GameState

	lines := strings.SplitN(input, "\n", 6)
	if len(lines) < 5 {
		return gs, fmt.Errorf("parse gamestate: expected 5 lines, got %d", len(lines))
	}

	var err error
	gs.AlliedPlayers, gs.AxisPlayers, err = parseAlliedAxis(lines[0], "Players: ")
	if err != nil {
		return gs, err
	}
	gs.AlliedScore, gs.AxisScore, err = parseAlliedAxis(lines[1], "Score: ")
	if err != nil {
		return gs, err
	}

	remaining, ok := strings.CutPrefix(lines[2], "Remaining Time: ")
	if !ok {
		return gs, fmt.Errorf("parse gamestate: malformed remaining time line %q", lines[2])
	}
	gs.RemainingTime, err = parseClock(remaining)
	if err != nil {
		return gs, err
	}

	if gs.Map, ok = strings.CutPrefix(lines[3], "Map: "); !ok {
		return gs, fmt.Errorf("parse gamestate: malformed map line %q", lines[3])
	}
	if gs.NextMap, ok = strings.CutPrefix(lines[4], "Next Map: "); !ok {
		return gs, fmt.Errorf("parse gamestate: malformed next map line %q", lines[4])
	}

	return gs, nil
}

// parseAlliedAxis parses a "<prefix>Allied: N - Axis: M" line.
func parseAlliedAxis(line, prefix string) (allied, axis uint64, err error) {
	rest, ok := strings.CutPrefix(line, prefix+"Allied: ")
	if !ok {
		return 0, 0, fmt.Errorf("parse gamestate: malformed line %q", line)
	}
	alliedStr, axisStr, ok := strings.Cut(rest, " - Axis: ")
	if !ok {
		return 0, 0, fmt.Errorf("parse gamestate: malformed line %q", line)
	}
	if allied, err = strconv.ParseUint(alliedStr, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("parse gamestate: allied count in %q: %w", line, err)
	}
	if axis, err = strconv.ParseUint(axisStr, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("parse gamestate: axis count in %q: %w", line, err)
	}
	return allied, axis, nil
}

// parseClock parses a "H:MM:SS" duration.
func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("parse gamestate: malformed clock %q", s)
	}
	var total time.Duration
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("parse gamestate: malformed clock %q: %w", s, err)
		}
		total = total*60 + time.Duration(n)
	}
	return total * time.Second, nil
}

package parsing

// PlayerData is the full information block the server reports for one
// player via the ServerInformation command. JSON tags follow the server's
// own (inconsistent) capitalization and must not be "fixed".
type PlayerData struct {
	Name          string        `json:"name"`
	ClanTag       string        `json:"clanTag"`
	ID            string        `json:"iD"`
	Platform      string        `json:"platform"`
	Level         int32         `json:"level"`
	Team          int32         `json:"team"`
	EosID         string        `json:"eOSId"`
	Role          int32         `json:"role"`
	Platoon       string        `json:"platoon"`
	Kills         uint64        `json:"kills"`
	Deaths        uint64        `json:"deaths"`
	Score         ScoreData     `json:"scoreData"`
	WorldPosition WorldPosition `json:"worldPosition"`
	Loadout       string        `json:"loadout"`
}

// ScoreData is the per-category score of a player.
type ScoreData struct {
	Combat  uint32 `json:"cOMBAT"`
	Defense uint32 `json:"defense"`
	Support uint32 `json:"support"`
	Offense uint32 `json:"offense"`
}

// WorldPosition is a position in 3D space.
type WorldPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

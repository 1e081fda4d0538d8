package aggregate

import "time"

// Action is the kind of map decision a team made.
type Action string

const (
	ActionPick Action = "pick"
	ActionBan  Action = "ban"
)

// PickBanAction is one parsed veto segment.
type PickBanAction struct {
	Team   string `json:"team"`
	Action Action `json:"action"`
	Map    string `json:"map"`
}

// MatchRecord is the per-series detail kept for every aggregated match.
type MatchRecord struct {
	URL     string          `json:"url"`
	Date    *time.Time      `json:"date"`
	Event   string          `json:"event"`
	Picks   int             `json:"picks"`
	Bans    int             `json:"bans"`
	Actions []PickBanAction `json:"actions"`
}

type MapStat struct {
	Pick int `json:"pick"`
	Ban  int `json:"ban"`
}

// Total is picks plus bans.
func (m MapStat) Total() int {
	return m.Pick + m.Ban
}

type TeamStats struct {
	Pick    int `json:"pick"`
	Ban     int `json:"ban"`
	Matches int `json:"matches"`
}

// FilteredOut counts processed matches that contributed nothing.
type FilteredOut struct {
	Event  int `json:"event"`
	NoData int `json:"noData"`
}

// Filters echoes the parameters a result was produced with.
type Filters struct {
	Team     string     `json:"team"`
	Event    *string    `json:"event"`
	FromDate *time.Time `json:"fromDate"`
	ToDate   *time.Time `json:"toDate"`
}

// Result is the terminal snapshot of a run.
type Result struct {
	TeamName        string              `json:"teamName"`
	TeamStats       TeamStats           `json:"teamStats"`
	AggregatedByMap map[string]*MapStat `json:"aggregatedByMap"`
	Detailed        []MatchRecord       `json:"detailed"`
	FilteredOut     FilteredOut         `json:"filteredOut"`
	Filters         Filters             `json:"filters"`
}

package domain

import (
	"time"
)

type MatchMethod string

const (
	MethodExact         MatchMethod = "exact"
	MethodFuzzyTime     MatchMethod = "fuzzy_time"
	MethodFuzzyTeamName MatchMethod = "fuzzy_team_name"
	MethodNormalized    MatchMethod = "normalized"
	MethodFuzzy         MatchMethod = "fuzzy"
	MethodContext       MatchMethod = "context"
	MethodManual        MatchMethod = "manual"
	MethodNone          MatchMethod = "none"
)

type MappingStatus string

const (
	StatusPending      MappingStatus = "pending"
	StatusMatched      MappingStatus = "matched"
	StatusFailed       MappingStatus = "failed"
	StatusManualReview MappingStatus = "manual_review"
)

type SyncStatus string

const (
	SyncSuccess    SyncStatus = "success"
	SyncFailed     SyncStatus = "failed"
	SyncInProgress SyncStatus = "in_progress"
	SyncPartial    SyncStatus = "partial"
)

// ScheduleGame is a game row fetched from the stats source. Team ids are the
// source's canonical numeric ids; StartTime is nil when the source only
// publishes a calendar date.
type ScheduleGame struct {
	GameID     string
	GameDate   time.Time
	StartTime  *time.Time
	HomeTeamID int64
	AwayTeamID int64
}

// OddsEvent is an event row fetched from the odds source. Teams are free-text
// names; the event id shares nothing with the stats source.
type OddsEvent struct {
	EventID      string
	CommenceTime time.Time
	HomeTeamName string
	AwayTeamName string
	Outcomes     []OddsOutcome
}

type OddsOutcome struct {
	Market    string
	Name      string
	Price     float64
	Point     float64
	Bookmaker string
}

// TeamReference maps a stats-source numeric team id to its canonical names.
// Owned by reference data; read-only to the matching code.
type TeamReference struct {
	TeamID         int64
	Abbreviation   string
	FullName       string
	City           string
	OddsName       string
	OddsKey        string
	AlternateNames []string
}

// GameMapping is the durable correlation between a stats-source game and an
// odds-source event. At most one row exists per StatsGameID.
type GameMapping struct {
	ID              int64
	StatsGameID     string
	OddsEventID     string
	HomeTeamID      int64
	AwayTeamID      int64
	GameDate        time.Time
	CommenceTime    *time.Time
	Confidence      float64
	Method          MatchMethod
	Status          MappingStatus
	ManualOverride  bool
	LastValidatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PlayerAlias maps one (alias, source) pair to a canonical player. TeamID and
// Position track the player's current assignment so name resolution can use
// team/position hints.
type PlayerAlias struct {
	ID            int64
	Alias         string
	Source        string
	PlayerID      int64
	CanonicalName string
	TeamID        int64
	Position      string
	Confidence    float64
	Verified      bool
	VerifiedBy    string
	VerifiedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuditEntry is one append-only record of a mapping or alias write.
type AuditEntry struct {
	ID         string
	EntityType string
	EntityID   string
	Action     string
	PrevState  string
	NewState   string
	Method     MatchMethod
	Confidence float64
	CreatedAt  time.Time
}

const (
	AuditEntityGameMapping = "game_mapping"
	AuditEntityPlayerAlias = "player_alias"

	AuditActionCreate = "create"
	AuditActionUpdate = "update"
)

// SyncRun is the per-(source, data-type) run record, overwritten in place on
// every run.
type SyncRun struct {
	Source       string
	DataType     string
	StartedAt    time.Time
	CompletedAt  *time.Time
	Status       SyncStatus
	Processed    int
	Matched      int
	Failed       int
	DurationMS   int64
	ErrorMessage string
	UpdatedAt    time.Time
}

// GameMatch is the outcome of scoring one schedule game against a set of odds
// events.
type GameMatch struct {
	OddsEventID  string
	CommenceTime time.Time
	Confidence   float64
	Method       MatchMethod
}

type GameMatchDetail struct {
	StatsGameID string      `json:"stats_game_id"`
	OddsEventID string      `json:"odds_event_id,omitempty"`
	Confidence  float64     `json:"confidence"`
	Method      MatchMethod `json:"method"`
	Matched     bool        `json:"matched"`
}

type BatchMatchResult struct {
	Total     int               `json:"total"`
	Matched   int               `json:"matched"`
	Unmatched int               `json:"unmatched"`
	Matches   []GameMatchDetail `json:"matches"`
}

// Resolution is a successful player-name resolution.
type Resolution struct {
	PlayerID      int64       `json:"player_id"`
	CanonicalName string      `json:"canonical_name"`
	Confidence    float64     `json:"confidence"`
	Method        MatchMethod `json:"method"`
}

// PlayerContext carries optional hints for name resolution. Team may be an
// abbreviation or a full team name.
type PlayerContext struct {
	Team     string
	Position string
}

// PlayerStatLine is a box-score row from the stats source; the source's
// numeric player id is canonical.
type PlayerStatLine struct {
	PlayerID   int64
	PlayerName string
	TeamID     int64
	TeamAbbr   string
	Position   string
}

// GameOdds is the latest stored price for one (mapping, market, outcome).
type GameOdds struct {
	ID            int64
	GameMappingID int64
	Market        string
	OutcomeName   string
	Price         float64
	Point         float64
	Bookmaker     string
	FetchedAt     time.Time
}

// QuotaInfo is the odds provider's request allowance, tracked from its
// response headers.
type QuotaInfo struct {
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncStatusReport is the operator-facing health summary.
type SyncStatusReport struct {
	Health      string          `json:"health"`
	Jobs        []SyncJobStatus `json:"jobs"`
	Totals      SyncTotals      `json:"totals"`
	Issues      SyncIssueCounts `json:"issues"`
	OddsQuota   QuotaInfo       `json:"odds_quota"`
	GeneratedAt time.Time       `json:"generated_at"`
}

type SyncJobStatus struct {
	Source       string     `json:"source"`
	DataType     string     `json:"data_type"`
	Status       SyncStatus `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Processed    int        `json:"processed"`
	Matched      int        `json:"matched"`
	Failed       int        `json:"failed"`
	DurationMS   int64      `json:"duration_ms"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

type SyncTotals struct {
	Jobs      int `json:"jobs"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type SyncIssueCounts struct {
	UnmatchedGames       int `json:"unmatched_games"`
	LowConfidenceMatches int `json:"low_confidence_matches"`
}

// ReviewQueue groups the correlations that need a human look.
type ReviewQueue struct {
	UnmatchedGames       []GameMapping `json:"unmatched_games"`
	LowConfidenceMatches []GameMapping `json:"low_confidence_matches"`
}

const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

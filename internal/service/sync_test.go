package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"hoopsync/internal/domain"
)

type fakeStats struct {
	games       []domain.ScheduleGame
	lines       []domain.PlayerStatLine
	scheduleErr error
	statsErr    error
}

func (f *fakeStats) Schedule(ctx context.Context, from, to time.Time) ([]domain.ScheduleGame, error) {
	return f.games, f.scheduleErr
}

func (f *fakeStats) PlayerStats(ctx context.Context, date time.Time) ([]domain.PlayerStatLine, error) {
	return f.lines, f.statsErr
}

type fakeOdds struct {
	events    []domain.OddsEvent
	outcomes  map[string][]domain.OddsOutcome
	eventsErr error
	quota     domain.QuotaInfo
}

func (f *fakeOdds) Events(ctx context.Context, from, to time.Time) ([]domain.OddsEvent, error) {
	return f.events, f.eventsErr
}

func (f *fakeOdds) EventOdds(ctx context.Context, eventID string, markets []string) (*domain.OddsEvent, error) {
	return &domain.OddsEvent{EventID: eventID, Outcomes: f.outcomes[eventID]}, nil
}

func (f *fakeOdds) GetQuotaInfo() domain.QuotaInfo {
	return f.quota
}

func findRun(t *testing.T, runs []domain.SyncRun, source, dataType string) domain.SyncRun {
	t.Helper()
	for _, run := range runs {
		if run.Source == source && run.DataType == dataType {
			return run
		}
	}
	t.Fatalf("no run recorded for %s/%s", source, dataType)
	return domain.SyncRun{}
}

func TestSyncGames(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tip := mustUTC(2026, time.January, 16, 0, 10)
	svc := env.syncService(
		&fakeStats{games: []domain.ScheduleGame{scheduledGame("g1", phiID, bosID, tip)}},
		&fakeOdds{events: []domain.OddsEvent{{
			EventID:      "evt-1",
			CommenceTime: tip,
			HomeTeamName: "Philadelphia 76ers",
			AwayTeamName: "Boston Celtics",
		}}},
	)

	result, err := svc.SyncGames(ctx, 1, 3)
	if err != nil {
		t.Fatalf("SyncGames: %v", err)
	}
	if result.Total != 1 || result.Matched != 1 || result.Unmatched != 0 {
		t.Fatalf("result = %+v, want 1 matched", result)
	}

	runs, err := env.runs.List(ctx)
	if err != nil {
		t.Fatalf("List runs: %v", err)
	}
	run := findRun(t, runs, SourceStats, DataTypeGames)
	if run.Status != domain.SyncSuccess || run.Processed != 1 || run.Matched != 1 {
		t.Fatalf("run = %+v, want success 1/1", run)
	}
	if run.CompletedAt == nil {
		t.Fatal("completed run is missing its completion time")
	}
}

func TestSyncGamesRecordsFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cause := errors.New("schedule endpoint down")
	svc := env.syncService(&fakeStats{scheduleErr: cause}, &fakeOdds{})

	_, err := svc.SyncGames(ctx, 1, 3)
	if err == nil {
		t.Fatal("SyncGames returned nil, want the fetch fault")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("error %v does not wrap the cause", err)
	}

	runs, listErr := env.runs.List(ctx)
	if listErr != nil {
		t.Fatalf("List runs: %v", listErr)
	}
	run := findRun(t, runs, SourceStats, DataTypeGames)
	if run.Status != domain.SyncFailed {
		t.Fatalf("run status = %s, want failed", run.Status)
	}
	if !strings.Contains(run.ErrorMessage, "schedule endpoint down") {
		t.Fatalf("error message %q lost the cause", run.ErrorMessage)
	}
}

func TestSyncOdds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedAlias(t, env, embiidAlias())

	tip := mustUTC(2026, time.January, 16, 0, 10)
	game := scheduledGame("g1", phiID, bosID, tip)
	mapping, err := env.matcher.CreateOrUpdateMapping(ctx, game, &domain.GameMatch{
		OddsEventID: "evt-1", CommenceTime: tip, Confidence: 1.0, Method: domain.MethodExact,
	})
	if err != nil {
		t.Fatalf("CreateOrUpdateMapping: %v", err)
	}

	odds := &fakeOdds{outcomes: map[string][]domain.OddsOutcome{
		"evt-1": {
			{Market: "h2h", Name: "Philadelphia 76ers", Price: 1.65, Bookmaker: "draftkings"},
			{Market: "player_points", Name: "Joel Embiid", Price: 1.91, Point: 28.5, Bookmaker: "draftkings"},
		},
	}}
	svc := env.syncService(&fakeStats{}, odds)

	stored, err := svc.SyncOdds(ctx)
	if err != nil {
		t.Fatalf("SyncOdds: %v", err)
	}
	if stored != 2 {
		t.Fatalf("stored = %d, want 2", stored)
	}

	rows, err := env.oddsRepo.ListByMapping(ctx, mapping.ID)
	if err != nil {
		t.Fatalf("ListByMapping: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("odds rows = %d, want 2", len(rows))
	}

	// A second pass overwrites prices in place instead of growing the table.
	odds.outcomes["evt-1"][0].Price = 1.72
	if _, err := svc.SyncOdds(ctx); err != nil {
		t.Fatalf("second SyncOdds: %v", err)
	}
	rows, err = env.oddsRepo.ListByMapping(ctx, mapping.ID)
	if err != nil {
		t.Fatalf("ListByMapping after refresh: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("odds rows after refresh = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row.Market == "h2h" && row.Price != 1.72 {
			t.Fatalf("h2h price = %v, want refreshed 1.72", row.Price)
		}
	}
}

func TestSyncPlayerStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	svc := env.syncService(&fakeStats{lines: []domain.PlayerStatLine{
		{PlayerID: 203954, PlayerName: "Joel Embiid", TeamID: phiID, TeamAbbr: "PHI", Position: "C"},
		{PlayerID: 1628369, PlayerName: "Jayson Tatum", TeamID: bosID, TeamAbbr: "BOS", Position: "F"},
	}}, &fakeOdds{})

	count, err := svc.SyncPlayerStats(ctx, mustUTC(2026, time.January, 15, 0, 0))
	if err != nil {
		t.Fatalf("SyncPlayerStats: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	alias, err := env.aliases.GetExact(ctx, "Jayson Tatum", SourceStats)
	if err != nil {
		t.Fatalf("GetExact: %v", err)
	}
	if !alias.Verified || alias.VerifiedBy != "stats_sync" || alias.TeamID != bosID {
		t.Fatalf("alias = %+v, want verified stats row", alias)
	}

	runs, err := env.runs.List(ctx)
	if err != nil {
		t.Fatalf("List runs: %v", err)
	}
	run := findRun(t, runs, SourceStats, DataTypePlayerStats)
	if run.Status != domain.SyncSuccess || run.Processed != 2 {
		t.Fatalf("run = %+v, want success with 2 processed", run)
	}
}

func TestSyncPlayerStatsTeamAbbrFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Box scores occasionally carry a stale numeric team id; the
	// abbreviation still identifies the club.
	svc := env.syncService(&fakeStats{lines: []domain.PlayerStatLine{
		{PlayerID: 1628369, PlayerName: "Jayson Tatum", TeamID: 99, TeamAbbr: "BOS", Position: "F"},
		{PlayerID: 76001, PlayerName: "Historic Player", TeamID: 98, TeamAbbr: "XXX", Position: "G"},
	}}, &fakeOdds{})

	count, err := svc.SyncPlayerStats(ctx, mustUTC(2026, time.January, 15, 0, 0))
	if err != nil {
		t.Fatalf("SyncPlayerStats: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	alias, err := env.aliases.GetExact(ctx, "Jayson Tatum", SourceStats)
	if err != nil {
		t.Fatalf("GetExact: %v", err)
	}
	if alias.TeamID != bosID {
		t.Fatalf("TeamID = %d, want %d via abbreviation fallback", alias.TeamID, bosID)
	}

	alias, err = env.aliases.GetExact(ctx, "Historic Player", SourceStats)
	if err != nil {
		t.Fatalf("GetExact: %v", err)
	}
	if alias.TeamID != 0 {
		t.Fatalf("TeamID = %d, want 0 for an unresolvable team", alias.TeamID)
	}
}

func TestReconcileMatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tip := mustUTC(2026, time.January, 16, 0, 10)
	odds := &fakeOdds{}
	svc := env.syncService(
		&fakeStats{games: []domain.ScheduleGame{scheduledGame("g1", phiID, bosID, tip)}},
		odds,
	)

	// First pass has no events, so the game parks in manual review.
	result, err := svc.SyncGames(ctx, 1, 3)
	if err != nil {
		t.Fatalf("SyncGames: %v", err)
	}
	if result.Unmatched != 1 {
		t.Fatalf("result = %+v, want 1 unmatched", result)
	}

	// The event shows up late; reconciliation recovers the mapping.
	odds.events = []domain.OddsEvent{{
		EventID:      "evt-1",
		CommenceTime: tip,
		HomeTeamName: "Philadelphia 76ers",
		AwayTeamName: "Boston Celtics",
	}}

	recovered, err := svc.ReconcileMatches(ctx, 50)
	if err != nil {
		t.Fatalf("ReconcileMatches: %v", err)
	}
	if recovered.Total != 1 || recovered.Matched != 1 {
		t.Fatalf("recovered = %+v, want the parked game matched", recovered)
	}

	mapping, err := env.mappings.GetByStatsGameID(ctx, "g1")
	if err != nil {
		t.Fatalf("GetByStatsGameID: %v", err)
	}
	if mapping.Status != domain.StatusMatched || mapping.OddsEventID != "evt-1" {
		t.Fatalf("mapping = %+v, want matched evt-1", mapping)
	}
}

func TestReconcileMatchesNothingPending(t *testing.T) {
	env := newTestEnv(t)
	svc := env.syncService(&fakeStats{}, &fakeOdds{eventsErr: errors.New("must not be called")})

	result, err := svc.ReconcileMatches(context.Background(), 50)
	if err != nil {
		t.Fatalf("ReconcileMatches: %v", err)
	}
	if result.Total != 0 {
		t.Fatalf("result = %+v, want empty", result)
	}
}

func TestGetSyncStatusHealth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.syncService(&fakeStats{}, &fakeOdds{})

	report, err := svc.GetSyncStatus(ctx)
	if err != nil {
		t.Fatalf("GetSyncStatus: %v", err)
	}
	if report.Health != domain.HealthHealthy || report.Totals.Jobs != 0 {
		t.Fatalf("empty report = %+v, want healthy with no jobs", report)
	}

	if err := env.runs.Start(ctx, SourceStats, DataTypeGames); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := env.runs.Complete(ctx, SourceStats, DataTypeGames, 10, 9, 1, time.Second); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	report, err = svc.GetSyncStatus(ctx)
	if err != nil {
		t.Fatalf("GetSyncStatus: %v", err)
	}
	if report.Health != domain.HealthHealthy || report.Totals.Succeeded != 1 {
		t.Fatalf("report = %+v, want healthy", report)
	}

	if err := env.runs.Start(ctx, SourceOdds, DataTypeOdds); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := env.runs.Fail(ctx, SourceOdds, DataTypeOdds, "quota exhausted", time.Second); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	report, err = svc.GetSyncStatus(ctx)
	if err != nil {
		t.Fatalf("GetSyncStatus: %v", err)
	}
	if report.Health != domain.HealthDegraded {
		t.Fatalf("health = %s, want degraded", report.Health)
	}

	if err := env.runs.Start(ctx, SourceStats, DataTypeGames); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := env.runs.Fail(ctx, SourceStats, DataTypeGames, "schedule endpoint down", time.Second); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	report, err = svc.GetSyncStatus(ctx)
	if err != nil {
		t.Fatalf("GetSyncStatus: %v", err)
	}
	if report.Health != domain.HealthUnhealthy {
		t.Fatalf("health = %s, want unhealthy", report.Health)
	}
}

func TestGetSyncStatusReportsQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	updated := mustUTC(2026, time.January, 15, 12, 0)
	svc := env.syncService(&fakeStats{}, &fakeOdds{
		quota: domain.QuotaInfo{Used: 412, Remaining: 88, UpdatedAt: updated},
	})

	report, err := svc.GetSyncStatus(ctx)
	if err != nil {
		t.Fatalf("GetSyncStatus: %v", err)
	}
	if report.OddsQuota.Used != 412 || report.OddsQuota.Remaining != 88 {
		t.Fatalf("quota = %+v, want used 412 remaining 88", report.OddsQuota)
	}
	if !report.OddsQuota.UpdatedAt.Equal(updated) {
		t.Fatalf("quota updated at %v, want %v", report.OddsQuota.UpdatedAt, updated)
	}
}

func TestGetSyncStatusIssueCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.syncService(&fakeStats{}, &fakeOdds{})

	game := scheduledGame("g1", lalID, bosID, mustUTC(2026, time.January, 16, 3, 0))
	if _, err := env.matcher.CreatePendingMapping(ctx, game); err != nil {
		t.Fatalf("CreatePendingMapping: %v", err)
	}

	report, err := svc.GetSyncStatus(ctx)
	if err != nil {
		t.Fatalf("GetSyncStatus: %v", err)
	}
	if report.Issues.UnmatchedGames != 1 {
		t.Fatalf("unmatched issues = %d, want 1", report.Issues.UnmatchedGames)
	}
}

func TestGetManualReviewQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.syncService(&fakeStats{}, &fakeOdds{})

	pending := scheduledGame("g-pending", lalID, bosID, mustUTC(2026, time.January, 16, 3, 0))
	if _, err := env.matcher.CreatePendingMapping(ctx, pending); err != nil {
		t.Fatalf("CreatePendingMapping: %v", err)
	}

	tip := mustUTC(2026, time.January, 16, 0, 10)
	low := scheduledGame("g-low", phiID, bosID, tip)
	if _, err := env.matcher.CreateOrUpdateMapping(ctx, low, &domain.GameMatch{
		OddsEventID: "evt-1", CommenceTime: tip, Confidence: 0.70, Method: domain.MethodFuzzyTeamName,
	}); err != nil {
		t.Fatalf("CreateOrUpdateMapping: %v", err)
	}

	queue, err := svc.GetManualReviewQueue(ctx, 50)
	if err != nil {
		t.Fatalf("GetManualReviewQueue: %v", err)
	}
	if len(queue.UnmatchedGames) != 1 || queue.UnmatchedGames[0].StatsGameID != "g-pending" {
		t.Fatalf("unmatched = %+v, want g-pending", queue.UnmatchedGames)
	}
	if len(queue.LowConfidenceMatches) != 1 || queue.LowConfidenceMatches[0].StatsGameID != "g-low" {
		t.Fatalf("low confidence = %+v, want g-low", queue.LowConfidenceMatches)
	}
}

func TestGetMatchedGamesByDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.syncService(&fakeStats{}, &fakeOdds{})

	tip := mustUTC(2026, time.January, 16, 0, 10)
	game := scheduledGame("g1", phiID, bosID, tip)
	if _, err := env.matcher.CreateOrUpdateMapping(ctx, game, &domain.GameMatch{
		OddsEventID: "evt-1", CommenceTime: tip, Confidence: 1.0, Method: domain.MethodExact,
	}); err != nil {
		t.Fatalf("CreateOrUpdateMapping: %v", err)
	}

	// tip is 00:10 UTC on Jan 16, which is the Jan 15 game date.
	day := mustUTC(2026, time.January, 15, 0, 0)
	matched, err := svc.GetMatchedGames(ctx, &day)
	if err != nil {
		t.Fatalf("GetMatchedGames: %v", err)
	}
	if len(matched) != 1 || matched[0].StatsGameID != "g1" {
		t.Fatalf("matched = %+v, want g1", matched)
	}

	other := mustUTC(2026, time.January, 20, 0, 0)
	matched, err = svc.GetMatchedGames(ctx, &other)
	if err != nil {
		t.Fatalf("GetMatchedGames(other day): %v", err)
	}
	if len(matched) != 0 {
		t.Fatalf("matched on empty day = %+v, want none", matched)
	}
}

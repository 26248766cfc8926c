package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"hoopsync/internal/domain"
)

const (
	phiID = 1610612755
	bosID = 1610612738
	lalID = 1610612747
)

func scheduledGame(id string, home, away int64, tip time.Time) domain.ScheduleGame {
	return domain.ScheduleGame{
		GameID:     id,
		GameDate:   tip,
		StartTime:  &tip,
		HomeTeamID: home,
		AwayTeamID: away,
	}
}

func TestFindMatchExact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teams, err := env.matcher.TeamIndex(ctx)
	if err != nil {
		t.Fatalf("TeamIndex: %v", err)
	}

	// 19:10 Eastern on Jan 15 is 00:10 UTC on Jan 16.
	tip := mustUTC(2026, time.January, 16, 0, 10)
	game := scheduledGame("0022600712", phiID, bosID, tip)
	events := []domain.OddsEvent{
		{
			EventID:      "evt-other",
			CommenceTime: tip,
			HomeTeamName: "Los Angeles Lakers",
			AwayTeamName: "Boston Celtics",
		},
		{
			EventID:      "evt-1",
			CommenceTime: tip.Add(5 * time.Minute),
			HomeTeamName: "Philadelphia 76ers",
			AwayTeamName: "Boston Celtics",
		},
	}

	match := env.matcher.FindMatch(game, events, teams)
	if match == nil {
		t.Fatal("FindMatch returned nil, want evt-1")
	}
	if match.OddsEventID != "evt-1" || match.Confidence != 1.0 || match.Method != domain.MethodExact {
		t.Fatalf("FindMatch = %+v, want evt-1/1.0/exact", match)
	}
}

func TestFindMatchNothingAboveThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teams, err := env.matcher.TeamIndex(ctx)
	if err != nil {
		t.Fatalf("TeamIndex: %v", err)
	}

	tip := mustUTC(2026, time.January, 16, 0, 10)
	game := scheduledGame("g1", phiID, bosID, tip)

	if match := env.matcher.FindMatch(game, nil, teams); match != nil {
		t.Fatalf("FindMatch with no events = %+v, want nil", match)
	}

	wrongDay := []domain.OddsEvent{{
		EventID:      "evt-1",
		CommenceTime: tip.Add(48 * time.Hour),
		HomeTeamName: "Philadelphia 76ers",
		AwayTeamName: "Boston Celtics",
	}}
	if match := env.matcher.FindMatch(game, wrongDay, teams); match != nil {
		t.Fatalf("FindMatch across dates = %+v, want nil", match)
	}
}

func TestBatchMatchGames(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tip := mustUTC(2026, time.January, 16, 0, 10)
	games := []domain.ScheduleGame{
		scheduledGame("g-matched", phiID, bosID, tip),
		scheduledGame("g-orphan", lalID, bosID, tip.Add(24*time.Hour)),
	}
	events := []domain.OddsEvent{{
		EventID:      "evt-1",
		CommenceTime: tip,
		HomeTeamName: "Philadelphia 76ers",
		AwayTeamName: "Boston Celtics",
	}}

	result, err := env.matcher.BatchMatchGames(ctx, games, events)
	if err != nil {
		t.Fatalf("BatchMatchGames: %v", err)
	}
	if result.Total != 2 || result.Matched != 1 || result.Unmatched != 1 {
		t.Fatalf("result = %d/%d/%d, want total 2 matched 1 unmatched 1",
			result.Total, result.Matched, result.Unmatched)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("len(Matches) = %d, want 2", len(result.Matches))
	}
	if d := result.Matches[0]; !d.Matched || d.StatsGameID != "g-matched" || d.OddsEventID != "evt-1" {
		t.Fatalf("Matches[0] = %+v, want matched g-matched/evt-1", d)
	}
	if d := result.Matches[1]; d.Matched || d.StatsGameID != "g-orphan" || d.Method != domain.MethodNone {
		t.Fatalf("Matches[1] = %+v, want unmatched g-orphan", d)
	}

	matched, err := env.mappings.GetByStatsGameID(ctx, "g-matched")
	if err != nil {
		t.Fatalf("GetByStatsGameID(g-matched): %v", err)
	}
	if matched.Status != domain.StatusMatched || matched.OddsEventID != "evt-1" {
		t.Fatalf("matched row = %+v", matched)
	}

	orphan, err := env.mappings.GetByStatsGameID(ctx, "g-orphan")
	if err != nil {
		t.Fatalf("GetByStatsGameID(g-orphan): %v", err)
	}
	if orphan.Status != domain.StatusManualReview {
		t.Fatalf("orphan status = %s, want manual_review", orphan.Status)
	}
}

func TestBatchMatchGamesSkipsAlreadyMatched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tip := mustUTC(2026, time.January, 16, 0, 10)
	game := scheduledGame("g1", phiID, bosID, tip)
	if _, err := env.matcher.CreateOrUpdateMapping(ctx, game, &domain.GameMatch{
		OddsEventID:  "evt-1",
		CommenceTime: tip,
		Confidence:   1.0,
		Method:       domain.MethodExact,
	}); err != nil {
		t.Fatalf("CreateOrUpdateMapping: %v", err)
	}

	// No events offered; the stored mapping must carry the batch.
	result, err := env.matcher.BatchMatchGames(ctx, []domain.ScheduleGame{game}, nil)
	if err != nil {
		t.Fatalf("BatchMatchGames: %v", err)
	}
	if result.Matched != 1 || result.Unmatched != 0 {
		t.Fatalf("result = %+v, want cached match", result)
	}
	if d := result.Matches[0]; d.OddsEventID != "evt-1" || d.Confidence != 1.0 {
		t.Fatalf("Matches[0] = %+v, want stored evt-1/1.0", d)
	}
}

func TestBatchMatchGamesEventAlreadyClaimed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tip := mustUTC(2026, time.January, 16, 0, 10)
	claimant := scheduledGame("g-claimant", phiID, bosID, tip)
	if _, err := env.matcher.CreateOrUpdateMapping(ctx, claimant, &domain.GameMatch{
		OddsEventID: "evt-1", CommenceTime: tip, Confidence: 1.0, Method: domain.MethodExact,
	}); err != nil {
		t.Fatalf("CreateOrUpdateMapping: %v", err)
	}

	// A duplicate schedule entry scores against the same event; the unique
	// index owns it, so the duplicate goes to review instead of erroring.
	dupe := scheduledGame("g-dupe", phiID, bosID, tip)
	events := []domain.OddsEvent{{
		EventID:      "evt-1",
		CommenceTime: tip,
		HomeTeamName: "Philadelphia 76ers",
		AwayTeamName: "Boston Celtics",
	}}

	result, err := env.matcher.BatchMatchGames(ctx, []domain.ScheduleGame{dupe}, events)
	if err != nil {
		t.Fatalf("BatchMatchGames: %v", err)
	}
	if result.Matched != 0 || result.Unmatched != 1 {
		t.Fatalf("result = %+v, want the duplicate unmatched", result)
	}

	mapping, err := env.mappings.GetByStatsGameID(ctx, "g-dupe")
	if err != nil {
		t.Fatalf("GetByStatsGameID(g-dupe): %v", err)
	}
	if mapping.Status != domain.StatusManualReview || mapping.OddsEventID != "" {
		t.Fatalf("duplicate mapping = %+v, want manual_review without an event", mapping)
	}

	owner, err := env.mappings.GetByOddsEventID(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetByOddsEventID: %v", err)
	}
	if owner.StatsGameID != "g-claimant" {
		t.Fatalf("event owner = %s, want g-claimant", owner.StatsGameID)
	}
}

func TestCreateOrUpdateMappingAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tip := mustUTC(2026, time.January, 16, 0, 10)
	game := scheduledGame("g1", phiID, bosID, tip)

	if _, err := env.matcher.CreateOrUpdateMapping(ctx, game, &domain.GameMatch{
		OddsEventID: "evt-1", CommenceTime: tip, Confidence: 1.0, Method: domain.MethodExact,
	}); err != nil {
		t.Fatalf("first CreateOrUpdateMapping: %v", err)
	}
	if _, err := env.matcher.CreateOrUpdateMapping(ctx, game, &domain.GameMatch{
		OddsEventID: "evt-1", CommenceTime: tip, Confidence: 0.95, Method: domain.MethodFuzzyTime,
	}); err != nil {
		t.Fatalf("second CreateOrUpdateMapping: %v", err)
	}

	trail, err := env.audit.ListByEntity(ctx, domain.AuditEntityGameMapping, "g1")
	if err != nil {
		t.Fatalf("ListByEntity: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(trail))
	}
	actions := map[string]int{}
	for _, e := range trail {
		actions[e.Action]++
		if e.NewState == "" {
			t.Fatalf("audit entry %s has empty new_state", e.ID)
		}
	}
	if actions[domain.AuditActionCreate] != 1 || actions[domain.AuditActionUpdate] != 1 {
		t.Fatalf("audit actions = %v, want one create and one update", actions)
	}
	for _, e := range trail {
		if e.Action == domain.AuditActionUpdate && e.PrevState == "" {
			t.Fatal("update audit entry lost its prev_state")
		}
	}
}

func TestCreateOrUpdateMappingConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tip := mustUTC(2026, time.January, 16, 0, 10)
	game := scheduledGame("g1", phiID, bosID, tip)
	match := &domain.GameMatch{
		OddsEventID: "evt-1", CommenceTime: tip, Confidence: 1.0, Method: domain.MethodExact,
	}

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.matcher.CreateOrUpdateMapping(ctx, game, match)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d failed: %v", i, err)
		}
	}

	var count int
	if err := env.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM game_mappings WHERE stats_game_id = ?", "g1",
	).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("mapping rows = %d, want exactly 1", count)
	}
}

func TestCreatePendingMappingReusesRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	game := scheduledGame("g1", lalID, bosID, mustUTC(2026, time.January, 16, 3, 0))

	first, err := env.matcher.CreatePendingMapping(ctx, game)
	if err != nil {
		t.Fatalf("first CreatePendingMapping: %v", err)
	}
	if first.Status != domain.StatusManualReview {
		t.Fatalf("status = %s, want manual_review", first.Status)
	}

	second, err := env.matcher.CreatePendingMapping(ctx, game)
	if err != nil {
		t.Fatalf("second CreatePendingMapping: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second call created row %d, want reuse of %d", second.ID, first.ID)
	}

	queue, err := env.matcher.UnmatchedGames(ctx, 10)
	if err != nil {
		t.Fatalf("UnmatchedGames: %v", err)
	}
	if len(queue) != 1 || queue[0].StatsGameID != "g1" {
		t.Fatalf("review queue = %+v, want the single pending game", queue)
	}
}

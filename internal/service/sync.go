package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hoopsync/internal/domain"
	"hoopsync/internal/repository"
	"hoopsync/internal/scoring"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ScheduleSource is the stats-provider boundary.
type ScheduleSource interface {
	Schedule(ctx context.Context, from, to time.Time) ([]domain.ScheduleGame, error)
	PlayerStats(ctx context.Context, date time.Time) ([]domain.PlayerStatLine, error)
}

// OddsSource is the odds-provider boundary. GetQuotaInfo reports the request
// allowance the provider attached to its latest response.
type OddsSource interface {
	Events(ctx context.Context, from, to time.Time) ([]domain.OddsEvent, error)
	EventOdds(ctx context.Context, eventID string, markets []string) (*domain.OddsEvent, error)
	GetQuotaInfo() domain.QuotaInfo
}

// Job names recorded in sync_run_metadata.
const (
	SourceStats = "stats_api"
	SourceOdds  = "odds_api"

	DataTypeGames       = "games"
	DataTypeOdds        = "odds"
	DataTypePlayerStats = "player_stats"
)

// SyncService coordinates one run: fetch from both sources, hand the payloads
// to the matcher/resolver and book-keep the outcome. Runs are cooperative;
// callers may invoke them concurrently without coordination.
type SyncService struct {
	stats    ScheduleSource
	odds     OddsSource
	matcher  *GameMatcher
	resolver *PlayerResolver
	runs     *repository.SyncRunRepository
	mappings *repository.GameMappingRepository
	oddsRepo *repository.GameOddsRepository
	teams    *repository.TeamReferenceRepository
	markets  []string
	logger   zerolog.Logger
}

func NewSyncService(
	stats ScheduleSource,
	odds OddsSource,
	matcher *GameMatcher,
	resolver *PlayerResolver,
	runs *repository.SyncRunRepository,
	mappings *repository.GameMappingRepository,
	oddsRepo *repository.GameOddsRepository,
	teams *repository.TeamReferenceRepository,
	logger zerolog.Logger,
) *SyncService {
	return &SyncService{
		stats:    stats,
		odds:     odds,
		matcher:  matcher,
		resolver: resolver,
		runs:     runs,
		mappings: mappings,
		oddsRepo: oddsRepo,
		teams:    teams,
		markets:  []string{"h2h", "spreads", "totals"},
		logger:   logger,
	}
}

// SyncGames fetches both schedules over the window and runs the batch
// matcher. An infrastructure fault is recorded on the run row and re-raised;
// unmatched games are a normal outcome, not a failure.
func (s *SyncService) SyncGames(ctx context.Context, lookbackDays, lookaheadDays int) (*domain.BatchMatchResult, error) {
	started := time.Now()
	if err := s.runs.Start(ctx, SourceStats, DataTypeGames); err != nil {
		return nil, err
	}

	from := started.AddDate(0, 0, -lookbackDays)
	to := started.AddDate(0, 0, lookaheadDays)

	var games []domain.ScheduleGame
	var events []domain.OddsEvent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		games, err = s.stats.Schedule(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = s.odds.Events(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, s.fail(ctx, SourceStats, DataTypeGames, started, err)
	}

	result, err := s.matcher.BatchMatchGames(ctx, games, events)
	if err != nil {
		return nil, s.fail(ctx, SourceStats, DataTypeGames, started, err)
	}

	if err := s.runs.Complete(ctx, SourceStats, DataTypeGames, result.Total, result.Matched, result.Unmatched, time.Since(started)); err != nil {
		return nil, err
	}
	s.logger.Info().
		Int("total", result.Total).
		Int("matched", result.Matched).
		Int("unmatched", result.Unmatched).
		Msg("game sync completed")
	return result, nil
}

// SyncOdds refreshes stored prices for currently matched games and resolves
// any player names appearing in prop outcomes.
func (s *SyncService) SyncOdds(ctx context.Context) (int, error) {
	started := time.Now()
	if err := s.runs.Start(ctx, SourceOdds, DataTypeOdds); err != nil {
		return 0, err
	}

	matched, err := s.mappings.Matched(ctx, nil)
	if err != nil {
		return 0, s.fail(ctx, SourceOdds, DataTypeOdds, started, err)
	}

	processed, stored := 0, 0
	for _, mapping := range matched {
		if mapping.OddsEventID == "" {
			continue
		}
		processed++
		event, err := s.odds.EventOdds(ctx, mapping.OddsEventID, s.markets)
		if err != nil {
			return 0, s.fail(ctx, SourceOdds, DataTypeOdds, started, err)
		}
		for _, outcome := range event.Outcomes {
			if err := s.oddsRepo.Upsert(ctx, &domain.GameOdds{
				GameMappingID: mapping.ID,
				Market:        outcome.Market,
				OutcomeName:   outcome.Name,
				Price:         outcome.Price,
				Point:         outcome.Point,
				Bookmaker:     outcome.Bookmaker,
			}); err != nil {
				return 0, s.fail(ctx, SourceOdds, DataTypeOdds, started, err)
			}
			stored++
			if isPlayerMarket(outcome.Market) {
				if _, err := s.resolver.ResolvePlayer(ctx, outcome.Name, SourceOdds, nil); err != nil {
					return 0, s.fail(ctx, SourceOdds, DataTypeOdds, started, err)
				}
			}
		}
	}

	if err := s.runs.Complete(ctx, SourceOdds, DataTypeOdds, processed, stored, 0, time.Since(started)); err != nil {
		return 0, err
	}
	s.logger.Info().Int("events", processed).Int("outcomes", stored).Msg("odds sync completed")
	return stored, nil
}

// SyncPlayerStats ingests one date's box-score rows. Stats-source names are
// canonical, so every row seeds or refreshes a verified alias with the
// player's current team and position.
func (s *SyncService) SyncPlayerStats(ctx context.Context, date time.Time) (int, error) {
	started := time.Now()
	if err := s.runs.Start(ctx, SourceStats, DataTypePlayerStats); err != nil {
		return 0, err
	}

	lines, err := s.stats.PlayerStats(ctx, date)
	if err != nil {
		return 0, s.fail(ctx, SourceStats, DataTypePlayerStats, started, err)
	}

	for _, line := range lines {
		teamID, err := s.resolveLineTeam(ctx, line)
		if err != nil {
			return 0, s.fail(ctx, SourceStats, DataTypePlayerStats, started, err)
		}
		if _, err := s.resolver.CreateOrUpdateAlias(ctx, AliasWrite{
			PlayerID:      line.PlayerID,
			CanonicalName: line.PlayerName,
			Alias:         line.PlayerName,
			Source:        SourceStats,
			TeamID:        teamID,
			Position:      line.Position,
			Confidence:    1.0,
			Method:        domain.MethodExact,
			Verified:      true,
			VerifiedBy:    "stats_sync",
		}); err != nil {
			return 0, s.fail(ctx, SourceStats, DataTypePlayerStats, started, err)
		}
	}

	if err := s.runs.Complete(ctx, SourceStats, DataTypePlayerStats, len(lines), len(lines), 0, time.Since(started)); err != nil {
		return 0, err
	}
	s.logger.Info().Int("players", len(lines)).Msg("player stats sync completed")
	return len(lines), nil
}

// ReconcileMatches re-runs matching for previously-unmatched games against a
// fresh event fetch spanning their dates.
func (s *SyncService) ReconcileMatches(ctx context.Context, limit int) (*domain.BatchMatchResult, error) {
	unmatched, err := s.matcher.UnmatchedGames(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(unmatched) == 0 {
		return &domain.BatchMatchResult{}, nil
	}

	from, to := unmatched[0].GameDate, unmatched[0].GameDate
	games := make([]domain.ScheduleGame, 0, len(unmatched))
	for _, m := range unmatched {
		if m.GameDate.Before(from) {
			from = m.GameDate
		}
		if m.GameDate.After(to) {
			to = m.GameDate
		}
		games = append(games, domain.ScheduleGame{
			GameID:     m.StatsGameID,
			GameDate:   m.GameDate,
			HomeTeamID: m.HomeTeamID,
			AwayTeamID: m.AwayTeamID,
		})
	}

	// Widen a day each way so timezone drift cannot clip an event.
	events, err := s.odds.Events(ctx, from.AddDate(0, 0, -1), to.AddDate(0, 0, 2))
	if err != nil {
		return nil, err
	}

	result, err := s.matcher.BatchMatchGames(ctx, games, events)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Int("candidates", result.Total).
		Int("recovered", result.Matched).
		Msg("reconciliation completed")
	return result, nil
}

// GetSyncStatus summarizes job health: healthy when every tracked job's last
// run succeeded, degraded when only some did, unhealthy when none did.
func (s *SyncService) GetSyncStatus(ctx context.Context) (*domain.SyncStatusReport, error) {
	runs, err := s.runs.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &domain.SyncStatusReport{GeneratedAt: time.Now().UTC()}
	for _, run := range runs {
		report.Jobs = append(report.Jobs, domain.SyncJobStatus{
			Source:       run.Source,
			DataType:     run.DataType,
			Status:       run.Status,
			StartedAt:    run.StartedAt,
			CompletedAt:  run.CompletedAt,
			Processed:    run.Processed,
			Matched:      run.Matched,
			Failed:       run.Failed,
			DurationMS:   run.DurationMS,
			ErrorMessage: run.ErrorMessage,
		})
		switch run.Status {
		case domain.SyncSuccess:
			report.Totals.Succeeded++
		case domain.SyncFailed:
			report.Totals.Failed++
		}
	}
	report.Totals.Jobs = len(runs)

	switch {
	case report.Totals.Jobs == 0 || report.Totals.Succeeded == report.Totals.Jobs:
		report.Health = domain.HealthHealthy
	case report.Totals.Succeeded == 0:
		report.Health = domain.HealthUnhealthy
	default:
		report.Health = domain.HealthDegraded
	}

	unmatched, err := s.mappings.CountByStatus(ctx, domain.StatusManualReview)
	if err != nil {
		return nil, err
	}
	pending, err := s.mappings.CountByStatus(ctx, domain.StatusPending)
	if err != nil {
		return nil, err
	}
	lowConfidence, err := s.mappings.LowConfidence(ctx, MatchThreshold)
	if err != nil {
		return nil, err
	}
	report.Issues.UnmatchedGames = unmatched + pending
	report.Issues.LowConfidenceMatches = len(lowConfidence)
	report.OddsQuota = s.odds.GetQuotaInfo()
	return report, nil
}

// GetManualReviewQueue lists unmatched games and low-confidence matches.
func (s *SyncService) GetManualReviewQueue(ctx context.Context, limit int) (*domain.ReviewQueue, error) {
	unmatched, err := s.matcher.UnmatchedGames(ctx, limit)
	if err != nil {
		return nil, err
	}
	lowConfidence, err := s.matcher.LowConfidenceMatches(ctx, MatchThreshold)
	if err != nil {
		return nil, err
	}
	return &domain.ReviewQueue{
		UnmatchedGames:       unmatched,
		LowConfidenceMatches: lowConfidence,
	}, nil
}

// GetMatchedGames lists matched mappings, optionally for one game date.
func (s *SyncService) GetMatchedGames(ctx context.Context, date *time.Time) ([]domain.GameMapping, error) {
	if date != nil {
		d := scoring.GameDate(*date)
		date = &d
	}
	return s.mappings.Matched(ctx, date)
}

// resolveLineTeam validates a box-score row's team against the reference
// table, falling back to the abbreviation when the numeric id is unknown.
// An unresolvable team yields 0 so the alias is written without a team hint.
func (s *SyncService) resolveLineTeam(ctx context.Context, line domain.PlayerStatLine) (int64, error) {
	if line.TeamID != 0 {
		switch _, err := s.teams.GetByID(ctx, line.TeamID); {
		case err == nil:
			return line.TeamID, nil
		case !errors.Is(err, repository.ErrNotFound):
			return 0, err
		}
	}
	if line.TeamAbbr != "" {
		switch ref, err := s.teams.GetByAbbreviation(ctx, line.TeamAbbr); {
		case err == nil:
			return ref.TeamID, nil
		case !errors.Is(err, repository.ErrNotFound):
			return 0, err
		}
	}
	s.logger.Warn().
		Int64("team_id", line.TeamID).
		Str("team_abbr", line.TeamAbbr).
		Str("player", line.PlayerName).
		Msg("box score row carries an unknown team")
	return 0, nil
}

// fail records the broken run and hands the original fault back to the
// caller.
func (s *SyncService) fail(ctx context.Context, source, dataType string, started time.Time, cause error) error {
	if err := s.runs.Fail(ctx, source, dataType, cause.Error(), time.Since(started)); err != nil {
		s.logger.Error().Err(err).
			Str("source", source).
			Str("data_type", dataType).
			Msg("failed to record run failure")
	}
	return fmt.Errorf("%s/%s sync failed: %w", source, dataType, cause)
}

func isPlayerMarket(market string) bool {
	return len(market) > 7 && market[:7] == "player_"
}

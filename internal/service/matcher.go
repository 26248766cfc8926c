package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hoopsync/internal/domain"
	"hoopsync/internal/repository"
	"hoopsync/internal/scoring"

	"github.com/rs/zerolog"
)

// MatchThreshold is the minimum confidence for a mapping to be usable
// downstream.
const MatchThreshold = 0.85

// GameMatcher correlates stats-source games with odds-source events and
// persists the result. Safe to run concurrently from multiple workers: all
// races resolve through the mapping table's uniqueness constraint.
type GameMatcher struct {
	mappings *repository.GameMappingRepository
	teams    *repository.TeamReferenceRepository
	audit    *repository.AuditRepository
	logger   zerolog.Logger
}

func NewGameMatcher(
	mappings *repository.GameMappingRepository,
	teams *repository.TeamReferenceRepository,
	audit *repository.AuditRepository,
	logger zerolog.Logger,
) *GameMatcher {
	return &GameMatcher{mappings: mappings, teams: teams, audit: audit, logger: logger}
}

// TeamIndex snapshots the reference table for one batch.
func (m *GameMatcher) TeamIndex(ctx context.Context) (*scoring.TeamIndex, error) {
	refs, err := m.teams.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load team references: %w", err)
	}
	return scoring.NewTeamIndex(refs), nil
}

// FindMatch scores one game against every candidate event and keeps the best.
// Returns nil when nothing reaches the threshold; that is a result, not an
// error.
func (m *GameMatcher) FindMatch(game domain.ScheduleGame, events []domain.OddsEvent, teams *scoring.TeamIndex) *domain.GameMatch {
	var best *domain.GameMatch
	for i := range events {
		score, _ := scoring.GameMatch(game, events[i], teams)
		if score <= 0 {
			continue
		}
		if best == nil || score > best.Confidence {
			best = &domain.GameMatch{
				OddsEventID:  events[i].EventID,
				CommenceTime: events[i].CommenceTime,
				Confidence:   score,
			}
		}
	}
	if best == nil || best.Confidence < MatchThreshold {
		return nil
	}
	best.Method = scoring.MethodForGameScore(best.Confidence)
	return best
}

// CreateOrUpdateMapping records a successful match. Read, insert-if-absent,
// and on a lost insert race re-read the row the other writer created; either
// way the mutable fields are rewritten and an audit entry captures the
// transition.
func (m *GameMatcher) CreateOrUpdateMapping(ctx context.Context, game domain.ScheduleGame, match *domain.GameMatch) (*domain.GameMapping, error) {
	mapping, created, err := m.getOrCreate(ctx, game)
	if err != nil {
		return nil, err
	}

	prev := ""
	action := domain.AuditActionCreate
	if !created {
		prev = snapshot(mapping)
		action = domain.AuditActionUpdate
	}

	now := time.Now().UTC()
	commence := match.CommenceTime
	mapping.OddsEventID = match.OddsEventID
	mapping.CommenceTime = &commence
	mapping.Confidence = match.Confidence
	mapping.Method = match.Method
	mapping.Status = domain.StatusMatched
	mapping.LastValidatedAt = &now

	if err := m.mappings.Update(ctx, mapping); err != nil {
		return nil, err
	}

	if err := m.appendAudit(ctx, domain.AuditEntityGameMapping, mapping.StatsGameID, action, prev, snapshot(mapping), mapping.Method, mapping.Confidence); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("stats_game_id", mapping.StatsGameID).
		Str("odds_event_id", mapping.OddsEventID).
		Float64("confidence", mapping.Confidence).
		Str("method", string(mapping.Method)).
		Msg("game mapping recorded")
	return mapping, nil
}

// CreatePendingMapping records a game that found no usable match so it lands
// in the manual review queue. Reuses an existing row instead of failing when
// another writer got there first.
func (m *GameMatcher) CreatePendingMapping(ctx context.Context, game domain.ScheduleGame) (*domain.GameMapping, error) {
	mapping, err := m.mappings.GetByStatsGameID(ctx, game.GameID)
	if err == nil {
		return mapping, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	fresh := newMapping(game)
	fresh.Status = domain.StatusManualReview
	switch err := m.mappings.Insert(ctx, fresh); {
	case err == nil:
		if err := m.appendAudit(ctx, domain.AuditEntityGameMapping, fresh.StatsGameID, domain.AuditActionCreate, "", snapshot(fresh), fresh.Method, fresh.Confidence); err != nil {
			return nil, err
		}
		m.logger.Info().Str("stats_game_id", fresh.StatsGameID).Msg("game queued for manual review")
		return fresh, nil
	case errors.Is(err, repository.ErrConflict):
		return m.mappings.GetByStatsGameID(ctx, game.GameID)
	default:
		return nil, err
	}
}

// BatchMatchGames processes games in input order. Games that already hold a
// matched mapping are counted without rescoring.
func (m *GameMatcher) BatchMatchGames(ctx context.Context, games []domain.ScheduleGame, events []domain.OddsEvent) (*domain.BatchMatchResult, error) {
	teams, err := m.TeamIndex(ctx)
	if err != nil {
		return nil, err
	}

	result := &domain.BatchMatchResult{Total: len(games)}
	for _, game := range games {
		existing, err := m.mappings.GetByStatsGameID(ctx, game.GameID)
		if err == nil && existing.Status == domain.StatusMatched {
			result.Matched++
			result.Matches = append(result.Matches, domain.GameMatchDetail{
				StatsGameID: existing.StatsGameID,
				OddsEventID: existing.OddsEventID,
				Confidence:  existing.Confidence,
				Method:      existing.Method,
				Matched:     true,
			})
			continue
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}

		match := m.FindMatch(game, events, teams)
		if match != nil {
			claimed, err := m.eventClaimed(ctx, game, match)
			if err != nil {
				return nil, err
			}
			if claimed {
				m.logger.Warn().
					Str("stats_game_id", game.GameID).
					Str("odds_event_id", match.OddsEventID).
					Msg("best event already mapped to another game")
				match = nil
			}
		}
		if match != nil {
			mapping, err := m.CreateOrUpdateMapping(ctx, game, match)
			if err != nil {
				return nil, err
			}
			result.Matched++
			result.Matches = append(result.Matches, domain.GameMatchDetail{
				StatsGameID: mapping.StatsGameID,
				OddsEventID: mapping.OddsEventID,
				Confidence:  mapping.Confidence,
				Method:      mapping.Method,
				Matched:     true,
			})
			continue
		}

		if _, err := m.CreatePendingMapping(ctx, game); err != nil {
			return nil, err
		}
		result.Unmatched++
		result.Matches = append(result.Matches, domain.GameMatchDetail{
			StatsGameID: game.GameID,
			Confidence:  0,
			Method:      domain.MethodNone,
			Matched:     false,
		})
	}
	return result, nil
}

// eventClaimed reports whether the candidate event already belongs to a
// different game's mapping. The unique index on odds_event_id would reject
// the write anyway; checking first routes the game to manual review instead
// of failing the whole batch.
func (m *GameMatcher) eventClaimed(ctx context.Context, game domain.ScheduleGame, match *domain.GameMatch) (bool, error) {
	owner, err := m.mappings.GetByOddsEventID(ctx, match.OddsEventID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return owner.StatsGameID != game.GameID, nil
}

// UnmatchedGames is the manual-review surface for games with no correlation.
func (m *GameMatcher) UnmatchedGames(ctx context.Context, limit int) ([]domain.GameMapping, error) {
	return m.mappings.Unmatched(ctx, limit)
}

// LowConfidenceMatches surfaces matched rows below the threshold.
func (m *GameMatcher) LowConfidenceMatches(ctx context.Context, threshold float64) ([]domain.GameMapping, error) {
	if threshold <= 0 {
		threshold = MatchThreshold
	}
	return m.mappings.LowConfidence(ctx, threshold)
}

func (m *GameMatcher) getOrCreate(ctx context.Context, game domain.ScheduleGame) (*domain.GameMapping, bool, error) {
	mapping, err := m.mappings.GetByStatsGameID(ctx, game.GameID)
	if err == nil {
		return mapping, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	fresh := newMapping(game)
	switch err := m.mappings.Insert(ctx, fresh); {
	case err == nil:
		return fresh, true, nil
	case errors.Is(err, repository.ErrConflict):
		// Another writer inserted concurrently; theirs is the row.
		mapping, err = m.mappings.GetByStatsGameID(ctx, game.GameID)
		return mapping, false, err
	default:
		return nil, false, err
	}
}

func newMapping(game domain.ScheduleGame) *domain.GameMapping {
	return &domain.GameMapping{
		StatsGameID: game.GameID,
		HomeTeamID:  game.HomeTeamID,
		AwayTeamID:  game.AwayTeamID,
		GameDate:    scoring.GameDate(game.GameDate),
		Method:      domain.MethodNone,
		Status:      domain.StatusPending,
	}
}

func (m *GameMatcher) appendAudit(ctx context.Context, entityType, entityID, action, prev, next string, method domain.MatchMethod, confidence float64) error {
	return m.audit.Append(ctx, &domain.AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		PrevState:  prev,
		NewState:   next,
		Method:     method,
		Confidence: confidence,
	})
}

func snapshot(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

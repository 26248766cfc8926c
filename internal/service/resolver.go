package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hoopsync/internal/domain"
	"hoopsync/internal/normalize"
	"hoopsync/internal/repository"
	"hoopsync/internal/scoring"

	"github.com/rs/zerolog"
)

const (
	fuzzyNameCutoff   = 85
	contextNameCutoff = 80

	teamHintBonus    = 0.05
	contextTierBonus = 0.10
)

// PlayerResolver maps free-text player names from one source to canonical
// player ids. Resolution short-circuits on the first tier that hits; a new
// alias spelling resolved by a lower tier is persisted so the next run takes
// the exact path.
type PlayerResolver struct {
	aliases *repository.PlayerAliasRepository
	teams   *repository.TeamReferenceRepository
	audit   *repository.AuditRepository
	logger  zerolog.Logger
}

func NewPlayerResolver(
	aliases *repository.PlayerAliasRepository,
	teams *repository.TeamReferenceRepository,
	audit *repository.AuditRepository,
	logger zerolog.Logger,
) *PlayerResolver {
	return &PlayerResolver{aliases: aliases, teams: teams, audit: audit, logger: logger}
}

// ResolvePlayer resolves one name. Returns (nil, nil) when no tier matches;
// only infrastructure faults produce an error.
func (r *PlayerResolver) ResolvePlayer(ctx context.Context, name, source string, pctx *domain.PlayerContext) (*domain.Resolution, error) {
	exact, err := r.aliases.GetExact(ctx, name, source)
	if err == nil {
		return &domain.Resolution{
			PlayerID:      exact.PlayerID,
			CanonicalName: exact.CanonicalName,
			Confidence:    1.0,
			Method:        domain.MethodExact,
		}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	candidates, err := r.aliases.ListBySource(ctx, source)
	if err != nil {
		return nil, err
	}
	teams, err := r.teamIndex(ctx)
	if err != nil {
		return nil, err
	}
	return r.resolveAndRecord(ctx, name, source, candidates, teams, pctx)
}

// BatchResolvePlayers resolves names in order; the result slice has one entry
// per input, nil where nothing matched.
func (r *PlayerResolver) BatchResolvePlayers(ctx context.Context, names []string, source string, pctx *domain.PlayerContext) ([]*domain.Resolution, error) {
	candidates, err := r.aliases.ListBySource(ctx, source)
	if err != nil {
		return nil, err
	}
	teams, err := r.teamIndex(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.Resolution, len(names))
	for i, name := range names {
		if exact := findExact(candidates, name); exact != nil {
			results[i] = &domain.Resolution{
				PlayerID:      exact.PlayerID,
				CanonicalName: exact.CanonicalName,
				Confidence:    1.0,
				Method:        domain.MethodExact,
			}
			continue
		}
		res, err := r.resolveAndRecord(ctx, name, source, candidates, teams, pctx)
		if err != nil {
			return nil, err
		}
		results[i] = res
	}
	return results, nil
}

// CreateOrUpdateAlias upserts one (alias, source) row with the same
// insert-or-re-read discipline the matcher uses, and appends an audit entry.
// Verification metadata is written only when verified is set.
func (r *PlayerResolver) CreateOrUpdateAlias(ctx context.Context, a AliasWrite) (*domain.PlayerAlias, error) {
	alias, err := r.aliases.GetExact(ctx, a.Alias, a.Source)
	created := false
	if errors.Is(err, repository.ErrNotFound) {
		fresh := a.row()
		switch err := r.aliases.Insert(ctx, fresh); {
		case err == nil:
			alias, created = fresh, true
		case errors.Is(err, repository.ErrConflict):
			alias, err = r.aliases.GetExact(ctx, a.Alias, a.Source)
			if err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	prev := ""
	action := domain.AuditActionCreate
	if !created {
		prev = snapshot(alias)
		action = domain.AuditActionUpdate

		alias.PlayerID = a.PlayerID
		alias.CanonicalName = a.CanonicalName
		alias.Confidence = a.Confidence
		if a.TeamID != 0 {
			alias.TeamID = a.TeamID
		}
		if a.Position != "" {
			alias.Position = a.Position
		}
		if a.Verified {
			markVerified(alias, a.VerifiedBy)
		}
		if err := r.aliases.Update(ctx, alias); err != nil {
			return nil, err
		}
	}

	if err := r.audit.Append(ctx, &domain.AuditEntry{
		EntityType: domain.AuditEntityPlayerAlias,
		EntityID:   fmt.Sprintf("%s/%s", a.Source, a.Alias),
		Action:     action,
		PrevState:  prev,
		NewState:   snapshot(alias),
		Method:     a.Method,
		Confidence: a.Confidence,
	}); err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("alias", a.Alias).
		Str("source", a.Source).
		Int64("player_id", alias.PlayerID).
		Float64("confidence", alias.Confidence).
		Msg("player alias recorded")
	return alias, nil
}

// AliasWrite carries one alias upsert.
type AliasWrite struct {
	PlayerID      int64
	CanonicalName string
	Alias         string
	Source        string
	TeamID        int64
	Position      string
	Confidence    float64
	Method        domain.MatchMethod
	Verified      bool
	VerifiedBy    string
}

func (a AliasWrite) row() *domain.PlayerAlias {
	alias := &domain.PlayerAlias{
		Alias:         a.Alias,
		Source:        a.Source,
		PlayerID:      a.PlayerID,
		CanonicalName: a.CanonicalName,
		TeamID:        a.TeamID,
		Position:      a.Position,
		Confidence:    a.Confidence,
	}
	if a.Verified {
		markVerified(alias, a.VerifiedBy)
	}
	return alias
}

func markVerified(alias *domain.PlayerAlias, by string) {
	now := time.Now().UTC()
	alias.Verified = true
	alias.VerifiedBy = by
	alias.VerifiedAt = &now
}

func (r *PlayerResolver) teamIndex(ctx context.Context) (*scoring.TeamIndex, error) {
	refs, err := r.teams.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load team references: %w", err)
	}
	return scoring.NewTeamIndex(refs), nil
}

// resolveAndRecord runs tiers 2-4 and persists the new alias spelling on a
// hit.
func (r *PlayerResolver) resolveAndRecord(ctx context.Context, name, source string, candidates []domain.PlayerAlias, teams *scoring.TeamIndex, pctx *domain.PlayerContext) (*domain.Resolution, error) {
	res, winner := resolveTiers(name, candidates, teams, pctx)
	if res == nil {
		r.logger.Debug().Str("name", name).Str("source", source).Msg("player name unresolved")
		return nil, nil
	}

	if _, err := r.CreateOrUpdateAlias(ctx, AliasWrite{
		PlayerID:      res.PlayerID,
		CanonicalName: res.CanonicalName,
		Alias:         name,
		Source:        source,
		TeamID:        winner.TeamID,
		Position:      winner.Position,
		Confidence:    res.Confidence,
		Method:        res.Method,
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// resolveTiers is the pure decision pipeline: normalized, fuzzy, then
// context-restricted fuzzy. Candidates whose suffix disagrees with the input
// name are skipped by the fuzzy tiers.
func resolveTiers(name string, candidates []domain.PlayerAlias, teams *scoring.TeamIndex, pctx *domain.PlayerContext) (*domain.Resolution, *domain.PlayerAlias) {
	hintTeam := hintTeamID(teams, pctx)

	normalized := normalize.Name(name)
	if normalized != "" {
		for i := range candidates {
			// Normalization strips generational suffixes, so the guard has
			// to run before the comparison or "Smith Jr." resolves to
			// "Smith Sr.".
			if scoring.SuffixConflict(name, candidates[i].Alias) {
				continue
			}
			if normalize.Name(candidates[i].Alias) == normalized {
				return &domain.Resolution{
					PlayerID:      candidates[i].PlayerID,
					CanonicalName: candidates[i].CanonicalName,
					Confidence:    0.95,
					Method:        domain.MethodNormalized,
				}, &candidates[i]
			}
		}
	}

	if best, score := bestCandidate(name, candidates, fuzzyNameCutoff, 0); best != nil {
		confidence := float64(score) / 100
		if hintTeam != 0 && best.TeamID == hintTeam {
			confidence += teamHintBonus
		}
		if confidence > 1.0 {
			confidence = 1.0
		}
		return &domain.Resolution{
			PlayerID:      best.PlayerID,
			CanonicalName: best.CanonicalName,
			Confidence:    confidence,
			Method:        domain.MethodFuzzy,
		}, best
	}

	if hintTeam != 0 {
		if best, score := bestCandidate(name, candidates, contextNameCutoff, hintTeam); best != nil {
			confidence := float64(score)/100 + contextTierBonus
			if confidence > 1.0 {
				confidence = 1.0
			}
			return &domain.Resolution{
				PlayerID:      best.PlayerID,
				CanonicalName: best.CanonicalName,
				Confidence:    confidence,
				Method:        domain.MethodContext,
			}, best
		}
	}
	return nil, nil
}

func bestCandidate(name string, candidates []domain.PlayerAlias, cutoff int, teamID int64) (*domain.PlayerAlias, int) {
	var best *domain.PlayerAlias
	bestScore := 0
	for i := range candidates {
		c := &candidates[i]
		if teamID != 0 && c.TeamID != teamID {
			continue
		}
		if scoring.SuffixConflict(name, c.Alias) {
			continue
		}
		score := scoring.SimilarityRatio(name, c.Alias)
		if score >= cutoff && score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore
}

func findExact(candidates []domain.PlayerAlias, name string) *domain.PlayerAlias {
	for i := range candidates {
		if candidates[i].Alias == name {
			return &candidates[i]
		}
	}
	return nil
}

func hintTeamID(teams *scoring.TeamIndex, pctx *domain.PlayerContext) int64 {
	if pctx == nil || pctx.Team == "" {
		return 0
	}
	if ref := teams.ResolveHint(pctx.Team); ref != nil {
		return ref.TeamID
	}
	return 0
}

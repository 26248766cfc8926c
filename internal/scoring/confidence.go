// Package scoring turns pairs of candidate records into confidence scores.
// Every function here is pure given the team index snapshot: no writes, no
// clocks, no network.
package scoring

import (
	"time"

	"hoopsync/internal/domain"
	"hoopsync/internal/normalize"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

const (
	// ExactTimeWindow is the widest tip-off delta still treated as an exact
	// match; schedule feeds round start times differently.
	ExactTimeWindow = 120 * time.Minute

	teamNameCutoff = 85
	highSimilarity = 90
	lowSimilarity  = 80
)

// eastern is the league's scheduling timezone; an evening tip-off lands on the
// next UTC day, so calendar dates are compared in Eastern time.
var eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// GameDate reduces a schedule-side value to its calendar date. Date-only
// values (midnight UTC) are already calendar dates, published that way by the
// schedule feed and stored that way on mapping rows, and pass through
// unchanged; shifting them through Eastern would land on the previous day.
// Real timestamps fold to the Eastern date. Never use this on an event
// commence time: a 7 PM Eastern tip-off is exactly midnight UTC and would be
// mistaken for a date-only value.
func GameDate(t time.Time) time.Time {
	if h, m, s := t.Clock(); h == 0 && m == 0 && s == 0 && t.Location() == time.UTC {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return easternDate(t)
}

// easternDate folds a true timestamp to its Eastern-time calendar date.
func easternDate(t time.Time) time.Time {
	y, m, d := t.In(eastern).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GameMatch scores a schedule game against an odds event.
//
// Tiers: different dates score 0; both team names cross-referencing to the
// game's exact numeric ids scores 1.0 within the time window, 0.95 outside it
// or when no usable time exists; otherwise a fuzzy comparison of both team
// names against the canonical and alternate forms maps the average similarity
// to 0.85 / 0.70. Swapped home/away never matches.
func GameMatch(a domain.ScheduleGame, b domain.OddsEvent, teams *TeamIndex) (float64, domain.MatchMethod) {
	// The commence time is always a real timestamp, so it always folds.
	if !GameDate(a.GameDate).Equal(easternDate(b.CommenceTime)) {
		return 0, domain.MethodNone
	}

	home := teams.ByName(b.HomeTeamName)
	away := teams.ByName(b.AwayTeamName)
	if home != nil && away != nil && home.TeamID == a.HomeTeamID && away.TeamID == a.AwayTeamID {
		if a.StartTime == nil || b.CommenceTime.IsZero() {
			// Teams confirmed, time unverifiable.
			return 0.95, domain.MethodFuzzyTime
		}
		delta := a.StartTime.Sub(b.CommenceTime)
		if delta < 0 {
			delta = -delta
		}
		if delta <= ExactTimeWindow {
			return 1.0, domain.MethodExact
		}
		return 0.95, domain.MethodFuzzyTime
	}

	homeScore := bestTeamNameScore(b.HomeTeamName, teams.ByID(a.HomeTeamID))
	awayScore := bestTeamNameScore(b.AwayTeamName, teams.ByID(a.AwayTeamID))
	if homeScore >= teamNameCutoff && awayScore >= teamNameCutoff {
		avg := (homeScore + awayScore) / 2
		switch {
		case avg >= highSimilarity:
			return 0.85, domain.MethodFuzzyTeamName
		case avg >= lowSimilarity:
			return 0.70, domain.MethodFuzzyTeamName
		}
	}
	return 0, domain.MethodNone
}

func bestTeamNameScore(name string, ref *domain.TeamReference) int {
	if ref == nil {
		return 0
	}
	candidate := normalize.Name(name)
	if candidate == "" {
		return 0
	}
	best := 0
	for _, form := range nameForms(ref) {
		form = normalize.Name(form)
		if form == "" {
			continue
		}
		if score := fuzzy.TokenSetRatio(candidate, form); score > best {
			best = score
		}
	}
	return best
}

// PlayerMatchContext carries hint agreement established by the caller.
type PlayerMatchContext struct {
	TeamMatch     bool
	PositionMatch bool
}

// PlayerMatch scores two player name strings. A 1.0 is never produced from
// names alone; that tier belongs to verbatim alias-table hits. Candidates
// carrying different generational suffixes never match, so "Smith Jr." cannot
// be scored against "Smith Sr.".
func PlayerMatch(name1, name2 string, mctx PlayerMatchContext) float64 {
	if SuffixConflict(name1, name2) {
		return 0
	}

	var base float64
	n1, n2 := normalize.Name(name1), normalize.Name(name2)
	switch {
	case n1 == "" || n2 == "":
		return 0
	case n1 == n2:
		base = 0.95
	default:
		score := fuzzy.TokenSetRatio(n1, n2)
		switch {
		case score >= highSimilarity:
			base = 0.85
		case score >= lowSimilarity:
			base = 0.70
		default:
			return 0
		}
	}

	if mctx.TeamMatch {
		base += 0.05
	}
	if mctx.PositionMatch {
		base += 0.03
	}
	if base > 1.0 {
		base = 1.0
	}
	return base
}

// SimilarityRatio is the raw 0..100 similarity of two names after
// normalization.
func SimilarityRatio(name1, name2 string) int {
	return fuzzy.TokenSetRatio(normalize.Name(name1), normalize.Name(name2))
}

// SuffixConflict reports whether both names carry generational suffixes that
// disagree.
func SuffixConflict(name1, name2 string) bool {
	s1, s2 := normalize.Suffix(name1), normalize.Suffix(name2)
	return s1 != "" && s2 != "" && s1 != s2
}

// MethodForGameScore labels a winning game score by the tier that can produce
// it.
func MethodForGameScore(score float64) domain.MatchMethod {
	switch {
	case score >= 1.0:
		return domain.MethodExact
	case score >= 0.95:
		return domain.MethodFuzzyTime
	default:
		return domain.MethodFuzzyTeamName
	}
}

package scoring

import (
	"hoopsync/internal/domain"
	"hoopsync/internal/normalize"
	"strings"
)

// TeamIndex is an immutable snapshot of the team reference table, keyed for
// the lookups the scorer needs. Build one per batch so scoring stays
// deterministic for the duration of a run.
type TeamIndex struct {
	byID   map[int64]*domain.TeamReference
	byName map[string]*domain.TeamReference
	byAbbr map[string]*domain.TeamReference
}

func NewTeamIndex(refs []domain.TeamReference) *TeamIndex {
	ix := &TeamIndex{
		byID:   make(map[int64]*domain.TeamReference, len(refs)),
		byName: make(map[string]*domain.TeamReference, len(refs)*4),
		byAbbr: make(map[string]*domain.TeamReference, len(refs)),
	}
	for i := range refs {
		ref := &refs[i]
		ix.byID[ref.TeamID] = ref
		ix.byAbbr[strings.ToUpper(ref.Abbreviation)] = ref
		for _, name := range nameForms(ref) {
			if key := normalize.Name(name); key != "" {
				ix.byName[key] = ref
			}
		}
	}
	return ix
}

func nameForms(ref *domain.TeamReference) []string {
	forms := []string{ref.FullName, ref.OddsName}
	return append(forms, ref.AlternateNames...)
}

// ByID returns the reference for a stats-source numeric team id, or nil.
func (ix *TeamIndex) ByID(id int64) *domain.TeamReference {
	return ix.byID[id]
}

// ByName resolves a free-text team name against canonical, odds-source and
// alternate name forms. Returns nil when nothing matches exactly.
func (ix *TeamIndex) ByName(name string) *domain.TeamReference {
	return ix.byName[normalize.Name(name)]
}

// ByAbbreviation resolves a team abbreviation ("PHI"), or nil.
func (ix *TeamIndex) ByAbbreviation(abbr string) *domain.TeamReference {
	return ix.byAbbr[strings.ToUpper(strings.TrimSpace(abbr))]
}

// ResolveHint accepts either an abbreviation or any known name form.
func (ix *TeamIndex) ResolveHint(hint string) *domain.TeamReference {
	if ref := ix.ByAbbreviation(hint); ref != nil {
		return ref
	}
	return ix.ByName(hint)
}

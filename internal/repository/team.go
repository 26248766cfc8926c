package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hoopsync/internal/domain"

	"github.com/rs/zerolog"
)

// TeamReferenceRepository reads the seeded team reference table. The matching
// code never writes it.
type TeamReferenceRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewTeamReferenceRepository(db *sql.DB, logger zerolog.Logger) *TeamReferenceRepository {
	return &TeamReferenceRepository{db: db, logger: logger}
}

const teamColumns = `team_id, abbreviation, full_name, city, odds_name, odds_key, alternate_names`

func (r *TeamReferenceRepository) All(ctx context.Context) ([]domain.TeamReference, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+teamColumns+` FROM team_references ORDER BY team_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list team references: %w", err)
	}
	defer rows.Close()

	var refs []domain.TeamReference
	for rows.Next() {
		ref, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, *ref)
	}
	return refs, rows.Err()
}

func (r *TeamReferenceRepository) GetByID(ctx context.Context, teamID int64) (*domain.TeamReference, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM team_references WHERE team_id = ?`, teamID)
	ref, err := scanTeam(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return ref, err
}

func (r *TeamReferenceRepository) GetByAbbreviation(ctx context.Context, abbr string) (*domain.TeamReference, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM team_references WHERE abbreviation = ?`, abbr)
	ref, err := scanTeam(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return ref, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTeam(row rowScanner) (*domain.TeamReference, error) {
	var ref domain.TeamReference
	var alternates string
	if err := row.Scan(
		&ref.TeamID,
		&ref.Abbreviation,
		&ref.FullName,
		&ref.City,
		&ref.OddsName,
		&ref.OddsKey,
		&alternates,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(alternates), &ref.AlternateNames); err != nil {
		return nil, fmt.Errorf("failed to decode alternate names for team %d: %w", ref.TeamID, err)
	}
	return &ref, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"hoopsync/internal/domain"
	"time"

	"github.com/rs/zerolog"
)

// PlayerAliasRepository persists resolved player aliases keyed on
// (alias_name, alias_source).
type PlayerAliasRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerAliasRepository(db *sql.DB, logger zerolog.Logger) *PlayerAliasRepository {
	return &PlayerAliasRepository{db: db, logger: logger}
}

const aliasColumns = `id, alias_name, alias_source, player_id, canonical_name, team_id, position,
	confidence, verified, verified_by, verified_at, created_at, updated_at`

// GetExact looks up an alias verbatim, without any normalization.
func (r *PlayerAliasRepository) GetExact(ctx context.Context, alias, source string) (*domain.PlayerAlias, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+aliasColumns+` FROM player_aliases WHERE alias_name = ? AND alias_source = ?`,
		alias, source)
	a, err := scanAlias(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *PlayerAliasRepository) ListBySource(ctx context.Context, source string) ([]domain.PlayerAlias, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+aliasColumns+` FROM player_aliases WHERE alias_source = ? ORDER BY id`, source)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases for source %s: %w", source, err)
	}
	return collectAliases(rows)
}

// Insert creates the alias row and fills in the generated id. Returns
// ErrConflict when the (alias, source) pair already exists.
func (r *PlayerAliasRepository) Insert(ctx context.Context, a *domain.PlayerAlias) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO player_aliases (
			alias_name, alias_source, player_id, canonical_name, team_id, position,
			confidence, verified, verified_by, verified_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Alias,
		a.Source,
		a.PlayerID,
		a.CanonicalName,
		a.TeamID,
		a.Position,
		a.Confidence,
		a.Verified,
		a.VerifiedBy,
		nullTime(a.VerifiedAt),
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return translateInsertErr(err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (r *PlayerAliasRepository) Update(ctx context.Context, a *domain.PlayerAlias) error {
	a.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE player_aliases SET
			player_id = ?, canonical_name = ?, team_id = ?, position = ?, confidence = ?,
			verified = ?, verified_by = ?, verified_at = ?, updated_at = ?
		WHERE id = ?`,
		a.PlayerID,
		a.CanonicalName,
		a.TeamID,
		a.Position,
		a.Confidence,
		a.Verified,
		a.VerifiedBy,
		nullTime(a.VerifiedAt),
		a.UpdatedAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alias %d: %w", a.ID, err)
	}
	return nil
}

func collectAliases(rows *sql.Rows) ([]domain.PlayerAlias, error) {
	defer rows.Close()
	var out []domain.PlayerAlias
	for rows.Next() {
		a, err := scanAlias(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAlias(row rowScanner) (*domain.PlayerAlias, error) {
	var a domain.PlayerAlias
	var verifiedAt sql.NullTime
	if err := row.Scan(
		&a.ID,
		&a.Alias,
		&a.Source,
		&a.PlayerID,
		&a.CanonicalName,
		&a.TeamID,
		&a.Position,
		&a.Confidence,
		&a.Verified,
		&a.VerifiedBy,
		&verifiedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.VerifiedAt = timePtr(verifiedAt)
	return &a, nil
}

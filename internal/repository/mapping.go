package repository

import (
	"context"
	"database/sql"
	"fmt"
	"hoopsync/internal/domain"
	"time"

	"github.com/rs/zerolog"
)

// GameMappingRepository persists game correlations. Inserts racing on the
// stats-source game id (or on an odds event id) report ErrConflict instead of
// a hard failure.
type GameMappingRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewGameMappingRepository(db *sql.DB, logger zerolog.Logger) *GameMappingRepository {
	return &GameMappingRepository{db: db, logger: logger}
}

const mappingColumns = `id, stats_game_id, odds_event_id, home_team_id, away_team_id, game_date,
	commence_time, confidence, match_method, status, manual_override, last_validated_at,
	created_at, updated_at`

func (r *GameMappingRepository) GetByStatsGameID(ctx context.Context, statsGameID string) (*domain.GameMapping, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+mappingColumns+` FROM game_mappings WHERE stats_game_id = ?`, statsGameID)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *GameMappingRepository) GetByOddsEventID(ctx context.Context, oddsEventID string) (*domain.GameMapping, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+mappingColumns+` FROM game_mappings WHERE odds_event_id = ?`, oddsEventID)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

// Insert creates the row and fills in the generated id. Returns ErrConflict
// when another writer already owns the natural key.
func (r *GameMappingRepository) Insert(ctx context.Context, m *domain.GameMapping) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO game_mappings (
			stats_game_id, odds_event_id, home_team_id, away_team_id, game_date,
			commence_time, confidence, match_method, status, manual_override,
			last_validated_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.StatsGameID,
		nullString(m.OddsEventID),
		m.HomeTeamID,
		m.AwayTeamID,
		m.GameDate.Format(dateLayout),
		nullTime(m.CommenceTime),
		m.Confidence,
		string(m.Method),
		string(m.Status),
		m.ManualOverride,
		nullTime(m.LastValidatedAt),
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return translateInsertErr(err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

// Update rewrites the mutable fields of an existing row.
func (r *GameMappingRepository) Update(ctx context.Context, m *domain.GameMapping) error {
	m.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE game_mappings SET
			odds_event_id = ?, commence_time = ?, confidence = ?, match_method = ?,
			status = ?, manual_override = ?, last_validated_at = ?, updated_at = ?
		WHERE id = ?`,
		nullString(m.OddsEventID),
		nullTime(m.CommenceTime),
		m.Confidence,
		string(m.Method),
		string(m.Status),
		m.ManualOverride,
		nullTime(m.LastValidatedAt),
		m.UpdatedAt,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update game mapping %d: %w", m.ID, err)
	}
	return nil
}

// Unmatched lists mappings still awaiting a correlation, oldest game first.
func (r *GameMappingRepository) Unmatched(ctx context.Context, limit int) ([]domain.GameMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mappingColumns+` FROM game_mappings
		WHERE status IN (?, ?)
		ORDER BY game_date ASC, id ASC
		LIMIT ?`,
		string(domain.StatusPending), string(domain.StatusManualReview), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched games: %w", err)
	}
	return collectMappings(rows)
}

// LowConfidence lists matched rows whose confidence sits below the threshold
// and that were not manually overridden.
func (r *GameMappingRepository) LowConfidence(ctx context.Context, threshold float64) ([]domain.GameMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mappingColumns+` FROM game_mappings
		WHERE status = ? AND confidence < ? AND manual_override = 0
		ORDER BY confidence ASC, id ASC`,
		string(domain.StatusMatched), threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to list low confidence matches: %w", err)
	}
	return collectMappings(rows)
}

// Matched lists matched rows, optionally restricted to one game date.
func (r *GameMappingRepository) Matched(ctx context.Context, date *time.Time) ([]domain.GameMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM game_mappings WHERE status = ?`
	args := []any{string(domain.StatusMatched)}
	if date != nil {
		query += ` AND game_date = ?`
		args = append(args, date.Format(dateLayout))
	}
	query += ` ORDER BY game_date ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matched games: %w", err)
	}
	return collectMappings(rows)
}

func (r *GameMappingRepository) CountByStatus(ctx context.Context, status domain.MappingStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM game_mappings WHERE status = ?`, string(status)).Scan(&n)
	return n, err
}

func collectMappings(rows *sql.Rows) ([]domain.GameMapping, error) {
	defer rows.Close()
	var out []domain.GameMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMapping(row rowScanner) (*domain.GameMapping, error) {
	var m domain.GameMapping
	var oddsEventID sql.NullString
	var gameDate string
	var commenceTime, lastValidatedAt sql.NullTime
	var method, status string
	if err := row.Scan(
		&m.ID,
		&m.StatsGameID,
		&oddsEventID,
		&m.HomeTeamID,
		&m.AwayTeamID,
		&gameDate,
		&commenceTime,
		&m.Confidence,
		&method,
		&status,
		&m.ManualOverride,
		&lastValidatedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(dateLayout, gameDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse game date %q: %w", gameDate, err)
	}
	m.GameDate = parsed
	m.OddsEventID = oddsEventID.String
	m.CommenceTime = timePtr(commenceTime)
	m.LastValidatedAt = timePtr(lastValidatedAt)
	m.Method = domain.MatchMethod(method)
	m.Status = domain.MappingStatus(status)
	return &m, nil
}

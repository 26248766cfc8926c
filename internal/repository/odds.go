package repository

import (
	"context"
	"database/sql"
	"fmt"
	"hoopsync/internal/domain"
	"time"

	"github.com/rs/zerolog"
)

// GameOddsRepository stores the latest price per (mapping, market, outcome).
type GameOddsRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewGameOddsRepository(db *sql.DB, logger zerolog.Logger) *GameOddsRepository {
	return &GameOddsRepository{db: db, logger: logger}
}

// Upsert overwrites the stored price for the outcome. Odds rows have no
// history; the audit requirement covers mappings and aliases only.
func (r *GameOddsRepository) Upsert(ctx context.Context, o *domain.GameOdds) error {
	o.FetchedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO game_odds (game_mapping_id, market, outcome_name, price, point, bookmaker, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (game_mapping_id, market, outcome_name) DO UPDATE SET
			price = excluded.price,
			point = excluded.point,
			bookmaker = excluded.bookmaker,
			fetched_at = excluded.fetched_at`,
		o.GameMappingID, o.Market, o.OutcomeName, o.Price, o.Point, o.Bookmaker, o.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert odds for mapping %d: %w", o.GameMappingID, err)
	}
	return nil
}

func (r *GameOddsRepository) ListByMapping(ctx context.Context, mappingID int64) ([]domain.GameOdds, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, game_mapping_id, market, outcome_name, price, point, bookmaker, fetched_at
		FROM game_odds
		WHERE game_mapping_id = ?
		ORDER BY market, outcome_name`, mappingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list odds for mapping %d: %w", mappingID, err)
	}
	defer rows.Close()

	var out []domain.GameOdds
	for rows.Next() {
		var o domain.GameOdds
		if err := rows.Scan(&o.ID, &o.GameMappingID, &o.Market, &o.OutcomeName,
			&o.Price, &o.Point, &o.Bookmaker, &o.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

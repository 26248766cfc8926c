package repository

import (
	"context"
	"database/sql"
	"fmt"
	"hoopsync/internal/domain"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// AuditRepository appends to the match audit log. Rows are never updated or
// deleted.
type AuditRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAuditRepository(db *sql.DB, logger zerolog.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	if entry.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate audit id: %w", err)
		}
		entry.ID = id
	}
	entry.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO match_audit_log (
			id, entity_type, entity_id, action, prev_state, new_state, method, confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		entry.PrevState,
		entry.NewState,
		string(entry.Method),
		entry.Confidence,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail for one entity, newest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, action, prev_state, new_state, method, confidence, created_at
		FROM match_audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC, id DESC`,
		entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var method string
		if err := rows.Scan(
			&e.ID, &e.EntityType, &e.EntityID, &e.Action,
			&e.PrevState, &e.NewState, &method, &e.Confidence, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Method = domain.MatchMethod(method)
		out = append(out, e)
	}
	return out, rows.Err()
}

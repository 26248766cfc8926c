package service

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"hoopsync/internal/config"
	"hoopsync/internal/database"
	"hoopsync/internal/repository"

	"github.com/rs/zerolog"
)

// testEnv wires the services against a throwaway SQLite file with the real
// migrations (including the team reference seed) applied.
type testEnv struct {
	db       *sql.DB
	teams    *repository.TeamReferenceRepository
	mappings *repository.GameMappingRepository
	aliases  *repository.PlayerAliasRepository
	audit    *repository.AuditRepository
	runs     *repository.SyncRunRepository
	oddsRepo *repository.GameOddsRepository
	matcher  *GameMatcher
	resolver *PlayerResolver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	cfg := &config.Config{DBPath: filepath.Join(t.TempDir(), "hoopsync.db")}
	db, err := database.New(cfg, logger)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// One connection keeps the write pragmas in force for every statement.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:       db,
		teams:    repository.NewTeamReferenceRepository(db, logger),
		mappings: repository.NewGameMappingRepository(db, logger),
		aliases:  repository.NewPlayerAliasRepository(db, logger),
		audit:    repository.NewAuditRepository(db, logger),
		runs:     repository.NewSyncRunRepository(db, logger),
		oddsRepo: repository.NewGameOddsRepository(db, logger),
	}
	env.matcher = NewGameMatcher(env.mappings, env.teams, env.audit, logger)
	env.resolver = NewPlayerResolver(env.aliases, env.teams, env.audit, logger)
	return env
}

func (e *testEnv) syncService(stats ScheduleSource, odds OddsSource) *SyncService {
	return NewSyncService(stats, odds, e.matcher, e.resolver, e.runs, e.mappings, e.oddsRepo, e.teams, zerolog.Nop())
}

// mustUTC builds the timestamp used throughout: an Eastern-evening tip-off
// expressed in UTC.
func mustUTC(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

// Package durable provides the SQLite-backed relational tier for world
// snapshots, script metadata, and tick logs, following the teacher's
// internal/persistence package (sqlx over modernc.org/sqlite, WAL journal
// mode, full-replace saves) and organ_codex's schema/pragma conventions.
// See design doc Section 6.
package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/econ-sim-orchestrator/internal/registry"
	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

// DB wraps a SQLite connection for durable simulation storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path, mirroring the
// teacher's persistence.Open pragmas (WAL, busy timeout).
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error { return db.conn.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS scripts (
	script_id TEXT PRIMARY KEY,
	simulation_id TEXT NULL,
	user_id TEXT NOT NULL,
	agent_kind TEXT NOT NULL,
	entity_id TEXT NULL,
	description TEXT NOT NULL DEFAULT '',
	code TEXT NOT NULL,
	code_version TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_scripts_binding
	ON scripts(simulation_id, agent_kind, entity_id)
	WHERE simulation_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS tick_logs (
	simulation_id TEXT NOT NULL,
	tick INTEGER NOT NULL,
	day INTEGER NOT NULL,
	message TEXT NOT NULL,
	context TEXT NOT NULL DEFAULT '{}',
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tick_logs_sim_tick ON tick_logs(simulation_id, tick);

CREATE TABLE IF NOT EXISTS simulation_limits (
	simulation_id TEXT PRIMARY KEY,
	script_limit INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS world_snapshots (
	simulation_id TEXT PRIMARY KEY,
	tick INTEGER NOT NULL,
	day INTEGER NOT NULL,
	state_json TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS simulations (
	id TEXT PRIMARY KEY,
	participants_json TEXT NOT NULL DEFAULT '[]',
	allow_fallback_for_missing INTEGER NOT NULL DEFAULT 0,
	shock_enabled INTEGER NOT NULL DEFAULT 0,
	script_limit_per_user INTEGER NOT NULL DEFAULT 25,
	created_at INTEGER NOT NULL
);
`

func (db *DB) migrate() error {
	_, err := db.conn.Exec(schema)
	return err
}

// SaveWorldSnapshot persists the full current WorldState (full replace, as
// the teacher's SaveAgents/SaveSettlements do with DELETE+INSERT).
func (db *DB) SaveWorldSnapshot(ctx context.Context, ws *worldstate.WorldState) error {
	blob, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("marshal world state: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO world_snapshots (simulation_id, tick, day, state_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(simulation_id) DO UPDATE SET
			tick=excluded.tick, day=excluded.day, state_json=excluded.state_json, updated_at=excluded.updated_at`,
		ws.SimulationID, ws.Tick, ws.Day, string(blob), time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save world snapshot: %w", err)
	}
	return nil
}

// LoadWorldSnapshot reads back the last saved WorldState for a simulation.
// Returns (nil, nil) if no snapshot exists.
func (db *DB) LoadWorldSnapshot(ctx context.Context, simulationID string) (*worldstate.WorldState, error) {
	var blob string
	err := db.conn.GetContext(ctx, &blob,
		"SELECT state_json FROM world_snapshots WHERE simulation_id = ?", simulationID)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("load world snapshot: %w", err)
	}
	var ws worldstate.WorldState
	if err := json.Unmarshal([]byte(blob), &ws); err != nil {
		return nil, fmt.Errorf("unmarshal world snapshot: %w", err)
	}
	return &ws, nil
}

// DeleteWorldSnapshot removes the durable snapshot for a simulation (reset
// and delete paths).
func (db *DB) DeleteWorldSnapshot(ctx context.Context, simulationID string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM world_snapshots WHERE simulation_id = ?", simulationID)
	if err != nil {
		return fmt.Errorf("delete world snapshot: %w", err)
	}
	return nil
}

// SaveSimulation upserts simulation metadata (participant set, feature flags).
func (db *DB) SaveSimulation(ctx context.Context, sim *worldstate.Simulation) error {
	participants := make([]string, 0, len(sim.Participants))
	for id := range sim.Participants {
		participants = append(participants, id)
	}
	blob, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO simulations (id, participants_json, allow_fallback_for_missing, shock_enabled, script_limit_per_user, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			participants_json=excluded.participants_json,
			allow_fallback_for_missing=excluded.allow_fallback_for_missing,
			shock_enabled=excluded.shock_enabled,
			script_limit_per_user=excluded.script_limit_per_user`,
		sim.ID, string(blob), boolToInt(sim.AllowFallbackForMissing), boolToInt(sim.ShockEnabled),
		sim.ScriptLimitPerUser, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save simulation: %w", err)
	}
	return nil
}

// LoadSimulation reads back simulation metadata. Returns (nil, nil) if absent.
func (db *DB) LoadSimulation(ctx context.Context, id string) (*worldstate.Simulation, error) {
	row := db.conn.QueryRowxContext(ctx, `
		SELECT participants_json, allow_fallback_for_missing, shock_enabled, script_limit_per_user
		FROM simulations WHERE id = ?`, id)
	var participantsJSON string
	var allowFallback, shockEnabled, scriptLimit int
	if err := row.Scan(&participantsJSON, &allowFallback, &shockEnabled, &scriptLimit); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("load simulation: %w", err)
	}
	var participantList []string
	if err := json.Unmarshal([]byte(participantsJSON), &participantList); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	participants := make(map[string]bool, len(participantList))
	for _, p := range participantList {
		participants[p] = true
	}
	return &worldstate.Simulation{
		ID:                      id,
		Participants:            participants,
		AllowFallbackForMissing: allowFallback != 0,
		ShockEnabled:            shockEnabled != 0,
		ScriptLimitPerUser:      scriptLimit,
	}, nil
}

// DeleteSimulation removes simulation metadata (delete_simulation path).
func (db *DB) DeleteSimulation(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM simulations WHERE id = ?", id)
	return err
}

// AppendTickLogs appends TickLogEntry rows (append-only, as design doc
// Section 4.1 requires).
func (db *DB) AppendTickLogs(ctx context.Context, entries []worldstate.TickLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO tick_logs (simulation_id, tick, day, message, context, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		ctxBlob, err := json.Marshal(e.Context)
		if err != nil {
			return fmt.Errorf("marshal log context: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, e.SimulationID, e.Tick, e.Day, e.Message, string(ctxBlob), e.RecordedAt.UTC().Unix()); err != nil {
			return fmt.Errorf("insert tick log: %w", err)
		}
	}
	return tx.Commit()
}

// ListTickLogs queries the tick_logs table with optional filters, backing
// the list_tick_logs external interface.
func (db *DB) ListTickLogs(ctx context.Context, simulationID string, minTick, maxTick *uint64, messageFilter string, limit, offset int) ([]worldstate.TickLogEntry, error) {
	query := "SELECT simulation_id, tick, day, message, context, recorded_at FROM tick_logs WHERE simulation_id = ?"
	args := []any{simulationID}
	if minTick != nil {
		query += " AND tick >= ?"
		args = append(args, *minTick)
	}
	if maxTick != nil {
		query += " AND tick <= ?"
		args = append(args, *maxTick)
	}
	if messageFilter != "" {
		query += " AND message LIKE ?"
		args = append(args, "%"+messageFilter+"%")
	}
	query += " ORDER BY tick ASC, recorded_at ASC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := db.conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tick logs: %w", err)
	}
	defer rows.Close()

	var out []worldstate.TickLogEntry
	for rows.Next() {
		var e worldstate.TickLogEntry
		var ctxBlob string
		var recordedAtUnix int64
		if err := rows.Scan(&e.SimulationID, &e.Tick, &e.Day, &e.Message, &ctxBlob, &recordedAtUnix); err != nil {
			return nil, fmt.Errorf("scan tick log: %w", err)
		}
		_ = json.Unmarshal([]byte(ctxBlob), &e.Context)
		e.RecordedAt = time.Unix(recordedAtUnix, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// saveScriptRow upserts script metadata and source at the storage level.
func (db *DB) saveScriptRow(scriptID string, simulationID *string, userID, agentKind, entityID, description, code, codeVersion string, createdAt, updatedAt time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO scripts (script_id, simulation_id, user_id, agent_kind, entity_id, description, code, code_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(script_id) DO UPDATE SET
			simulation_id=excluded.simulation_id,
			agent_kind=excluded.agent_kind,
			entity_id=excluded.entity_id,
			description=excluded.description,
			code=excluded.code,
			code_version=excluded.code_version,
			updated_at=excluded.updated_at`,
		scriptID, simulationID, userID, agentKind, entityID, description, code, codeVersion,
		createdAt.UTC().Unix(), updatedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save script: %w", err)
	}
	return nil
}

// deleteScriptRow removes a script row.
func (db *DB) deleteScriptRow(scriptID string) error {
	_, err := db.conn.Exec("DELETE FROM scripts WHERE script_id = ?", scriptID)
	if err != nil {
		return fmt.Errorf("delete script: %w", err)
	}
	return nil
}

// ScriptAdapter implements registry.DurableSaver over a *DB, translating
// between registry.Script and the scripts table. It lives here rather than
// in the registry package to avoid that package depending on sqlite.
type ScriptAdapter struct {
	db *DB
}

// NewScriptAdapter wraps db as a registry.DurableSaver.
func NewScriptAdapter(db *DB) *ScriptAdapter { return &ScriptAdapter{db: db} }

// SaveScript implements registry.DurableSaver.
func (a *ScriptAdapter) SaveScript(s registry.Script) error {
	return a.db.saveScriptRow(s.ScriptID, s.SimulationID, s.UserID, string(s.AgentKind), s.EntityID,
		s.Description, s.Code, s.CodeVersion, s.CreatedAt, s.UpdatedAt)
}

// DeleteScript implements registry.DurableSaver.
func (a *ScriptAdapter) DeleteScript(scriptID string) error {
	return a.db.deleteScriptRow(scriptID)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

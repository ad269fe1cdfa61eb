package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"YieldKeeper/internal/logger"
	"YieldKeeper/internal/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder writes cycle results to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the keeper writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: logger.For("recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id              TEXT PRIMARY KEY,
			trigger_kind    TEXT NOT NULL,
			started_at      INTEGER NOT NULL,
			finished_at     INTEGER NOT NULL,
			duration_ms     INTEGER,
			outcome         TEXT NOT NULL,
			source          TEXT,
			strategy_name   TEXT,
			strategy_addr   TEXT,
			strategy_apy    TEXT,
			advisory_choice TEXT,
			advisory_reason TEXT,
			advisory_error  TEXT,
			tx_hash         TEXT,
			failure         TEXT,
			vault_assets    TEXT,
			vault_supply    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at)`,

		`CREATE TABLE IF NOT EXISTS cycle_apys (
			cycle_id TEXT NOT NULL REFERENCES cycles(id),
			position INTEGER NOT NULL,
			name     TEXT NOT NULL,
			address  TEXT NOT NULL,
			apy      TEXT NOT NULL,
			PRIMARY KEY (cycle_id, position)
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordCycle stores one cycle and its APY snapshot in a single transaction.
// Decimals are stored as text to keep them exact.
func (r *SQLiteRecorder) RecordCycle(ctx context.Context, res *model.CycleResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var stName, stAddr, stAPY, vaultAssets, vaultSupply, txHash sql.NullString
	if res.Strategy != nil {
		stName = nullString(res.Strategy.Name)
		stAddr = nullString(res.Strategy.Address.Hex())
		stAPY = nullString(res.Strategy.APY.String())
	}
	if res.Vault != nil {
		vaultAssets = nullString(res.Vault.TotalAssets.String())
		vaultSupply = nullString(res.Vault.TotalSupply.String())
	}
	if res.TxHash != (common.Hash{}) {
		txHash = nullString(res.TxHash.Hex())
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO cycles
		(id, trigger_kind, started_at, finished_at, duration_ms, outcome, source,
		 strategy_name, strategy_addr, strategy_apy,
		 advisory_choice, advisory_reason, advisory_error,
		 tx_hash, failure, vault_assets, vault_supply)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		res.ID.String(), string(res.Trigger),
		res.StartedAt.Unix(), res.FinishedAt.Unix(), res.Duration().Milliseconds(),
		string(res.Outcome), string(res.Source),
		stName, stAddr, stAPY,
		nullString(res.AdvisoryChoice), nullString(res.AdvisoryReason), nullString(res.AdvisoryError),
		txHash, nullString(res.Failure), vaultAssets, vaultSupply,
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	if res.Snapshot != nil {
		for i, st := range res.Snapshot.Strategies {
			if _, err := tx.ExecContext(ctx, `INSERT INTO cycle_apys
				(cycle_id, position, name, address, apy) VALUES (?,?,?,?,?)`,
				res.ID.String(), i, st.Name, st.Address.Hex(), st.APY.String(),
			); err != nil {
				return fmt.Errorf("insert apy %s: %w", st.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Package analytics provides a queryable SQLite secondary index over
// ledger events and trade transactions. It is never authoritative: the
// canonical record is the append-only JSONL ledger file and the
// in-memory world-state snapshot, and the index can always be rebuilt
// from them. Its purpose is fast filtered/aggregate queries that would
// otherwise require scanning the whole ledger file.
package analytics

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/observatory/internal/resources"
)

// DB wraps a SQLite connection used as a secondary index.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates the analytics database at path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate analytics db: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		event_id INTEGER PRIMARY KEY,
		tick INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		agent_id TEXT,
		details_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
	CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent_id);

	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id TEXT PRIMARY KEY,
		tick INTEGER NOT NULL,
		from_agent TEXT NOT NULL,
		to_agent TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		amount REAL NOT NULL,
		trade_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tx_tick ON transactions(tick);
	CREATE INDEX IF NOT EXISTS idx_tx_agent ON transactions(from_agent, to_agent);

	CREATE TABLE IF NOT EXISTS index_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// EventRow is one indexed ledger event.
type EventRow struct {
	EventID     uint64 `db:"event_id"`
	Tick        uint64 `db:"tick"`
	EventType   string `db:"event_type"`
	AgentID     string `db:"agent_id"`
	DetailsJSON string `db:"details_json"`
}

// IndexEvent upserts one ledger event into the index. Re-indexing the
// same event id is idempotent, which matters when the index is rebuilt
// from a ledger that was only partially indexed before a crash.
func (db *DB) IndexEvent(row EventRow) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO events (event_id, tick, event_type, agent_id, details_json)
		 VALUES (?, ?, ?, ?, ?)`,
		row.EventID, row.Tick, row.EventType, row.AgentID, row.DetailsJSON,
	)
	return err
}

// EventsByType returns indexed events of eventType within [fromTick, toTick].
func (db *DB) EventsByType(eventType string, fromTick, toTick uint64) ([]EventRow, error) {
	var rows []EventRow
	err := db.conn.Select(&rows,
		`SELECT event_id, tick, event_type, agent_id, details_json FROM events
		 WHERE event_type = ? AND tick >= ? AND (? = 0 OR tick <= ?)
		 ORDER BY event_id ASC`,
		eventType, fromTick, toTick, toTick,
	)
	return rows, err
}

// EventsForAgent returns every indexed event naming agentID.
func (db *DB) EventsForAgent(agentID string) ([]EventRow, error) {
	var rows []EventRow
	err := db.conn.Select(&rows,
		`SELECT event_id, tick, event_type, agent_id, details_json FROM events
		 WHERE agent_id = ? ORDER BY event_id ASC`,
		agentID,
	)
	return rows, err
}

// TransactionRow is one indexed trade transaction leg.
type TransactionRow struct {
	TransactionID string  `db:"transaction_id"`
	Tick          uint64  `db:"tick"`
	FromAgent     string  `db:"from_agent"`
	ToAgent       string  `db:"to_agent"`
	ResourceType  string  `db:"resource_type"`
	Amount        float64 `db:"amount"`
	TradeID       string  `db:"trade_id"`
}

// IndexTransaction upserts one transaction leg into the index.
func (db *DB) IndexTransaction(row TransactionRow) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO transactions
		 (transaction_id, tick, from_agent, to_agent, resource_type, amount, trade_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.TransactionID, row.Tick, row.FromAgent, row.ToAgent, row.ResourceType, row.Amount, row.TradeID,
	)
	return err
}

// VolumeByResource sums transacted amounts per resource kind within
// [fromTick, toTick] (toTick == 0 means unbounded).
func (db *DB) VolumeByResource(fromTick, toTick uint64) (map[resources.Kind]float64, error) {
	rows, err := db.conn.Query(
		`SELECT resource_type, SUM(amount) FROM transactions
		 WHERE tick >= ? AND (? = 0 OR tick <= ?)
		 GROUP BY resource_type`,
		fromTick, toTick, toTick,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := map[resources.Kind]float64{}
	for rows.Next() {
		var kind string
		var sum float64
		if err := rows.Scan(&kind, &sum); err != nil {
			return nil, err
		}
		totals[resources.Kind(kind)] = sum
	}
	return totals, rows.Err()
}

// TransactionsInRange returns every indexed transaction leg within
// [fromTick, toTick] (toTick == 0 means unbounded), most recent first.
func (db *DB) TransactionsInRange(fromTick, toTick uint64, limit int) ([]TransactionRow, error) {
	var rows []TransactionRow
	err := db.conn.Select(&rows,
		`SELECT transaction_id, tick, from_agent, to_agent, resource_type, amount, trade_id
		 FROM transactions WHERE tick >= ? AND (? = 0 OR tick <= ?)
		 ORDER BY tick DESC LIMIT ?`,
		fromTick, toTick, toTick, limit,
	)
	return rows, err
}

// TransactionsForAgent returns every indexed transaction leg naming agentID.
func (db *DB) TransactionsForAgent(agentID string) ([]TransactionRow, error) {
	var rows []TransactionRow
	err := db.conn.Select(&rows,
		`SELECT transaction_id, tick, from_agent, to_agent, resource_type, amount, trade_id
		 FROM transactions WHERE from_agent = ? OR to_agent = ? ORDER BY tick ASC`,
		agentID, agentID,
	)
	return rows, err
}

// SaveMeta stores a key-value pair describing index state, e.g. the
// highest ledger event id indexed so far so a restart can resume
// incremental indexing rather than rescanning the whole ledger.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO index_meta (key, value) VALUES (?, ?)`,
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value, returning "" if unset.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, `SELECT value FROM index_meta WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

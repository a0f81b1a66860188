// Package archive is the append-only local store behind the chain: every
// applied action and every completed hand gets a row. It is node-local
// durability for operators and queries, not consensus state; the consensus
// copy of results lives in the state tree.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("archive: not found")

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ActionRow is one applied table action. Redacted rows omit the amount
// (tables can be configured to keep wager sizes out of the public record).
type ActionRow struct {
	TableID   uint64 `json:"tableId"`
	HandID    uint64 `json:"handId"`
	Seat      int    `json:"seat"`
	Player    string `json:"player"`
	Action    string `json:"action"`
	Amount    uint64 `json:"amount"`
	Phase     string `json:"phase"`
	Forced    bool   `json:"forced,omitempty"` // applied by the timeout path, not the player
	Redacted  bool   `json:"redacted,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Height    int64  `json:"height"`
}

func (s *Store) InsertAction(ctx context.Context, row ActionRow) error {
	if ctx == nil {
		ctx = context.Background()
	}
	amount := row.Amount
	if row.Redacted {
		amount = 0
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO hand_actions (
    table_id, hand_id, seat, player, action, amount, phase, forced, redacted, ts, height
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, int64(row.TableID), int64(row.HandID), row.Seat, row.Player, row.Action,
		int64(amount), row.Phase, boolInt(row.Forced), boolInt(row.Redacted), row.Timestamp, row.Height)
	return err
}

func (s *Store) ListActions(ctx context.Context, tableID, handID uint64) ([]ActionRow, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT table_id, hand_id, seat, player, action, amount, phase, forced, redacted, ts, height
FROM hand_actions
WHERE table_id = ? AND hand_id = ?
ORDER BY id ASC
`, int64(tableID), int64(handID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ActionRow, 0, 32)
	for rows.Next() {
		var r ActionRow
		var tid, hid, amt int64
		var forced, redacted int64
		if err := rows.Scan(&tid, &hid, &r.Seat, &r.Player, &r.Action, &amt, &r.Phase, &forced, &redacted, &r.Timestamp, &r.Height); err != nil {
			return nil, err
		}
		r.TableID = uint64(tid)
		r.HandID = uint64(hid)
		r.Amount = uint64(amt)
		r.Forced = forced == 1
		r.Redacted = redacted == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertResult archives a completed hand. The result blob is the canonical
// JSON of the state HandResult; one row per (table, hand), first write wins.
func (s *Store) InsertResult(ctx context.Context, tableID, handID uint64, reason string, resultJSON []byte, ts int64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !json.Valid(resultJSON) {
		return fmt.Errorf("result blob is not valid json")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO hand_results (table_id, hand_id, reason, result_json, ts)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (table_id, hand_id) DO NOTHING
`, int64(tableID), int64(handID), reason, string(resultJSON), ts)
	return err
}

func (s *Store) GetResult(ctx context.Context, tableID, handID uint64) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var blob string
	err := s.db.QueryRowContext(ctx, `
SELECT result_json FROM hand_results WHERE table_id = ? AND hand_id = ?
`, int64(tableID), int64(handID)).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(blob), nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS hand_actions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    table_id INTEGER NOT NULL,
    hand_id INTEGER NOT NULL,
    seat INTEGER NOT NULL,
    player TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL,
    amount INTEGER NOT NULL DEFAULT 0,
    phase TEXT NOT NULL DEFAULT '',
    forced INTEGER NOT NULL DEFAULT 0,
    redacted INTEGER NOT NULL DEFAULT 0,
    ts INTEGER NOT NULL,
    height INTEGER NOT NULL DEFAULT 0
)`,
		`CREATE INDEX IF NOT EXISTS idx_hand_actions_hand ON hand_actions(table_id, hand_id, id)`,
		`
CREATE TABLE IF NOT EXISTS hand_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    table_id INTEGER NOT NULL,
    hand_id INTEGER NOT NULL,
    reason TEXT NOT NULL,
    result_json TEXT NOT NULL,
    ts INTEGER NOT NULL,
    UNIQUE (table_id, hand_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_hand_results_table ON hand_results(table_id, hand_id)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

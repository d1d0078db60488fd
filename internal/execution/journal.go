// Package execution persists and observes order executions. The Journal
// writes every fill to SQLite for analysis and audit; the Recorder taps
// the event stream and feeds it.
package execution

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Fill is one journaled execution row.
type Fill struct {
	ID         int64  `json:"id"`
	OrderID    string `json:"order_id"`
	PositionID string `json:"position_id"`
	Strategy   string `json:"strategy"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Purpose    string `json:"purpose"`
	Qty        int64  `json:"qty"`
	Price      int64  `json:"price"` // scaled price points
	FilledAt   string `json:"filled_at"`
}

// Journal persists fills to SQLite.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		position_id TEXT NOT NULL,
		strategy    TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		purpose     TEXT NOT NULL,
		qty         INTEGER NOT NULL,
		price       INTEGER NOT NULL,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_strategy ON fills(strategy);
	CREATE INDEX IF NOT EXISTS idx_fills_position ON fills(position_id);
	CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("fill journal opened", slog.String("path", dbPath))
	return &Journal{db: db}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(f Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO fills (order_id, position_id, strategy, symbol, side, purpose, qty, price, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID,
		f.PositionID,
		f.Strategy,
		f.Symbol,
		f.Side,
		f.Purpose,
		f.Qty,
		f.Price,
		f.FilledAt,
	)
	return err
}

// GetFills returns the last N fills, newest first.
func (j *Journal) GetFills(limit int) ([]Fill, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, position_id, strategy, symbol, side, purpose, qty, price, filled_at
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []Fill
	for rows.Next() {
		var f Fill
		if err := rows.Scan(&f.ID, &f.OrderID, &f.PositionID, &f.Strategy, &f.Symbol,
			&f.Side, &f.Purpose, &f.Qty, &f.Price, &f.FilledAt); err != nil {
			continue
		}
		fills = append(fills, f)
	}
	return fills, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// timestamp formats fill times for the journal column.
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

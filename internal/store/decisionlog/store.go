// Package decisionlog keeps an append-only audit trail of every decision the
// monitor produced and what the policy gate did with it.
package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"polyagent/internal/decision"
	"polyagent/internal/logger"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is one audited decision.
type Record struct {
	ID            int64             `json:"id"`
	TraceID       string            `json:"trace_id"`
	Timestamp     int64             `json:"ts"`
	MarketID      string            `json:"market_id"`
	Stance        string            `json:"stance"`
	Confidence    float64           `json:"confidence"`
	Consensus     float64           `json:"consensus"`
	SuggestedSize float64           `json:"suggested_size"`
	Decision      decision.Decision `json:"decision"`
	Executed      bool              `json:"executed"`
	SkipReason    string            `json:"skip_reason,omitempty"`
	Detail        string            `json:"detail,omitempty"`
	TradeID       string            `json:"trade_id,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// NewRecord copies the headline numbers out of d.
func NewRecord(d decision.Decision) Record {
	return Record{
		MarketID:      d.MarketID,
		Stance:        string(d.Stance),
		Confidence:    d.AggregateConfidence,
		Consensus:     d.ConsensusLevel,
		SuggestedSize: d.SuggestedSize,
		Decision:      d,
	}
}

// Query filters List. Limit defaults to 100 and is capped at 500.
type Query struct {
	MarketID string
	Executed *bool
	Limit    int
	Offset   int
}

// Store is the SQLite-backed decision log.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewStore opens the log at path, creating the file and schema if needed.
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("decision log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("decision log store not initialised")
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			market_id TEXT NOT NULL,
			stance TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			consensus REAL NOT NULL DEFAULT 0,
			suggested_size REAL NOT NULL DEFAULT 0,
			decision_json TEXT,
			executed INTEGER NOT NULL DEFAULT 0,
			skip_reason TEXT,
			detail TEXT,
			trade_id TEXT,
			error TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_ts ON decision_logs(ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_market ON decision_logs(market_id, ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_trace ON decision_logs(trace_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert appends rec and returns its row id. A missing trace id or timestamp
// is filled in.
func (s *Store) Insert(ctx context.Context, rec Record) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	now := time.Now().UnixMilli()
	if rec.Timestamp == 0 {
		rec.Timestamp = now
	}
	if strings.TrimSpace(rec.TraceID) == "" {
		rec.TraceID = uuid.NewString()
	}
	raw, err := json.Marshal(rec.Decision)
	if err != nil {
		return 0, fmt.Errorf("encode decision: %w", err)
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO decision_logs
			(trace_id, ts, market_id, stance, confidence, consensus, suggested_size,
			 decision_json, executed, skip_reason, detail, trade_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID,
		rec.Timestamp,
		rec.MarketID,
		rec.Stance,
		rec.Confidence,
		rec.Consensus,
		rec.SuggestedSize,
		string(raw),
		boolToInt(rec.Executed),
		rec.SkipReason,
		rec.Detail,
		rec.TradeID,
		rec.Error,
		now,
	)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, nil
}

func buildFilter(q Query) (string, []any) {
	var args []any
	var sb strings.Builder
	sb.WriteString(" WHERE 1=1")
	if m := strings.TrimSpace(q.MarketID); m != "" {
		sb.WriteString(" AND market_id=?")
		args = append(args, m)
	}
	if q.Executed != nil {
		sb.WriteString(" AND executed=?")
		args = append(args, boolToInt(*q.Executed))
	}
	return sb.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (Record, error) {
	var (
		rec      Record
		raw      sql.NullString
		executed int64
		skip     sql.NullString
		detail   sql.NullString
		tradeID  sql.NullString
		errStr   sql.NullString
	)
	if err := scanner.Scan(&rec.ID, &rec.TraceID, &rec.Timestamp, &rec.MarketID, &rec.Stance,
		&rec.Confidence, &rec.Consensus, &rec.SuggestedSize, &raw, &executed,
		&skip, &detail, &tradeID, &errStr); err != nil {
		return rec, err
	}
	rec.Executed = executed != 0
	rec.SkipReason = skip.String
	rec.Detail = detail.String
	rec.TradeID = tradeID.String
	rec.Error = errStr.String
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &rec.Decision); err != nil {
			logger.Warnf("decision log: row %d has unreadable decision json: %v", rec.ID, err)
		}
	}
	return rec, nil
}

const selectColumns = `SELECT id, trace_id, ts, market_id, stance, confidence, consensus, suggested_size,
		decision_json, executed, skip_reason, detail, trade_id, error
		FROM decision_logs`

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	if id <= 0 {
		return Record{}, fmt.Errorf("invalid decision id")
	}
	db, err := s.handle()
	if err != nil {
		return Record{}, err
	}
	return scanRecord(db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
}

// List returns the newest records first.
func (s *Store) List(ctx context.Context, q Query) ([]Record, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	filterSQL, args := buildFilter(q)
	args = append(args, limit, offset)
	rows, err := db.QueryContext(ctx, selectColumns+filterSQL+" ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// Count returns how many records match q, ignoring paging.
func (s *Store) Count(ctx context.Context, q Query) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	filterSQL, args := buildFilter(q)
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(1) FROM decision_logs"+filterSQL, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

// Prediction is one row of the predictions table.
type Prediction struct {
	Start        time.Time
	TraceID      string
	ReqID        string
	WorkerID     string
	Source       string
	ReplyTo      string
	Outcome      string
	Probability  sql.NullFloat64
	Threshold    float64
	ModelVersion string
	Duration     time.Duration
	Status       string
	ErrorKind    string
	Error        string
}

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, err
	}

	// Create events table
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL,
		level TEXT,
		code TEXT,
		msg TEXT,
		meta TEXT
	)`); err != nil {
		db.Close()
		return nil, err
	}

	// Create predictions table (outcomes only, no ride attributes)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS predictions(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL,
		trace_id TEXT,
		req_id TEXT,
		worker_id TEXT,
		source TEXT,
		reply_to TEXT,
		outcome TEXT,
		probability REAL,
		threshold REAL,
		model_version TEXT,
		dur_ms REAL,
		status TEXT,
		error_kind TEXT,
		error TEXT
	)`); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

func (db *DB) Event(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	m := ""
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode event meta: %w", err)
		}
		m = string(b)
	}
	_, err := db.ExecContext(ctx, `INSERT INTO events(ts,level,code,msg,meta) VALUES(?,?,?,?,?)`,
		unixSeconds(time.Now()), level, code, msg, m)
	return err
}

func (db *DB) Prediction(ctx context.Context, p Prediction) error {
	_, err := db.ExecContext(ctx, `INSERT INTO predictions(
		ts, trace_id, req_id, worker_id, source, reply_to, outcome, probability, threshold, model_version, dur_ms, status, error_kind, error)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		unixSeconds(p.Start), p.TraceID, p.ReqID, p.WorkerID, p.Source, p.ReplyTo, p.Outcome, p.Probability,
		p.Threshold, p.ModelVersion, float64(p.Duration.Microseconds())/1000, p.Status, p.ErrorKind, p.Error)
	return err
}

// RecentPredictions returns at most limit rows, newest first.
func (db *DB) RecentPredictions(ctx context.Context, limit int) ([]Prediction, error) {
	rows, err := db.QueryContext(ctx, `SELECT ts,trace_id,req_id,worker_id,source,reply_to,outcome,probability,threshold,model_version,dur_ms,status,error_kind,error
		FROM predictions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		var p Prediction
		var ts, durMs float64
		if err := rows.Scan(&ts, &p.TraceID, &p.ReqID, &p.WorkerID, &p.Source, &p.ReplyTo, &p.Outcome,
			&p.Probability, &p.Threshold, &p.ModelVersion, &durMs, &p.Status, &p.ErrorKind, &p.Error); err != nil {
			return nil, err
		}
		p.Start = time.Unix(0, int64(ts*1e9))
		p.Duration = time.Duration(durMs * float64(time.Millisecond))
		out = append(out, p)
	}
	return out, rows.Err()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

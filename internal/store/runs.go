package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"

	"github.com/fortuna/vetoscope/internal/aggregate"
	"github.com/fortuna/vetoscope/internal/session"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// RunRecord is the persisted form of a run.
type RunRecord struct {
	ID          string            `json:"id"`
	TeamURL     string            `json:"teamUrl"`
	TeamName    string            `json:"teamName"`
	Status      string            `json:"status"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   string            `json:"errorKind,omitempty"`
	Options     session.Options   `json:"options"`
	Result      *aggregate.Result `json:"result,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// SaveRun inserts or replaces the record with the same ID.
func (db *Database) SaveRun(ctx context.Context, rec RunRecord) error {
	if rec.ID == "" {
		return errors.New("run id is required")
	}

	options, err := sonic.Marshal(rec.Options)
	if err != nil {
		return errors.Wrap(err, "encode options")
	}

	var result sql.NullString
	if rec.Result != nil {
		encoded, err := sonic.Marshal(rec.Result)
		if err != nil {
			return errors.Wrap(err, "encode result")
		}
		result = sql.NullString{String: string(encoded), Valid: true}
	}

	var completed sql.NullInt64
	if rec.CompletedAt != nil {
		completed = sql.NullInt64{Int64: rec.CompletedAt.UnixMilli(), Valid: true}
	}

	_, err = db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO runs (run_id, team_url, team_name, status, error, error_kind, options_json, result_json, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			team_url     = excluded.team_url,
			team_name    = excluded.team_name,
			status       = excluded.status,
			error        = excluded.error,
			error_kind   = excluded.error_kind,
			options_json = excluded.options_json,
			result_json  = excluded.result_json,
			created_at   = excluded.created_at,
			completed_at = excluded.completed_at`),
		rec.ID, rec.TeamURL, rec.TeamName, rec.Status, rec.Error, rec.ErrorKind,
		string(options), result, rec.CreatedAt.UnixMilli(), completed,
	)
	if err != nil {
		return errors.Wrapf(err, "save run %s", rec.ID)
	}
	return nil
}

const runColumns = `run_id, team_url, team_name, status, error, error_kind, options_json, result_json, created_at, completed_at`

// GetRun loads one run, or ErrNotFound.
func (db *Database) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`), id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("run %s", id), ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get run %s", id)
	}
	return rec, nil
}

// ListRuns returns the most recent runs first. A non-positive limit
// returns every run.
func (db *Database) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var (
		rec       RunRecord
		options   string
		result    sql.NullString
		created   int64
		completed sql.NullInt64
	)
	if err := s.Scan(&rec.ID, &rec.TeamURL, &rec.TeamName, &rec.Status, &rec.Error, &rec.ErrorKind, &options, &result, &created, &completed); err != nil {
		return nil, err
	}

	if err := sonic.UnmarshalString(options, &rec.Options); err != nil {
		return nil, errors.Wrap(err, "decode options")
	}
	if result.Valid && result.String != "" {
		rec.Result = &aggregate.Result{}
		if err := sonic.UnmarshalString(result.String, rec.Result); err != nil {
			return nil, errors.Wrap(err, "decode result")
		}
	}

	rec.CreatedAt = time.UnixMilli(created).UTC()
	if completed.Valid {
		t := time.UnixMilli(completed.Int64).UTC()
		rec.CompletedAt = &t
	}
	return &rec, nil
}

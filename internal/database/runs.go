package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// InsertRun records the start of a pipeline run.
func (db *DB) InsertRun(id string, startedAt time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO pipeline_runs (id, started_at) VALUES (?, ?)",
		id, formatTime(startedAt),
	)
	return err
}

// FinishRun stores the result of a run started with InsertRun.
func (db *DB) FinishRun(run Run) error {
	errs, err := json.Marshal(run.Errors)
	if err != nil {
		return err
	}
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	result, err := db.conn.Exec(
		`UPDATE pipeline_runs SET finished_at = ?, outcome = ?, message = ?,
		articles = ?, records = ?, duplicates = ?, errors = ? WHERE id = ?`,
		formatTime(finished), run.Outcome, run.Message,
		run.Articles, run.Records, run.Duplicates, string(errs), run.ID,
	)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, started_at, finished_at, outcome, message, articles, records, duplicates, errors
		FROM pipeline_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
			outcome  sql.NullString
			message  sql.NullString
			errs     sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &outcome, &message,
			&r.Articles, &r.Records, &r.Duplicates, &errs); err != nil {
			return nil, err
		}
		s, err := parseTime(started)
		if err != nil {
			return nil, err
		}
		r.StartedAt = *s
		if r.FinishedAt, err = parseTime(finished.String); err != nil {
			return nil, err
		}
		r.Outcome = outcome.String
		r.Message = message.String
		if errs.Valid && errs.String != "" {
			if err := json.Unmarshal([]byte(errs.String), &r.Errors); err != nil {
				return nil, fmt.Errorf("decoding run %s errors: %w", r.ID, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

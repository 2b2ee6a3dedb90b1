// Package store keeps a SQLite history of conversions.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateRun is returned when a run id is recorded twice.
var ErrDuplicateRun = errors.New("run already recorded")

// Run summarizes one page conversion.
type Run struct {
	ID       uuid.UUID     `json:"id"`
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	Title    string        `json:"title"`
	Staffs   int           `json:"staffs"`
	Notes    int           `json:"notes"`
	Dropped  int           `json:"dropped"`
	Elapsed  time.Duration `json:"elapsed"`
	Error    string        `json:"error,omitempty"`
	Problems []Problem     `json:"problems,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Problem is a non-fatal issue recorded against a run.
type Problem struct {
	Staff   int    `json:"staff"`
	Symbol  int    `json:"symbol"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// History is a SQLite-backed conversion log.
type History struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*History, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening history: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	return &History{db: db}, nil
}

// Close closes the database.
func (h *History) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

func createTables(db *sql.DB) error {
	createRuns := `
    CREATE TABLE IF NOT EXISTS runs (
        id TEXT PRIMARY KEY,
        input TEXT NOT NULL,
        output TEXT NOT NULL,
        title TEXT NOT NULL,
        staffs INTEGER NOT NULL,
        notes INTEGER NOT NULL,
        dropped INTEGER NOT NULL,
        elapsed_ms INTEGER NOT NULL,
        error TEXT NOT NULL,
        created_at INTEGER NOT NULL
    );
    `

	createProblems := `
    CREATE TABLE IF NOT EXISTS problems (
        run_id TEXT NOT NULL REFERENCES runs(id),
        staff INTEGER NOT NULL,
        symbol INTEGER NOT NULL,
        kind TEXT NOT NULL,
        message TEXT NOT NULL
    );
    `

	if _, err := db.Exec(createRuns); err != nil {
		return fmt.Errorf("error creating runs table: %w", err)
	}
	if _, err := db.Exec(createProblems); err != nil {
		return fmt.Errorf("error creating problems table: %w", err)
	}
	return nil
}

// Record stores a run and its problems. A zero ID is replaced with a new
// random id, and a zero CreatedAt with the current time; the stored run is
// returned.
func (h *History) Record(run Run) (Run, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := h.db.Begin()
	if err != nil {
		return run, fmt.Errorf("error starting transaction: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO runs (id, input, output, title, staffs, notes, dropped, elapsed_ms, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		run.ID.String(), run.Input, run.Output, run.Title, run.Staffs, run.Notes, run.Dropped,
		run.Elapsed.Milliseconds(), run.Error, run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		tx.Rollback()
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return run, fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
		}
		return run, fmt.Errorf("failed to record run: %w", err)
	}

	if len(run.Problems) > 0 {
		stmt, err := tx.Prepare("INSERT INTO problems (run_id, staff, symbol, kind, message) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			tx.Rollback()
			return run, fmt.Errorf("error preparing statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range run.Problems {
			if _, err := stmt.Exec(run.ID.String(), p.Staff, p.Symbol, p.Kind, p.Message); err != nil {
				tx.Rollback()
				return run, fmt.Errorf("failed to record problem: %w", err)
			}
		}
	}

	return run, tx.Commit()
}

// Recent returns up to limit runs, newest first, without their problems.
func (h *History) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.Query(`
		SELECT id, input, output, title, staffs, notes, dropped, elapsed_ms, error, created_at
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run with its problems. The bool is false if no run has id.
func (h *History) Get(id uuid.UUID) (Run, bool, error) {
	row := h.db.QueryRow(`
		SELECT id, input, output, title, staffs, notes, dropped, elapsed_ms, error, created_at
		FROM runs WHERE id = ?
	`, id.String())

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}

	rows, err := h.db.Query("SELECT staff, symbol, kind, message FROM problems WHERE run_id = ? ORDER BY rowid", id.String())
	if err != nil {
		return Run{}, false, fmt.Errorf("error querying problems: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Problem
		if err := rows.Scan(&p.Staff, &p.Symbol, &p.Kind, &p.Message); err != nil {
			return Run{}, false, fmt.Errorf("error scanning problem: %w", err)
		}
		run.Problems = append(run.Problems, p)
	}
	return run, true, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run       Run
		id        string
		elapsedMs int64
		createdMs int64
	)
	err := s.Scan(&id, &run.Input, &run.Output, &run.Title, &run.Staffs, &run.Notes, &run.Dropped, &elapsedMs, &run.Error, &createdMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("error scanning run: %w", err)
	}
	run.ID, err = uuid.Parse(id)
	if err != nil {
		return Run{}, fmt.Errorf("bad run id %q: %w", id, err)
	}
	run.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	run.CreatedAt = time.UnixMilli(createdMs)
	return run, nil
}

// Package store records validation and contrast runs in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"lccnr/pkg/contrast"
	"lccnr/pkg/validation"
)

var ErrRunNotFound = errors.New("run not found")

// Slice columns are 1-based, as in the result files.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	image_path    TEXT,
	mask_path     TEXT NOT NULL,
	output_path   TEXT,
	status        INTEGER NOT NULL,
	error_count   INTEGER NOT NULL,
	fatal         TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS runs_mask ON runs(mask_path, created_at);

CREATE TABLE IF NOT EXISTS rule_outcomes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	slice         INTEGER NOT NULL,
	rule          TEXT NOT NULL,
	failures      INTEGER NOT NULL,
	message       TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS slice_contrast (
	run_id        TEXT NOT NULL,
	slice         INTEGER NOT NULL,
	left_lc       REAL,
	right_lc      REAL,
	pt            REAL,
	cnr           REAL,
	left_cnr      REAL,
	right_cnr     REAL,
	PRIMARY KEY (run_id, slice),
	FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
`

// Files names the inputs and output of one run
type Files struct {
	Image  string
	Mask   string
	Output string
}

// Outcome is a stored rule outcome. Slice is 1-based.
type Outcome struct {
	Slice    int
	Rule     validation.Rule
	Failures int
	Message  string
}

// Run is one stored run. Outcomes and Contrast are only filled by [Store.Run].
type Run struct {
	ID         string
	Files      Files
	Status     int
	ErrorCount int
	Fatal      string
	CreatedAt  time.Time

	Outcomes []Outcome
	Contrast []contrast.Record
}

// Store manages recorded runs in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores a validation report and, when non-nil, its contrast
// table in one transaction. It returns the new run ID.
func (s *Store) RecordRun(report *validation.Report, table *contrast.Table, files Files) (string, error) {
	if report == nil {
		return "", errors.New("record run: nil report")
	}
	if files.Mask == "" {
		files.Mask = report.Source
	}

	id := uuid.New().String()
	var fatal any
	if report.Fatal != nil {
		fatal = report.Fatal.Error()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, image_path, mask_path, output_path, status, error_count, fatal, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nullString(files.Image), files.Mask, nullString(files.Output),
		report.Status(), report.ErrorCount, fatal, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, sr := range report.Results {
		for _, o := range sr.Outcomes {
			_, err = tx.Exec(
				`INSERT INTO rule_outcomes (run_id, slice, rule, failures, message) VALUES (?, ?, ?, ?, ?)`,
				id, o.Slice+1, string(o.Rule), o.Failures, o.Message,
			)
			if err != nil {
				return "", fmt.Errorf("insert outcome: %w", err)
			}
		}
	}

	if table != nil {
		for _, r := range table.Records {
			_, err = tx.Exec(
				`INSERT INTO slice_contrast (run_id, slice, left_lc, right_lc, pt, cnr, left_cnr, right_cnr)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				id, r.Slice, nullFloat(r.LeftLC), nullFloat(r.RightLC), nullFloat(r.PT),
				nullFloat(r.CNR), nullFloat(r.LeftCNR), nullFloat(r.RightCNR),
			)
			if err != nil {
				return "", fmt.Errorf("insert contrast: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

const runColumns = `run_id, image_path, mask_path, output_path, status, error_count, fatal, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var image, output, fatal sql.NullString
	var createdStr string

	err := row.Scan(&run.ID, &image, &run.Files.Mask, &output,
		&run.Status, &run.ErrorCount, &fatal, &createdStr)
	if err != nil {
		return Run{}, err
	}
	run.Files.Image = image.String
	run.Files.Output = output.String
	run.Fatal = fatal.String
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return run, nil
}

// Run retrieves one run with its rule outcomes and contrast rows.
func (s *Store) Run(id string) (Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}

	if run.Outcomes, err = s.outcomes(id); err != nil {
		return Run{}, err
	}
	if run.Contrast, err = s.contrast(id); err != nil {
		return Run{}, err
	}
	return run, nil
}

func (s *Store) outcomes(id string) ([]Outcome, error) {
	rows, err := s.db.Query(
		`SELECT slice, rule, failures, message FROM rule_outcomes WHERE run_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var rule string
		if err := rows.Scan(&o.Slice, &rule, &o.Failures, &o.Message); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Rule = validation.Rule(rule)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) contrast(id string) ([]contrast.Record, error) {
	rows, err := s.db.Query(
		`SELECT slice, left_lc, right_lc, pt, cnr, left_cnr, right_cnr
		 FROM slice_contrast WHERE run_id = ? ORDER BY slice`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("list contrast: %w", err)
	}
	defer rows.Close()

	var out []contrast.Record
	for rows.Next() {
		var r contrast.Record
		var vals [6]sql.NullFloat64
		if err := rows.Scan(&r.Slice, &vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5]); err != nil {
			return nil, fmt.Errorf("scan contrast: %w", err)
		}
		r.LeftLC = floatOrNaN(vals[0])
		r.RightLC = floatOrNaN(vals[1])
		r.PT = floatOrNaN(vals[2])
		r.CNR = floatOrNaN(vals[3])
		r.LeftCNR = floatOrNaN(vals[4])
		r.RightCNR = floatOrNaN(vals[5])
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRuns returns the runs of a mask, newest first. An empty mask lists
// every run.
func (s *Store) ListRuns(mask string) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if mask != "" {
		query += ` WHERE mask_path = ?`
		args = append(args, mask)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SQLite has no NaN; undefined values are stored as NULL.
func nullFloat(f float64) any {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

func floatOrNaN(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/submission"
)

// MemoryDSN opens a private in-memory database
const MemoryDSN = ":memory:"

var schemaStatements = []string{
	`PRAGMA foreign_keys = ON;`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		flow TEXT NOT NULL,
		input_data TEXT NOT NULL,
		url_params TEXT,
		short_code TEXT UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		submitted_at TEXT,
		revision INTEGER NOT NULL DEFAULT 1
	);`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_flow ON submissions(flow);`,
}

type submissionRow struct {
	ID          string         `db:"id"`
	Flow        string         `db:"flow"`
	InputData   string         `db:"input_data"`
	URLParams   sql.NullString `db:"url_params"`
	ShortCode   sql.NullString `db:"short_code"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
	SubmittedAt sql.NullString `db:"submitted_at"`
	Revision    uint64         `db:"revision"`
}

// SQLiteStore persists submissions in a SQLite database. Writes are
// last-writer-wins; short codes are unique through a table constraint.
type SQLiteStore struct {
	db   *sqlx.DB
	opts options
}

// OpenSQLite opens the database at path and migrates its schema. Use
// MemoryDSN for a throwaway database.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.Invalid("SQLiteStore", "OpenSQLite", "sqlite path required")
	}
	dsn := path
	if path != MemoryDSN {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WrapFatal(err, "SQLiteStore", "OpenSQLite", "open sqlite")
	}
	if path == MemoryDSN {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.WrapTransient(err, "SQLiteStore", "OpenSQLite", "ping sqlite")
	}

	s := &SQLiteStore{db: db, opts: defaultOptions(opts)}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.WrapTransient(err, "SQLiteStore", "migrate", "begin migration")
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return errors.WrapFatal(err, "SQLiteStore", "migrate", fmt.Sprintf("execute schema statement %d", i+1))
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.WrapTransient(err, "SQLiteStore", "migrate", "commit migration")
	}
	return nil
}

// Get loads a submission by id
func (s *SQLiteStore) Get(ctx context.Context, id string) (*submission.Submission, error) {
	var row submissionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM submissions WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, errors.WrapTransient(err, "SQLiteStore", "Get", "query submission")
	}
	return row.toSubmission()
}

// Create inserts a new submission
func (s *SQLiteStore) Create(ctx context.Context, sub *submission.Submission) error {
	if err := checkSubmission("SQLiteStore", "Create", sub); err != nil {
		return err
	}
	candidate := sub.Clone()
	s.opts.stampNew(candidate)
	candidate.Revision = 1

	row, err := newSubmissionRow(candidate)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO submissions
		(id, flow, input_data, url_params, short_code, created_at, updated_at, submitted_at, revision)
		VALUES (:id, :flow, :input_data, :url_params, :short_code, :created_at, :updated_at, :submitted_at, :revision)`,
		row)
	if err != nil {
		return classifyWriteError(err, "Create")
	}
	*sub = *candidate
	return nil
}

// Save inserts new submissions and overwrites existing ones
func (s *SQLiteStore) Save(ctx context.Context, sub *submission.Submission) error {
	if err := checkSubmission("SQLiteStore", "Save", sub); err != nil {
		return err
	}
	if sub.IsNew() {
		return s.Create(ctx, sub)
	}

	sub.UpdatedAt = s.opts.now().UTC()
	row, err := newSubmissionRow(sub)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `UPDATE submissions SET
		input_data = :input_data,
		url_params = :url_params,
		short_code = :short_code,
		updated_at = :updated_at,
		submitted_at = :submitted_at,
		revision = revision + 1
		WHERE id = :id`, row)
	if err != nil {
		return classifyWriteError(err, "Save")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sub.ID)
	}
	sub.Revision++
	return nil
}

// Delete removes a submission; unknown ids are ignored
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, id); err != nil {
		return errors.WrapTransient(err, "SQLiteStore", "Delete", "delete submission")
	}
	return nil
}

// ShortCodeExists reports whether any submission carries code
func (s *SQLiteStore) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM submissions WHERE short_code = ?`, code); err != nil {
		return false, errors.WrapTransient(err, "SQLiteStore", "ShortCodeExists", "query short code")
	}
	return n > 0, nil
}

// CountByFlow returns the number of stored submissions per flow
func (s *SQLiteStore) CountByFlow(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Flow  string `db:"flow"`
		Count int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT flow, COUNT(1) AS n FROM submissions GROUP BY flow`); err != nil {
		return nil, errors.WrapTransient(err, "SQLiteStore", "CountByFlow", "query counts")
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Flow] = r.Count
	}
	return out, nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.WrapTransient(err, "SQLiteStore", "Ping", "ping sqlite")
	}
	return nil
}

// Close releases the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func classifyWriteError(err error, method string) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: submissions.short_code"):
		return errors.WrapTransient(errors.ErrConflict, "SQLiteStore", method, "short code already in use")
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return errors.WrapInvalid(errors.ErrConflict, "SQLiteStore", method, "submission already exists")
	}
	return errors.WrapTransient(err, "SQLiteStore", method, "write submission")
}

func newSubmissionRow(sub *submission.Submission) (*submissionRow, error) {
	input, err := json.Marshal(sub.InputData)
	if err != nil {
		return nil, errors.WrapFatal(err, "SQLiteStore", "encode", "marshal input data")
	}
	row := &submissionRow{
		ID:        sub.ID,
		Flow:      sub.Flow,
		InputData: string(input),
		ShortCode: sql.NullString{String: sub.ShortCode, Valid: sub.ShortCode != ""},
		CreatedAt: sub.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: sub.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Revision:  sub.Revision,
	}
	if len(sub.URLParams) > 0 {
		params, err := json.Marshal(sub.URLParams)
		if err != nil {
			return nil, errors.WrapFatal(err, "SQLiteStore", "encode", "marshal url params")
		}
		row.URLParams = sql.NullString{String: string(params), Valid: true}
	}
	if sub.SubmittedAt != nil {
		row.SubmittedAt = sql.NullString{String: sub.SubmittedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	return row, nil
}

func (r *submissionRow) toSubmission() (*submission.Submission, error) {
	sub := &submission.Submission{
		ID:        r.ID,
		Flow:      r.Flow,
		ShortCode: r.ShortCode.String,
		Revision:  r.Revision,
	}
	if err := json.Unmarshal([]byte(r.InputData), &sub.InputData); err != nil {
		return nil, errors.WrapFatal(err, "SQLiteStore", "decode", "unmarshal input data")
	}
	if sub.InputData == nil {
		sub.InputData = make(map[string]submission.Value)
	}
	if r.URLParams.Valid {
		if err := json.Unmarshal([]byte(r.URLParams.String), &sub.URLParams); err != nil {
			return nil, errors.WrapFatal(err, "SQLiteStore", "decode", "unmarshal url params")
		}
	}

	var err error
	if sub.CreatedAt, err = time.Parse(time.RFC3339Nano, r.CreatedAt); err != nil {
		return nil, errors.WrapFatal(err, "SQLiteStore", "decode", "parse created_at")
	}
	if sub.UpdatedAt, err = time.Parse(time.RFC3339Nano, r.UpdatedAt); err != nil {
		return nil, errors.WrapFatal(err, "SQLiteStore", "decode", "parse updated_at")
	}
	if r.SubmittedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, r.SubmittedAt.String)
		if err != nil {
			return nil, errors.WrapFatal(err, "SQLiteStore", "decode", "parse submitted_at")
		}
		sub.SubmittedAt = &t
	}
	return sub, nil
}

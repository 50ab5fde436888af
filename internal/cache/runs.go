package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the state of a verification run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Summary counts the chains a run checked.
type Summary struct {
	TotalChains int `json:"total_chains"`
	Critical    int `json:"critical"`
	Warnings    int `json:"warnings"`
	Valid       int `json:"valid"`
}

// Run is one recorded verification run.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Summary     Summary    `json:"summary"`
	Error       string     `json:"error,omitempty"`
}

// CreateRun records the start of a run.
func (s *Store) CreateRun() (*Run, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.logger.Debug("creating run", slog.String("id", run.ID))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		run.ID, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun records the outcome of a run. A non-empty errMsg marks it
// failed.
func (s *Store) CompleteRun(id string, summary Summary, errMsg string) error {
	if s.db == nil {
		return ErrNotOpened
	}

	status := RunStatusCompleted
	var errPtr *string
	if errMsg != "" {
		status = RunStatusFailed
		errPtr = &errMsg
	}

	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, total_chains = ?, critical = ?, warnings = ?, valid = ?, error = ?
		 WHERE id = ?`,
		string(status), time.Now().UTC(),
		summary.TotalChains, summary.Critical, summary.Warnings, summary.Valid,
		errPtr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	row := s.db.QueryRow(
		`SELECT id, status, started_at, completed_at, total_chains, critical, warnings, valid, error
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	rows, err := s.db.Query(
		`SELECT id, status, started_at, completed_at, total_chains, critical, warnings, valid, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var status string
	var completedAt sql.NullTime
	var errMsg sql.NullString
	err := row.Scan(&run.ID, &status, &run.StartedAt, &completedAt,
		&run.Summary.TotalChains, &run.Summary.Critical, &run.Summary.Warnings, &run.Summary.Valid, &errMsg)
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}

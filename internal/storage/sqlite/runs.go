package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"brandpulse/internal/domain"

	"github.com/google/uuid"
)

const runColumns = `id, brand, range_label, start_at, end_at, total_records, status, error, created_at, updated_at`

// CreateRun stores a new run in pending state and returns it with its id.
func (s *Store) CreateRun(ctx context.Context, run domain.Run) (domain.Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = domain.RunPending
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Brand, run.RangeLabel, run.Start.UTC(), run.End.UTC(), run.TotalRecords,
		string(run.Status), run.Error, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return domain.Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// UpdateRunStatus moves a run to status. errMsg is stored alongside and is
// normally empty unless the run failed.
func (s *Store) UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *Store) SetRunTotal(ctx context.Context, id string, total int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET total_records = ?, updated_at = ? WHERE id = ?`,
		total, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *Store) GetRun(ctx context.Context, id string) (domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first. An empty brand lists
// every brand.
func (s *Store) ListRuns(ctx context.Context, brand string, limit int) ([]domain.Run, error) {
	if limit < 1 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []interface{}{}
	if brand != "" {
		query += ` WHERE brand = ?`
		args = append(args, brand)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (domain.Run, error) {
	var (
		run    domain.Run
		status string
	)
	err := row.Scan(
		&run.ID, &run.Brand, &run.RangeLabel, &run.Start, &run.End, &run.TotalRecords,
		&status, &run.Error, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return domain.Run{}, err
	}
	run.Status = domain.RunStatus(status)
	return run, nil
}

// LinkRunRecords attaches record ids to a run, keeping their order as the
// run's ranking. Already linked ids are left where they are.
func (s *Store) LinkRunRecords(ctx context.Context, runID string, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM run_records WHERE run_id = ?`, runID,
	).Scan(&next); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_records (run_id, record_id, position) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, record_id) DO NOTHING`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range recordIDs {
		if _, err := stmt.ExecContext(ctx, runID, id, next+i); err != nil {
			return fmt.Errorf("link record %s to run %s: %w", id, runID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) RunRecordIDs(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id FROM run_records WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package sqlite

import (
	"context"
	"time"
)

// EnqueueReclassify marks records whose batch failed so the next run for
// brand classifies them again.
func (s *Store) EnqueueReclassify(ctx context.Context, brand string, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reclassify_queue (record_id, brand, enqueued_at) VALUES (?, ?, ?)
		 ON CONFLICT(record_id, brand) DO NOTHING`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, id := range recordIDs {
		if _, err := stmt.ExecContext(ctx, id, brand, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// QueuedReclassify returns the queued record ids for brand, oldest first.
// Entries stay queued until DequeueReclassify removes them.
func (s *Store) QueuedReclassify(ctx context.Context, brand string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id FROM reclassify_queue WHERE brand = ? ORDER BY enqueued_at, rowid`, brand,
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

// DequeueReclassify removes recordIDs from brand's queue. Ids that are not
// queued are ignored.
func (s *Store) DequeueReclassify(ctx context.Context, brand string, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, chunk := range chunks(recordIDs) {
		args := append([]interface{}{brand}, stringArgs(chunk)...)
		_, err := tx.ExecContext(ctx,
			`DELETE FROM reclassify_queue WHERE brand = ? AND record_id IN (`+placeholders(len(chunk))+`)`,
			args...,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

package sqlite

import (
	"context"
	"fmt"
	"time"

	"brandpulse/internal/domain"

	"github.com/google/uuid"
)

// UpsertRecords inserts records by natural key. A record seen before keeps
// its id and text; only engagement is refreshed. The returned slice mirrors
// the input order with stored ids filled in.
func (s *Store) UpsertRecords(ctx context.Context, records []domain.Record) ([]domain.Record, error) {
	if len(records) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, source, source_id, author, community, url, text, engagement, posted_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source, source_id) DO UPDATE SET engagement = excluded.engagement`,
	)
	if err != nil {
		return nil, err
	}
	defer upsert.Close()

	lookup, err := tx.PrepareContext(ctx, `SELECT id, created_at FROM records WHERE source = ? AND source_id = ?`)
	if err != nil {
		return nil, err
	}
	defer lookup.Close()

	now := time.Now().UTC()
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if r.Source == "" || r.SourceID == "" {
			return nil, fmt.Errorf("record without natural key: source=%q source_id=%q", r.Source, r.SourceID)
		}
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := upsert.ExecContext(ctx,
			id, r.Source, r.SourceID, r.Author, r.Community, r.URL, r.Text, r.Engagement, r.Timestamp.UTC(), now,
		); err != nil {
			return nil, fmt.Errorf("upsert record %s: %w", r.NaturalKey(), err)
		}
		if err := lookup.QueryRowContext(ctx, r.Source, r.SourceID).Scan(&r.ID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("lookup record %s: %w", r.NaturalKey(), err)
		}
		out = append(out, r)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordsByIDs returns the stored records in the order of ids. Unknown ids
// are skipped.
func (s *Store) RecordsByIDs(ctx context.Context, ids []string) ([]domain.Record, error) {
	byID := make(map[string]domain.Record, len(ids))
	for _, chunk := range chunks(ids) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, source, source_id, author, community, url, text, engagement, posted_at, created_at
			 FROM records WHERE id IN (`+placeholders(len(chunk))+`)`,
			stringArgs(chunk)...,
		)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var r domain.Record
			if err := rows.Scan(
				&r.ID, &r.Source, &r.SourceID, &r.Author, &r.Community, &r.URL,
				&r.Text, &r.Engagement, &r.Timestamp, &r.CreatedAt,
			); err != nil {
				rows.Close()
				return nil, err
			}
			byID[r.ID] = r
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	out := make([]domain.Record, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

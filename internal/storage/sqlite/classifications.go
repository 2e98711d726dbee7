package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"brandpulse/internal/domain"
)

// UpsertClassifications stores one classification per record id, replacing
// any earlier one.
func (s *Store) UpsertClassifications(ctx context.Context, classifications []domain.Classification) error {
	if len(classifications) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO classifications (record_id, categories, sentiment, confidence, reasoning, model, classified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(record_id) DO UPDATE SET
			categories = excluded.categories,
			sentiment = excluded.sentiment,
			confidence = excluded.confidence,
			reasoning = excluded.reasoning,
			model = excluded.model,
			classified_at = excluded.classified_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range classifications {
		if len(c.Categories) == 0 {
			return fmt.Errorf("classification for %s has no categories", c.RecordID)
		}
		categories, err := json.Marshal(c.Categories)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			c.RecordID, string(categories), string(c.Sentiment), c.Confidence, c.Reasoning, c.Model, c.ClassifiedAt.UTC(),
		); err != nil {
			return fmt.Errorf("upsert classification %s: %w", c.RecordID, err)
		}
	}
	return tx.Commit()
}

// ClassificationsByRecordIDs returns the stored classification for each id
// that has one.
func (s *Store) ClassificationsByRecordIDs(ctx context.Context, ids []string) (map[string]domain.Classification, error) {
	out := make(map[string]domain.Classification, len(ids))
	for _, chunk := range chunks(ids) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT record_id, categories, sentiment, confidence, reasoning, model, classified_at
			 FROM classifications WHERE record_id IN (`+placeholders(len(chunk))+`)`,
			stringArgs(chunk)...,
		)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var (
				c          domain.Classification
				categories string
				sentiment  string
			)
			if err := rows.Scan(&c.RecordID, &categories, &sentiment, &c.Confidence, &c.Reasoning, &c.Model, &c.ClassifiedAt); err != nil {
				rows.Close()
				return nil, err
			}
			if err := json.Unmarshal([]byte(categories), &c.Categories); err != nil {
				rows.Close()
				return nil, fmt.Errorf("decode categories for %s: %w", c.RecordID, err)
			}
			c.Sentiment = domain.Sentiment(sentiment)
			out[c.RecordID] = c
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// ClassifiedIDs reports which of ids already have a classification.
func (s *Store) ClassifiedIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, chunk := range chunks(ids) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT record_id FROM classifications WHERE record_id IN (`+placeholders(len(chunk))+`)`,
			stringArgs(chunk)...,
		)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			out[id] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

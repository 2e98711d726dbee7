package domain

import "time"

// Record is one ingested post. ID is assigned by the store; Source plus
// SourceID form the natural key used to upsert across repeated ingestion.
type Record struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`    // "reddit"
	SourceID   string    `json:"source_id"` // source-native id, e.g. reddit "t3" id
	Author     string    `json:"author"`
	Community  string    `json:"community"` // subreddit, empty when the source has none
	URL        string    `json:"url"`
	Text       string    `json:"text"`
	Engagement int       `json:"engagement"`
	Timestamp  time.Time `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r Record) NaturalKey() string {
	return r.Source + ":" + r.SourceID
}

// RecordWithClassification pairs a record with its classification, which is
// nil until the record has been classified.
type RecordWithClassification struct {
	Record         Record          `json:"record"`
	Classification *Classification `json:"classification"`
}

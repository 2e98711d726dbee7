package pipeline

import "brandpulse/internal/domain"

type Partitioned struct {
	ToClassify []domain.Record
	Skipped    []domain.Record
}

// Partition removes records that already carry a classification. Candidate
// order is kept in both outputs and repeated ids are kept once.
func Partition(candidates []domain.Record, classifiedIDs map[string]struct{}) Partitioned {
	var out Partitioned
	seen := make(map[string]struct{}, len(candidates))
	for _, rec := range candidates {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		if _, done := classifiedIDs[rec.ID]; done {
			out.Skipped = append(out.Skipped, rec)
			continue
		}
		out.ToClassify = append(out.ToClassify, rec)
	}
	return out
}

// IDSet builds the lookup set Partition expects.
func IDSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

package domain

import (
	"fmt"
	"time"
)

type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Run is one analysis of a brand over a time window. Records are linked to
// runs, so a record shared by overlapping runs is classified once.
type Run struct {
	ID           string    `json:"id"`
	Brand        string    `json:"brand"`
	RangeLabel   string    `json:"range_label"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	TotalRecords int       `json:"total_records"`
	Status       RunStatus `json:"status"`
	Error        string    `json:"error,omitempty"` // set when Status is failed
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SupportedRangeDays lists the analysis windows offered to callers.
var SupportedRangeDays = []int{7, 30, 90}

func RangeLabel(days int) string {
	return fmt.Sprintf("%d days", days)
}

func ValidRangeDays(days int) bool {
	for _, d := range SupportedRangeDays {
		if d == days {
			return true
		}
	}
	return false
}

// RunWindow returns the [start, end] window ending at now.
func RunWindow(now time.Time, days int) (time.Time, time.Time) {
	return now.AddDate(0, 0, -days), now
}

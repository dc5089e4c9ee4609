// Package collection orchestrates data collection runs: a bounded worker
// pool fans out over symbols while each symbol's data types are fetched in
// dependency order.
package collection

import (
	"time"

	"github.com/aristath/equityscope/internal/domain"
)

// Outcome classifies how one (symbol, data type) task ended.
type Outcome string

const (
	OutcomeOK               Outcome = "OK"
	OutcomeNoData           Outcome = "NO_DATA"
	OutcomeRateLimited      Outcome = "RATE_LIMITED"
	OutcomeSourceError      Outcome = "SOURCE_ERROR"
	OutcomeValidationFailed Outcome = "VALIDATION_FAILED"
	OutcomeCancelled        Outcome = "CANCELLED"
)

// TaskResult is the outcome of one (symbol, data type) task.
type TaskResult struct {
	Symbol  string          `json:"symbol"`
	Type    domain.DataType `json:"type"`
	Outcome Outcome         `json:"outcome"`
	Rows    int             `json:"rows"`
	Error   string          `json:"error,omitempty"`
}

// Report summarizes one collection run.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Duration   string    `json:"duration"`

	Symbols int          `json:"symbols"`
	Tasks   []TaskResult `json:"tasks"`

	Counts map[Outcome]int `json:"counts"`
}

// SuccessRatio is the fraction of tasks that ended OK or NO_DATA (an empty
// but honest answer is not a failure).
func (r *Report) SuccessRatio() float64 {
	if len(r.Tasks) == 0 {
		return 0
	}
	ok := r.Counts[OutcomeOK] + r.Counts[OutcomeNoData]
	return float64(ok) / float64(len(r.Tasks))
}

func (r *Report) add(result TaskResult) {
	r.Tasks = append(r.Tasks, result)
	r.Counts[result.Outcome]++
}

func newReport(symbols int, start time.Time) *Report {
	return &Report{
		StartedAt: start,
		Symbols:   symbols,
		Counts:    make(map[Outcome]int),
	}
}

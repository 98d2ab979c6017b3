package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Iteration is one generate-and-verify attempt of a run.
type Iteration struct {
	RunID       uuid.UUID       `json:"run_id"`
	Attempt     int             `json:"attempt"`
	ExtractorID string          `json:"extractor_id"`
	Program     json.RawMessage `json:"program,omitempty"`
	Passed      bool            `json:"passed"`
	Mismatches  int             `json:"mismatches"`
	Diff        string          `json:"diff,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

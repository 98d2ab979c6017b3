package entity

import (
	"time"

	"github.com/google/uuid"
)

// Run is one refinement-loop invocation for a source, for data transfer
// between the agent and the repository.
type Run struct {
	ID            uuid.UUID  `json:"id"`
	Source        string     `json:"source"`
	DocumentPath  string     `json:"document_path"`
	DocumentHash  string     `json:"document_hash,omitempty"`
	MaxIterations int        `json:"max_iterations"`
	State         string     `json:"state"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

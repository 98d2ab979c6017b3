package async

import (
	"context"
	"time"

	"github.com/joseph-ayodele/statement-agent/internal/agent"
)

// Job is one refinement run request.
type Job struct {
	Target      agent.Target
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Runner executes one job; *agent.Agent satisfies it.
type Runner interface {
	Run(ctx context.Context, t agent.Target) (*agent.Outcome, error)
}

// Report is delivered for every finished job.
type Report struct {
	Job     Job
	Outcome *agent.Outcome
	Err     error
	Elapsed time.Duration
}

package constants

// LoopState is the refinement loop state. Stable values (stored as-is in the
// audit trail).
type LoopState string

const (
	StatePlanning   LoopState = "PLANNING"
	StateGenerating LoopState = "GENERATING"
	StateVerifying  LoopState = "VERIFYING"
	StateSucceeded  LoopState = "SUCCEEDED" // terminal
	StateFailed     LoopState = "FAILED"    // terminal
)

// Terminal reports whether no further transitions leave s.
func (s LoopState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// DefaultMaxIterations is the refinement budget when none is configured.
const DefaultMaxIterations = 3

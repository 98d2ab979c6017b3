package agent

import (
	"errors"
	"fmt"

	"github.com/joseph-ayodele/statement-agent/internal/verify"
)

// ErrBudgetExhausted is matched by every *BudgetExhaustedError.
var ErrBudgetExhausted = errors.New("iteration budget exhausted")

// BudgetExhaustedError is the terminal Failed report: the last verification
// and the debug artifacts it left behind.
type BudgetExhaustedError struct {
	Source    string
	Attempts  int
	Last      *verify.Result
	Artifacts []string
}

func (e *BudgetExhaustedError) Error() string {
	n := 0
	if e.Last != nil {
		n = len(e.Last.Mismatches)
	}
	return fmt.Sprintf("%s: no passing extractor after %d iterations (%d mismatches remain)", e.Source, e.Attempts, n)
}

func (e *BudgetExhaustedError) Is(target error) bool { return target == ErrBudgetExhausted }

package llm

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/statement-agent/internal/parser"
	"github.com/joseph-ayodele/statement-agent/internal/table"
	"github.com/joseph-ayodele/statement-agent/internal/verify"
)

// ErrGeneration wraps every generator failure that is worth another
// iteration (bad model output, unusable program).
var ErrGeneration = errors.New("generation failed")

// Request is everything a generator sees for one attempt.
type Request struct {
	Source string
	Schema table.Schema
	// TruthCSV is the raw ground-truth CSV, possibly truncated.
	TruthCSV []byte
	// DocumentText is the flattened document text, possibly truncated.
	DocumentText string
	// Previous and Diagnostic are set on refinement attempts.
	Previous   *parser.Program
	Diagnostic *verify.Result
}

// Refining reports whether this is a retry with a diagnostic.
func (r Request) Refining() bool {
	return r.Previous != nil && r.Diagnostic != nil
}

// Generator produces an extractor program for a source.
type Generator interface {
	Generate(ctx context.Context, req Request) (*parser.Program, error)
}

// Package agent drives the generate-verify-refine loop for one source.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/common"
	"github.com/joseph-ayodele/statement-agent/internal/document"
	"github.com/joseph-ayodele/statement-agent/internal/entity"
	"github.com/joseph-ayodele/statement-agent/internal/ingest"
	"github.com/joseph-ayodele/statement-agent/internal/llm"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/parser"
	"github.com/joseph-ayodele/statement-agent/internal/repository"
	"github.com/joseph-ayodele/statement-agent/internal/table"
	"github.com/joseph-ayodele/statement-agent/internal/verify"
)

// Target names the inputs of one run.
type Target struct {
	Source       string
	DocumentPath string
	TruthPath    string
}

// TargetFromAssets adapts located assets.
func TargetFromAssets(a ingest.Assets) Target {
	return Target{Source: a.Source, DocumentPath: a.Document, TruthPath: a.Truth}
}

// Options configures an Agent.
type Options struct {
	MaxIterations int
	// Loader carries environment settings for reading documents.
	Loader document.Config
	// Truth parses the ground-truth CSV; zero means normalize.DefaultOptions.
	Truth *normalize.Options
	// Reuse seeds the first iteration with the stored program, if any,
	// instead of asking the generator.
	Reuse bool
}

// IterationRecord is the audit entry of one attempt.
type IterationRecord struct {
	Attempt     int
	ExtractorID string
	Program     *parser.Program
	Result      *verify.Result
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Outcome is what a run leaves behind.
type Outcome struct {
	RunID      uuid.UUID
	Source     string
	State      constants.LoopState
	Iterations []IterationRecord
	// ParserPath is the stored program of the last candidate.
	ParserPath string
	Artifacts  []string
	Last       *verify.Result

	audited bool
}

// Agent owns the loop's collaborators. Runs are independent; one Agent may
// serve many sources sequentially.
type Agent struct {
	gen      llm.Generator
	verifier *verify.Verifier
	store    *parser.Store
	runs     repository.RunRepository
	opts     Options
	logger   *slog.Logger
}

func New(gen llm.Generator, v *verify.Verifier, store *parser.Store, opts Options, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = constants.DefaultMaxIterations
	}
	return &Agent{gen: gen, verifier: v, store: store, opts: opts, logger: logger}
}

// WithRepository records every run and iteration in runs.
func (a *Agent) WithRepository(runs repository.RunRepository) *Agent {
	a.runs = runs
	return a
}

// session is the per-run state carried between loop steps.
type session struct {
	target   Target
	truth    *table.Table
	truthCSV []byte
	docText  string
	outcome  *Outcome
	logger   *slog.Logger
	prev     *parser.Program
	seed     *parser.Program
	attempt  int
	last     *verify.Result
	lastProg *parser.Program
}

// Run drives the loop to a terminal state. It returns a
// *BudgetExhaustedError when no candidate passed within the budget, and an
// environment error when inputs or outputs are unusable. A cancelled ctx
// stops the loop between steps; an in-flight verification completes.
func (a *Agent) Run(ctx context.Context, t Target) (*Outcome, error) {
	out := &Outcome{RunID: uuid.New(), Source: t.Source, State: constants.StatePlanning}
	logger := a.logger.With("source", t.Source, "run_id", out.RunID.String())
	ctx = common.WithRunID(common.WithSource(ctx, t.Source), out.RunID.String())
	start := time.Now()

	s := &session{target: t, outcome: out, logger: logger}
	state := constants.StatePlanning
	for !state.Terminal() {
		if err := ctx.Err(); err != nil {
			logger.Warn("agent.run.cancelled", "state", state, "attempt", s.attempt)
			a.finish(ctx, out, constants.StateFailed, err)
			return out, err
		}
		var err error
		switch state {
		case constants.StatePlanning:
			err = a.plan(ctx, s)
		case constants.StateGenerating:
			err = a.generate(ctx, s)
		case constants.StateVerifying:
			err = a.verify(ctx, s)
		}
		if err != nil {
			logger.Error("agent.run.error", "state", state, "attempt", s.attempt, "error", err)
			a.finish(ctx, out, constants.StateFailed, err)
			return out, err
		}
		passed := s.last != nil && s.last.Passed
		next := Next(state, passed, s.attempt, a.opts.MaxIterations)
		logger.Debug("agent.transition", "from", state, "to", next, "attempt", s.attempt)
		state = next
		out.State = state
	}

	out.Last = s.last
	if s.last != nil {
		out.Artifacts = s.last.Artifacts
	}
	if state == constants.StateSucceeded {
		a.finish(ctx, out, state, nil)
		logger.Info("agent.run.succeeded",
			"iterations", len(out.Iterations),
			"parser", out.ParserPath,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return out, nil
	}
	err := &BudgetExhaustedError{Source: t.Source, Attempts: s.attempt, Last: s.last, Artifacts: out.Artifacts}
	a.finish(ctx, out, state, err)
	logger.Warn("agent.run.failed",
		"iterations", len(out.Iterations),
		"artifacts", out.Artifacts,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, err
}

// plan loads the truth and the document text; failures here end the run.
func (a *Agent) plan(ctx context.Context, s *session) error {
	t := s.target
	if t.Source == "" || t.DocumentPath == "" || t.TruthPath == "" {
		return fmt.Errorf("%w: incomplete target %+v", common.ErrInvalidInput, t)
	}
	truthOpts := normalize.DefaultOptions()
	if a.opts.Truth != nil {
		truthOpts = *a.opts.Truth
	}
	truth, err := table.ReadCSVFile(t.TruthPath, normalize.New(truthOpts))
	if err != nil {
		if common.IsEnvironment(err) {
			return err
		}
		return common.EnvironmentError("load ground truth "+t.TruthPath, err)
	}
	raw, err := os.ReadFile(t.TruthPath)
	if err != nil {
		return common.EnvironmentError("read ground truth "+t.TruthPath, err)
	}
	doc, err := document.NewLoader(a.opts.Loader, s.logger).Load(ctx, t.DocumentPath)
	if err != nil {
		if common.IsEnvironment(err) {
			return err
		}
		return common.EnvironmentError("load document "+t.DocumentPath, err)
	}
	fp, err := ingest.FingerprintFile(t.DocumentPath)
	if err != nil {
		return err
	}
	s.truth, s.truthCSV, s.docText = truth, raw, doc.Text()

	if a.opts.Reuse {
		p, err := a.store.Load(t.Source)
		switch {
		case err == nil:
			s.seed = p
		case errors.Is(err, common.ErrNotFound):
		default:
			s.logger.Warn("agent.plan.stored_program_unusable", "error", err)
		}
	}

	s.logger.Info("agent.plan.ok",
		"document", t.DocumentPath,
		"fingerprint", fp.Short(),
		"schema", truth.Schema.String(),
		"truth_rows", truth.Len(),
		"document_lines", doc.LineCount(),
		"reuse", s.seed != nil,
	)
	if a.runs != nil {
		run := &entity.Run{
			ID:            s.outcome.RunID,
			Source:        t.Source,
			DocumentPath:  t.DocumentPath,
			DocumentHash:  fp.SHA256,
			MaxIterations: a.opts.MaxIterations,
			State:         string(constants.StatePlanning),
			StartedAt:     time.Now(),
		}
		if err := a.runs.StartRun(ctx, run); err != nil {
			s.logger.Warn("agent.audit.start_failed", "error", err)
		} else {
			s.outcome.audited = true
		}
	}
	return nil
}

// generate obtains the next candidate. A generator failure is not fatal:
// it becomes a failing iteration that counts against the budget.
func (a *Agent) generate(ctx context.Context, s *session) error {
	s.attempt++
	started := time.Now()
	logger := s.logger.With("attempt", s.attempt)

	var prog *parser.Program
	var genErr error
	if s.seed != nil {
		prog, s.seed = s.seed, nil
		logger.Info("agent.generate.reused", "extractor", parser.Identity(prog))
	} else {
		req := llm.Request{
			Source:       s.target.Source,
			Schema:       s.truth.Schema,
			TruthCSV:     s.truthCSV,
			DocumentText: s.docText,
			Previous:     s.prev,
		}
		if s.prev != nil {
			req.Diagnostic = s.last
		}
		prog, genErr = a.gen.Generate(ctx, req)
		if prog == nil && genErr == nil {
			genErr = errors.New("generator returned no program")
		}
	}
	if genErr != nil {
		if common.IsEnvironment(genErr) {
			return genErr
		}
		if errors.Is(genErr, context.Canceled) || errors.Is(genErr, context.DeadlineExceeded) {
			return genErr
		}
		logger.Warn("agent.generate.failed", "error", genErr)
		s.last = failure(s.truth, "generator error: "+genErr.Error())
		s.lastProg = nil
		s.record(IterationRecord{Attempt: s.attempt, Result: s.last, StartedAt: started, FinishedAt: time.Now()})
		a.audit(ctx, s)
		return nil
	}

	if prog.Source != s.target.Source {
		prog = prog.Clone()
		prog.Source = s.target.Source
	}
	path, err := a.store.Save(prog)
	if err != nil {
		if common.IsEnvironment(err) {
			return err
		}
		logger.Warn("agent.generate.invalid", "error", err)
		s.last = failure(s.truth, "invalid program: "+err.Error())
		s.lastProg = nil
		s.record(IterationRecord{Attempt: s.attempt, Program: prog, Result: s.last, StartedAt: started, FinishedAt: time.Now()})
		a.audit(ctx, s)
		return nil
	}
	s.outcome.ParserPath = path
	s.lastProg = prog
	s.last = nil
	logger.Info("agent.generate.ok", "extractor", parser.Identity(prog), "path", path,
		"elapsed_ms", time.Since(started).Milliseconds())
	s.outcome.Iterations = append(s.outcome.Iterations, IterationRecord{
		Attempt:     s.attempt,
		ExtractorID: parser.Identity(prog),
		Program:     prog.Clone(),
		StartedAt:   started,
	})
	return nil
}

// verify runs the candidate. Verification is never interrupted by ctx.
func (a *Agent) verify(ctx context.Context, s *session) error {
	if s.lastProg == nil {
		// generation already produced the failing iteration
		return nil
	}
	rec := &s.outcome.Iterations[len(s.outcome.Iterations)-1]
	ext, err := parser.NewProgramExtractor(s.lastProg, a.opts.Loader, s.logger)
	var res *verify.Result
	if err != nil {
		s.logger.Warn("agent.verify.invalid_program", "attempt", s.attempt, "error", err)
		res = failure(s.truth, "invalid program: "+err.Error())
	} else {
		vctx := context.WithoutCancel(ctx)
		res, err = a.verifier.Verify(vctx, ext, s.target.Source, s.target.DocumentPath, s.truth)
		if err != nil {
			return err
		}
	}
	rec.Result = res
	rec.FinishedAt = time.Now()
	s.last = res
	s.prev = s.lastProg
	a.audit(ctx, s)
	return nil
}

func (s *session) record(r IterationRecord) {
	s.outcome.Iterations = append(s.outcome.Iterations, r)
}

// failure is the diagnostic of an attempt that produced no usable extractor.
func failure(truth *table.Table, msg string) *verify.Result {
	ms := []verify.Mismatch{{Row: -1, Expected: truth.Schema.String(), Actual: msg, Kind: verify.KindSchema}}
	return &verify.Result{Mismatches: ms, Diff: verify.DiffText(ms, 1), ExtractorError: msg}
}

// audit stores the latest iteration. Audit failures are logged only.
func (a *Agent) audit(ctx context.Context, s *session) {
	if !s.outcome.audited || len(s.outcome.Iterations) == 0 {
		return
	}
	rec := s.outcome.Iterations[len(s.outcome.Iterations)-1]
	it := &entity.Iteration{
		RunID:       s.outcome.RunID,
		Attempt:     rec.Attempt,
		ExtractorID: rec.ExtractorID,
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
	}
	if rec.Program != nil {
		if b, err := rec.Program.Marshal(); err == nil {
			it.Program = b
		}
	}
	if rec.Result != nil {
		it.Passed = rec.Result.Passed
		it.Mismatches = len(rec.Result.Mismatches)
		it.Diff = rec.Result.Diff
	}
	if err := a.runs.RecordIteration(context.WithoutCancel(ctx), it); err != nil {
		s.logger.Warn("agent.audit.iteration_failed", "attempt", rec.Attempt, "error", err)
	}
}

func (a *Agent) finish(ctx context.Context, out *Outcome, state constants.LoopState, cause error) {
	out.State = state
	if !out.audited {
		return
	}
	var msg *string
	if cause != nil {
		m := cause.Error()
		msg = &m
	}
	if err := a.runs.FinishRun(context.WithoutCancel(ctx), out.RunID, string(state), msg); err != nil {
		a.logger.Warn("agent.audit.finish_failed", "run_id", out.RunID.String(), "error", err)
	}
}

// Package verify runs an extractor against a document and compares the
// result with the ground truth by strict equality.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/common"
	"github.com/joseph-ayodele/statement-agent/internal/export"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/parser"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

const defaultMaxDiffs = 10

// Result is the outcome of one verification.
type Result struct {
	Passed     bool
	Mismatches []Mismatch
	Diff       string
	// Artifacts lists debug files written for a failed run.
	Artifacts []string
	// Got is the extracted table, nil when the extractor failed.
	Got *table.Table
	// ExtractorError is set when the extractor failed or panicked.
	ExtractorError string
}

// Config controls where debug artifacts go.
type Config struct {
	DebugDir  string
	WriteXLSX bool
	MaxDiffs  int
}

type Verifier struct {
	cfg    Config
	norm   *normalize.Normalizer
	xlsx   *export.Writer
	logger *slog.Logger
}

// New builds a verifier. n renders artifact tables; nil means the default
// canonical normalizer.
func New(cfg Config, n *normalize.Normalizer, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	if n == nil {
		n = normalize.New(normalize.DefaultOptions())
	}
	if cfg.MaxDiffs <= 0 {
		cfg.MaxDiffs = defaultMaxDiffs
	}
	return &Verifier{cfg: cfg, norm: n, xlsx: export.NewWriter(logger), logger: logger}
}

// ArtifactPaths are the debug files a failed run of source produces.
func (v *Verifier) ArtifactPaths(source string) []string {
	if v.cfg.DebugDir == "" {
		return nil
	}
	paths := []string{
		filepath.Join(v.cfg.DebugDir, source+constants.GotSuffix),
		filepath.Join(v.cfg.DebugDir, source+constants.ExpectedSuffix),
	}
	if v.cfg.WriteXLSX {
		paths = append(paths, filepath.Join(v.cfg.DebugDir, source+constants.WorkbookSuffix))
	}
	return paths
}

// Verify runs ext on docPath and compares its table with truth. Extractor
// errors and panics are reported as a schema-level mismatch; only
// environment failures and artifact write failures return an error.
func (v *Verifier) Verify(ctx context.Context, ext parser.Extractor, source, docPath string, truth *table.Table) (*Result, error) {
	start := time.Now()
	logger := v.logger.With("source", source)
	if id := common.RunIDFromContext(ctx); id != "" {
		logger = logger.With("run_id", id)
	}

	got, stack, err := run(ctx, ext, docPath)
	if stack != nil {
		logger.Warn("verify.extractor.panic", "error", err, "stack", string(stack))
	}
	res := &Result{Got: got}
	switch {
	case err == nil:
		res.Mismatches = Compare(got, truth)
	case common.IsEnvironment(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Error("verify.error", "path", docPath, "error", err)
		return nil, err
	default:
		res.ExtractorError = err.Error()
		res.Mismatches = []Mismatch{{
			Row:      -1,
			Expected: truth.Schema.String(),
			Actual:   "extractor error: " + err.Error(),
			Kind:     KindSchema,
		}}
	}
	res.Passed = len(res.Mismatches) == 0
	res.Diff = DiffText(res.Mismatches, v.cfg.MaxDiffs)

	if res.Passed {
		v.removeArtifacts(source, logger)
		logger.Info("verify.ok", "rows", got.Len(), "elapsed_ms", time.Since(start).Milliseconds())
		return res, nil
	}

	paths, err := v.writeArtifacts(source, res, truth)
	if err != nil {
		return nil, err
	}
	res.Artifacts = paths
	logger.Info("verify.mismatch",
		"mismatches", len(res.Mismatches),
		"first", res.Mismatches[0].String(),
		"artifacts", len(paths),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// run calls the extractor and converts a panic into an error.
func run(ctx context.Context, ext parser.Extractor, docPath string) (t *table.Table, stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, stack = nil, debug.Stack()
			err = fmt.Errorf("extractor panicked: %v", r)
		}
	}()
	t, err = ext.Extract(ctx, docPath)
	if err == nil && t == nil {
		err = errors.New("extractor returned no table")
	}
	return t, nil, err
}

func (v *Verifier) writeArtifacts(source string, res *Result, truth *table.Table) ([]string, error) {
	if v.cfg.DebugDir == "" {
		return nil, nil
	}
	paths := v.ArtifactPaths(source)
	got := res.Got
	if got == nil {
		got = table.New(table.Schema{})
	}
	if err := table.WriteCSVFile(paths[0], got, v.norm); err != nil {
		return nil, common.EnvironmentError("write debug artifact", err)
	}
	if err := table.WriteCSVFile(paths[1], truth, v.norm); err != nil {
		return nil, common.EnvironmentError("write debug artifact", err)
	}
	if v.cfg.WriteXLSX {
		err := v.xlsx.WriteFile(paths[2],
			export.TableSheet("got", got, v.norm),
			export.TableSheet("expected", truth, v.norm),
			mismatchSheet(res.Mismatches),
		)
		if err != nil {
			return nil, common.EnvironmentError("write debug workbook", err)
		}
	}
	return paths, nil
}

func (v *Verifier) removeArtifacts(source string, logger *slog.Logger) {
	if v.cfg.DebugDir == "" {
		return
	}
	paths := v.ArtifactPaths(source)
	if !v.cfg.WriteXLSX {
		paths = append(paths, filepath.Join(v.cfg.DebugDir, source+constants.WorkbookSuffix))
	}
	for _, p := range paths {
		if err := os.Remove(p); err == nil {
			logger.Debug("verify.artifact.removed", "path", p)
		}
	}
}

func mismatchSheet(ms []Mismatch) export.Sheet {
	s := export.Sheet{Name: "mismatches", Header: []string{"kind", "row", "field", "got", "expected"}}
	for _, m := range ms {
		row := ""
		if m.Row >= 0 {
			row = strconv.Itoa(m.Row)
		}
		s.Rows = append(s.Rows, []string{string(m.Kind), row, m.Field, m.Actual, m.Expected})
	}
	return s
}

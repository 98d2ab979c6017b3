// Package parser defines the extractor contract and the generated,
// declarative per-source extractor program that satisfies it.
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/statement-agent/internal/document"
	"github.com/joseph-ayodele/statement-agent/internal/extract"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

// Extractor turns one document into a table. Implementations must be
// deterministic and must not write anything.
type Extractor interface {
	Extract(ctx context.Context, documentPath string) (*table.Table, error)
}

// Func adapts a function to Extractor.
type Func func(ctx context.Context, documentPath string) (*table.Table, error)

func (f Func) Extract(ctx context.Context, documentPath string) (*table.Table, error) {
	return f(ctx, documentPath)
}

// ProgramExtractor interprets a Program with the document loader and the
// extraction engine.
type ProgramExtractor struct {
	program *Program
	id      string
	loader  *document.Loader
	engine  *extract.Engine
	norm    *normalize.Normalizer
	logger  *slog.Logger
}

// NewProgramExtractor validates p and builds its engine. loaderCfg supplies
// environment settings (pdftotext binary); the program may narrow the sheet.
func NewProgramExtractor(p *Program, loaderCfg document.Config, logger *slog.Logger) (*ProgramExtractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	opts, err := p.NormalizerOptions()
	if err != nil {
		return nil, err
	}
	n := normalize.New(opts)
	cfg, err := p.EngineConfig()
	if err != nil {
		return nil, err
	}
	engine, err := extract.NewEngine(cfg, n, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	if p.Sheet != "" {
		loaderCfg.Sheet = p.Sheet
	}
	return &ProgramExtractor{
		program: p.Clone(),
		id:      Identity(p),
		loader:  document.NewLoader(loaderCfg, logger),
		engine:  engine,
		norm:    n,
		logger:  logger,
	}, nil
}

// WithLoader swaps the document loader (tests stub pdftotext through it).
func (x *ProgramExtractor) WithLoader(l *document.Loader) *ProgramExtractor {
	cp := *x
	cp.loader = l
	return &cp
}

// ID is the program identity.
func (x *ProgramExtractor) ID() string { return x.id }

// Program returns a copy of the interpreted program.
func (x *ProgramExtractor) Program() *Program { return x.program.Clone() }

// Normalizer is the normalizer the program's values are rendered with.
func (x *ProgramExtractor) Normalizer() *normalize.Normalizer { return x.norm }

func (x *ProgramExtractor) Extract(ctx context.Context, documentPath string) (*table.Table, error) {
	res, err := x.ExtractResult(ctx, documentPath)
	if err != nil {
		return nil, err
	}
	return res.Table, nil
}

// ExtractResult is Extract with strategy and skipped-row diagnostics.
func (x *ProgramExtractor) ExtractResult(ctx context.Context, documentPath string) (*extract.Result, error) {
	start := time.Now()
	doc, err := x.loader.Load(ctx, documentPath)
	if err != nil {
		return nil, err
	}
	res, err := x.engine.Extract(doc)
	if err != nil {
		x.logger.Info("parser.extract.failed", "extractor", x.id, "path", documentPath, "error", err)
		return nil, err
	}
	x.logger.Info("parser.extract.ok",
		"extractor", x.id,
		"strategy", res.Strategy,
		"rows", res.Table.Len(),
		"skipped", len(res.Skipped),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

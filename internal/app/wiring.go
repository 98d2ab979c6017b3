// Package app wires configuration into the agent's collaborators for the
// command-line tools.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/agent"
	"github.com/joseph-ayodele/statement-agent/internal/common"
	"github.com/joseph-ayodele/statement-agent/internal/document"
	"github.com/joseph-ayodele/statement-agent/internal/llm"
	"github.com/joseph-ayodele/statement-agent/internal/llm/openai"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/parser"
	"github.com/joseph-ayodele/statement-agent/internal/repository"
	"github.com/joseph-ayodele/statement-agent/internal/verify"
)

// Generator kinds accepted by NewGenerator.
const (
	GeneratorTemplate = "template"
	GeneratorOpenAI   = "openai"
)

// NewLogger builds the JSON logger the tools share. quiet raises the floor
// to warnings.
func NewLogger(w io.Writer, level slog.Level, quiet bool) *slog.Logger {
	if quiet && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NormalizeOptions maps the configured conventions onto normalizer options.
func NormalizeOptions(cfg *common.Config) (normalize.Options, error) {
	loc, err := constants.ParseLocale(cfg.Normalize.LocaleHint)
	if err != nil {
		return normalize.Options{}, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	opts := normalize.DefaultOptions()
	if len(cfg.Normalize.DatePatterns) > 0 {
		opts.DatePatterns = cfg.Normalize.DatePatterns
	}
	if cfg.Normalize.OutputDateLayout != "" {
		opts.OutputDateLayout = cfg.Normalize.OutputDateLayout
	}
	if cfg.Normalize.CurrencySymbols != "" {
		opts.CurrencySymbols = cfg.Normalize.CurrencySymbols
	}
	opts.Locale = loc
	opts.AmbiguousDecimal = cfg.Normalize.AmbiguousDecimal
	return opts, nil
}

// NewGenerator returns the generator named by kind.
func NewGenerator(kind string, cfg *common.Config, logger *slog.Logger) (llm.Generator, error) {
	switch kind {
	case "", GeneratorTemplate:
		opts, err := NormalizeOptions(cfg)
		if err != nil {
			return nil, err
		}
		return llm.NewTemplateGenerator(opts, cfg.Extraction.MinRows, logger), nil
	case GeneratorOpenAI:
		if cfg.LLM.APIKey == "" {
			return nil, common.EnvironmentError("OPENAI_API_KEY is required for --llm openai", nil)
		}
		logger.Info("llm.openai.configured", "model", cfg.LLM.Model)
		return openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger), nil
	}
	return nil, fmt.Errorf("%w: unknown generator %q (want %s or %s)", common.ErrInvalidInput, kind, GeneratorTemplate, GeneratorOpenAI)
}

// LoaderConfig is the document loader environment.
func LoaderConfig(cfg *common.Config) document.Config {
	return document.Config{Pdftotext: cfg.Extraction.Pdftotext, GridOnly: cfg.Extraction.GridOnly}
}

// AgentParams are the per-invocation knobs layered over the config.
type AgentParams struct {
	Generator string
	Reuse     bool
}

// NewAgent builds an agent from cfg. The caller owns the returned DB, which
// is nil when no audit database is configured.
func NewAgent(ctx context.Context, cfg *common.Config, p AgentParams, logger *slog.Logger) (*agent.Agent, *repository.DB, error) {
	gen, err := NewGenerator(p.Generator, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	truth, err := NormalizeOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	v := verify.New(verify.Config{DebugDir: cfg.Agent.DebugDir, WriteXLSX: cfg.Agent.DebugXLSX}, nil, logger)
	store := parser.NewStore(cfg.Agent.ParsersDir, logger)
	a := agent.New(gen, v, store, agent.Options{
		MaxIterations: cfg.Agent.MaxIterations,
		Loader:        LoaderConfig(cfg),
		Truth:         &truth,
		Reuse:         p.Reuse,
	}, logger)

	if cfg.Database.Driver == "" {
		return a, nil, nil
	}
	db, err := ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return a.WithRepository(repository.NewRunRepository(db, logger)), db, nil
}

// ConnectDB opens, pings and migrates the audit database.
func ConnectDB(ctx context.Context, c common.DatabaseConfig, logger *slog.Logger) (*repository.DB, error) {
	logger.Info("db.connect", "driver", c.Driver)
	db, err := repository.Open(ctx, repository.Config{
		Driver:          c.Driver,
		DSN:             c.DSN,
		MaxConns:        c.MaxConns,
		MinConns:        c.MinConns,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		DialTimeout:     c.DialTimeout,
	}, logger)
	if err != nil {
		return nil, common.EnvironmentError("open audit database", err)
	}
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		db.Close()
		return nil, common.EnvironmentError("ping audit database", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, common.EnvironmentError("migrate audit database", err)
	}
	return db, nil
}

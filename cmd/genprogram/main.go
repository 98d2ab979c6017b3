package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joseph-ayodele/statement-agent/internal/app"
	"github.com/joseph-ayodele/statement-agent/internal/common"
	"github.com/joseph-ayodele/statement-agent/internal/document"
	"github.com/joseph-ayodele/statement-agent/internal/ingest"
	"github.com/joseph-ayodele/statement-agent/internal/llm"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/parser"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

// genprogram asks the generator for a fresh program N times on the same
// source and reports whether the identity is stable.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	kind := flag.String("llm", app.GeneratorTemplate, "generator: template or openai")
	flag.Parse()
	if flag.NArg() < 1 {
		logger.Error("usage: genprogram [--llm template|openai] <source> [times]")
		os.Exit(2)
	}
	source := flag.Arg(0)
	times := 1
	if flag.NArg() >= 2 {
		if n, err := strconv.Atoi(flag.Arg(1)); err == nil && n > 0 {
			times = n
		}
	}

	common.LoadDotEnv(logger)
	cfg := common.LoadConfig()
	gen, err := app.NewGenerator(*kind, cfg, logger)
	if err != nil {
		logger.Error("generator", "error", err)
		os.Exit(2)
	}
	assets, err := ingest.Locate(cfg.Agent.DataDir, source)
	if err != nil {
		logger.Error("locate", "source", source, "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	req, err := request(ctx, cfg, assets, logger)
	if err != nil {
		logger.Error("load inputs", "source", source, "error", err)
		os.Exit(2)
	}

	ids := map[string]int{}
	var last *parser.Program
	for i := 1; i <= times; i++ {
		start := time.Now()
		p, err := gen.Generate(ctx, req)
		if err != nil {
			logger.Error("generate.error", "iter", i, "error", err)
			continue
		}
		id := parser.Identity(p)
		ids[id]++
		last = p
		logger.Info("generate.ok", "iter", i, "extractor", id, "elapsed_ms", time.Since(start).Milliseconds())
	}
	if last == nil {
		os.Exit(1)
	}
	b, err := last.Marshal()
	if err != nil {
		logger.Error("marshal", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
	logger.Info("done", "source", source, "times", times, "distinct", len(ids), "stable", len(ids) == 1)
}

func request(ctx context.Context, cfg *common.Config, a ingest.Assets, logger *slog.Logger) (llm.Request, error) {
	opts, err := app.NormalizeOptions(cfg)
	if err != nil {
		return llm.Request{}, err
	}
	truth, err := table.ReadCSVFile(a.Truth, normalize.New(opts))
	if err != nil {
		return llm.Request{}, err
	}
	raw, err := os.ReadFile(a.Truth)
	if err != nil {
		return llm.Request{}, err
	}
	doc, err := document.NewLoader(app.LoaderConfig(cfg), logger).Load(ctx, a.Document)
	if err != nil {
		return llm.Request{}, err
	}
	return llm.Request{Source: a.Source, Schema: truth.Schema, TruthCSV: raw, DocumentText: doc.Text()}, nil
}

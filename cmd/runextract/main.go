package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/statement-agent/internal/app"
	"github.com/joseph-ayodele/statement-agent/internal/common"
	"github.com/joseph-ayodele/statement-agent/internal/parser"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 3 {
		logger.Error("usage", "cmd", "runextract <program.json> <document>")
		os.Exit(2)
	}
	common.LoadDotEnv(logger)
	cfg := common.LoadConfig()

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		logger.Error("read program", "path", os.Args[1], "error", err)
		os.Exit(2)
	}
	p, err := parser.ParseProgram(raw)
	if err != nil {
		logger.Error("invalid program", "path", os.Args[1], "error", err)
		os.Exit(2)
	}
	x, err := parser.NewProgramExtractor(p, app.LoaderConfig(cfg), logger)
	if err != nil {
		logger.Error("build extractor", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	res, err := x.ExtractResult(ctx, os.Args[2])
	if err != nil {
		code := 1
		if common.IsEnvironment(err) {
			code = 2
		}
		logger.Error("extraction failed", "extractor", x.ID(), "error", err)
		os.Exit(code)
	}
	if err := table.WriteCSV(os.Stdout, res.Table, x.Normalizer()); err != nil {
		logger.Error("write csv", "error", err)
		os.Exit(1)
	}
	logger.Info("extraction OK",
		"extractor", x.ID(),
		"strategy", res.Strategy,
		"rows", res.Table.Len(),
		"skipped", len(res.Skipped),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statement-agent/internal/agent"
	"github.com/joseph-ayodele/statement-agent/internal/app"
	"github.com/joseph-ayodele/statement-agent/internal/async"
	"github.com/joseph-ayodele/statement-agent/internal/common"
	"github.com/joseph-ayodele/statement-agent/internal/ingest"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		target     = flag.String("target", "", "source id under the data dir (e.g. icici)")
		all        = flag.Bool("all", false, "run every source found under the data dir")
		watch      = flag.Bool("watch", false, "keep running and re-run sources when their files change")
		maxIters   = flag.Int("max-iters", 0, "iteration budget (default AGENT_MAX_ITERS or 3)")
		quiet      = flag.Bool("quiet", false, "only log warnings and errors")
		dataDir    = flag.String("data-dir", "", "input directory (default DATA_DIR or ./data)")
		parsersDir = flag.String("parsers-dir", "", "where generated programs are stored (default PARSERS_DIR)")
		debugDir   = flag.String("debug-dir", "", "where debug artifacts are written (default DEBUG_DIR)")
		dbURL      = flag.String("db", "", "audit database: postgres:// URL or sqlite file path")
		gen        = flag.String("llm", app.GeneratorTemplate, "generator: template or openai")
		reuse      = flag.Bool("reuse", false, "start from the stored program when one exists")
		workers    = flag.Int("workers", 2, "parallel sources with --all/--watch")
		xlsx       = flag.Bool("xlsx", false, "also write an XLSX debug workbook")
	)
	flag.Parse()

	if (*target == "") == !*all {
		printError("Error: exactly one of --target or --all is required\n")
		flag.Usage()
		return 2
	}

	common.LoadDotEnv(nil)
	cfg := common.LoadConfig()
	if *maxIters > 0 {
		cfg.Agent.MaxIterations = *maxIters
	}
	override(&cfg.Agent.DataDir, *dataDir)
	override(&cfg.Agent.ParsersDir, *parsersDir)
	override(&cfg.Agent.DebugDir, *debugDir)
	if *xlsx {
		cfg.Agent.DebugXLSX = true
	}
	if *dbURL != "" {
		cfg.Database.Driver, cfg.Database.DSN = dbDriver(*dbURL), *dbURL
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: invalid configuration: %v\n", err)
		return 2
	}

	logger := app.NewLogger(os.Stderr, cfg.LogLevel(), *quiet)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, db, err := app.NewAgent(ctx, cfg, app.AgentParams{Generator: *gen, Reuse: *reuse}, logger)
	if err != nil {
		printError("Error: %v\n", err)
		return 2
	}
	if db != nil {
		defer db.Close()
	}

	if !*all && !*watch {
		assets, err := ingest.Locate(cfg.Agent.DataDir, *target)
		if err != nil {
			printError("Error: %v\n", err)
			return 2
		}
		out, err := a.Run(ctx, agent.TargetFromAssets(assets))
		printOutcome(os.Stdout, out, err)
		return exitCode(err)
	}

	sources := []string{*target}
	var targets []agent.Target
	if *all {
		found, failed, err := ingest.Discover(cfg.Agent.DataDir)
		if err != nil {
			printError("Error: %v\n", err)
			return 2
		}
		for src, ferr := range failed {
			logger.Warn("ingest.discover.skipped", "source", src, "error", ferr)
		}
		sources = sources[:0]
		for _, as := range found {
			sources = append(sources, as.Source)
			targets = append(targets, agent.TargetFromAssets(as))
		}
		if len(targets) == 0 {
			printError("Error: no sources with both a sample and a ground truth under %s\n", cfg.Agent.DataDir)
			return 2
		}
	} else {
		assets, err := ingest.Locate(cfg.Agent.DataDir, *target)
		if err != nil {
			printError("Error: %v\n", err)
			return 2
		}
		targets = append(targets, agent.TargetFromAssets(assets))
	}

	var (
		mu    sync.Mutex
		worst int
	)
	q := async.NewRunQueue(a, logger,
		async.WithBaseContext(ctx),
		async.WithWorkers(*workers),
		async.WithQueueSize(max(len(targets), 1)),
		async.WithRunTimeout(15*time.Minute),
		async.WithReport(func(r async.Report) {
			mu.Lock()
			defer mu.Unlock()
			printOutcome(os.Stdout, r.Outcome, r.Err)
			worst = max(worst, exitCode(r.Err))
		}),
	)
	for _, t := range targets {
		if err := q.Enqueue(ctx, async.Job{Target: t, TraceID: uuid.NewString()}); err != nil {
			logger.Error("queue.enqueue.failed", "source", t.Source, "error", err)
		}
	}

	if *watch {
		watchLoop(ctx, cfg.Agent.DataDir, sources, q, logger)
	}
	// after SIGINT the queued jobs report as cancelled; in-flight runs stop after their current step
	q.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	return worst
}

// watchLoop re-enqueues a source whenever its files change, until ctx ends.
func watchLoop(ctx context.Context, dataDir string, sources []string, q async.Queue, logger *slog.Logger) {
	events, errs, err := ingest.Watch(ctx, ingest.WatchConfig{DataDir: dataDir, Sources: sources, Debounce: 500 * time.Millisecond}, logger)
	if err != nil {
		logger.Error("ingest.watch.failed", "error", err)
		return
	}
	logger.Info("ingest.watch.started", "sources", sources)
	for {
		select {
		case src, ok := <-events:
			if !ok {
				return
			}
			assets, err := ingest.Locate(dataDir, src)
			if err != nil {
				logger.Warn("ingest.watch.unresolved", "source", src, "error", err)
				continue
			}
			if err := q.Enqueue(ctx, async.Job{Target: agent.TargetFromAssets(assets), TraceID: uuid.NewString()}); err != nil {
				logger.Warn("queue.enqueue.failed", "source", src, "error", err)
			}
		case err, ok := <-errs:
			if ok && err != nil {
				logger.Error("ingest.watch.error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func dbDriver(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/app"
	"github.com/OFFIS-RIT/litgraph/internal/config"
	"github.com/OFFIS-RIT/litgraph/internal/observability"
	"github.com/OFFIS-RIT/litgraph/internal/queue"
	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/graph"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/logger/console"

	"github.com/google/uuid"
)

const usage = `usage:
  litgraph run -seed <paper id> -limit <n> [-workers n] [-timeout d] [-snapshot file.json]
  litgraph validate -paper <paper id>`

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg.Debug,
		JSON:   cfg.JSONLogs,
		Output: stderr,
	}))

	switch args[0] {
	case "run":
		opts, perr := parseRunFlags(args[1:], stderr)
		if perr != nil {
			return 2
		}
		opts.apply(&cfg)
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(stderr, "invalid configuration:", err)
			return 1
		}
		return runCommand(ctx, cfg, opts, stdout, stderr)
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(stderr)
		paper := fs.String("paper", "", "id of a stored paper")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *paper == "" {
			fmt.Fprintln(stderr, "validate: -paper is required")
			return 2
		}
		if err != nil {
			fmt.Fprintln(stderr, "invalid configuration:", err)
			return 1
		}
		return validateCommand(ctx, cfg, *paper, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s\n", args[0], usage)
		return 2
	}
}

type runOptions struct {
	seed     string
	limit    int
	workers  int
	timeout  time.Duration
	snapshot string
}

func parseRunFlags(args []string, stderr io.Writer) (runOptions, error) {
	var opts runOptions
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.seed, "seed", "", "seed paper id (DOI, arXiv id or Semantic Scholar id)")
	fs.IntVar(&opts.limit, "limit", 0, "maximum number of papers to process")
	fs.IntVar(&opts.workers, "workers", 0, "papers processed concurrently (default PARALLEL_PAPERS)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "timeout per paper (default PAPER_TIMEOUT)")
	fs.StringVar(&opts.snapshot, "snapshot", "", "read the citation graph from a JSON snapshot")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.seed == "" || opts.limit <= 0 {
		fmt.Fprintln(stderr, "run: -seed and a positive -limit are required")
		return opts, errors.New("missing flags")
	}
	return opts, nil
}

// apply lets flags override the environment.
func (o runOptions) apply(cfg *config.Config) {
	if o.workers > 0 {
		cfg.Pipeline.ParallelPapers = o.workers
	}
	if o.timeout > 0 {
		cfg.Pipeline.PaperTimeout = o.timeout
	}
	if o.snapshot != "" {
		cfg.Citation.SnapshotPath = o.snapshot
	}
}

func runCommand(ctx context.Context, cfg config.Config, opts runOptions, stdout, stderr io.Writer) int {
	shutdown := observability.InitOTel(ctx, cfg.OTel, "cli")
	defer shutdown(context.Background())

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer a.Close(context.Background())

	req := queue.RunRequest{RunID: uuid.NewString(), Seed: opts.seed, Limit: opts.limit}
	result, err := a.ExecuteRun(ctx, req)
	printSummary(stdout, result)
	if err != nil {
		fmt.Fprintln(stderr, "run failed:", err)
		return 1
	}
	if result.Failed() {
		return 1
	}
	return 0
}

func printSummary(w io.Writer, result graph.BatchResult) {
	s := result.Stats
	fmt.Fprintf(w, "run %s\n", result.RunID)
	fmt.Fprintf(w, "attempted %d\nsucceeded %d\nfailed %d\nentities_created %d\nedges_created %d\n",
		s.Attempted, s.Succeeded, s.Failed, s.EntitiesCreated, s.EdgesCreated)
	for _, out := range result.Outcomes {
		if out.Err != nil {
			fmt.Fprintf(w, "failed %s: %v\n", out.Task.PaperID, out.Err)
		}
	}
}

func validateCommand(ctx context.Context, cfg config.Config, paperID string, stdout, stderr io.Writer) int {
	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer a.Close(context.Background())

	report, err := a.ValidatePaper(ctx, paperID)
	if err != nil {
		fmt.Fprintf(stderr, "validate %s: %v\n", paperID, err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

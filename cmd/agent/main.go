// Package main is the PortalPilot agent CLI. It drives the job portal with
// an LLM until the objective is met or the iteration budget runs out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kiranshivaraju/portalpilot/internal/agent"
	"github.com/kiranshivaraju/portalpilot/internal/ai"
	"github.com/kiranshivaraju/portalpilot/internal/cache"
	"github.com/kiranshivaraju/portalpilot/internal/config"
	"github.com/kiranshivaraju/portalpilot/internal/portal"
	"github.com/kiranshivaraju/portalpilot/internal/store"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

const migrationsDir = "migrations"

var errUsage = errors.New("usage")

// options holds the parsed command line. A nil override means the flag was
// not given and the AGENT_* setting from the environment applies.
type options struct {
	objective     string
	maxIterations *int
	temperature   *float64
	quiet         bool
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	level := slog.LevelInfo
	if opts.quiet {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("dotenv not loaded", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		slog.Error("agent run failed", "error", err)
		os.Exit(1)
	}
}

// parseArgs accepts the objective before, between or after the flags.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	var (
		opts          options
		maxIterations int
		temperature   float64
	)
	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&maxIterations, "max-iterations", 50, "Maximum iterative prompt submissions (overrides AGENT_MAX_ITERATIONS)")
	fs.Float64Var(&temperature, "temperature", 0.2, "Sampling temperature for the model (overrides AGENT_TEMPERATURE)")
	fs.BoolVar(&opts.quiet, "quiet", false, "Only log warnings and errors, and skip the final summary")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), `Usage: agent [--max-iterations N] [--temperature T] [--quiet] "<objective>"`)
		fs.PrintDefaults()
	}

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return options{}, err
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		positional = append(positional, args[0])
		args = args[1:]
	}

	if len(positional) != 1 || strings.TrimSpace(positional[0]) == "" {
		fs.Usage()
		return options{}, fmt.Errorf("%w: exactly one objective is required", errUsage)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max-iterations":
			opts.maxIterations = &maxIterations
		case "temperature":
			opts.temperature = &temperature
		}
	})
	if opts.maxIterations != nil && *opts.maxIterations < 1 {
		fmt.Fprintln(stderr, "--max-iterations must be at least 1")
		return options{}, fmt.Errorf("%w: --max-iterations must be at least 1", errUsage)
	}
	opts.objective = positional[0]
	return opts, nil
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.maxIterations != nil {
		cfg.Agent.MaxIterations = *opts.maxIterations
	}
	if opts.temperature != nil {
		cfg.Agent.Temperature = *opts.temperature
	}

	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", provider.Name(), "model", provider.Model())

	var agentOpts []agent.Option

	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		if err := store.RunMigrations(cfg.Database.URL, migrationsDir); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		agentOpts = append(agentOpts, agent.WithRunStore(store.NewPostgresStore(pool)))
		slog.Info("run history enabled")
	}

	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		agentOpts = append(agentOpts, agent.WithProgressCache(redisCache))
		slog.Info("progress cache enabled")
	}

	a := agent.New(provider, portal.NewHTTPClient(cfg.Portal), agent.SettingsFromConfig(cfg), agentOpts...)
	report, runErr := a.Run(ctx, opts.objective)

	if !opts.quiet && report != nil {
		printSummary(stdout, report.Submissions)
	}
	return runErr
}

func printSummary(w io.Writer, subs []*models.Submission) {
	if len(subs) == 0 {
		return
	}
	fmt.Fprintln(w, "\nFinal results summary:")
	for _, s := range subs {
		fmt.Fprintf(w, "Iteration %d: Job %s -> [tool_calls: %d] %s\n",
			s.Iteration, s.JobID, s.UniqueToolCount, s.Prompt)
	}
}

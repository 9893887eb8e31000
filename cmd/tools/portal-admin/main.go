// cmd/tools/portal-admin/main.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/crypto/bcrypt"

	"induction-portal/internal/common/config"
	"induction-portal/internal/common/database"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/evaluation"
	"induction-portal/internal/store"
)

func main() {
	batchCmd := flag.NewFlagSet("evaluate-batch", flag.ExitOnError)
	evalCmd := flag.NewFlagSet("evaluate", flag.ExitOnError)
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	hashCmd := flag.NewFlagSet("hash-password", flag.ExitOnError)

	batchConfig := batchCmd.String("config", "", "Path to config file (default: configs/config.yaml)")
	evalConfig := evalCmd.String("config", "", "Path to config file (default: configs/config.yaml)")
	evalID := evalCmd.String("id", "", "Application ID to evaluate")
	migrateConfig := migrateCmd.String("config", "", "Path to config file (default: configs/config.yaml)")
	hashUser := hashCmd.String("user", "", "Reviewer login the hash is for")
	hashCost := hashCmd.Int("cost", bcrypt.DefaultCost, "bcrypt cost")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "evaluate-batch":
		batchCmd.Parse(os.Args[2:])
		err = runBatch(ctx, *batchConfig)

	case "evaluate":
		evalCmd.Parse(os.Args[2:])
		if *evalID == "" {
			fmt.Println("Error: id is required for evaluate.")
			evalCmd.Usage()
			os.Exit(1)
		}
		err = runEvaluate(ctx, *evalConfig, *evalID)

	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		err = runMigrate(ctx, *migrateConfig)

	case "hash-password":
		hashCmd.Parse(os.Args[2:])
		if *hashUser == "" {
			fmt.Println("Error: user is required for hash-password.")
			hashCmd.Usage()
			os.Exit(1)
		}
		err = runHash(*hashUser, *hashCost)

	default:
		help()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func help() {
	fmt.Println("Usage: portal-admin <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  evaluate-batch  Evaluate every application that has not been graded")
	fmt.Println("  evaluate        Evaluate one application (-id)")
	fmt.Println("  migrate         Apply the PostgreSQL schema migrations")
	fmt.Println("  hash-password   Print a reviewer entry with a bcrypt hash read from stdin")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(path)
}

// environment holds the pieces every evaluation command needs.
type environment struct {
	cfg     *config.Config
	log     logger.Logger
	store   store.Store
	locker  evaluation.Locker
	closers []func() error
}

func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

func setup(ctx context.Context, configPath string) (*environment, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	env := &environment{
		cfg: cfg,
		log: logger.NewStructured(cfg.Logging.Level, "console"),
	}

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, pg.Close)
		if err := pg.Ping(ctx); err != nil {
			env.Close()
			return nil, fmt.Errorf("postgres unreachable: %w", err)
		}
		env.store = store.NewPostgresStore(pg.DB, env.log)
	case config.StoreDriverSupabase:
		s, err := store.NewSupabaseStore(store.SupabaseConfig{
			URL:        cfg.Supabase.URL,
			APIKey:     cfg.Supabase.APIKey,
			Table:      cfg.Store.Table,
			HTTPClient: &http.Client{Timeout: config.GetDuration(cfg.Supabase.Timeout)},
		}, env.log)
		if err != nil {
			return nil, err
		}
		env.store = s
	default:
		return nil, fmt.Errorf("store driver %q keeps no data between processes; use postgres or supabase", cfg.Store.Driver)
	}

	// share the server's lock so a manual run cannot overlap a scheduled one
	if cfg.Database.Redis.Address != "" {
		rc, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.closers = append(env.closers, rc.Close)
		env.locker = rc
	}
	return env, nil
}

func (e *environment) evaluator() (*evaluation.Evaluator, error) {
	model, err := evaluation.NewScoringModel(e.cfg.Scoring.Provider, evaluation.ModelConfig{
		BaseURL:    e.cfg.Scoring.BaseURL,
		APIKey:     e.cfg.Scoring.APIKey,
		Model:      e.cfg.Scoring.Model,
		Timeout:    config.GetDuration(e.cfg.Scoring.Timeout),
		MaxRetries: e.cfg.Scoring.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	return evaluation.NewEvaluator(e.store, model, evaluation.GenerationOptions{
		Temperature:     e.cfg.Scoring.Temperature,
		MaxOutputTokens: e.cfg.Scoring.MaxOutputTokens,
	}, e.log), nil
}

func runBatch(ctx context.Context, configPath string) error {
	env, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	evaluator, err := env.evaluator()
	if err != nil {
		return err
	}
	batch := evaluation.NewBatchRunner(env.store, evaluator, env.locker, evaluation.BatchConfig{
		Delay:   config.GetDuration(env.cfg.Batch.Delay),
		LockKey: env.cfg.Batch.LockKey,
		LockTTL: config.GetDuration(env.cfg.Batch.LockTTL),
	}, nil, env.log)

	summary, err := batch.EvaluateAllUnevaluated(ctx)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func runEvaluate(ctx context.Context, configPath, id string) error {
	env, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	evaluator, err := env.evaluator()
	if err != nil {
		return err
	}
	result, err := evaluator.Evaluate(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Ping(ctx); err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}
	if err := pg.Migrate(); err != nil {
		return err
	}
	fmt.Println("Migrations applied")
	return nil
}

// runHash reads the password from the first line of stdin so it never
// lands in shell history.
func runHash(user string, cost int) error {
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}
	fmt.Printf("reviewers:\n  %s: '%s'\n", user, hash)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

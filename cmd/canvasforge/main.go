package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"canvasforge/internal/budget"
	"canvasforge/internal/config"
	"canvasforge/internal/llm"
	"canvasforge/internal/pipeline"
	"canvasforge/internal/server"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "canvasforge",
	Short: "canvasforge - Business Model Canvas generation service",
	Long: `canvasforge turns a topic and a research report into a validated
nine-block Business Model Canvas using Gemini structured output.

Every generation runs under a hard, persistent token allowance: tokens are
billed to the ledger whether an attempt succeeds or fails, and a full-size
attempt degrades to a compact one before giving up.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// serveCmd runs the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the canvas generation HTTP service",
	RunE:  runServe,
}

// generateCmd runs one pipeline pass from the command line.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a single canvas and print it as JSON",
	Long: `Runs the full acquisition pipeline once. The report text is read from
--report-file, or from stdin when the flag is omitted.`,
	RunE: runGenerate,
}

var (
	generateTopic      string
	generateReportFile string
)

// budgetCmd groups ledger inspection commands.
var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect the token ledger",
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show allowance, spend and recent usage history",
	RunE:  runBudgetStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	generateCmd.Flags().StringVarP(&generateTopic, "topic", "t", "", "canvas topic (required)")
	generateCmd.Flags().StringVarP(&generateReportFile, "report-file", "r", "", "file holding the research report text")
	_ = generateCmd.MarkFlagRequired("topic")

	budgetCmd.AddCommand(budgetStatusCmd)
	rootCmd.AddCommand(serveCmd, generateCmd, budgetCmd)
}

func main() {
	// Pick up GEMINI_API_KEY and friends from a local .env if present.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore selects the ledger backend from config.
func openStore(cfg *config.Config) (budget.Store, error) {
	switch cfg.Budget.Store {
	case config.StoreSQLite:
		return budget.NewSQLiteStore(cfg.Budget.Path)
	default:
		return budget.NewFileStore(cfg.Budget.Path)
	}
}

// buildScheduler wires the full pipeline: Gemini client, ledger, scheduler.
func buildScheduler(ctx context.Context, cfg *config.Config) (*pipeline.Scheduler, *budget.Ledger, budget.Store, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	ledger := budget.NewLedger(cfg.Budget.Allowance, store, logger)

	gen, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey: cfg.Gemini.APIKey,
		Model:  cfg.Gemini.Model,
	})
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	return pipeline.NewScheduler(gen, ledger, pipeline.DefaultAttempts(), logger), ledger, store, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, ledger, store, err := buildScheduler(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(sched, ledger, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.Server.Listen)
	})
	return g.Wait()
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	report, err := readReport(generateReportFile)
	if err != nil {
		return err
	}
	if n := utf8.RuneCountInString(report); n < 50 {
		return fmt.Errorf("report text must be at least 50 characters, got %d", n)
	}
	if utf8.RuneCountInString(generateTopic) < 2 {
		return fmt.Errorf("topic must be at least 2 characters")
	}

	ctx := context.Background()
	sched, _, store, err := buildScheduler(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := sched.Run(ctx, generateTopic, report)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(result.Canvas, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	fmt.Fprintf(os.Stderr, "tokens used: %d, remaining: %d/%d\n",
		result.TokensUsed, result.Snapshot.Remaining, result.Snapshot.Allowance)
	return nil
}

func readReport(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read report from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read report file: %w", err)
	}
	return string(data), nil
}

func runBudgetStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	ledger := budget.NewLedger(cfg.Budget.Allowance, store, logger)
	snap := ledger.Snapshot(ctx)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ALLOWANCE\tUSED\tREMAINING\n")
	fmt.Fprintf(w, "%d\t%d\t%d\n", snap.Allowance, snap.Used, snap.Remaining)
	if err := w.Flush(); err != nil {
		return err
	}

	history := ledger.History(ctx)
	if len(history) == 0 {
		return nil
	}
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "WHEN\tTOKENS\tLABEL\n")
	for _, rec := range history {
		fmt.Fprintf(w, "%s\t%d\t%s\n", rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Tokens, rec.Label)
	}
	return w.Flush()
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/cvlacsync/internal/cache"
	"github.com/ppiankov/cvlacsync/internal/extract"
	"github.com/ppiankov/cvlacsync/internal/model"
	"github.com/ppiankov/cvlacsync/internal/pipeline"
	"github.com/ppiankov/cvlacsync/internal/worker"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every pending researcher once",
	Long: `Run performs one pass over the pending work items:
- Ensure the work_items and extracted_facts tables exist
- List every item whose status is pending or unset
- Fetch and parse each profile, store its facts and mark it processed
- Print a summary of the pass

Items that fail stay pending for the next run. The command exits non-zero
only when the database cannot be prepared or listed.

Example:
  cvlacsync run
  cvlacsync run --workers 4 --extract-timeout 90s
  cvlacsync run --extractor llm --json
  DB_HOST=db DB_USER=app DB_PASS=secret cvlacsync run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runPass(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), newLogger(cfg))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("workers", 1, "number of items processed at once (1 keeps item order)")
	runCmd.Flags().Duration("extract-timeout", 2*time.Minute, "bound on a single extraction (0 disables)")
	runCmd.Flags().String("extractor", "cvlac", "extractor kind (cvlac, llm)")
	runCmd.Flags().Bool("no-cache", false, "disable the page cache (force fresh fetch)")
	runCmd.Flags().Bool("no-robots", false, "ignore robots.txt")
	runCmd.Flags().String("metrics-textfile", "", "write Prometheus metrics to this file after the pass")
	runCmd.Flags().Bool("json", false, "print the summary as JSON on stdout")

	_ = viper.BindPFlag("concurrency.workers", runCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("extractor.timeout", runCmd.Flags().Lookup("extract-timeout"))
	_ = viper.BindPFlag("extractor.kind", runCmd.Flags().Lookup("extractor"))
	_ = viper.BindPFlag("output.metrics_textfile", runCmd.Flags().Lookup("metrics-textfile"))
	_ = viper.BindPFlag("output.json", runCmd.Flags().Lookup("json"))
	bindNegatedFlag(runCmd, "no-cache", "cache.enabled")
	bindNegatedFlag(runCmd, "no-robots", "http.respect_robots")
}

// bindNegatedFlag turns a --no-x flag into key=false when it is set
func bindNegatedFlag(cmd *cobra.Command, flag, key string) {
	prev := cmd.PreRunE
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if prev != nil {
			if err := prev(cmd, args); err != nil {
				return err
			}
		}
		if set, _ := cmd.Flags().GetBool(flag); set {
			viper.Set(key, false)
		}
		return nil
	}
}

// runPass wires the store, fetcher and extractor from cfg and performs one pass
func runPass(ctx context.Context, cfg *model.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	s, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrSetup, err)
	}
	defer func() { _ = s.Close() }()

	extractor, err := extract.New(cfg.Extractor, newFetcher(cfg))
	if err != nil {
		return fmt.Errorf("configure extractor: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithWorkers(cfg.Concurrency.Workers),
		pipeline.WithExtractTimeout(cfg.Extractor.Timeout),
		pipeline.WithLogger(logger),
	}

	var registry *prometheus.Registry
	if cfg.Output.MetricsTextfile != "" {
		registry = prometheus.NewRegistry()
		opts = append(opts, pipeline.WithMetrics(pipeline.NewMetrics(registry)))
	}

	if !cfg.Output.JSON {
		printHeader(stderr, cfg)
	}

	summary, err := pipeline.NewRunner(s, extractor, opts...).Run(ctx)
	if err != nil {
		return err
	}

	if registry != nil {
		if err := pipeline.WriteTextfile(cfg.Output.MetricsTextfile, registry); err != nil {
			logger.Warn("write metrics textfile", "path", cfg.Output.MetricsTextfile, "err", err)
		}
	}

	if cfg.Output.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(stderr, summary)
	return nil
}

// newFetcher builds the page fetcher with the cache, robots and pacing cfg asks for
func newFetcher(cfg *model.Config) *pipeline.Fetcher {
	opts := []pipeline.FetcherOption{
		pipeline.WithLimiter(worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)),
	}
	if cfg.HTTP.RespectRobots {
		opts = append(opts, pipeline.WithRobots(pipeline.NewRobotsChecker(cfg.HTTP.UserAgent, cfg.HTTP.Timeout)))
	}
	if cfg.Cache.Enabled {
		opts = append(opts, pipeline.WithCache(
			cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL),
			cfg.Cache.DiskTTL,
		))
	}
	return pipeline.NewFetcher(cfg.HTTP, opts...)
}

func printHeader(w io.Writer, cfg *model.Config) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  cvlacsync pass\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Database:   %s\n", describeDatabase(cfg.Database))
	fmt.Fprintf(w, "  Extractor:  %s\n", cfg.Extractor.Kind)
	fmt.Fprintf(w, "  Workers:    %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(w, "  Cache:      %v\n", cfg.Cache.Enabled)
	fmt.Fprintf(w, "\n")
}

func printSummary(w io.Writer, summary *model.Summary) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Pass Complete\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Attempted:  %d\n", summary.Attempted)
	fmt.Fprintf(w, "  Succeeded:  %d\n", summary.Succeeded)
	fmt.Fprintf(w, "  Failed:     %d\n", summary.Failed)
	fmt.Fprintf(w, "  Facts:      %d\n", summary.FactsPersisted)
	fmt.Fprintf(w, "  Duration:   %s\n", summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "\n")

	for _, f := range summary.Failures {
		fmt.Fprintf(w, "✗ #%d %s [%s]: %s\n", f.ItemID, f.Label, f.Stage, f.Message)
	}
	if len(summary.Failures) > 0 {
		fmt.Fprintf(w, "\nFailed items stay pending and are retried on the next run.\n\n")
	}
}

func describeDatabase(db model.DatabaseConfig) string {
	if db.Driver == "sqlite" {
		return "sqlite " + db.Name
	}
	return fmt.Sprintf("%s %s@%s:%d/%s", db.Driver, db.User, db.Host, db.Port, db.Name)
}

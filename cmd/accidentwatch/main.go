package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/accidentwatch/internal/collect"
	"github.com/TobiSchelling/accidentwatch/internal/config"
	"github.com/TobiSchelling/accidentwatch/internal/database"
	"github.com/TobiSchelling/accidentwatch/internal/metrics"
	"github.com/TobiSchelling/accidentwatch/internal/pipeline"
	"github.com/TobiSchelling/accidentwatch/internal/report"
	"github.com/TobiSchelling/accidentwatch/internal/runner"
	"github.com/TobiSchelling/accidentwatch/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "accidentwatch",
	Short:   "Road accident news ingestion",
	Long:    "accidentwatch crawls Bangladeshi news sources for road accident reports, extracts structured records with an LLM, flags duplicates, and keeps yearly summaries.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if envFile := cfg.Extraction.EnvFile; envFile != "" {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("loading %s: %w", envFile, err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("accidentwatch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/accidentwatch/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, the alert feed, and the LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and run status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		driver, target := cfg.DatabaseTarget()
		if driver == "sqlite" {
			fmt.Printf("Database: %s (%s)\n\n", target, driver)
		} else {
			fmt.Printf("Database: %s\n\n", driver)
		}
		fmt.Println("Records:")
		fmt.Printf("  Total stored: %d\n", stats.TotalRecords)
		fmt.Printf("  Duplicates: %d\n", stats.DuplicateRecords)
		fmt.Printf("  Source articles: %d\n", stats.SourceURLs)
		if stats.LatestPublished != nil {
			fmt.Printf("  Latest published: %s\n", stats.LatestPublished.Format(time.DateTime))
		}
		fmt.Println("\nSummaries:")
		fmt.Printf("  Years: %d\n", stats.Years)

		runs, err := db.RecentRuns(5)
		if err != nil {
			return fmt.Errorf("getting runs: %w", err)
		}
		fmt.Printf("\nRuns: %d\n", stats.Runs)
		for _, r := range runs {
			outcome := "running"
			if r.FinishedAt != nil {
				outcome = r.Outcome
			}
			fmt.Printf("  %s  %-12s %d records, %d duplicates\n", r.StartedAt.Format(time.DateTime), outcome, r.Records, r.Duplicates)
		}
		return nil
	},
}

// --- crawl command ---

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the configured sources without extracting or storing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		known, err := db.KnownURLs()
		if err != nil {
			return err
		}
		latest, err := db.LatestPublishTime(collect.AlertSource)
		if err != nil {
			return err
		}

		fmt.Println("Crawling sources...")
		result := pipeline.NewCollector(cfg).Collect(ctx, collect.Request{
			Known:       known,
			LatestAlert: latest,
			Stopped:     func() bool { return ctx.Err() != nil },
		})

		fmt.Println("\nCrawl complete:")
		fmt.Printf("  New articles: %d\n", result.TotalFound)
		if len(result.Sources) > 0 {
			fmt.Println("\nArticles by source:")
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		for _, err := range result.Errors {
			fmt.Printf("  Error: %v\n", err)
		}
		return nil
	},
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: collect -> merge -> extract -> dedupe -> store -> summarize",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		pipe := pipeline.New(cfg, db)
		if dryRun {
			printResult(pipe.DryRun(ctx))
			return nil
		}

		r := runner.New(pipe.Run, runner.WithStore(db))
		if _, err := r.Start(); err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			if err := r.Stop(); err == nil {
				fmt.Println("\nStopping after the current article...")
			}
		}()
		r.Wait()

		st := r.Status()
		if st.LastResult == nil {
			return fmt.Errorf("%s", st.CurrentStep)
		}
		printResult(st.LastResult)
		fmt.Printf("\n%s\n", st.LastResult.Message)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Recompute the yearly summaries from stored records",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result := pipeline.New(cfg, db).Summarize(cmd.Context())
		if result.Error != "" {
			return errors.New(result.Error)
		}
		for _, s := range result.Summary {
			fmt.Printf("  %d: %d accidents, %d killed, %d injured\n", s.Year, s.TotalAccidents, s.TotalKilled, s.TotalInjured)
		}
		return nil
	},
}

func printResult(result *pipeline.Result) {
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and digest page",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		m := metrics.New()
		pipe := pipeline.New(cfg, db, pipeline.WithMetrics(m))
		r := runner.New(pipe.Run, runner.WithStore(db), runner.WithMetrics(m))

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.New(db, r, m).Serve(port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- export command ---

var (
	exportYear       int
	exportDuplicates bool
	exportOutput     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored accident records as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := db.ListRecords(database.ListOptions{
			Year:              exportYear,
			IncludeDuplicates: exportDuplicates,
		})
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := report.WriteCSV(w, records); err != nil {
			return err
		}
		if w != os.Stdout {
			fmt.Printf("Exported %d records to %s\n", len(records), exportOutput)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportYear, "year", 0, "Only export records published in this year")
	exportCmd.Flags().BoolVar(&exportDuplicates, "include-duplicates", false, "Include records flagged as duplicates")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
}

func openDB() (*database.DB, error) {
	driver, target := cfg.DatabaseTarget()
	if driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	return database.OpenDriver(driver, target)
}

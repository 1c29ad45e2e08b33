package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"blockmend/internal/batch"
	"blockmend/internal/config"
	"blockmend/internal/history"
	"blockmend/internal/logging"
	"blockmend/internal/pysrc"
	"blockmend/internal/rewrite"
	"blockmend/internal/scan"
	"blockmend/internal/signature"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	// fix/scan/watch flags
	dryRun        bool
	backup        bool
	jobs          int
	signaturePath string
	jsonOut       bool

	// history flags
	historyFile string
	historyN    int

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mend",
	Short: "blockmend - repair malformed Python exception blocks",
	Long: `blockmend finds a recurring class of broken try/except blocks in Python
source (a placeholder 'pass' body, mis-indented log-only handlers, and the
real logic stranded after the handler chain) and rewrites them into
well-formed blocks.

Repairs are conservative: a block that deviates from the known shape is
skipped, and no file is written unless its repaired form parses cleanly.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd)

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return logging.Initialize(logging.Options{
			DebugMode:  cfg.Logging.DebugMode || verbose,
			Dir:        cfg.Logging.Dir,
			Categories: cfg.Logging.Categories,
			Level:      cfg.Logging.Level,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	SilenceUsage: true,
}

// fixCmd repairs files in place.
var fixCmd = &cobra.Command{
	Use:   "fix [paths...]",
	Short: "Repair malformed exception blocks in place",
	Long: `Scans the given files, directories or glob patterns for the defect shape
and rewrites each match. With --dry-run, prints a unified diff of what would
change instead of writing.

Exit code is 0 when every file was handled (skipped blocks included), 1 when
any file failed validation or I/O.`,
	RunE: runFix,
}

// scanCmd reports defects without writing.
var scanCmd = &cobra.Command{
	Use:   "scan [paths...]",
	Short: "Report defect locations without modifying anything",
	RunE:  runScan,
}

// checkCmd parse-validates files.
var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Check that files parse as valid Python",
	Long: `Parses each file and reports the first syntax error, if any.
Exit code is 0 when every file parses, 1 otherwise.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

// watchCmd repairs continuously on change.
var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Watch targets and repair Python files as they change",
	RunE:  runWatch,
}

// historyCmd shows recorded runs.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded repair runs",
	RunE:  runHistory,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	for _, cmd := range []*cobra.Command{fixCmd, scanCmd, watchCmd} {
		cmd.Flags().StringVar(&signaturePath, "signature", "", "Defect signature file (YAML)")
		cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit reports as JSON")
	}
	fixCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute repairs and diffs without writing")
	fixCmd.Flags().BoolVar(&backup, "backup", false, "Write <path>.bak before overwriting")
	fixCmd.Flags().IntVar(&jobs, "jobs", 0, "Concurrent file repairs (0 = default)")

	historyCmd.Flags().StringVar(&historyFile, "file", "", "Show history for one file path")
	historyCmd.Flags().IntVarP(&historyN, "limit", "n", 10, "Number of entries to show")

	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlagOverrides lets explicit flags win over config file and env.
func applyFlagOverrides(cmd *cobra.Command) {
	if f := cmd.Flags().Lookup("dry-run"); f != nil && f.Changed {
		cfg.DryRun = dryRun
	}
	if f := cmd.Flags().Lookup("backup"); f != nil && f.Changed {
		cfg.Backup = backup
	}
	if f := cmd.Flags().Lookup("jobs"); f != nil && f.Changed {
		cfg.Jobs = jobs
	}
	if f := cmd.Flags().Lookup("signature"); f != nil && f.Changed {
		cfg.SignaturePath = signaturePath
	}
}

// resolveTargets prefers command-line paths over configured ones.
func resolveTargets(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(cfg.Targets) > 0 {
		return cfg.Targets, nil
	}
	return nil, fmt.Errorf("no targets: pass paths or set targets in the config file")
}

// newRepairer builds the repair pipeline from the resolved config.
func newRepairer() (*rewrite.Repairer, *signature.Signature, error) {
	sig := signature.Default()
	if cfg.SignaturePath != "" {
		loaded, err := signature.Load(cfg.SignaturePath)
		if err != nil {
			return nil, nil, err
		}
		sig = loaded
	}
	r := rewrite.New(sig, pysrc.NewValidator())
	r.DryRun = cfg.DryRun
	r.Backup = cfg.Backup
	return r, sig, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runFix(cmd *cobra.Command, args []string) error {
	targets, err := resolveTargets(args)
	if err != nil {
		return err
	}
	repairer, _, err := newRepairer()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	started := time.Now()
	summary, err := batch.NewRunner(repairer, cfg.Jobs).Run(ctx, targets)
	if err != nil {
		return err
	}

	if cfg.History.Enabled && !cfg.DryRun {
		recordRun(started, targets, summary)
	}

	if jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		printSummary(summary)
	}
	if summary.Failed() {
		return fmt.Errorf("%d file(s) failed", summary.FilesFailed)
	}
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	targets, err := resolveTargets(args)
	if err != nil {
		return err
	}
	sig := signature.Default()
	if cfg.SignaturePath != "" {
		if sig, err = signature.Load(cfg.SignaturePath); err != nil {
			return err
		}
	}

	paths, err := batch.ExpandTargets(targets)
	if err != nil {
		return err
	}

	type finding struct {
		Path  string      `json:"path"`
		Spans []scan.Span `json:"spans"`
	}
	scanner := scan.New(sig)
	var findings []finding
	total := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		blocks := scanner.Scan(string(data))
		if len(blocks) == 0 {
			continue
		}
		f := finding{Path: path}
		for _, b := range blocks {
			f.Spans = append(f.Spans, b.Span())
		}
		findings = append(findings, f)
		total += len(blocks)
	}

	if jsonOut {
		return printJSON(findings)
	}
	for _, f := range findings {
		for _, s := range f.Spans {
			fmt.Printf("%s:%d-%d\n", f.Path, s.StartLine, s.EndLine)
		}
	}
	fmt.Printf("%d defect(s) in %d of %d file(s)\n", total, len(findings), len(paths))
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	v := pysrc.NewValidator()
	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := v.Validate(data); err != nil {
			fmt.Printf("%s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("%s: ok\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed to parse", failed)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	targets, err := resolveTargets(args)
	if err != nil {
		return err
	}
	repairer, _, err := newRepairer()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	watcher := batch.NewWatcher(repairer, func(report *rewrite.Report) {
		if jsonOut {
			_ = printJSON(report)
			return
		}
		if report.Changed {
			fmt.Printf("%s: fixed %d block(s)\n", report.Path, report.BlocksFixed)
		}
	})

	fmt.Printf("Watching %v (Ctrl+C to stop)\n", targets)
	if err := watcher.Watch(ctx, targets); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.History.Enabled {
		return fmt.Errorf("history is not enabled; set history.enabled or BLOCKMEND_HISTORY_PATH")
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if historyFile != "" {
		results, err := store.FileHistory(historyFile, historyN)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(results)
		}
		for _, fr := range results {
			fmt.Printf("%s  %s  fixed=%d skipped=%d  %s\n",
				fr.StartedAt.Format(time.RFC3339), fr.Path,
				fr.BlocksFixed, fr.BlocksSkipped, fr.Status)
		}
		return nil
	}

	runs, err := store.RecentRuns(historyN)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(runs)
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  files=%d changed=%d fixed=%d skipped=%d\n",
			r.StartedAt.Format(time.RFC3339), r.ID,
			r.FilesScanned, r.FilesChanged, r.BlocksFixed, r.BlocksSkipped)
	}
	return nil
}

// recordRun persists one batch outcome; history failures never fail the run.
func recordRun(started time.Time, targets []string, summary *batch.Summary) {
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		logger.Warn("history store unavailable", zap.Error(err))
		return
	}
	defer store.Close()

	run := history.Run{
		ID:            uuid.NewString(),
		StartedAt:     started,
		Targets:       targets,
		FilesScanned:  summary.FilesScanned,
		FilesChanged:  summary.FilesChanged,
		FilesFailed:   summary.FilesFailed,
		BlocksFixed:   summary.BlocksFixed,
		BlocksSkipped: summary.BlocksSkipped,
		DryRun:        cfg.DryRun,
	}
	results := make([]history.FileResult, 0, len(summary.Reports))
	for _, rep := range summary.Reports {
		results = append(results, history.FileResult{
			RunID:         run.ID,
			Path:          rep.Path,
			BlocksFixed:   rep.BlocksFixed,
			BlocksSkipped: len(rep.BlocksSkippedAmbiguous),
			Status:        string(rep.FinalStatus),
			Error:         rep.Error,
		})
	}
	if err := store.Record(run, results); err != nil {
		logger.Warn("failed to record run", zap.Error(err))
	}
}

func printSummary(summary *batch.Summary) {
	for _, rep := range summary.Reports {
		switch {
		case rep.Error != "":
			fmt.Printf("%s: FAILED: %s\n", rep.Path, rep.Error)
		case rep.Changed && cfg.DryRun:
			fmt.Printf("%s: would fix %d block(s)\n%s", rep.Path, rep.BlocksFixed, rep.Diff)
		case rep.Changed:
			fmt.Printf("%s: fixed %d block(s)\n", rep.Path, rep.BlocksFixed)
		}
		for _, span := range rep.BlocksSkippedAmbiguous {
			fmt.Printf("%s:%d-%d: skipped (ambiguous)\n", rep.Path, span.StartLine, span.EndLine)
		}
	}
	fmt.Printf("%d file(s) scanned, %d changed, %d block(s) fixed, %d skipped, %d failed\n",
		summary.FilesScanned, summary.FilesChanged,
		summary.BlocksFixed, summary.BlocksSkipped, summary.FilesFailed)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

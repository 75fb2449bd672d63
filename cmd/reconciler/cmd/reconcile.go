package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ledger-reconciliation-service/cmd/reconciler/config"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/preferences"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/reporter"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	oursFiles   []string
	theirsFiles []string
	oursMap     map[string]string
	theirsMap   map[string]string
	outputFile  string
	remember    bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile our ledger with a counterparty ledger",
	Long: `Reconcile reads both ledgers (CSV or XLSX, several files per side are
stacked), normalizes them through the configured column mapping, nets lines
that share a document number, pairs documents and payments across sides and
rolls balances up by currency and month.

Column mappings come from --config, --ours-map/--theirs-map, or a mapping
remembered for the same file name with --remember.

Examples:
  # Mapping from a config file, console summary
  reconciler reconcile --config reconciler.yaml --ours ours.xlsx --theirs theirs.xlsx

  # Mapping from flags, workbook report with one sheet per category
  reconciler reconcile --ours ours.csv --theirs theirs.xlsx \
    --ours-map date_column=Tarih,document_column="Belge No",debit_column=Borç,credit_column=Alacak \
    --theirs-map date_column=Date,document_column=Invoice,amount_column=Amount,role=seller \
    --output report.xlsx --remember

  # Insurance registers keyed by policy and rider number
  reconciler reconcile --mode insurance --config policies.yaml \
    --ours register.xlsx --theirs broker.xlsx --format json`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringSliceVar(&oursFiles, "ours", nil, "our ledger file(s), CSV or XLSX (required)")
	reconcileCmd.Flags().StringSliceVar(&theirsFiles, "theirs", nil, "counterparty ledger file(s), CSV or XLSX (required)")
	reconcileCmd.Flags().StringToStringVar(&oursMap, "ours-map", nil, "our column mapping as setting=column pairs")
	reconcileCmd.Flags().StringToStringVar(&theirsMap, "theirs-map", nil, "counterparty column mapping as setting=column pairs")

	reconcileCmd.Flags().String("mode", "", "reconciliation mode: ledger or insurance (default ledger)")
	reconcileCmd.Flags().String("fx-policy", "", "foreign amount aggregation of netted lines: sum or max (default sum)")
	reconcileCmd.Flags().String("encoding", "", "CSV encoding, e.g. windows-1254")
	reconcileCmd.Flags().String("sheet", "", "XLSX sheet to read (default: first sheet)")

	reconcileCmd.Flags().StringP("format", "f", "", "report format: console, json, csv, xlsx (default: from --output extension, else console)")
	reconcileCmd.Flags().String("layout", "", "tabular report layout: multi or single (default multi)")
	reconcileCmd.Flags().Bool("include-matched", false, "list matched pairs in console and JSON reports")
	reconcileCmd.Flags().StringVarP(&outputFile, "output", "o", "", "report file (default: stdout)")
	reconcileCmd.Flags().BoolVar(&remember, "remember", false, "remember the column mappings for these file names")

	reconcileCmd.MarkFlagRequired("ours")
	reconcileCmd.MarkFlagRequired("theirs")

	viper.BindPFlag("mode", reconcileCmd.Flags().Lookup("mode"))
	viper.BindPFlag("fx_policy", reconcileCmd.Flags().Lookup("fx-policy"))
	viper.BindPFlag("input.encoding", reconcileCmd.Flags().Lookup("encoding"))
	viper.BindPFlag("input.sheet", reconcileCmd.Flags().Lookup("sheet"))
	viper.BindPFlag("report.format", reconcileCmd.Flags().Lookup("format"))
	viper.BindPFlag("report.layout", reconcileCmd.Flags().Lookup("layout"))
	viper.BindPFlag("report.include_matched", reconcileCmd.Flags().Lookup("include-matched"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	for _, f := range oursFiles {
		if err := validateInputFile(f, "our ledger file"); err != nil {
			return err
		}
	}
	for _, f := range theirsFiles {
		if err := validateInputFile(f, "counterparty ledger file"); err != nil {
			return err
		}
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return errors.FileError(errors.CodeFileNotFound, dir, err).
				WithSuggestion("create the output directory first")
		}
	}
	return nil
}

func validateInputFile(path, description string) error {
	if path == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil, nil)
	}
	if !parsers.IsSupported(path) {
		return errors.FileError(errors.CodeUnsupportedFile, path, nil)
	}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return errors.FileError(errors.CodeFileNotFound, path, err)
	case err != nil:
		return errors.FileError(errors.CodeFilePermission, path, err)
	case info.IsDir():
		return errors.FileError(errors.CodeUnsupportedFile, path, fmt.Errorf("%s is a directory", description))
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("cli")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := config.ApplyMapping(&cfg.Ours, oursMap); err != nil {
		return err
	}
	if err := config.ApplyMapping(&cfg.Theirs, theirsMap); err != nil {
		return err
	}

	format, err := resolveFormat(cfg.Report.Format, outputFile)
	if err != nil {
		return err
	}
	cfg.Report.Format = format

	prefs := openPreferences(cfg, log)
	if prefs != nil {
		defer prefs.Close()
		prefill(ctx, prefs, &cfg.Ours, oursFiles, log)
		prefill(ctx, prefs, &cfg.Theirs, theirsFiles, log)
	}

	reader := parsers.NewReader(afero.NewOsFs(), &cfg.Input)
	ours, err := reader.ReadFiles(ctx, oursFiles)
	if err != nil {
		return err
	}
	theirs, err := reader.ReadFiles(ctx, theirsFiles)
	if err != nil {
		return err
	}

	result, err := reconciler.NewService().Run(ctx, &reconciler.Request{
		Ours:   ours,
		Theirs: theirs,
		Config: &cfg.Config,
	})
	if err != nil {
		return err
	}

	if remember {
		if prefs == nil {
			log.Warn("Column mappings not remembered: preference store unavailable")
		} else {
			rememberMappings(ctx, prefs, cfg, log)
		}
	}

	generator, err := reporter.NewSafeReportGenerator(&cfg.Report, afero.NewOsFs(), log)
	if err != nil {
		return err
	}

	if outputFile != "" {
		written, err := generator.WriteFile(result, outputFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", written)
	} else if err := generator.GenerateReportSafely(result, cmd.OutOrStdout()); err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		printRunSummary(cmd, result)
	}
	return nil
}

// resolveFormat picks the configured format, else the one implied by the
// output file, else console. Binary formats need an output file.
func resolveFormat(configured reporter.OutputFormat, output string) (reporter.OutputFormat, error) {
	format := configured
	if format == "" && output != "" {
		if inferred, ok := reporter.FormatFromPath(output); ok {
			format = inferred
		}
	}
	if format == "" {
		format = reporter.FormatConsole
	}

	if !format.IsValid() {
		return "", errors.ConfigurationError(errors.CodeInvalidConfig, "report.format", format, nil).
			WithSuggestion("use console, json, csv or xlsx")
	}
	if format.IsBinary() && output == "" {
		return "", errors.ConfigurationError(errors.CodeConfigConflict, "report.format", format, nil).
			WithSuggestion("write workbooks to a file with --output report.xlsx")
	}
	return format, nil
}

// openPreferences opens the configured store. Problems are logged; the run
// continues without remembered mappings.
func openPreferences(cfg *config.RunConfig, log logger.Logger) preferences.Store {
	path := cfg.Preferences.Path
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.WithError(err).WithField("path", path).Warn("Preference store unavailable")
		return nil
	}

	store, err := preferences.OpenSQLite(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Preference store unavailable")
		return nil
	}
	if cfg.Preferences.CacheTTL > 0 {
		return preferences.NewCachedStore(store, cfg.Preferences.CacheTTL)
	}
	return store
}

// prefill replaces an empty side mapping with the one remembered for its first file
func prefill(ctx context.Context, prefs preferences.Store, side *parsers.SideConfig, files []string, log logger.Logger) {
	if len(files) == 0 || len(side.Columns()) > 0 {
		return
	}

	pref, ok, err := prefs.Get(ctx, files[0])
	if err != nil {
		log.WithError(err).Warn("Preference lookup failed")
		return
	}
	if ok {
		*side = pref.Config
		log.WithField("file", pref.FileName).Info("Using remembered column mapping")
	}
}

func rememberMappings(ctx context.Context, prefs preferences.Store, cfg *config.RunConfig, log logger.Logger) {
	sides := []struct {
		side   models.Side
		files  []string
		config parsers.SideConfig
	}{
		{models.SideOurs, oursFiles, cfg.Ours},
		{models.SideTheirs, theirsFiles, cfg.Theirs},
	}

	for _, s := range sides {
		for _, file := range s.files {
			pref := &preferences.Preference{FileName: file, Side: s.side, Config: s.config}
			if err := prefs.Save(ctx, pref); err != nil {
				log.WithError(err).WithField("file", file).Warn("Failed to remember column mapping")
			}
		}
	}
}

func printRunSummary(cmd *cobra.Command, result *reconciler.Result) {
	s := result.Summary
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "\nRun %s completed in %v\n", result.RunID, s.ProcessingDuration.Round(time.Millisecond))
	for _, stage := range s.Stages {
		fmt.Fprintf(w, "  %s\n", stage)
	}
	fmt.Fprintf(w, "Ours: %s\nTheirs: %s\n", s.OursStats, s.TheirsStats)
}

package cmd

import (
	"fmt"
	"os"
	"strings"

	"ledger-reconciliation-service/cmd/reconciler/config"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	envFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Two-party ledger reconciliation tool",
	Long: `Reconciler compares our ledger with a counterparty's ledger (current-account
statements or insurance policy registers), pairs the records of both sides,
reports amount differences and unmatched items, and rolls balances up by month.

Examples:
  reconciler config init reconciler.yaml
  reconciler reconcile --config reconciler.yaml --ours ours.xlsx --theirs theirs.xlsx
  reconciler reconcile --ours ours.csv --theirs jan.xlsx,feb.xlsx \
    --ours-map date_column=Tarih,document_column="Belge No",debit_column=Borç,credit_column=Alacak \
    --theirs-map date_column=Date,document_column=Invoice,amount_column=Amount,role=seller \
    --output report.xlsx
  reconciler serve --address :8080`,
	Version:           getVersionString(),
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return NewCLIErrorHandler(os.Stderr).HandleError(err)
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "run configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading RECONCILER_* variables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().String("prefs-db", config.DefaultPreferencesPath(), "column preference database; empty disables remembered mappings")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("preferences.path", rootCmd.PersistentFlags().Lookup("prefs-db"))
}

// initConfig loads the dotenv file, the environment and the config file, then
// installs the global logger.
func initConfig(cmd *cobra.Command, args []string) error {
	if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	viper.SetEnvPrefix("RECONCILER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		if err := config.ReadFile(viper.GetViper(), cfgFile); err != nil {
			return err
		}
	}

	logConfig := logger.DefaultConfig()
	logConfig.Format = logger.Format(viper.GetString("log.format"))
	if level := viper.GetString("log.level"); level != "" {
		logConfig.Level = logger.Level(level)
	}
	if viper.GetBool("verbose") {
		logConfig.Level = logger.DebugLevel
	}

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)

	if viper.ConfigFileUsed() != "" {
		log.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
	return nil
}

// loadEnvFile loads path into the environment. A missing default file is
// fine; a missing file the user asked for is not.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}

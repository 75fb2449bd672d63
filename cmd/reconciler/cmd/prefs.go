package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"ledger-reconciliation-service/cmd/reconciler/config"
	"ledger-reconciliation-service/internal/preferences"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage remembered column mappings",
}

var prefsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered column mappings",
	Args:  cobra.NoArgs,
	RunE: withPreferences(func(cmd *cobra.Command, args []string, store preferences.Store) error {
		prefs, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(prefs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No remembered column mappings")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tSIDE\tUPDATED\tMAPPING")
		for _, p := range prefs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.FileName, p.Side, p.UpdatedAt.Local().Format(time.DateTime), p.Config.String())
		}
		return tw.Flush()
	}),
}

var prefsShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the remembered column mapping of a file as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: withPreferences(func(cmd *cobra.Command, args []string, store preferences.Store) error {
		pref, ok, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return errors.ValidationError(errors.CodeMissingField, "preference", args[0], nil).
				WithSuggestion("run 'reconciler prefs list' to see remembered files")
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(pref)
	}),
}

var prefsForgetCmd = &cobra.Command{
	Use:   "forget <file>...",
	Short: "Forget the remembered column mapping of files",
	Args:  cobra.MinimumNArgs(1),
	RunE: withPreferences(func(cmd *cobra.Command, args []string, store preferences.Store) error {
		for _, file := range args {
			if err := store.Delete(cmd.Context(), file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", preferences.Key(file))
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsListCmd, prefsShowCmd, prefsForgetCmd)
}

func withPreferences(fn func(cmd *cobra.Command, args []string, store preferences.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		if cfg.Preferences.Path == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, "preferences.path", "", nil).
				WithSuggestion("pass --prefs-db or set RECONCILER_PREFERENCES_PATH")
		}

		store := openPreferences(cfg, logger.GetGlobalLogger().WithComponent("cli"))
		if store == nil {
			return errors.InternalError(errors.CodeStorageError, "open preferences", fmt.Errorf("cannot open %s", cfg.Preferences.Path))
		}
		defer store.Close()

		return fn(cmd, args, store)
	}
}

package cmd

import (
	"fmt"
	"os"
	"strings"

	"ledger-reconciliation-service/cmd/reconciler/config"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
)

var (
	templateMode  string
	templateForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Work with run configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a commented run configuration template",
	Long: `Init writes a run configuration with every setting at its default and a
sample column mapping. Without a file argument the template goes to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().StringVar(&templateMode, "mode", string(models.ModeLedger), "mode whose defaults the template holds: ledger or insurance")
	configInitCmd.Flags().BoolVar(&templateForce, "force", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	mode := models.Mode(strings.ToLower(templateMode))
	if !mode.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "mode", templateMode, nil).
			WithSuggestion("use 'ledger' or 'insurance'")
	}

	if len(args) == 0 {
		return config.WriteTemplate(cmd.OutOrStdout(), mode)
	}

	path := args[0]
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if templateForce {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return errors.FileError(errors.CodeFilePermission, path, err).
				WithSuggestion("use --force to overwrite it")
		}
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer f.Close()

	if err := config.WriteTemplate(f, mode); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
	return nil
}

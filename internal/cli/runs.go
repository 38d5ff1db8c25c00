package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/menuocr/internal/app"
)

var errNoDatabase = errors.New("DB_URL is not set")

var (
	exportOut   string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write recorded runs to an XLSX workbook",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var dbcheckCmd = &cobra.Command{
	Use:   "dbcheck",
	Short: "Check the audit database connection and schema",
	Args:  cobra.NoArgs,
	RunE:  runDBCheck,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "menu-runs.xlsx", "output XLSX file")
	exportCmd.Flags().IntVarP(&exportLimit, "limit", "n", 500, "newest runs to include")
	rootCmd.AddCommand(exportCmd, dbcheckCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app.App) error {
		if a.Exporter == nil {
			return errNoDatabase
		}
		b, err := a.Exporter.RunsXLSX(commandContext(cmd), exportLimit)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		if err := os.WriteFile(exportOut, b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", exportOut, err)
		}
		cmd.Printf("wrote %s (%d bytes)\n", exportOut, len(b))
		return nil
	})
}

func runDBCheck(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app.App) error {
		if a.Store == nil {
			return errNoDatabase
		}
		if err := a.Store.HealthCheck(commandContext(cmd), 5*time.Second); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		runs, err := a.Store.ListRuns(commandContext(cmd), 1)
		if err != nil {
			return err
		}
		cmd.Printf("database ok (%s), %d recent run(s) visible\n", a.Store.Dialect(), len(runs))
		return nil
	})
}

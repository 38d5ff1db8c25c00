package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/menuocr/internal/app"
	"github.com/joseph-ayodele/menuocr/internal/common"
)

var version = "dev"

var (
	configPath string
	verbose    bool
	logJSON    bool
)

// newApp wires the pipeline from the environment; tests replace it.
var newApp = func(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, app.NewLogger(cmd.ErrOrStderr(), verbose, logJSON))
}

var rootCmd = &cobra.Command{
	Use:   "menuocr",
	Short: "Transcribe menu photos with two OCR engines and validate them",
	Long: `menuocr runs OCR.space and a vision model on the same image, reconciles the
two transcriptions with a reasoning model and decides whether the text is a
restaurant menu. Configuration comes from the environment and the optional
TOML file named by MENUOCR_CONFIG.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if configPath != "" {
			return os.Setenv(common.ConfigFileEnv, configPath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file (overrides MENUOCR_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// withApp builds the pipeline for one command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	a, err := newApp(commandContext(cmd), cmd)
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}
	defer a.Close()
	return fn(a)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("menuocr version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/menuocr/internal/app"
	"github.com/joseph-ayodele/menuocr/internal/menu"
	"github.com/joseph-ayodele/menuocr/internal/server"
)

var (
	textFile       string
	scoreThreshold float64
)

var validateCmd = &cobra.Command{
	Use:   "validate [text]",
	Short: "Decide whether already transcribed text is a menu",
	Long: `Asks the reasoning model whether the text is a restaurant menu, falling back
to the heuristic classifier. Text comes from the argument, --file, or stdin
when neither is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var scoreCmd = &cobra.Command{
	Use:   "score [text]",
	Short: "Score text with the offline menu heuristic",
	Long: `Counts prices, section headings and priced line items. No provider is
called. Text comes from the argument, --file, or stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScore,
}

func init() {
	for _, c := range []*cobra.Command{validateCmd, scoreCmd} {
		c.Flags().StringVarP(&textFile, "file", "f", "", "read text from file")
	}
	scoreCmd.Flags().Float64Var(&scoreThreshold, "threshold", menu.DefaultThreshold, "menu threshold in (0,1]")
	rootCmd.AddCommand(validateCmd, scoreCmd)
}

func readText(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case len(args) == 1 && textFile != "":
		return "", errors.New("pass text either as an argument or with --file")
	case len(args) == 1:
		return args[0], nil
	case textFile != "":
		b, err := os.ReadFile(textFile)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", textFile, err)
		}
		return string(b), nil
	default:
		b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 4*server.MaxTextRunes))
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	text, err := readText(cmd, args)
	if err != nil {
		return err
	}
	return withApp(cmd, func(a *app.App) error {
		out, err := a.Menus.Validate(commandContext(cmd), text)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	})
}

func runScore(cmd *cobra.Command, args []string) error {
	text, err := readText(cmd, args)
	if err != nil {
		return err
	}
	svc := server.NewMenuService(nil, nil, menu.NewHeuristic(scoreThreshold), nil)
	out, err := svc.Score(text)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

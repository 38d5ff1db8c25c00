package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/app"
	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/ocr"
)

var processCmd = &cobra.Command{
	Use:   "process [image]",
	Short: "Transcribe an image and decide whether it is a menu",
	Long: `Runs both OCR engines, reconciles their output and validates the result.
The image may be a local file, an http(s) URL, a data: URI, base64 data or
azblob://container/blob.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var ocrEngine string

var ocrCmd = &cobra.Command{
	Use:   "ocr [image]",
	Short: "Transcribe an image without menu validation",
	Long: `Runs OCR only. With --engine both (the default) the two transcriptions are
reconciled; ocrspace or maverick calls that single engine.`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

func init() {
	ocrCmd.Flags().StringVar(&ocrEngine, "engine", "both", "ocrspace, maverick or both")
	rootCmd.AddCommand(processCmd, ocrCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app.App) error {
		out, err := a.LocalMenus.Process(commandContext(cmd), args[0])
		if err != nil {
			if out.Decision == constants.DecisionRetry {
				cmd.PrintErrf("run %s: decision %s\n", out.RunID, out.Decision)
			}
			return fmt.Errorf("process failed: %w", err)
		}
		return printJSON(cmd, out)
	})
}

func runOCR(cmd *cobra.Command, args []string) error {
	engine := strings.ToLower(strings.TrimSpace(ocrEngine))
	switch engine {
	case "both", constants.EngineOCRSpace, constants.EngineMaverick:
	default:
		return common.InvalidInput(fmt.Sprintf("unknown engine %q", ocrEngine))
	}

	return withApp(cmd, func(a *app.App) error {
		ctx := commandContext(cmd)
		img, err := a.Resolver.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		if engine == "both" {
			res, err := a.Arbiter.ProcessImageWithBothOCR(ctx, img)
			if err != nil {
				return fmt.Errorf("ocr failed: %w", err)
			}
			return printJSON(cmd, res)
		}

		var e ocr.Engine = a.Structured
		if engine == constants.EngineMaverick {
			e = a.Vision
		}
		opts := ocr.DefaultOptions()
		opts.Language = a.Config.OCRSpace.Language
		opts.Engine = a.Config.OCRSpace.Engine
		res, err := e.Extract(ctx, img, opts)
		if err != nil {
			return fmt.Errorf("ocr failed: %w", err)
		}
		return printJSON(cmd, res)
	})
}

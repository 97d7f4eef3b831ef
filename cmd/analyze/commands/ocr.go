package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"property-analyzer/internal/ocr"
	"property-analyzer/internal/ocr/scoring"
)

var ocrOutput string

var ocrCmd = &cobra.Command{
	Use:   "ocr <file.pdf>",
	Short: "Run every OCR backend on one PDF and compare their scores",
	Args:  cobra.ExactArgs(1),
	RunE:  runOCR,
}

func init() {
	ocrCmd.Flags().StringVarP(&ocrOutput, "output", "o", "", "write the selected text to this path")
	rootCmd.AddCommand(ocrCmd)
}

func runOCR(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return err
	}

	backends, err := ocr.NewBackends(cfg.OCR.Backends, ocr.Options{
		Language:    cfg.OCR.Language,
		DPI:         cfg.OCR.DPI,
		OCRmyPDFBin: cfg.OCR.OCRmyPDFBin,
		PdftoppmBin: cfg.OCR.PdftoppmBin,
		TempDir:     cfg.WorkDir,
	})
	if err != nil {
		return err
	}

	outcomes := ocr.RunAll(context.Background(), backends, path, cfg.OCR.BackendTimeout)
	weights := scoring.Weights{Words: cfg.OCR.WeightWords, Clean: cfg.OCR.WeightClean, Length: cfg.OCR.WeightLength}
	cands := scoring.ScoreAll(outcomes, weights)
	scores := make(map[string]float64, len(cands))
	for _, c := range cands {
		scores[c.Backend] = c.Score
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKEND\tSTATUS\tCHARS\tSCORE\tDURATION")
	for _, o := range outcomes {
		if !o.Succeeded() {
			fmt.Fprintf(tw, "%s\tfailed: %v\t-\t-\t%s\n", o.Backend, o.Err, o.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(tw, "%s\tok\t%d\t%.3f\t%s\n", o.Backend, len(o.Text), scores[o.Backend], o.Duration.Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	best, err := scoring.Select(cands, cfg.OCR.Priority)
	if err != nil {
		return err
	}
	out.Success("selected %s (%.3f)", best.Backend, best.Score)

	if ocrOutput != "" {
		if err := os.WriteFile(ocrOutput, []byte(best.Text), 0o644); err != nil {
			return fmt.Errorf("write text: %w", err)
		}
	}
	return nil
}

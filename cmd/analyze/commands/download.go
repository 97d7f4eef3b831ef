package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"property-analyzer/internal/portal"
)

var (
	downloadDir        string
	downloadLimit      int
	downloadNoHeadless bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <query>",
	Short: "Download recorded documents for a query without analyzing them",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

var installBrowsersCmd = &cobra.Command{
	Use:   "install-browsers",
	Short: "Install the playwright driver and Chromium",
	RunE: func(cmd *cobra.Command, args []string) error {
		return portal.InstallBrowsers()
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadDir, "download-dir", "d", "", "target directory (default Boulder_PDFs_YYYY-MM-DD)")
	downloadCmd.Flags().IntVarP(&downloadLimit, "limit", "l", 1, "number of documents to download")
	downloadCmd.Flags().BoolVar(&downloadNoHeadless, "no-headless", false, "show the browser window")
	rootCmd.AddCommand(downloadCmd, installBrowsersCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := downloadDir
	if dir == "" {
		dir = "Boulder_PDFs_" + time.Now().Format("2006-01-02")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	dl := portal.NewPlaywrightDownloader(portal.Options{
		BaseURL:      cfg.Portal.BaseURL,
		Username:     cfg.Portal.Username,
		Password:     cfg.Portal.Password,
		StorageState: cfg.Portal.StorageState,
		Headless:     cfg.Portal.Headless && !downloadNoHeadless,
		Timeout:      cfg.Portal.Timeout,
	})
	spin := out.NewSpinner("Searching portal for " + args[0])
	spin.Start()
	paths, err := dl.Download(ctx, args[0], downloadLimit, dir)
	spin.Stop()
	if err != nil {
		out.Error("%v", err)
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), filepath.Clean(p))
	}
	out.Success("downloaded %d documents to %s", len(paths), dir)
	return nil
}

package main

import (
	"github.com/muradrava/reportsync/internal/services/viewer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	listenAddr string
	viewerDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report viewer",
	Long: `Serve a page showing the most recent report image with zoom and download.
When no report is found all images are listed and an image can be uploaded for viewing.`,
	RunE: serveViewer,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides viewer.listen)")
	serveCmd.Flags().StringVar(&viewerDir, "dir", "", "reports directory (overrides viewer.dir)")
}

func serveViewer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Viewer.Listen = listenAddr
	}
	if viewerDir != "" {
		cfg.Viewer.Dir = viewerDir
	}

	srv, err := viewer.NewServer(log.Logger, cfg.Viewer)
	if err != nil {
		log.Error().Err(err).Msg("failed to create viewer")
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error().Err(err).Msg("viewer failed")
		return err
	}
	return nil
}

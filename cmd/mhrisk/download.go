package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mhrisk/pkg/acquire"
	"mhrisk/pkg/logger"
)

var (
	downloadLong = `
		Downloads the dataset archive and extracts it into the raw data directory.`

	downloadExample = `
		# Download the UCI archive into data/raw
		mhrisk download

		# Download a mirror into another directory
		mhrisk download --url https://example.com/maternal.zip --out /tmp/raw`
)

func newDownloadCmd(a *app) *cobra.Command {
	var url, out string
	cmd := &cobra.Command{
		Use:     "download",
		Short:   "Download and extract the raw dataset",
		Long:    longDesc(downloadLong),
		Example: examples(downloadExample),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("url") {
				a.cfg.Data.URL = url
			}
			if cmd.Flags().Changed("out") {
				a.cfg.Data.RawDir = out
			}
			files, err := a.download(cmd.Context())
			if err != nil {
				return err
			}
			for _, f := range files {
				cmd.Printf("extracted %s\n", f)
			}

			return nil
		},
	}
	cmd.Flags().StringVarP(&url, "url", "u", "", "Archive URL (default from config)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Directory the archive is extracted into (default from config)")

	return cmd
}

func (a *app) download(ctx context.Context) ([]string, error) {
	var files []string
	params := map[string]any{"url": a.cfg.Data.URL, "dir": a.cfg.Data.RawDir}
	err := a.stage("download", params, func(lggr logger.Logger) (map[string]float64, error) {
		var err error
		files, err = acquire.NewDownloader(lggr).Download(ctx, a.cfg.Data.URL, a.cfg.Data.RawDir)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", a.cfg.Data.URL, err)
		}

		return map[string]float64{"files": float64(len(files))}, nil
	})

	return files, err
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command playkit resolves OVP media entries, probes DASH DRM and adapts
// playback URLs, either one-shot or as an HTTP service.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ManuGH/playkit/internal/config"
	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/ManuGH/playkit/internal/version"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "playkit",
		Short:         "OVP media entry resolver and DASH DRM probe",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (YAML); defaults to $PLAYKIT_CONFIG")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newServeCmd(opts),
		newResolveCmd(opts),
		newProbeCmd(opts),
		newAdaptCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and configures the global logger. Logs go to
// stderr so command output on stdout stays machine readable.
func (o *rootOptions) load() (*config.Loader, config.AppConfig, error) {
	path := strings.TrimSpace(o.configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("PLAYKIT_CONFIG"))
	}
	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, cfg, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Output: os.Stderr, Version: cfg.Version})
	return loader, cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
			return err
		},
	}
}

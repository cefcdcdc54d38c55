// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ManuGH/playkit/internal/drm"
	"github.com/ManuGH/playkit/internal/playback"
	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
)

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var ks string
	cmd := &cobra.Command{
		Use:   "resolve <entryID>",
		Short: "Resolve an OVP entry into a media entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := opts.load()
			if err != nil {
				return err
			}
			entryCache, closer, err := newEntryCache(cmd.Context(), cfg.Cache)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()
			entries := newEntryLoader(cfg, entryCache)

			session := sessionFrom(cfg.OVP)
			if ks != "" {
				session = session.WithKS(ks)
			}
			entry, err := entries.LoadEntry(cmd.Context(), session, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), struct {
				ID         string `json:"id"`
				DurationMs int64  `json:"durationMs"`
				Sources    any    `json:"sources"`
			}{entry.ID, entry.DurationMs(), entry.Sources})
		},
	}
	cmd.Flags().StringVar(&ks, "ks", "", "session to use instead of the configured one")
	return cmd
}

func newProbeCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "probe <manifest>",
		Short: "Probe a DASH manifest for Widevine init data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := opts.load()
			if err != nil {
				return err
			}
			res, err := drm.Probe(cmd.Context(), args[0],
				drm.WithFetcher(drm.NewMultiFetcher(cfg.DRM.FetchTimeout, true)))
			if err != nil {
				return err
			}
			if out != "" {
				if !res.HasWidevine() {
					return fmt.Errorf("no Widevine init data in %s", args[0])
				}
				// The raw pssh box is what license servers expect as init data.
				if err := renameio.WriteFile(out, res.WidevineInitData, 0o644); err != nil {
					return fmt.Errorf("write init data: %w", err)
				}
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the Widevine pssh box to this file")
	return cmd
}

func newAdaptCmd(opts *rootOptions) *cobra.Command {
	var sessionID, appName string
	cmd := &cobra.Command{
		Use:   "adapt <url>",
		Short: "Decorate a playManifest URL with session parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := opts.load()
			if err != nil {
				return err
			}
			if appName == "" {
				appName = cfg.Playback.ApplicationName
			}
			player := playback.NewSessionPlayer(sessionID)
			playback.Install(player, appName)
			adapted, err := player.AdaptURL(args[0])
			if err != nil {
				return fmt.Errorf("invalid url: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), adapted)
			return err
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "play session id; generated when empty")
	cmd.Flags().StringVar(&appName, "app", "", "application name sent as referrer")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

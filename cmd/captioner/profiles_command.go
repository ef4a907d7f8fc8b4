package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/billtruong003/video-to-subtitle-converter/internal/config"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcoder"
)

func newProfilesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the encoding quality tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			profiles := transcoder.NewProfileTable(cfg.Codecs())
			rows := make([][]string, 0)
			for _, p := range profiles.All() {
				tier := p.Tier
				if tier == cfg.Pipeline.DefaultQuality {
					tier += " (default)"
				}
				rows = append(rows, []string{
					tier,
					p.Resolution,
					strconv.Itoa(p.CRF),
					p.Preset,
					p.VideoCodec,
					p.AudioCodec + " " + p.AudioBitrate,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Tier", "Resolution", "CRF", "Preset", "Video", "Audio"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

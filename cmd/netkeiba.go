package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pagecrawl/internal/sitekit"
	"github.com/JakeFAU/pagecrawl/internal/sites/netkeiba"
)

func newNetkeibaCmd(opts *rootOptions) *cobra.Command {
	var (
		kind    string
		year    int
		baseURL string
	)
	cmd := &cobra.Command{
		Use:   "netkeiba",
		Short: "Collect the races or horses of one year from db.netkeiba.com",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if kind != "race" && kind != "horse" {
				return fmt.Errorf("invalid type %q: want race or horse", kind)
			}
			return opts.run(cmd, "netkeiba", func(ctx context.Context, env *sitekit.Env) error {
				scraper, err := netkeiba.New(env, baseURL)
				if err != nil {
					return err
				}
				if kind == "horse" {
					return scraper.CollectHorses(ctx, year)
				}
				return scraper.CollectRaces(ctx, year)
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "race", "what to collect: race or horse")
	cmd.Flags().IntVarP(&year, "year", "y", 0, "race year or horse birth year")
	cmd.Flags().StringVar(&baseURL, "base-url", netkeiba.DefaultBaseURL, "database host")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

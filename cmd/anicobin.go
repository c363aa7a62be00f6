package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pagecrawl/internal/sites/anicobin"
	"github.com/JakeFAU/pagecrawl/internal/sitekit"
)

func newAnicobinCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "anicobin URL",
		Short: "Download the pictures of every post on an anicobin list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL := args[0]
			return opts.run(cmd, "anicobin", func(ctx context.Context, env *sitekit.Env) error {
				return anicobin.Collect(ctx, env, baseURL)
			})
		},
	}
}

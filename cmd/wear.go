package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pagecrawl/internal/sitekit"
	"github.com/JakeFAU/pagecrawl/internal/sites/wear"
)

func newWearCmd(opts *rootOptions) *cobra.Command {
	var pageStart, pageEnd int
	cmd := &cobra.Command{
		Use:   "wear URL",
		Short: "Collect the galleries of every user on a wear.jp user list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pageStart < 1 || pageEnd < pageStart {
				return fmt.Errorf("invalid page range %d..%d", pageStart, pageEnd)
			}
			listURL := args[0]
			return opts.run(cmd, "wear", func(ctx context.Context, env *sitekit.Env) error {
				return wear.CollectUsers(ctx, env, listURL, pageStart, pageEnd)
			})
		},
	}
	cmd.Flags().IntVar(&pageStart, "pagestart", 0, "first user list page")
	cmd.Flags().IntVar(&pageEnd, "pageend", 0, "last user list page")
	_ = cmd.MarkFlagRequired("pagestart")
	_ = cmd.MarkFlagRequired("pageend")
	return cmd
}

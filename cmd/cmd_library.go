package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/tunesession/internal/app"
)

func newRecentCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "List recently played items, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				items, err := a.Library().Recent(ctx)
				if err != nil {
					return err
				}
				return printItems(cmd.OutOrStdout(), items, "")
			})
		},
	}
}

func newFavouritesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "favourites",
		Aliases: []string{"favorites", "likes"},
		Short:   "List liked items",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				items, err := a.Library().Favourites(ctx)
				if err != nil {
					return err
				}
				return printItems(cmd.OutOrStdout(), items, "")
			})
		},
	}
}

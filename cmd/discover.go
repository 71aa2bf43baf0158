package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/paper-annotator/internal/app"
)

func newDiscoverCmd() *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List discovered papers as JSON lines without downloading them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, base *app.App) error {
				a := opts.apply(base)
				items, err := a.Discoverer().Discover(ctx)
				if err != nil {
					return fmt.Errorf("discover papers: %w", err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, item := range items {
					if err := enc.Encode(item); err != nil {
						return fmt.Errorf("write item: %w", err)
					}
				}
				return nil
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

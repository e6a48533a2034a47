package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewDeleteChainedCommand creates the delete-chained command.
func NewDeleteChainedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-chained <height>",
		Short: "Delete stored chained states at or below a height",
		Long: `Delete stored chained states at or below height, checkpoints included.
The latest state is always kept. Rollback cannot go below what remains.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			height, err := parseHeight(args[0])
			if err != nil {
				return err
			}
			return withApp(rootOpts, cmd, needs{}, func(ctx context.Context, a *app, f *OutputFormatter) error {
				n, err := a.svc.DeleteChainedStateUpTo(ctx, height)
				if err != nil {
					return fail(f, "delete failed", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]any{"deleted": n, "up_to": height})
				}
				return f.Success(fmt.Sprintf("deleted %d chained states up to %d", n, height))
			})
		},
	}
}

func parseHeight(s string) (int64, error) {
	h, err := strconv.ParseInt(s, 10, 64)
	if err != nil || h <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid height %q", s))
	}
	return h, nil
}

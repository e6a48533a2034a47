package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stealth-startup/openexchange/internal/server"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the genesis state and payment records",
		Long: `Create the genesis exchange state at the configured genesis block, an
empty payment record for it, and the static asset descriptions.

Fails if the store already holds a chained state.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, needs{assets: true}, runInit)
		},
	}
}

func runInit(ctx context.Context, a *app, f *OutputFormatter) error {
	if err := a.svc.Init(ctx); err != nil {
		if errors.Is(err, server.ErrAlreadyInitialized) {
			return fail(f, "init", NewExitError(ExitCommandError, err.Error()))
		}
		return fail(f, "init failed", err)
	}
	st := a.svc.Snapshot()
	if f.Format == "json" {
		return f.Success(map[string]any{"height": st.Height(), "hash": st.Hash(), "run_id": a.svc.RunID()})
	}
	return f.Success(fmt.Sprintf("initialized at %d %s", st.Height(), st.Hash()))
}

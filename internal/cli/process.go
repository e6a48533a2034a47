package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/stealth-startup/openexchange/internal/server"
)

// ProcessOptions holds flags for the process command.
type ProcessOptions struct {
	*RootOptions
	UntilTip bool
}

// ProcessStep is one ProcessNextBlock outcome.
type ProcessStep struct {
	Result server.Result `json:"result"`
	Height int64         `json:"height"`
	Hash   string        `json:"hash"`
}

// NewProcessCommand creates the process command.
func NewProcessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProcessOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process the next confirmed block",
		Long: `Pay any unpaid obligations of the current height, then apply the next
confirmed block. A block that does not link to the current state rolls the
state back one height instead.

Exit codes:
  0  done
  1  consistency violation, operator action needed
  2  command error
  3  chain source, wallet or store unavailable, retry later`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, needs{assets: true, chain: true}, func(ctx context.Context, a *app, f *OutputFormatter) error {
				return runProcess(ctx, opts, a, f)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.UntilTip, "until-tip", false, "keep processing until no confirmed block is left")
	return cmd
}

func runProcess(ctx context.Context, opts *ProcessOptions, a *app, f *OutputFormatter) error {
	var steps []ProcessStep
	for {
		res, err := a.svc.ProcessNextBlock(ctx)
		if err != nil {
			return fail(f, "process failed", err)
		}
		st := a.svc.Snapshot()
		steps = append(steps, ProcessStep{Result: res, Height: st.Height(), Hash: st.Hash()})
		if f.Format != "json" {
			_ = f.Success(describe(res, st))
		}
		if !opts.UntilTip || res == server.ResultNoNewBlock {
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}
	}
	if f.Format == "json" {
		return f.Success(steps)
	}
	return nil
}

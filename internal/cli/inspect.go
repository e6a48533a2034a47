package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/creachadair/atomicfile"
	"github.com/spf13/cobra"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Out string
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect [height]",
		Short: "Dump a chained state",
		Long: `Print a human-readable dump of the chained state at height, or of the
latest state. With --out the dump replaces the file atomically.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var height int64
			if len(args) == 1 {
				h, err := parseHeight(args[0])
				if err != nil {
					return err
				}
				height = h
			}
			return withApp(rootOpts, cmd, needs{}, func(ctx context.Context, a *app, f *OutputFormatter) error {
				return runInspect(ctx, opts, height, a, f)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the dump to this file")
	return cmd
}

func runInspect(ctx context.Context, opts *InspectOptions, height int64, a *app, f *OutputFormatter) error {
	dump, err := a.svc.Inspect(ctx, height)
	if err != nil {
		return fail(f, "inspect failed", err)
	}
	if opts.Out == "" {
		if f.Format == "json" {
			return f.Success(map[string]any{"dump": dump})
		}
		_, err := fmt.Fprint(f.Writer, dump)
		return err
	}

	if _, err := atomicfile.WriteAll(opts.Out, strings.NewReader(dump), 0o644); err != nil {
		return fail(f, "write dump", err)
	}
	f.VerboseLog("wrote %d bytes to %s", len(dump), opts.Out)
	if f.Format == "json" {
		return f.Success(map[string]any{"out": opts.Out})
	}
	return f.Success("wrote " + opts.Out)
}

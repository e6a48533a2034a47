package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stealth-startup/openexchange/internal/server"
)

// NewPaymentsCommand creates the payments command and its resolve subcommand.
func NewPaymentsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments [height]",
		Short: "Show a payment record",
		Long: `Show the payment record of height, or the latest record that sent a
transaction. Heights that still owe payments are listed too.`,
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
				return runPayments(ctx, height, a, f)
			})
		},
	}
	cmd.AddCommand(newResolveCommand(rootOpts))
	return cmd
}

func runPayments(ctx context.Context, height int64, a *app, f *OutputFormatter) error {
	h, rec, err := a.svc.InspectPayments(ctx, height)
	if err != nil {
		return fail(f, "payments", err)
	}
	unsettled, err := a.svc.Unsettled(ctx)
	if err != nil {
		return fail(f, "payments", err)
	}
	if f.Format == "json" {
		return f.Success(map[string]any{"height": h, "record": rec, "unsettled": unsettled})
	}
	var b strings.Builder
	if err := server.DumpPayments(&b, h, rec); err != nil {
		return err
	}
	if len(unsettled) > 0 {
		fmt.Fprintf(&b, "unsettled heights %v\n", unsettled)
	}
	_, err = fmt.Fprint(f.Writer, b.String())
	return err
}

// ResolveOptions holds flags for payments resolve.
type ResolveOptions struct {
	*RootOptions
	Sent   string
	Unsent bool
}

func newResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "resolve <height> (--sent <tx> | --unsent)",
		Short: "Settle a payment batch left pending by a crash",
		Long: `A crash between handing a batch to the wallet and recording the result
leaves the batch pending and stops the replay. Check the wallet, then
either record the transaction that went out (--sent) or return the
recipients to unpaid so they are sent again (--unsent).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			height, err := parseHeight(args[0])
			if err != nil {
				return err
			}
			if (opts.Sent != "") == opts.Unsent {
				return NewExitError(ExitCommandError, "exactly one of --sent or --unsent is required")
			}
			return withApp(rootOpts, cmd, needs{}, func(ctx context.Context, a *app, f *OutputFormatter) error {
				if err := a.svc.ResolvePending(ctx, height, opts.Sent); err != nil {
					return fail(f, "resolve failed", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]any{"height": height, "sent": opts.Sent})
				}
				return f.Success(fmt.Sprintf("resolved pending batch at %d", height))
			})
		},
	}
	cmd.Flags().StringVar(&opts.Sent, "sent", "", "hash of the transaction the batch went out in")
	cmd.Flags().BoolVar(&opts.Unsent, "unsent", false, "the batch never went out")
	return cmd
}

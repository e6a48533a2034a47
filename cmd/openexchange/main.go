// Command openexchange replays the exchange chain and settles its payments.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stealth-startup/openexchange/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

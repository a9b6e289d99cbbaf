package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kubilitics/kubilitics-gate/internal/cli"
)

func main() {
	// SIGTERM from the CI runner cancels the run; a validation window in
	// progress ends with exit 2.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root := cli.NewRootCommand()
	err := root.ExecuteContext(ctx)
	stop()

	if err != nil && !cli.Silent(err) {
		fmt.Fprintln(os.Stderr, "kubilitics-gate:", err)
	}
	os.Exit(cli.ExitCode(err))
}

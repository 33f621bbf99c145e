// Command taskpool runs background task patterns on a bounded worker pool
// and prints their progress and results.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vnykmshr/taskpool/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

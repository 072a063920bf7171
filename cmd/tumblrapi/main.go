package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/guarzo/tumblrapi/internal/cli"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCmd(version).ExecuteContext(ctx); err != nil {
		cli.ReportError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

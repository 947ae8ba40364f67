package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apresai/roleplay/internal/cli"
	"github.com/apresai/roleplay/internal/observability"
)

var initTracer = observability.InitTracer

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code. Deferred cleanup, including the span
// flush, happens before main exits.
func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if tp, err := initTracer(ctx, "roleplay-cli", cli.Version); err == nil {
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			tp.Shutdown(flushCtx)
		}()
	}

	if err := cli.Execute(ctx, args); err != nil {
		return 1
	}
	return 0
}

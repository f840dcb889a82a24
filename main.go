// ./main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/gandalf-cli/cmd"
)

// main is the entry point for the gandalf-cli application.
func main() {
	// Interrupt signals cancel the command context so the browser session
	// can persist its state before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}

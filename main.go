// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/scalpel-e2e/cmd"
)

// main is the entry point for the scalpel-e2e CLI.
func main() {
	// Interrupts cancel the run; unfinished tests are reported as skipped.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cmd.Execute(ctx)
	stop()
	os.Exit(code)
}

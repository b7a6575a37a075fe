// Command atlasreg registers subject T1 volumes to MNI space with FSL and
// carries the Hammers label atlas into each subject's native space.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	defer a.teardown()

	root := newRootCmd(a)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		a.log.WithError(err).Error("atlasreg failed")
		return 1
	}
	return 0
}

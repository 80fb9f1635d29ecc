package main

import (
	"context"
	"fmt"
	"os"

	"github.com/iudanet/handsync/internal/client/cli"
	"github.com/iudanet/handsync/internal/client/iocli"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	root := cli.NewRootCommand(&cli.RootOptions{IO: iocli.NewStdio()})
	root.Version = fmt.Sprintf("%s (built %s, commit %s)", Version, BuildDate, GitCommit)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

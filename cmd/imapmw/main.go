// Command imapmw is a thin CLI driving the mailmw API surface
// (fetch-all, fetch, thread, references, clear-cache) against one
// configured IMAP account, grounded on the teacher's urfave/cli/v3
// root-command wiring (cmd/imapsync-go/main.go) and its
// signal.NotifyContext shutdown handling.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/greeddj/imapmw/cmd/imapmw/commands"
)

//nolint:gochecknoglobals
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cli.Command{
		Name:  "imapmw",
		Usage: "IMAP fetch and conversation-threading middleware CLI",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
		Commands: []*cli.Command{
			commands.FetchAll(),
			commands.Fetch(),
			commands.Thread(),
			commands.References(),
			commands.ClearCache(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := root.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

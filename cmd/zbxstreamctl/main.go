// Zbxstreamctl is the command-line client for a running zbxstreamd. It
// queries status and recent history over HTTP and streams live events over
// WebSocket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/zbx-rtx/streamd/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:3000", "Daemon base URL")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		family  = pflag.StringSlice("family", nil, "Families to show in watch (e.g. --family problems,history)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "snapshot":
		opts := ctl.SnapshotOptions{JSON: *jsonOut}
		snapFlags := pflag.NewFlagSet("snapshot", pflag.ContinueOnError)
		snapFlags.StringVar(&opts.Family, "family", "", "Restrict to one family")
		snapFlags.IntVar(&opts.Limit, "limit", 0, "Maximum items (1-10000)")
		snapFlags.Uint64Var(&opts.SinceID, "since-id", 0, "Only items with id greater than this")
		_ = snapFlags.Parse(subArgs)
		err = ctl.Snapshot(*host, opts)

	case "watch":
		err = ctl.Watch(*host, ctl.WatchOptions{
			Family: *family,
			JSON:   *jsonOut,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  zbxstreamctl — zbx-rtx-stream control CLI

  USAGE
    zbxstreamctl [flags] <command> [command-flags]

  COMMANDS
    status          Show daemon uptime, tailed files, and ring state
    health          Check daemon and component health
    snapshot        Query recent history from the ring buffer
    watch           Stream live events from the daemon (Ctrl-C to stop)

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:3000)
        --json          Output raw JSON instead of formatted text
        --family LIST   Families to show in watch (comma-separated)

  COMMAND FLAGS
    snapshot:
        --family NAME   Restrict to one family
        --limit N       Maximum items (1-10000, default 100)
        --since-id N    Only items with id greater than N

  EXAMPLES
    zbxstreamctl status
    zbxstreamctl --json snapshot --family problems --limit 20
    zbxstreamctl snapshot --since-id 1200
    zbxstreamctl watch
    zbxstreamctl --family problems,history watch

`)
}

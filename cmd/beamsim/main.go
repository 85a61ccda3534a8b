// Command beamsim runs the soft-body simulation in real time, inspects
// recorded replays, validates definition files and migrates SQLite dumps.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// BuildDate can be set at build time via ldflags
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

const usage = `usage: beamsim [-config dir] <command> [args]

commands:
  run                        run the simulation until interrupted (default)
  replay [-definition name] <file>
                             summarize a replay, or play it back on replay-only actors
  validate <dir>             validate every definition file in dir
  migrate <dir>              copy SQLite dumps from dir into the postgres database
  version                    print the version
`

func main() {
	if err := execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "beamsim:", err)
		os.Exit(1)
	}
}

func execute(args []string) error {
	fs := flag.NewFlagSet("beamsim", flag.ContinueOnError)
	configDir := fs.String("config", ".", "directory holding beamsim.cfg.json")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cmd, rest := "run", fs.Args()
	if len(rest) > 0 {
		cmd, rest = strings.ToLower(rest[0]), rest[1:]
	}

	switch cmd {
	case "version":
		fmt.Printf("beamsim %s (%s)\n", Version, BuildDate)
		return nil
	case "validate":
		if len(rest) != 1 {
			return errors.New("validate needs a directory")
		}
		return validateDir(os.Stdout, rest[0])
	}

	a, err := newApp(*configDir)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "run":
		return a.run(ctx)
	case "replay":
		return a.replay(ctx, os.Stdout, rest)
	case "migrate":
		if len(rest) != 1 {
			return errors.New("migrate needs a directory")
		}
		return a.migrate(rest[0])
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

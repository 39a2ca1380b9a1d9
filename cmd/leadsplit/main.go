// Command leadsplit runs the lead distribution API and its maintenance
// commands.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/odvcencio/leadsplit/pkg/config"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printHelp(stdout)
		return exitOK
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion(stdout)
		return exitOK
	case "--help", "-h", "help":
		printHelp(stdout)
		return exitOK
	case "serve":
		return runCommand(stderr, func() error { return runServeCommand(args[1:]) })
	case "setup-admin":
		return runCommand(stderr, func() error { return runSetupAdminCommand(args[1:], stdout) })
	case "split":
		return runCommand(stderr, func() error { return runSplitCommand(args[1:], stdout) })
	default:
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(stderr, "Error: unknown flag: %s\n", args[0])
		} else {
			fmt.Fprintf(stderr, "Error: unknown command: %s\n", args[0])
		}
		fmt.Fprintln(stderr, "Run 'leadsplit --help' for usage.")
		return exitError
	}
}

func runCommand(stderr io.Writer, handler func() error) int {
	if err := handler(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCodeForError(err)
	}
	return exitOK
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "leadsplit - split contact lists across your agents")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  leadsplit <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  serve [-config path] [-addr host:port]")
	fmt.Fprintln(w, "                                   Start the HTTP API")
	fmt.Fprintln(w, "  setup-admin -email <e> -password <p>")
	fmt.Fprintln(w, "                                   Create the first admin account (no-op if it exists)")
	fmt.Fprintln(w, "  split -file <path> -agents \"Ann,Bob\"")
	fmt.Fprintln(w, "                                   Print a distribution plan without touching the database")
	fmt.Fprintln(w, "  version                          Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "ENVIRONMENT:")
	fmt.Fprintln(w, "  LEADSPLIT_ADDR, LEADSPLIT_DB_PATH, LEADSPLIT_JWT_SECRET, LEADSPLIT_BUS_DRIVER,")
	fmt.Fprintln(w, "  LEADSPLIT_NATS_URL, LEADSPLIT_LOG_LEVEL and friends override config files.")
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "leadsplit %s\n", version)
	if commit != "unknown" {
		fmt.Fprintf(w, "  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Fprintf(w, "  Built:      %s\n", buildDate)
	}
	fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
}

// loadConfig reads path when given, otherwise the default locations.
// Failures carry the config exit code.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if strings.TrimSpace(path) != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, withExitCode(err, exitConfig)
	}
	return cfg, nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"drumkit/liberr"
	"drumkit/liblog"

	"golang.org/x/exp/slices"
)

type command struct {
	Run   func(self *command) error
	Name  string
	Help  string
	Flags *flag.FlagSet
}

var commands = []*command{}

type logArgs struct {
	quiet bool
	debug bool
}

func printGeneralUsage() {
	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [arguments]\n\n", exe)
	fmt.Fprintf(os.Stderr, "The commands are:\n\n")
	longest := slices.MaxFunc(commands, func(a, b *command) int {
		return len(a.Name) - len(b.Name)
	})
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "    %*s%s\n", -len(longest.Name)-4, c.Name, c.Help)
	}
	fmt.Fprintln(os.Stderr, "")
	os.Exit(1)
}

func printCommandUsage(cmd *command, suffix string) {
	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s %s [arguments]%s\n\n", exe, cmd.Name, suffix)
	fmt.Fprintf(os.Stderr, "The arguments are:\n\n")
	cmd.Flags.SetOutput(os.Stderr)
	cmd.Flags.PrintDefaults()
	os.Exit(1)
}

func main() {
	commands = append(commands, createPackCommand())
	commands = append(commands, createInfoCommand())
	commands = append(commands, createBakeCommand())
	commands = append(commands, createPreviewCommand())

	slices.SortFunc(commands, func(a, b *command) int {
		return strings.Compare(a.Name, b.Name)
	})

	if len(os.Args) < 2 {
		printGeneralUsage()
	}

	var cmd *command
	for _, c := range commands {
		if strings.EqualFold(c.Name, os.Args[1]) {
			cmd = c
			break
		}
	}
	if cmd == nil {
		printGeneralUsage()
	}

	err := cmd.Flags.Parse(os.Args[2:])
	harderr(err)

	harderr(cmd.Run(cmd))
}

func registerLogFlags(flags *flag.FlagSet, args *logArgs) {
	flags.BoolVar(&args.quiet, "quiet", args.quiet, "only log warnings and errors")
	flags.BoolVar(&args.quiet, "q", args.quiet, "shorthand for quiet")
	flags.BoolVar(&args.debug, "debug", args.debug, "log diagnostics")
}

// setupLogging installs a text logger on stderr for the library packages.
func setupLogging(args logArgs) {
	level := slog.LevelInfo
	if args.quiet {
		level = slog.LevelWarn
	}
	if args.debug {
		level = slog.LevelDebug
	}
	liblog.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// visited returns the names of the flags given on the command line.
func visited(flags *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	flags.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func harderr(err error) {
	if err == nil {
		return
	}
	if kind := liberr.KindOf(err); kind != liberr.KindUnknown {
		fmt.Fprintf(os.Stderr, "Error (%v): %v\n", kind, err)
	} else if !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

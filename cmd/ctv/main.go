package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zsiec/ctv/internal/config"
)

var version = "dev"

var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

// env is what every subcommand receives.
type env struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

var commands = map[string]command{
	"gen":    {"write a synthetic test stream", runGen},
	"info":   {"print a stream's header", runInfo},
	"verify": {"decode every frame and report totals", runVerify},
	"play":   {"replay a stream at its framerate", runPlay},
	"serve":  {"serve a directory of streams over QUIC", runServe},
	"fetch":  {"download or list streams from a server", runFetch},
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if errors.Is(err, errUsage) {
		os.Exit(2)
	}
	if err != nil {
		slog.Error("ctv failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("ctv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFlag := fs.String("config", os.Getenv("CTV_CONFIG"), "YAML configuration file")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()})))

	if fs.NArg() == 0 {
		usage(stderr)
		return errUsage
	}
	name := fs.Arg(0)
	if name == "version" {
		fmt.Fprintln(stdout, version)
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		usage(stderr)
		return errUsage
	}
	return cmd.run(ctx, &env{cfg: cfg, stdout: stdout, stderr: stderr}, fs.Args()[1:])
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: ctv [-config file] <command> [flags]\n\nCommands:\n")
	for _, name := range []string{"gen", "info", "verify", "play", "serve", "fetch"} {
		fmt.Fprintf(w, "  %-7s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "  %-7s %s\n", "version", "print the version")
}

// newFlagSet returns a flag set for a subcommand that reports errors
// instead of exiting.
func newFlagSet(e *env, name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: ctv %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args and requires exactly want positional arguments.
func parse(fs *flag.FlagSet, args []string, want int) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != want {
		fs.Usage()
		return errUsage
	}
	return nil
}

// Command ledgerflow follows a ledger transaction stream. "watch" logs the
// events of chosen emitters, "relay" copies the stream onto a pub/sub topic.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/drblury/ledgerflow/internal/runtime/config"
	"github.com/drblury/ledgerflow/internal/runtime/logging"
	_ "github.com/drblury/ledgerflow/source/sources"
)

const usage = `ledgerflow follows a ledger transaction stream.

USAGE:
  ledgerflow watch [FLAGS]   log the events of the given emitters
  ledgerflow relay [FLAGS]   publish every transaction to a pub/sub topic

Run "ledgerflow COMMAND --help" for the flags of a command.
`

var errUsage = errors.New("usage")

// env carries what commands take from the process, so tests can replace it.
type env struct {
	stdout     io.Writer
	stderr     io.Writer
	registerer prometheus.Registerer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := env{stdout: os.Stdout, stderr: os.Stderr, registerer: prometheus.DefaultRegisterer}
	if err := run(ctx, e, os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "ledgerflow:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, e env, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(e.stderr, usage)
		return errUsage
	}

	switch args[0] {
	case "watch":
		return watch(ctx, e, args[1:])
	case "relay":
		return relay(ctx, e, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(e.stdout, usage)
		return nil
	default:
		fmt.Fprint(e.stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// commonFlags are shared by every command.
type commonFlags struct {
	configPath string
	logLevel   string
}

func newFlagSet(name string, e env, common *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.StringVarP(&common.configPath, "config", "c", "", "Path to the YAML config file")
	fs.StringVar(&common.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	return fs
}

// parseFlags returns errUsage for --help so the caller exits quietly.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errUsage
		}
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) (logging.ServiceLogger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return logging.NewSlogServiceLogger(slog.New(handler)), nil
}

// exitErr treats cancellation from a signal as a clean exit.
func exitErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

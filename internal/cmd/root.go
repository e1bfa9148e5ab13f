package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/flo-mic/niri-single-output/internal/config"
	"github.com/flo-mic/niri-single-output/internal/ipc"
	"github.com/flo-mic/niri-single-output/internal/rotation"
	"github.com/flo-mic/niri-single-output/internal/state"
)

const appName = "niri-single-output"

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

// globalOptions are accepted before or after the command name.
type globalOptions struct {
	socket  string
	state   string
	config  string
	verbose bool
	version bool
	help    bool
}

// addFlags registers the global flags on fs. The current values become
// the defaults so a second registration keeps what was already parsed.
func (o *globalOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.socket, "path", "p", o.socket, "Path to niri socket (default: $NIRI_SOCKET)")
	fs.StringVarP(&o.state, "state", "s", o.state, "Path to state file (default: $XDG_STATE_HOME/niri/last-output)")
	fs.StringVarP(&o.config, "config", "c", o.config, "Path to config file")
	fs.BoolVarP(&o.verbose, "verbose", "v", o.verbose, "Log debug messages")
	fs.BoolVar(&o.version, "version", o.version, "Print version and exit")
	fs.BoolVarP(&o.help, "help", "h", o.help, "Show help")
}

// env is what every command needs once flags and config are resolved.
type env struct {
	ctrl     *rotation.Controller
	logger   *slog.Logger
	onSwitch string
	stdout   io.Writer
	stderr   io.Writer
}

// Execute parses args (without the program name) and runs the
// selected command.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts globalOptions
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	opts.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}

	if opts.version {
		fmt.Fprintf(stdout, "%s %s\n", appName, Version)
		return nil
	}
	if opts.help || fs.NArg() == 0 {
		printUsage(stderr, fs)
		if opts.help {
			return nil
		}
		return usageErrorf("no command given")
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	command, ok := commands[name]
	if !ok {
		printUsage(stderr, fs)
		return usageErrorf("unknown command: %s", name)
	}

	sub := pflag.NewFlagSet(name, pflag.ContinueOnError)
	sub.SetOutput(io.Discard)
	opts.addFlags(sub)
	run := command.setup(sub)
	if err := sub.Parse(rest); err != nil {
		return usageErrorf("%s: %v", name, err)
	}
	if opts.version {
		fmt.Fprintf(stdout, "%s %s\n", appName, Version)
		return nil
	}
	if opts.help {
		fmt.Fprintf(stderr, "Usage: %s %s\n\n%s\n\nFlags:\n%s", appName, command.usage, command.summary, sub.FlagUsages())
		return nil
	}

	e, err := setup(&opts, stdout, stderr)
	if err != nil {
		return err
	}
	return run(ctx, e, sub.Args())
}

func setup(opts *globalOptions, stdout, stderr io.Writer) (*env, error) {
	cfg, err := config.Load(opts.config)
	if err != nil {
		return nil, err
	}
	if opts.socket != "" {
		cfg.Socket = opts.socket
	}
	if opts.state != "" {
		cfg.State = opts.state
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	logger.Debug("resolved configuration", "socket", cfg.Socket, "state", cfg.State)

	ctrl := rotation.New(ipc.New(cfg.Socket), state.New(cfg.State), logger)
	return &env{
		ctrl:     ctrl,
		logger:   logger,
		onSwitch: cfg.OnSwitch,
		stdout:   stdout,
		stderr:   stderr,
	}, nil
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: %s [flags] <command>\n", appName)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Keep a single niri output enabled and rotate between outputs.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		c := commands[name]
		fmt.Fprintf(w, "  %-16s %s\n", c.usage, c.summary)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, fs.FlagUsages())
}

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/flo-mic/niri-single-output/internal/rotation"
	"github.com/flo-mic/niri-single-output/internal/state"
)

type runFunc func(ctx context.Context, e *env, args []string) error

type command struct {
	usage   string
	summary string
	// setup registers command flags and returns the runner.
	setup func(fs *pflag.FlagSet) runFunc
}

var commandOrder = []string{"test", "init", "next", "prev", "pick", "status"}

var commands = map[string]command{
	"test": {
		usage:   "test",
		summary: "Check that niri answers on its socket",
		setup:   func(*pflag.FlagSet) runFunc { return Test },
	},
	"init": {
		usage:   "init [--restore]",
		summary: "Enable the first output and disable the others",
		setup: func(fs *pflag.FlagSet) runFunc {
			var opts rotation.InitOptions
			fs.BoolVarP(&opts.Restore, "restore", "r", false, "Re-enable the last used output if it is still connected")
			return func(ctx context.Context, e *env, args []string) error {
				return Init(ctx, e, opts, args)
			}
		},
	},
	"next": {
		usage:   "next",
		summary: "Switch to the next output",
		setup:   func(*pflag.FlagSet) runFunc { return Next },
	},
	"prev": {
		usage:   "prev",
		summary: "Switch to the previous output",
		setup:   func(*pflag.FlagSet) runFunc { return Prev },
	},
	"pick": {
		usage:   "pick [NAME]",
		summary: "Switch to NAME, or choose an output interactively",
		setup:   func(*pflag.FlagSet) runFunc { return Pick },
	},
	"status": {
		usage:   "status",
		summary: "List outputs and the one being tracked",
		setup:   func(*pflag.FlagSet) runFunc { return Status },
	},
}

// UsageError is a command-line mistake.
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &UsageError{msg: fmt.Sprintf(format, args...)}
}

func noArgs(name string, args []string) error {
	if len(args) > 0 {
		return usageErrorf("%s: unexpected argument: %s", name, args[0])
	}
	return nil
}

// Exit codes returned by ExitCode.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitPersistence = 3
)

// ExitCode maps an error returned by Execute to a process exit code.
// A persistence failure gets its own code because the compositor
// change it follows has already been applied.
func ExitCode(err error) int {
	var usage *UsageError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &usage):
		return ExitUsage
	case errors.Is(err, state.ErrPersistence):
		return ExitPersistence
	default:
		return ExitFailure
	}
}

// ErrorMessage formats err for stderr. A persistence failure is only a
// warning: whatever niri was asked to do has already been done.
func ErrorMessage(err error) string {
	if ExitCode(err) == ExitPersistence {
		return fmt.Sprintf("warning: rotation state not saved: %v", err)
	}
	return fmt.Sprintf("error: %v", err)
}

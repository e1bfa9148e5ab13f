package cmd

import (
	"context"

	"github.com/flo-mic/niri-single-output/internal/rotation"
)

// Init enables the first output niri reports (or, with --restore, the
// last one this tool enabled) and disables every other output.
func Init(ctx context.Context, e *env, opts rotation.InitOptions, args []string) error {
	if err := noArgs("init", args); err != nil {
		return err
	}
	res, err := e.ctrl.Init(ctx, opts)
	if err != nil {
		return err
	}
	switched(ctx, e, res)
	return nil
}

package cmd

import "context"

// Test succeeds when niri answers an outputs query. It changes
// nothing.
func Test(ctx context.Context, e *env, args []string) error {
	if err := noArgs("test", args); err != nil {
		return err
	}
	_, err := e.ctrl.Test(ctx)
	return err
}

// Next switches to the output after the tracked one.
func Next(ctx context.Context, e *env, args []string) error {
	if err := noArgs("next", args); err != nil {
		return err
	}
	res, err := e.ctrl.Next(ctx)
	if err != nil {
		return err
	}
	switched(ctx, e, res)
	return nil
}

// Prev switches to the output before the tracked one.
func Prev(ctx context.Context, e *env, args []string) error {
	if err := noArgs("prev", args); err != nil {
		return err
	}
	res, err := e.ctrl.Prev(ctx)
	if err != nil {
		return err
	}
	switched(ctx, e, res)
	return nil
}

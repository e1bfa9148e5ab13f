package cmd

import (
	"context"

	"github.com/flo-mic/niri-single-output/internal/hook"
	"github.com/flo-mic/niri-single-output/internal/rotation"
)

// switched runs the on_switch hook once res has been applied and
// recorded. Hook failure is logged but not returned: the switch itself
// already succeeded.
func switched(ctx context.Context, e *env, res rotation.Result) {
	if e.onSwitch == "" || res.Plan.Target == "" {
		return
	}
	e.logger.Debug("running on_switch hook", "output", res.Plan.Target)
	if err := hook.Run(ctx, e.onSwitch, res.Plan.Target, e.stderr); err != nil {
		e.logger.Warn("on_switch hook failed", "output", res.Plan.Target, "err", err)
	}
}

package hook

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// OutputEnv is the variable holding the name of the output that was
// just enabled.
const OutputEnv = "NIRI_SINGLE_OUTPUT_ACTIVE"

// Run executes command via /bin/sh -c with the active output exported
// in OutputEnv. Output is written to log. Returns an error if the
// command exits non-zero.
func Run(ctx context.Context, command, output string, log io.Writer) error {
	c := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	c.Env = append(os.Environ(), OutputEnv+"="+output)
	c.Stdout = log
	c.Stderr = log
	if err := c.Run(); err != nil {
		return fmt.Errorf("hook %q failed: %w", command, err)
	}
	return nil
}

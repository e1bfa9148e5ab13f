package cmd

import (
	"context"
	"fmt"
)

// Status prints every output in rotation order. The tracked output is
// marked with '*'.
func Status(ctx context.Context, e *env, args []string) error {
	if err := noArgs("status", args); err != nil {
		return err
	}
	st, err := e.ctrl.Status(ctx)
	if err != nil {
		return err
	}
	if len(st.Catalog) == 0 {
		fmt.Fprintln(e.stdout, "No outputs connected.")
		return nil
	}

	width := 0
	for _, o := range st.Catalog {
		if len(o.Name) > width {
			width = len(o.Name)
		}
	}
	for _, o := range st.Catalog {
		mark := " "
		if o.Name == st.Tracked {
			mark = "*"
		}
		power := "off"
		if o.Enabled {
			power = "on"
		}
		fmt.Fprintf(e.stdout, "%s %-*s  %s\n", mark, width, o.Name, power)
	}
	if st.Tracked != "" && st.Catalog.Index(st.Tracked) < 0 {
		fmt.Fprintf(e.stdout, "Tracked output %s is not connected.\n", st.Tracked)
	}
	return nil
}

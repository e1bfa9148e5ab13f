package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/flo-mic/niri-single-output/internal/rotation"
)

// chooseOutput asks the user for an output. Tests replace it.
var chooseOutput = promptOutput

// Pick switches to the named output, or asks which one to use when no
// name is given.
func Pick(ctx context.Context, e *env, args []string) error {
	if len(args) > 1 {
		return usageErrorf("pick: unexpected argument: %s", args[1])
	}

	var name string
	if len(args) == 1 {
		name = args[0]
	} else {
		st, err := e.ctrl.Status(ctx)
		if err != nil {
			return err
		}
		if len(st.Catalog) == 0 {
			return errors.New("no outputs connected")
		}
		name, err = chooseOutput(st)
		if err != nil {
			return err
		}
	}

	res, err := e.ctrl.Activate(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Switched to %s\n", res.Plan.Target)
	switched(ctx, e, res)
	return nil
}

func promptOutput(st rotation.Status) (string, error) {
	options := make([]huh.Option[string], 0, len(st.Catalog))
	for _, o := range st.Catalog {
		label := o.Name
		if o.Enabled {
			label += " (on)"
		}
		options = append(options, huh.NewOption(label, o.Name))
	}

	choice := st.Tracked
	if st.Catalog.Index(choice) < 0 {
		choice = st.Catalog[0].Name
	}

	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Output to enable").
			Description("Every other output will be turned off.").
			Options(options...).
			Value(&choice),
	)).Run(); err != nil {
		return "", err
	}
	return choice, nil
}

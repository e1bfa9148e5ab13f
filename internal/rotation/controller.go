// Package rotation keeps exactly one niri output enabled and rotates
// through the connected outputs in the order niri reports them.
//
// Every command runs the same way: query the outputs, read the state
// file, compute a Plan, send the power changes, and only then write
// the new state. An IPC failure returns before the state is written,
// so a retried command resumes from the last output that was really
// applied.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/flo-mic/niri-single-output/internal/api"
	"github.com/flo-mic/niri-single-output/internal/catalog"
	"github.com/flo-mic/niri-single-output/internal/ipc"
	"github.com/flo-mic/niri-single-output/internal/state"
)

// ErrUnknownOutput is returned by Activate for a name niri does not
// report.
var ErrUnknownOutput = errors.New("unknown output")

// Controller runs the rotation commands against one niri socket and
// one state file.
type Controller struct {
	sender catalog.Sender
	store  *state.Store
	logger *slog.Logger
}

// New returns a controller. A nil logger discards log output.
func New(sender catalog.Sender, store *state.Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{sender: sender, store: store, logger: logger}
}

// Result describes a completed mutating command.
type Result struct {
	Catalog catalog.Catalog
	// Previous is the name read from the state file, if any.
	Previous string
	Plan     Plan
}

// Status is the read-only view printed by the status command.
type Status struct {
	Catalog catalog.Catalog
	Tracked string
}

// InitOptions tunes Init.
type InitOptions struct {
	// Restore re-activates the stored output when it is still
	// connected instead of the first one.
	Restore bool
}

// Test queries the outputs and nothing else.
func (c *Controller) Test(ctx context.Context) (catalog.Catalog, error) {
	cat, err := catalog.Fetch(ctx, c.sender)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("niri is reachable", "outputs", len(cat))
	return cat, nil
}

// Init enables the first output and disables the rest.
func (c *Controller) Init(ctx context.Context, opts InitOptions) (Result, error) {
	cat, err := catalog.Fetch(ctx, c.sender)
	if err != nil {
		return Result{}, err
	}

	res := Result{Catalog: cat}
	if opts.Restore {
		res.Previous = c.loadState()
	}
	res.Plan = PlanInit(cat)
	if opts.Restore {
		if p, ok := PlanActivate(cat, res.Previous); ok {
			res.Plan = p
		}
	}
	return res, c.commit(ctx, res)
}

// Next enables the output after the stored one.
func (c *Controller) Next(ctx context.Context) (Result, error) {
	return c.step(ctx, 1)
}

// Prev enables the output before the stored one.
func (c *Controller) Prev(ctx context.Context) (Result, error) {
	return c.step(ctx, -1)
}

func (c *Controller) step(ctx context.Context, step int) (Result, error) {
	cat, err := catalog.Fetch(ctx, c.sender)
	if err != nil {
		return Result{}, err
	}
	res := Result{Catalog: cat, Previous: c.loadState()}
	if res.Previous != "" && cat.Index(res.Previous) < 0 {
		c.logger.Info("tracked output is gone, starting over", "output", res.Previous)
	}
	res.Plan = PlanStep(cat, res.Previous, step)
	return res, c.commit(ctx, res)
}

// Activate enables name and disables the rest.
func (c *Controller) Activate(ctx context.Context, name string) (Result, error) {
	cat, err := catalog.Fetch(ctx, c.sender)
	if err != nil {
		return Result{}, err
	}
	plan, ok := PlanActivate(cat, name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q (connected: %v)", ErrUnknownOutput, name, cat.Names())
	}
	res := Result{Catalog: cat, Previous: c.loadState(), Plan: plan}
	return res, c.commit(ctx, res)
}

// Status reports the outputs and the tracked output without changing
// anything.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	cat, err := catalog.Fetch(ctx, c.sender)
	if err != nil {
		return Status{}, err
	}
	return Status{Catalog: cat, Tracked: c.loadState()}, nil
}

// loadState never fails: unreadable state is the same as no state.
func (c *Controller) loadState() string {
	name, err := c.store.Load()
	if err != nil {
		c.logger.Warn("ignoring rotation state", "path", c.store.Path(), "err", err)
		return ""
	}
	return name
}

// commit applies the plan and then records the target. The state file
// is only written once every power change has been accepted.
func (c *Controller) commit(ctx context.Context, res Result) error {
	if res.Plan.Target == "" {
		c.logger.Info("no outputs connected, clearing state")
	}
	for _, a := range res.Plan.Actions {
		if err := c.apply(ctx, a); err != nil {
			return err
		}
	}
	if err := c.store.Save(res.Plan.Target); err != nil {
		return err
	}
	c.logger.Debug("state saved", "path", c.store.Path(), "output", res.Plan.Target)
	return nil
}

func (c *Controller) apply(ctx context.Context, a Action) error {
	action, word := api.ActionOff, "off"
	if a.Enable {
		action, word = api.ActionOn, "on"
	}
	c.logger.Info("setting output power", "output", a.Output, "action", word)

	payload, err := c.sender.Send(ctx, api.OutputRequest{Output: a.Output, Action: action})
	if err != nil {
		return fmt.Errorf("turning %s %s: %w", a.Output, word, err)
	}
	change, err := api.DecodeOutputChange(payload)
	if err != nil {
		return fmt.Errorf("turning %s %s: %w: %v", a.Output, word, ipc.ErrProtocol, err)
	}
	if change == api.ChangeOutputMissing {
		return fmt.Errorf("turning %s %s: %w", a.Output, word,
			&ipc.RejectedError{Request: "Output", Message: "output was missing"})
	}
	return nil
}

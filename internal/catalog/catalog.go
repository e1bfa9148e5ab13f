package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flo-mic/niri-single-output/internal/api"
	"github.com/flo-mic/niri-single-output/internal/ipc"
)

// Sender sends one request to niri and returns the Ok payload.
// *ipc.Client implements it.
type Sender interface {
	Send(ctx context.Context, req api.Request) (json.RawMessage, error)
}

// Output is a snapshot of one output for the current invocation.
type Output struct {
	Name    string
	Enabled bool
}

// Catalog is the ordered set of outputs from one Outputs query.
type Catalog []Output

// Fetch queries niri for its outputs. Malformed replies are reported
// as ipc.ErrProtocol.
func Fetch(ctx context.Context, sender Sender) (Catalog, error) {
	payload, err := sender.Send(ctx, api.OutputsRequest{})
	if err != nil {
		return nil, fmt.Errorf("querying outputs: %w", err)
	}
	outputs, err := api.DecodeOutputs(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ipc.ErrProtocol, err)
	}
	cat := make(Catalog, len(outputs))
	for i, o := range outputs {
		cat[i] = Output{Name: o.Name, Enabled: o.Enabled()}
	}
	return cat, nil
}

// Index returns the position of name, or -1.
func (c Catalog) Index(name string) int {
	if name == "" {
		return -1
	}
	for i, o := range c {
		if o.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the output names in catalog order.
func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, o := range c {
		names[i] = o.Name
	}
	return names
}

// Enabled returns the outputs that are currently on.
func (c Catalog) Enabled() Catalog {
	var out Catalog
	for _, o := range c {
		if o.Enabled {
			out = append(out, o)
		}
	}
	return out
}

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrShape is returned when a reply payload does not have the shape
// the request expects.
var ErrShape = errors.New("unexpected reply shape")

// Request is a single niri IPC request. It marshals to the JSON line
// niri reads from its socket.
type Request interface {
	json.Marshaler
	// Kind names the request for logs and errors.
	Kind() string
}

// OutputsRequest asks niri for every connected output.
type OutputsRequest struct{}

func (OutputsRequest) Kind() string { return "Outputs" }

func (OutputsRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal("Outputs")
}

// OutputAction is the action part of an Output request. Only the
// power actions are used by this tool.
type OutputAction string

const (
	ActionOn  OutputAction = "On"
	ActionOff OutputAction = "Off"
)

// OutputRequest turns a single output on or off.
type OutputRequest struct {
	Output string       `json:"output"`
	Action OutputAction `json:"action"`
}

func (r OutputRequest) Kind() string { return "Output" }

func (r OutputRequest) MarshalJSON() ([]byte, error) {
	type body OutputRequest
	return json.Marshal(map[string]body{"Output": body(r)})
}

// Reply is the envelope of every niri reply: exactly one of Ok or Err.
type Reply struct {
	Ok  json.RawMessage `json:"Ok"`
	Err *string         `json:"Err"`
}

// Output is one entry of the Outputs reply. Only the fields this tool
// needs are decoded; niri sends many more.
type Output struct {
	Name string `json:"name"`
	// CurrentMode is null when the output is off.
	CurrentMode json.RawMessage `json:"current_mode"`
}

// Enabled reports whether niri has a mode set for the output.
func (o Output) Enabled() bool {
	return len(o.CurrentMode) > 0 && !bytes.Equal(o.CurrentMode, []byte("null"))
}

// DecodeOutputs decodes the Ok payload of an Outputs request. niri
// sends a JSON object keyed by connector name; the keys are returned
// in the order they appear on the wire.
func DecodeOutputs(payload json.RawMessage) ([]Output, error) {
	var wrapper struct {
		Outputs json.RawMessage `json:"Outputs"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: outputs reply: %v", ErrShape, err)
	}
	if len(wrapper.Outputs) == 0 || bytes.Equal(wrapper.Outputs, []byte("null")) {
		return nil, fmt.Errorf("%w: reply has no Outputs field", ErrShape)
	}

	dec := json.NewDecoder(bytes.NewReader(wrapper.Outputs))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: outputs: %v", ErrShape, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: Outputs is not an object", ErrShape)
	}

	var outputs []Output
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: outputs: %v", ErrShape, err)
		}
		key, _ := tok.(string)
		if key == "" {
			return nil, fmt.Errorf("%w: output with empty connector name", ErrShape)
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: output %q listed twice", ErrShape, key)
		}
		seen[key] = true

		var raw map[string]json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: output %q: %v", ErrShape, key, err)
		}
		out, err := decodeOutput(key, raw)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func decodeOutput(key string, raw map[string]json.RawMessage) (Output, error) {
	if raw == nil {
		return Output{}, fmt.Errorf("%w: output %q is not an object", ErrShape, key)
	}
	nameRaw, ok := raw["name"]
	if !ok {
		return Output{}, fmt.Errorf("%w: output %q has no name", ErrShape, key)
	}
	var name string
	if err := json.Unmarshal(nameRaw, &name); err != nil {
		return Output{}, fmt.Errorf("%w: output %q name: %v", ErrShape, key, err)
	}
	if name != key {
		return Output{}, fmt.Errorf("%w: output key %q does not match name %q", ErrShape, key, name)
	}
	mode, ok := raw["current_mode"]
	if !ok {
		return Output{}, fmt.Errorf("%w: output %q has no current_mode", ErrShape, key)
	}
	return Output{Name: name, CurrentMode: mode}, nil
}

// OutputChange is the outcome of an Output request.
type OutputChange string

const (
	ChangeApplied       OutputChange = "Applied"
	ChangeOutputMissing OutputChange = "OutputWasMissing"
)

// DecodeOutputChange decodes the Ok payload of an Output request.
// Older niri releases answer with a bare "Handled", which counts as
// applied.
func DecodeOutputChange(payload json.RawMessage) (OutputChange, error) {
	var handled string
	if err := json.Unmarshal(payload, &handled); err == nil {
		if handled == "Handled" {
			return ChangeApplied, nil
		}
		return "", fmt.Errorf("%w: output reply %q", ErrShape, handled)
	}

	var wrapper struct {
		OutputConfigChanged *OutputChange `json:"OutputConfigChanged"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return "", fmt.Errorf("%w: output reply: %v", ErrShape, err)
	}
	if wrapper.OutputConfigChanged == nil {
		return "", fmt.Errorf("%w: output reply has no OutputConfigChanged field", ErrShape)
	}
	switch change := *wrapper.OutputConfigChanged; change {
	case ChangeApplied, ChangeOutputMissing:
		return change, nil
	default:
		return "", fmt.Errorf("%w: unknown output change %q", ErrShape, change)
	}
}

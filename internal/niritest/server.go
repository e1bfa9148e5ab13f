package niritest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// Output is the fake compositor's view of one output.
type Output struct {
	Name    string
	Enabled bool
}

// Request is one request received by the server.
type Request struct {
	Kind   string // "Outputs", "Output" or "Unknown"
	Output string
	Action string
}

// Server is a fake niri socket.
type Server struct {
	path     string
	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	outputs  []Output
	requests []Request
	rejected map[string]string
	detached map[string]bool
	rawReply string
	legacy   bool
}

// Start listens on a fresh socket and serves until the test ends.
func Start(t testing.TB, outputs ...Output) *Server {
	t.Helper()

	// sun_path is limited to 108 bytes; t.TempDir() can exceed that.
	dir, err := os.MkdirTemp("/tmp", "niritest-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	path := filepath.Join(dir, "niri.sock")
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listening on %s: %v", path, err)
	}

	s := &Server{
		path:     path,
		listener: listener,
		outputs:  append([]Output(nil), outputs...),
		rejected: make(map[string]string),
		detached: make(map[string]bool),
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.close)
	return s
}

// SocketPath is the path to pass to the client.
func (s *Server) SocketPath() string {
	return s.path
}

// SetOutputs replaces the connected outputs, as if monitors were
// plugged or unplugged.
func (s *Server) SetOutputs(outputs ...Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append([]Output(nil), outputs...)
}

// Outputs returns a copy of the current outputs in order.
func (s *Server) Outputs() []Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Output(nil), s.outputs...)
}

// Enabled returns the names of the outputs that are on.
func (s *Server) Enabled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, o := range s.outputs {
		if o.Enabled {
			names = append(names, o.Name)
		}
	}
	return names
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Mutations returns the Output requests received so far.
func (s *Server) Mutations() []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Kind == "Output" {
			out = append(out, r)
		}
	}
	return out
}

// ResetRequests forgets the recorded requests.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// Reject makes Output requests for name fail with an Err reply.
func (s *Server) Reject(name, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[name] = message
}

// Detach keeps name in the Outputs reply but answers Output requests
// for it with OutputWasMissing, as niri does when a monitor is
// unplugged between two requests.
func (s *Server) Detach(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached[name] = true
}

// ReplyRaw makes the server answer every request with line verbatim.
// An empty line restores normal replies.
func (s *Server) ReplyRaw(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawReply = line
}

// Legacy makes Output requests answer with the pre-OutputConfigChanged
// "Handled" reply.
func (s *Server) Legacy(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacy = enabled
}

func (s *Server) close() {
	s.listener.Close()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return
	}
	reply := s.reply(bytes.TrimSpace(line))
	conn.Write(append(reply, '\n'))
}

func (s *Server) reply(line []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if string(line) == `"Outputs"` {
		s.requests = append(s.requests, Request{Kind: "Outputs"})
		if s.rawReply != "" {
			return []byte(s.rawReply)
		}
		return s.outputsReply()
	}

	var req struct {
		Output *struct {
			Output string `json:"output"`
			Action string `json:"action"`
		} `json:"Output"`
	}
	if err := json.Unmarshal(line, &req); err != nil || req.Output == nil {
		s.requests = append(s.requests, Request{Kind: "Unknown"})
		return errReply("error parsing request")
	}
	s.requests = append(s.requests, Request{Kind: "Output", Output: req.Output.Output, Action: req.Output.Action})
	if s.rawReply != "" {
		return []byte(s.rawReply)
	}
	if msg, ok := s.rejected[req.Output.Output]; ok {
		return errReply(msg)
	}

	index := -1
	for i, o := range s.outputs {
		if o.Name == req.Output.Output {
			index = i
			break
		}
	}
	if index < 0 || s.detached[req.Output.Output] {
		return []byte(`{"Ok":{"OutputConfigChanged":"OutputWasMissing"}}`)
	}
	switch req.Output.Action {
	case "On":
		s.outputs[index].Enabled = true
	case "Off":
		s.outputs[index].Enabled = false
	default:
		return errReply("unsupported action " + req.Output.Action)
	}
	if s.legacy {
		return []byte(`{"Ok":"Handled"}`)
	}
	return []byte(`{"Ok":{"OutputConfigChanged":"Applied"}}`)
}

func (s *Server) outputsReply() []byte {
	var b strings.Builder
	b.WriteString(`{"Ok":{"Outputs":{`)
	for i, o := range s.outputs {
		if i > 0 {
			b.WriteString(",")
		}
		name, _ := json.Marshal(o.Name)
		mode, logical := "null", "null"
		if o.Enabled {
			mode = "0"
			logical = `{"x":0,"y":0,"width":1920,"height":1080,"scale":1.0,"transform":"Normal"}`
		}
		b.Write(name)
		b.WriteString(`:{"name":`)
		b.Write(name)
		b.WriteString(`,"make":"Fake","model":"Monitor","serial":null,"physical_size":[600,340],`)
		b.WriteString(`"modes":[{"width":1920,"height":1080,"refresh_rate":60000,"is_preferred":true}],`)
		b.WriteString(`"current_mode":` + mode + `,"vrr_supported":false,"vrr_enabled":false,"logical":` + logical + `}`)
	}
	b.WriteString(`}}}`)
	return []byte(b.String())
}

func errReply(msg string) []byte {
	data, _ := json.Marshal(map[string]string{"Err": msg})
	return data
}

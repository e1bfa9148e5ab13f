package rotation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/flo-mic/niri-single-output/internal/ipc"
	"github.com/flo-mic/niri-single-output/internal/niritest"
	"github.com/flo-mic/niri-single-output/internal/state"
)

type fixture struct {
	srv       *niritest.Server
	store     *state.Store
	ctrl      *Controller
	statePath string
}

func newFixture(t *testing.T, outputs ...niritest.Output) *fixture {
	t.Helper()
	srv := niritest.Start(t, outputs...)
	statePath := filepath.Join(t.TempDir(), "niri", "last-output")
	store := state.New(statePath)
	return &fixture{
		srv:       srv,
		store:     store,
		ctrl:      New(ipc.New(srv.SocketPath()), store, nil),
		statePath: statePath,
	}
}

func outputs(names ...string) []niritest.Output {
	out := make([]niritest.Output, len(names))
	for i, n := range names {
		out[i] = niritest.Output{Name: n, Enabled: true}
	}
	return out
}

func (f *fixture) stored(t *testing.T) string {
	t.Helper()
	name, err := f.store.Load()
	if err != nil {
		t.Fatalf("loading state: %v", err)
	}
	return name
}

func (f *fixture) requireActive(t *testing.T, want string) {
	t.Helper()
	if got := f.srv.Enabled(); !reflect.DeepEqual(got, []string{want}) {
		t.Fatalf("enabled outputs = %v, want [%s]", got, want)
	}
	if got := f.stored(t); got != want {
		t.Fatalf("stored state = %q, want %q", got, want)
	}
}

func TestInit_ActivatesFirstOutput(t *testing.T) {
	f := newFixture(t, outputs("A", "B", "C")...)

	res, err := f.ctrl.Init(context.Background(), InitOptions{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if res.Plan.Target != "A" {
		t.Errorf("target = %q, want A", res.Plan.Target)
	}
	f.requireActive(t, "A")
}

func TestInit_IgnoresPriorStateByDefault(t *testing.T) {
	f := newFixture(t, outputs("A", "B", "C")...)
	if err := f.store.Save("C"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Init(context.Background(), InitOptions{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	f.requireActive(t, "A")
}

func TestInit_Restore(t *testing.T) {
	f := newFixture(t, outputs("A", "B", "C")...)
	if err := f.store.Save("C"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Init(context.Background(), InitOptions{Restore: true}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	f.requireActive(t, "C")
}

func TestInit_RestoreUnpluggedFallsBackToFirst(t *testing.T) {
	f := newFixture(t, outputs("A", "B")...)
	if err := f.store.Save("HDMI-A-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Init(context.Background(), InitOptions{Restore: true}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	f.requireActive(t, "A")
}

func TestInit_SkipsOutputsAlreadyOff(t *testing.T) {
	f := newFixture(t,
		niritest.Output{Name: "A", Enabled: true},
		niritest.Output{Name: "B"},
		niritest.Output{Name: "C", Enabled: true},
	)
	if _, err := f.ctrl.Init(context.Background(), InitOptions{}); err != nil {
		t.Fatal(err)
	}
	want := []niritest.Request{
		{Kind: "Output", Output: "A", Action: "On"},
		{Kind: "Output", Output: "C", Action: "Off"},
	}
	if got := f.srv.Mutations(); !reflect.DeepEqual(got, want) {
		t.Errorf("mutations = %+v, want %+v", got, want)
	}
}

// Fresh state: init activates A, then next walks B, C and wraps to A.
func TestRotationFromScratch(t *testing.T) {
	f := newFixture(t, outputs("A", "B", "C")...)
	ctx := context.Background()

	if _, err := f.ctrl.Init(ctx, InitOptions{}); err != nil {
		t.Fatal(err)
	}
	f.requireActive(t, "A")

	for _, want := range []string{"B", "C", "A"} {
		if _, err := f.ctrl.Next(ctx); err != nil {
			t.Fatalf("Next: %v", err)
		}
		f.requireActive(t, want)
	}
}

func TestRotationCycleLaw(t *testing.T) {
	for n := 1; n <= 5; n++ {
		names := []string{"DP-1", "DP-2", "HDMI-A-1", "eDP-1", "DP-3"}[:n]
		f := newFixture(t, outputs(names...)...)
		ctx := context.Background()

		if _, err := f.ctrl.Init(ctx, InitOptions{}); err != nil {
			t.Fatal(err)
		}
		start := f.stored(t)
		for i := 0; i < n; i++ {
			if _, err := f.ctrl.Next(ctx); err != nil {
				t.Fatal(err)
			}
			if got := f.srv.Enabled(); len(got) != 1 {
				t.Fatalf("n=%d step %d: enabled = %v, want exactly one", n, i, got)
			}
		}
		if got := f.stored(t); got != start {
			t.Errorf("n=%d: after %d steps state = %q, want %q", n, n, got, start)
		}
	}
}

func TestPrevIsInverseOfNext(t *testing.T) {
	f := newFixture(t, outputs("A", "B", "C")...)
	ctx := context.Background()
	if _, err := f.ctrl.Init(ctx, InitOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Prev(ctx); err != nil {
		t.Fatal(err)
	}
	f.requireActive(t, "C")
	if _, err := f.ctrl.Next(ctx); err != nil {
		t.Fatal(err)
	}
	f.requireActive(t, "A")
}

func TestNext_SingleOutputIsNoop(t *testing.T) {
	f := newFixture(t, niritest.Output{Name: "eDP-1", Enabled: true})
	ctx := context.Background()
	if _, err := f.ctrl.Init(ctx, InitOptions{}); err != nil {
		t.Fatal(err)
	}
	f.srv.ResetRequests()

	res, err := f.ctrl.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if res.Plan.Target != "eDP-1" {
		t.Errorf("target = %q", res.Plan.Target)
	}
	for _, m := range f.srv.Mutations() {
		if m.Output != "eDP-1" || m.Action != "On" {
			t.Errorf("unexpected mutation %+v", m)
		}
	}
	f.requireActive(t, "eDP-1")
}

func TestNext_UnpluggedStateRestartsAtFirst(t *testing.T) {
	f := newFixture(t, outputs("A", "B", "C")...)
	if err := f.store.Save("HDMI-A-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	f.requireActive(t, "A")
}

func TestNext_DisablesDriftedOutputs(t *testing.T) {
	// B is tracked, but something else turned C on behind our back.
	f := newFixture(t,
		niritest.Output{Name: "A"},
		niritest.Output{Name: "B", Enabled: true},
		niritest.Output{Name: "C", Enabled: true},
	)
	if err := f.store.Save("B"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.requireActive(t, "C")
}

func TestNamesWithSpacesAreTracked(t *testing.T) {
	f := newFixture(t,
		niritest.Output{Name: "Virtual 1"},
		niritest.Output{Name: "DP-1", Enabled: true},
	)
	ctx := context.Background()

	if _, err := f.ctrl.Init(ctx, InitOptions{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	f.requireActive(t, "Virtual 1")

	if _, err := f.ctrl.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	f.requireActive(t, "DP-1")
}

func TestEmptyCatalog(t *testing.T) {
	for _, run := range []struct {
		name string
		fn   func(*Controller) error
	}{
		{"init", func(c *Controller) error { _, err := c.Init(context.Background(), InitOptions{}); return err }},
		{"next", func(c *Controller) error { _, err := c.Next(context.Background()); return err }},
		{"prev", func(c *Controller) error { _, err := c.Prev(context.Background()); return err }},
	} {
		t.Run(run.name, func(t *testing.T) {
			f := newFixture(t)
			if err := f.store.Save("DP-1"); err != nil {
				t.Fatal(err)
			}
			if err := run.fn(f.ctrl); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m := f.srv.Mutations(); len(m) != 0 {
				t.Errorf("expected no mutations, got %+v", m)
			}
			if got := f.stored(t); got != "" {
				t.Errorf("state = %q, want cleared", got)
			}
		})
	}
}

func TestCorruptStateIsTreatedAsNone(t *testing.T) {
	f := newFixture(t, outputs("A", "B", "C")...)
	if err := os.MkdirAll(filepath.Dir(f.statePath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.statePath, []byte("\x00\x01garbage\nmore garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	f.requireActive(t, "A")
}

func TestTestNeverMutates(t *testing.T) {
	f := newFixture(t,
		niritest.Output{Name: "A", Enabled: true},
		niritest.Output{Name: "B", Enabled: true},
	)
	if err := f.store.Save("B"); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(f.statePath)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		cat, err := f.ctrl.Test(context.Background())
		if err != nil {
			t.Fatalf("Test: %v", err)
		}
		if len(cat) != 2 {
			t.Errorf("catalog = %+v", cat)
		}
	}

	if m := f.srv.Mutations(); len(m) != 0 {
		t.Errorf("Test sent mutations: %+v", m)
	}
	after, err := os.ReadFile(f.statePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Errorf("state changed from %q to %q", before, after)
	}
	if got := f.srv.Enabled(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("enabled = %v", got)
	}
}

func TestTestDoesNotCreateState(t *testing.T) {
	f := newFixture(t, outputs("A")...)
	if _, err := f.ctrl.Test(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(f.statePath); !os.IsNotExist(err) {
		t.Errorf("state file should not exist, stat err = %v", err)
	}
}

func TestRejectedRequestKeepsPriorState(t *testing.T) {
	f := newFixture(t, outputs("A", "B", "C")...)
	ctx := context.Background()
	if _, err := f.ctrl.Init(ctx, InitOptions{}); err != nil {
		t.Fatal(err)
	}
	f.srv.Reject("B", "output is being unplugged")

	_, err := f.ctrl.Next(ctx)
	if !errors.Is(err, ipc.ErrRequestRejected) {
		t.Fatalf("expected ErrRequestRejected, got %v", err)
	}
	if got := f.stored(t); got != "A" {
		t.Errorf("state = %q, want A to be kept", got)
	}
}

func TestOutputWasMissingIsRejection(t *testing.T) {
	f := newFixture(t, outputs("A", "B")...)
	ctx := context.Background()
	if _, err := f.ctrl.Init(ctx, InitOptions{}); err != nil {
		t.Fatal(err)
	}

	// B disappears between the query and the power request.
	f.srv.Detach("B")
	_, err := f.ctrl.Activate(ctx, "B")
	if !errors.Is(err, ipc.ErrRequestRejected) {
		t.Fatalf("expected ErrRequestRejected, got %v", err)
	}
	if got := f.stored(t); got != "A" {
		t.Errorf("state = %q, want A", got)
	}
}

func TestMalformedOutputsReplyIsProtocolError(t *testing.T) {
	f := newFixture(t, outputs("A")...)
	f.srv.ReplyRaw(`{"Ok":{"Workspaces":[]}}`)
	_, err := f.ctrl.Next(context.Background())
	if !errors.Is(err, ipc.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	if _, statErr := os.Stat(f.statePath); !os.IsNotExist(statErr) {
		t.Errorf("state file should not be written on protocol error")
	}
}

func TestConnectionFailed(t *testing.T) {
	store := state.New(filepath.Join(t.TempDir(), "last-output"))
	ctrl := New(ipc.New(filepath.Join(t.TempDir(), "nope.sock")), store, nil)
	_, err := ctrl.Next(context.Background())
	if !errors.Is(err, ipc.ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
}

func TestPersistenceFailureKeepsCompositorChange(t *testing.T) {
	srv := niritest.Start(t, outputs("A", "B")...)
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	ctrl := New(ipc.New(srv.SocketPath()), state.New(filepath.Join(blocker, "last-output")), nil)

	res, err := ctrl.Init(context.Background(), InitOptions{})
	if !errors.Is(err, state.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if res.Plan.Target != "A" {
		t.Errorf("target = %q, want A", res.Plan.Target)
	}
	if got := srv.Enabled(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("enabled = %v, want [A]", got)
	}
}

func TestActivate(t *testing.T) {
	f := newFixture(t, outputs("A", "B", "C")...)
	if _, err := f.ctrl.Activate(context.Background(), "B"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	f.requireActive(t, "B")

	_, err := f.ctrl.Activate(context.Background(), "Z")
	if !errors.Is(err, ErrUnknownOutput) {
		t.Fatalf("expected ErrUnknownOutput, got %v", err)
	}
	f.requireActive(t, "B")
}

func TestLegacyHandledReply(t *testing.T) {
	f := newFixture(t, outputs("A", "B")...)
	f.srv.Legacy(true)
	if _, err := f.ctrl.Init(context.Background(), InitOptions{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	f.requireActive(t, "A")
}

func TestStatus(t *testing.T) {
	f := newFixture(t, outputs("A", "B")...)
	if err := f.store.Save("B"); err != nil {
		t.Fatal(err)
	}
	st, err := f.ctrl.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Tracked != "B" || len(st.Catalog) != 2 {
		t.Errorf("status = %+v", st)
	}
	if m := f.srv.Mutations(); len(m) != 0 {
		t.Errorf("Status sent mutations: %+v", m)
	}
}

package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/spfsync/state"
	"github.com/google/go-cmp/cmp"
)

var errHarness = errors.New("harness failure")

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// StoreHarness is a Store that records every call, in order
type StoreHarness struct {
	actions []HarnessEvent
	// fail maps an event message to the number of upcoming calls that fail, -1 fails forever
	fail   map[string]int
	closed bool
}

func NewStoreHarness() *StoreHarness {
	return &StoreHarness{fail: make(map[string]int)}
}

func (h *StoreHarness) Fail(msg string, n int) {
	h.fail[msg] = n
}

func (h *StoreHarness) record(msg string, args ...any) error {
	n := h.fail[msg]
	if n != 0 {
		if n > 0 {
			h.fail[msg] = n - 1
		}
		h.actions = append(h.actions, MakeEvent("FAILED_"+msg, args...))
		return errHarness
	}
	h.actions = append(h.actions, MakeEvent(msg, args...))
	return nil
}

func (h *StoreHarness) PublishNode(ctx context.Context, row state.NodeRow) error {
	return h.record("PUBLISH_NODE", row.Name)
}

func (h *StoreHarness) PublishLink(ctx context.Context, row state.LinkRow) error {
	return h.record("PUBLISH_LINK", row.Name1, row.Name2)
}

func (h *StoreHarness) RetractNode(ctx context.Context, row state.NodeRow) error {
	return h.record("RETRACT_NODE", row.Name)
}

func (h *StoreHarness) RetractLink(ctx context.Context, row state.LinkRow) error {
	return h.record("RETRACT_LINK", row.Name1, row.Name2)
}

func (h *StoreHarness) Close() error {
	h.closed = true
	return nil
}

type HarnessEvents []HarnessEvent

// String renders the events one per line, sorted
func (e HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range e {
		out = append(out, action.line())
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

func (a HarnessEvent) line() string {
	cur := a.Message
	for _, arg := range a.Args {
		cur += " " + fmt.Sprint(arg)
	}
	return cur
}

// Lines renders the events one per line in call order
func (e HarnessEvents) Lines() []string {
	out := make([]string, 0, len(e))
	for _, action := range e {
		out = append(out, action.line())
	}
	return out
}

// GetActions returns and clears the recorded calls
func (h *StoreHarness) GetActions() HarnessEvents {
	x := h.actions
	h.actions = make([]HarnessEvent, 0)
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg && len(event.Args) >= len(args) && cmp.Equal(event.Args[:len(args)], args) {
			return true
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

// AssertSequence checks the calls happened exactly in this order
func (e HarnessEvents) AssertSequence(t *testing.T, lines ...string) {
	t.Helper()
	if diff := cmp.Diff(lines, e.Lines()); diff != "" {
		t.Fatalf("store calls mismatch (-want +got):\n%s", diff)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nodeFact(id state.NodeId, name string) state.NodeFact {
	return state.NodeFact{
		Id:     id,
		Name:   name,
		Addr:   fmt.Sprintf("fc00::%x", uint64(id)),
		Prefix: fmt.Sprintf("fc00:%x::/64", uint64(id)),
		Pbsid:  fmt.Sprintf("fc00:%x::100", uint64(id)),
	}
}

func linkFact(a, b state.RouterId, nameA, nameB string) state.LinkFact {
	return state.LinkFact{
		IdA:    a,
		IdB:    b,
		NameA:  nameA,
		NameB:  nameB,
		AddrA:  fmt.Sprintf("fc00::%x", uint32(a)),
		AddrB:  fmt.Sprintf("fc00::%x", uint32(b)),
		Metric: 10,
		Bw:     1000,
		AvaBw:  900,
		Delay:  0.5,
	}
}

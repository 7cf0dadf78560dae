//go:build integration

package integration

import (
	"testing"

	"go.uber.org/goleak"
)

func TestConvergence(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreAnyFunction("os/signal.loop"))

	vh := NewHarness(t, 1)
	vh.NewNode(1)
	vh.NewNode(2)
	vh.NewNode(3)
	vh.AddLink(1, 2, 10)
	vh.AddLink(2, 3, 10)
	vh.Start()

	vh.WaitRows([]string{"r1", "r2", "r3"}, []string{"r1-r2", "r2-r3"})

	// r3 becomes unreachable, its node and link go away
	vh.SetAdjacency(2, 3, 10, false)
	vh.Flush()
	vh.WaitRows([]string{"r1", "r2"}, []string{"r1-r2"})

	// and come back when the adjacency does
	vh.SetAdjacency(3, 2, 10, true)
	vh.Flush()
	vh.WaitRows([]string{"r1", "r2", "r3"}, []string{"r1-r2", "r2-r3"})

	if err := vh.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestRemovedAdjacencyRetracts(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreAnyFunction("os/signal.loop"))

	vh := NewHarness(t, 1)
	vh.NewNode(1)
	vh.NewNode(2)
	vh.NewNode(3)
	vh.AddLink(1, 2, 10)
	vh.AddLink(1, 3, 10)
	vh.AddLink(2, 3, 10)
	vh.Start()

	vh.WaitRows([]string{"r1", "r2", "r3"}, []string{"r1-r2", "r1-r3", "r2-r3"})

	// r3 is still reachable through r2
	vh.RemoveAdjacency(1, 3)
	vh.Flush()
	vh.WaitRows([]string{"r1", "r2", "r3"}, []string{"r1-r2", "r2-r3"})

	if err := vh.Stop(); err != nil {
		t.Fatal(err)
	}
}

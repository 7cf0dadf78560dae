//go:build integration

package integration

import (
	"testing"

	"go.uber.org/goleak"
)

func TestUncatalogedNodes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreAnyFunction("os/signal.loop"))

	vh := NewHarness(t, 1)
	vh.NewNode(1)
	vh.NewNode(2)
	vh.AddLink(1, 2, 10)
	// r4 is reachable but has no name mapping and its link is not cataloged
	vh.SetAdjacency(2, 4, 10, true)
	vh.Start()

	vh.WaitRows([]string{"r1", "r2"}, []string{"r1-r2"})

	// once cataloged, the next cycle publishes it
	vh.NewNode(4)
	vh.AddLink(2, 4, 10)
	vh.Flush()
	vh.WaitRows([]string{"r1", "r2", "r4"}, []string{"r1-r2", "r2-r4"})

	if err := vh.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestUnreachableRoot(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreAnyFunction("os/signal.loop"))

	vh := NewHarness(t, 9)
	vh.NewNode(1)
	vh.NewNode(2)
	vh.AddLink(1, 2, 10)
	vh.Start()

	// only the root itself is reachable and it is not cataloged
	vh.WaitRows(nil, nil)

	vh.NewNode(9)
	vh.AddLink(9, 1, 5)
	vh.Flush()
	vh.WaitRows([]string{"r1", "r2", "r9"}, []string{"r1-r2", "r9-r1"})

	if err := vh.Stop(); err != nil {
		t.Fatal(err)
	}
}

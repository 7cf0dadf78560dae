package core

import (
	"context"
	"testing"

	"github.com/encodeous/spfsync/perf"
	"github.com/encodeous/spfsync/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeOps reads spfsync_store_operations_total{op, result} from the registry
func storeOps(t *testing.T, op, result string) float64 {
	t.Helper()
	families, err := perf.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "spfsync_store_operations_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["op"] != op || labels["result"] != result {
				continue
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestInstrumentedStore(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	store := Instrument(mem)

	okBefore := storeOps(t, "publish_node", "ok")
	errBefore := storeOps(t, "publish_node", "error")
	retractBefore := storeOps(t, "retract_link", "ok")

	require.NoError(t, store.PublishNode(ctx, nodeFact(1, "r1").Row()))
	mem.FailNext(memstore.OpPublishNode, 1)
	assert.ErrorIs(t, store.PublishNode(ctx, nodeFact(2, "r2").Row()), memstore.ErrInjected)
	require.NoError(t, store.RetractLink(ctx, linkFact(1, 2, "r1", "r2").Row()))

	assert.Equal(t, okBefore+1, storeOps(t, "publish_node", "ok"))
	assert.Equal(t, errBefore+1, storeOps(t, "publish_node", "error"))
	assert.Equal(t, retractBefore+1, storeOps(t, "retract_link", "ok"))
	assert.Equal(t, []string{"r1"}, mem.Nodes())
}

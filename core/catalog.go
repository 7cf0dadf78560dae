package core

import (
	"fmt"
	"net/netip"
	"slices"

	"github.com/encodeous/spfsync/state"
)

// ownedPrefixes returns the prefixes a node fact claims: its routing prefix and its address as a host route
func ownedPrefixes(fact state.NodeFact) []netip.Prefix {
	out := make([]netip.Prefix, 0, 2)
	if fact.Prefix != "" {
		if p, err := netip.ParsePrefix(fact.Prefix); err == nil {
			out = append(out, p.Masked())
		}
	}
	if addr, err := netip.ParseAddr(fact.Addr); err == nil {
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

// claim makes id the owner of p. Earlier claimants are remembered so ownership falls back to them.
func (c *Cache) claim(p netip.Prefix, id state.NodeId) {
	claimants := slices.DeleteFunc(c.claims[p], func(cur state.NodeId) bool { return cur == id })
	c.claims[p] = append(claimants, id)
	c.owners.Insert(p, id)
}

// release drops the claim of id on p, the latest remaining claimant becomes the owner
func (c *Cache) release(p netip.Prefix, id state.NodeId) {
	claimants := slices.DeleteFunc(c.claims[p], func(cur state.NodeId) bool { return cur == id })
	if len(claimants) == 0 {
		delete(c.claims, p)
		c.owners.Delete(p)
		return
	}
	c.claims[p] = claimants
	c.owners.Insert(p, claimants[len(claimants)-1])
}

// UpsertNode stores the latest identity of a node, the last delivered fact wins. Liveness is kept;
// if the node is in the store, the next activation writes the new identity.
func (c *Cache) UpsertNode(fact state.NodeFact) error {
	rec, ok := c.nodes[fact.Id]
	if !ok {
		if c.opts.MaxNodes > 0 && len(c.nodes) >= c.opts.MaxNodes {
			return fmt.Errorf("node %s: %w (%d nodes)", fact.Id, state.ErrCatalogFull, len(c.nodes))
		}
		rec = &NodeRecord{Id: fact.Id}
		c.nodes[fact.Id] = rec
	} else {
		for _, p := range ownedPrefixes(rec.Fact) {
			c.release(p, fact.Id)
		}
	}
	rec.Fact = fact
	for _, p := range ownedPrefixes(fact) {
		c.claim(p, fact.Id)
	}
	return nil
}

// UpsertLink stores the latest catalog entry for the undirected link between IdA and IdB.
// A changed entry of a published link is written by its next activation.
func (c *Cache) UpsertLink(fact state.LinkFact) error {
	key, err := state.MakeLinkKey(fact.IdA, fact.IdB)
	if err != nil {
		return err
	}
	rec, ok := c.links[key]
	if !ok {
		if c.opts.MaxLinks > 0 && len(c.links) >= c.opts.MaxLinks {
			return fmt.Errorf("link %s: %w (%d links)", key, state.ErrCatalogFull, len(c.links))
		}
		rec = &LinkRecord{Key: key}
		c.links[key] = rec
	}
	rec.Fact = fact
	return nil
}

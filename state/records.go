package state

import (
	"fmt"
	"net/netip"
)

// NodeId identifies a router. Router ids fit in 32 bits, the node catalog is keyed by the widened value.
type NodeId uint64

// RouterId is the 32-bit router identifier used to name link endpoints
type RouterId uint32

// LinkKey is the canonical key of an undirected link, see MakeLinkKey
type LinkKey uint64

func (id RouterId) String() string {
	return netip.AddrFrom4([4]byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}).String()
}

func (id NodeId) String() string {
	if id <= NodeId(^uint32(0)) {
		return RouterId(id).String()
	}
	return fmt.Sprintf("%d", uint64(id))
}

// MakeLinkKey returns (max(a,b) << 32) | min(a,b). Self loops have no key.
func MakeLinkKey(a, b RouterId) (LinkKey, error) {
	if a == b {
		return 0, fmt.Errorf("%w: self loop on %s", ErrInvalidArgument, a)
	}
	p := MakeSortedPair(a, b)
	return LinkKey(uint64(p.V2)<<32 | uint64(p.V1)), nil
}

// Endpoints returns (high, low)
func (k LinkKey) Endpoints() Pair[RouterId, RouterId] {
	return Pair[RouterId, RouterId]{RouterId(k >> 32), RouterId(k)}
}

func (k LinkKey) String() string {
	e := k.Endpoints()
	return fmt.Sprintf("%s <-> %s", e.V1, e.V2)
}

type PublishState int

const (
	NotPublished PublishState = iota
	Published
	// RetractPending means the row is still in the store because the last retraction failed
	RetractPending
)

func (p PublishState) String() string {
	switch p {
	case NotPublished:
		return "not-published"
	case Published:
		return "published"
	case RetractPending:
		return "retract-pending"
	default:
		return fmt.Sprintf("PublishState(%d)", int(p))
	}
}

// NodeFact is a name/identity mapping delivered by the NameIdMapping feed
type NodeFact struct {
	Id     NodeId `yaml:"node_id" json:"node_id"`
	Name   string `yaml:"name" json:"name"`
	Addr   string `yaml:"addr" json:"addr"`
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Pbsid  string `yaml:"pbsid,omitempty" json:"pbsid,omitempty"`
}

// LinkFact is an available link delivered by the AvailableLink feed
type LinkFact struct {
	IdA    RouterId `yaml:"id_a" json:"id_a"`
	IdB    RouterId `yaml:"id_b" json:"id_b"`
	NameA  string   `yaml:"name_a" json:"name_a"`
	NameB  string   `yaml:"name_b" json:"name_b"`
	AddrA  string   `yaml:"addr_a" json:"addr_a"`
	AddrB  string   `yaml:"addr_b" json:"addr_b"`
	Metric int      `yaml:"metric" json:"metric"`
	Bw     float64  `yaml:"bw" json:"bw"`
	AvaBw  float64  `yaml:"ava_bw" json:"ava_bw"`
	Delay  float64  `yaml:"delay" json:"delay"`
}

// NodeRow is the payload written to the NodeState table
type NodeRow struct {
	Name   string `json:"name"`
	Addr   string `json:"addr"`
	Prefix string `json:"prefix"`
	Pbsid  string `json:"pbsid"`
}

// LinkRow is the payload written to the LinkState table
type LinkRow struct {
	Name1  string  `json:"name1"`
	Addr1  string  `json:"addr1"`
	Name2  string  `json:"name2"`
	Addr2  string  `json:"addr2"`
	Metric int     `json:"metric"`
	Bw     float64 `json:"bw"`
	AvaBw  float64 `json:"ava_bw"`
	Delay  float64 `json:"delay"`
}

func (f NodeFact) Row() NodeRow {
	return NodeRow{
		Name:   f.Name,
		Addr:   f.Addr,
		Prefix: f.Prefix,
		Pbsid:  f.Pbsid,
	}
}

func (f LinkFact) Row() LinkRow {
	return LinkRow{
		Name1:  f.NameA,
		Addr1:  f.AddrA,
		Name2:  f.NameB,
		Addr2:  f.AddrB,
		Metric: f.Metric,
		Bw:     f.Bw,
		AvaBw:  f.AvaBw,
		Delay:  f.Delay,
	}
}

func (r NodeRow) String() string {
	return fmt.Sprintf("name='%s' addr='%s' prefix='%s' pbsid='%s'", r.Name, r.Addr, r.Prefix, r.Pbsid)
}

func (r LinkRow) String() string {
	return fmt.Sprintf("name1='%s' addr1='%s' name2='%s' addr2='%s'", r.Name1, r.Addr1, r.Name2, r.Addr2)
}

// Adjacency reports the state of a link as seen by the routing protocol
type Adjacency struct {
	A      RouterId `yaml:"a" json:"a"`
	B      RouterId `yaml:"b" json:"b"`
	Metric uint32   `yaml:"metric" json:"metric"`
	Up     bool     `yaml:"up" json:"up"`
}

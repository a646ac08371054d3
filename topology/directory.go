package topology

import "sync/atomic"

type directorySnapshot struct {
	Nodes []*Node
}

// Directory holds the ordered set of known cluster nodes.  The set is only
// ever swapped as a whole, so readers observe either the old or the new
// complete set.
type Directory struct {
	value atomic.Pointer[directorySnapshot]
}

func NewDirectory(nodes []*Node) *Directory {
	d := &Directory{}
	d.Replace(nodes)
	return d
}

// Snapshot returns the current members in discovery order.  The returned
// slice belongs to the caller.
func (d *Directory) Snapshot() []*Node {
	snap := d.value.Load()
	if snap == nil {
		return nil
	}

	out := make([]*Node, len(snap.Nodes))
	copy(out, snap.Nodes)
	return out
}

// Replace atomically swaps the whole set of nodes.
func (d *Directory) Replace(nodes []*Node) {
	copied := make([]*Node, len(nodes))
	copy(copied, nodes)

	d.value.Store(&directorySnapshot{
		Nodes: copied,
	})
}

func (d *Directory) Len() int {
	snap := d.value.Load()
	if snap == nil {
		return 0
	}
	return len(snap.Nodes)
}

package pattern_mining

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"slices"
)

// Fingerprint is a stable hash of the canonical form of a pattern. Children
// of parallel and fallthrough nodes are hashed as a multiset so that their
// order does not matter; sequence children and sub-patterns keep their order.
func Fingerprint(p *Pattern) uint64 {
	h := newHash()
	writeInt64(h, len(p.Roots))
	for _, r := range p.Roots {
		writeUint64(h, hashNode(p, r))
	}
	return h.Sum64()
}

func hashNode(p *Pattern, i int) uint64 {
	h := newHash()
	n := p.Nodes[i]
	writeInt64(h, int(n.Op))
	writeString64(h, n.Label)

	children := make([]uint64, len(n.Children))
	for k, c := range n.Children {
		children[k] = hashNode(p, c)
	}
	if unordered(n.Op) {
		slices.Sort(children)
	}
	for _, c := range children {
		writeUint64(h, c)
	}
	return h.Sum64()
}

func newHash() hash.Hash64 { return fnv.New64a() }

func writeInt64(h hash.Hash64, v int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, _ = h.Write(buf[:])
}

func writeUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

func writeString64(h hash.Hash64, s string) {
	_, _ = h.Write([]byte(s))
	_, _ = h.Write([]byte{0})
}

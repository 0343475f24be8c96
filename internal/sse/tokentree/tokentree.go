// Package tokentree implements the range-constrained PRF token tree shared
// by the Diana and Janus cores: a root key derives 2^Depth leaves, and any
// contiguous prefix of leaves {0,...,c-1} can be covered by O(log c) derived
// subtree roots instead of c individual leaf derivations.
//
// DeriveNode walks the root-to-leaf bit path MSB-first, CoveringList
// recurses on the left/right half depending on how many leaves are
// requested, and DeriveAllLeaves walks the full subtree via two-child PRG
// expansion at every node.
package tokentree

import (
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/crypto"
)

// MaxDepth bounds the tree depth; Diana/Janus never need more than 64 levels
// since node indices are uint64.
const MaxDepth = 64

// Node is a token-tree node: its 32-byte key plus its depth below the root
// it was derived relative to (0 means "this token is itself a leaf").
type Node struct {
	Key   [32]byte
	Depth uint8
}

// DeriveNode walks from root K down to the node at nodeIndex, depth levels
// below the root, following the bits of nodeIndex MSB-first: bit (depth-1-i)
// at step i selects the left (0) or right (1) child.
func DeriveNode(k [32]byte, nodeIndex uint64, depth uint8) [32]byte {
	if depth == 0 {
		return k
	}
	t := k
	mask := uint64(1) << (depth - 1)
	for i := uint8(0); i < depth; i++ {
		left, right := crypto.Expand64(t[:])
		if nodeIndex&mask == 0 {
			t = left
		} else {
			t = right
		}
		mask >>= 1
	}
	return t
}

// DeriveLeftmostNode walks from root K to the leftmost leaf at depth levels
// down, invoking onRight for every right sibling skipped along the way
// (right, siblingDepth) so a caller can derive_all_leaves's prefix or
// collect a covering list incrementally while walking a single path.
func DeriveLeftmostNode(k [32]byte, depth uint8, onRight func(right [32]byte, depth uint8)) [32]byte {
	if depth == 0 {
		return k
	}
	t := k
	for i := uint8(0); i < depth; i++ {
		left, right := crypto.Expand64(t[:])
		if onRight != nil {
			onRight(right, depth-1-i)
		}
		t = left
	}
	return t
}

// CoveringList returns the minimal set of subtree roots whose leaves,
// concatenated left to right, are exactly the first nodeCount leaves of the
// depth-deep tree rooted at root (leaves 0..nodeCount-1).
func CoveringList(root [32]byte, nodeCount uint64, depth uint8) []Node {
	var list []Node
	coveringListAux(root, nodeCount, depth, &list)
	return list
}

func coveringListAux(k [32]byte, nodeCount uint64, depth uint8, list *[]Node) {
	if nodeCount == 0 {
		panic("tokentree: covering list requires a positive node count")
	}
	siblingsCount := uint64(1) << depth

	if nodeCount == siblingsCount {
		*list = append(*list, Node{Key: k, Depth: depth})
		return
	}

	left, right := crypto.Expand64(k[:])

	if nodeCount > siblingsCount>>1 {
		*list = append(*list, Node{Key: left, Depth: depth - 1})
		coveringListAux(right, nodeCount-(siblingsCount>>1), depth-1, list)
	} else {
		coveringListAux(left, nodeCount, depth-1, list)
	}
}

// DeriveAllLeaves walks the full subtree rooted at k, depth levels deep, and
// invokes callback on every one of its 2^depth leaves in left-to-right
// order. Used by Diana's bulk covering-set expansion and by tests that
// verify CoveringList's leaf set against a brute-force enumeration.
func DeriveAllLeaves(k [32]byte, depth uint8, callback func(leaf [32]byte)) {
	if depth == 0 {
		callback(k)
		return
	}
	left, right := crypto.Expand64(k[:])
	DeriveAllLeaves(left, depth-1, callback)
	DeriveAllLeaves(right, depth-1, callback)
}

// CoveringListLeaves expands a covering list back into its full, ordered
// leaf set — a convenience for callers (currently the tests) that want
// plain leaves rather than subtree roots.
func CoveringListLeaves(list []Node) [][32]byte {
	var out [][32]byte
	for _, n := range list {
		DeriveAllLeaves(n.Key, n.Depth, func(leaf [32]byte) {
			out = append(out, leaf)
		})
	}
	return out
}

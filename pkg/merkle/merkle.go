// Package merkle builds the witness Merkle tree of a frozen claim: a binary
// hash tree over the content hashes of the claim's evidence components. The
// root commits the full witness set in a single value an external anchoring
// collaborator can put on a ledger.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

const leafPrefix = "claimchain:witness:leaf:v1"

// Tree is a Merkle tree over a witness set. Leaves are sorted before
// hashing, so the root is independent of insertion order.
type Tree struct {
	Leaves []string   // leaf hashes, sorted witness order
	Levels [][]string // node hashes per level, leaves first
	Root   string
}

// Build constructs the tree from the given witness hashes. Duplicates are
// kept (two components may legitimately share a content hash). An empty
// witness set yields an empty root.
func Build(witnesses []string) *Tree {
	if len(witnesses) == 0 {
		return &Tree{Root: ""}
	}

	sorted := make([]string, len(witnesses))
	copy(sorted, witnesses)
	sort.Strings(sorted)

	leaves := make([]string, len(sorted))
	for i, w := range sorted {
		leaves[i] = leafHash(w)
	}

	t := &Tree{Leaves: leaves}
	level := leaves
	for len(level) > 1 {
		t.Levels = append(t.Levels, level)
		level = nextLevel(level)
	}
	t.Levels = append(t.Levels, level)
	t.Root = level[0]
	return t
}

// Root is a convenience for Build(witnesses).Root.
func Root(witnesses []string) string {
	return Build(witnesses).Root
}

func leafHash(witness string) string {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	buf.WriteString(witness)
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// nextLevel pairs adjacent nodes; an odd tail node is promoted unchanged.
func nextLevel(level []string) []string {
	next := make([]string, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 == len(level) {
			next = append(next, level[i])
			continue
		}
		sum := sha256.Sum256([]byte(level[i] + level[i+1]))
		next = append(next, hex.EncodeToString(sum[:]))
	}
	return next
}

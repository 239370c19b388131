// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package merkle builds SHA-256 binary Merkle trees over the leaf
// digests of a hash scope manifest and produces and checks inclusion
// proofs for selective disclosure.
//
// Leaves are never hashed here: they are the file digests already
// recorded in the manifest, so a commitment cannot diverge from the
// commit hash it accompanies. Parents are sha256(left || right) over
// the raw 32-byte digests. A level with an odd number of nodes pairs
// its last node with itself. A tree with no leaves has the root
// [EmptyRoot].
package merkle

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/bureau-foundation/sealrun/lib/binhash"
	"github.com/bureau-foundation/sealrun/lib/hashscope"
)

// Algorithm is the commitment algorithm identifier recorded in
// artifacts.
const Algorithm = "sha256-merkle"

// EmptyRoot is the root of a tree with no leaves: sha256 of the empty
// string.
var EmptyRoot = binhash.FormatDigest(sha256.Sum256(nil))

// ErrLeafIndex is returned by [Tree.Proof] for an index outside the
// tree.
var ErrLeafIndex = errors.New("merkle: leaf index out of range")

// Tree is a built Merkle tree. levels[0] holds the leaves; the last
// level holds the root.
type Tree struct {
	levels [][][32]byte
}

// Build constructs a tree over leaf digests in the given order.
func Build(leaves []string) (*Tree, error) {
	level := make([][32]byte, len(leaves))
	for index, leaf := range leaves {
		digest, err := binhash.ParseDigest(leaf)
		if err != nil {
			return nil, fmt.Errorf("merkle leaf %d: %w", index, err)
		}
		level[index] = digest
	}

	tree := &Tree{levels: [][][32]byte{level}}
	for len(level) > 1 {
		next := make([][32]byte, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next[i/2] = hashPair(level[i], right)
		}
		tree.levels = append(tree.levels, next)
		level = next
	}
	return tree, nil
}

// Root returns the "sha256:<hex>" root digest.
func (t *Tree) Root() string {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return EmptyRoot
	}
	return binhash.FormatDigest(top[0])
}

// LeafCount returns the number of leaves.
func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Step is one sibling on an inclusion path. Position says which side
// the sibling sits on when hashed with the running value.
type Step struct {
	Hash     string `json:"hash"`
	Position string `json:"position"`
}

// Sibling positions.
const (
	Left  = "left"
	Right = "right"
)

// Proof is an inclusion proof for one leaf.
type Proof struct {
	LeafIndex     int    `json:"leaf_index"`
	InclusionPath []Step `json:"inclusion_path"`
}

// Proof returns the sibling path from the leaf at index to the root.
func (t *Tree) Proof(index int) (Proof, error) {
	if index < 0 || index >= t.LeafCount() {
		return Proof{}, fmt.Errorf("%w: %d of %d", ErrLeafIndex, index, t.LeafCount())
	}
	proof := Proof{LeafIndex: index, InclusionPath: []Step{}}
	position := index
	for _, level := range t.levels[:len(t.levels)-1] {
		var step Step
		if position%2 == 0 {
			sibling := position + 1
			if sibling >= len(level) {
				sibling = position
			}
			step = Step{Hash: binhash.FormatDigest(level[sibling]), Position: Right}
		} else {
			step = Step{Hash: binhash.FormatDigest(level[position-1]), Position: Left}
		}
		proof.InclusionPath = append(proof.InclusionPath, step)
		position /= 2
	}
	return proof, nil
}

// VerifyInclusion recomputes the root from a leaf and its proof and
// reports whether it equals root. Malformed digests or positions yield
// false.
func VerifyInclusion(leaf string, proof Proof, root string) bool {
	current, err := binhash.ParseDigest(leaf)
	if err != nil {
		return false
	}
	for _, step := range proof.InclusionPath {
		sibling, err := binhash.ParseDigest(step.Hash)
		if err != nil {
			return false
		}
		switch step.Position {
		case Left:
			current = hashPair(sibling, current)
		case Right:
			current = hashPair(current, sibling)
		default:
			return false
		}
	}
	return binhash.FormatDigest(current) == root
}

func hashPair(left, right [32]byte) [32]byte {
	var combined [64]byte
	copy(combined[:32], left[:])
	copy(combined[32:], right[:])
	return sha256.Sum256(combined[:])
}

// Commitments is the inputs_commitments block of a sealed run.
type Commitments struct {
	Algorithm    string `json:"algorithm"`
	Root         string `json:"root"`
	LeafCount    int    `json:"leaf_count"`
	InputsRoot   string `json:"inputs_root"`
	PromptsRoot  string `json:"prompts_root"`
	SchemasRoot  string `json:"schemas_root"`
	PoliciesRoot string `json:"policies_root"`
}

// FromManifest builds the commitments for a manifest: the overall root
// over [hashscope.Manifest.Leaves] and one root per category.
func FromManifest(manifest hashscope.Manifest) (Commitments, error) {
	overall, err := Build(digests(manifest.Leaves()))
	if err != nil {
		return Commitments{}, err
	}
	commitments := Commitments{
		Algorithm: Algorithm,
		Root:      overall.Root(),
		LeafCount: overall.LeafCount(),
	}

	targets := map[string]*string{
		hashscope.CategoryInputs:   &commitments.InputsRoot,
		hashscope.CategoryPrompts:  &commitments.PromptsRoot,
		hashscope.CategorySchemas:  &commitments.SchemasRoot,
		hashscope.CategoryPolicies: &commitments.PoliciesRoot,
	}
	for _, category := range hashscope.Categories {
		tree, err := Build(digests(manifest.Category(category)))
		if err != nil {
			return Commitments{}, fmt.Errorf("%s: %w", category, err)
		}
		*targets[category] = tree.Root()
	}
	return commitments, nil
}

// CategoryRoot returns the root of one category's leaves.
func CategoryRoot(manifest hashscope.Manifest, category string) (string, error) {
	tree, err := Build(digests(manifest.Category(category)))
	if err != nil {
		return "", err
	}
	return tree.Root(), nil
}

// ProveFile returns the inclusion proof of the file at path within the
// manifest's overall tree, with the leaf digest it proves.
func ProveFile(manifest hashscope.Manifest, path string) (string, Proof, error) {
	leaves := manifest.Leaves()
	tree, err := Build(digests(leaves))
	if err != nil {
		return "", Proof{}, err
	}
	for index, leaf := range leaves {
		if leaf.Path == path {
			proof, err := tree.Proof(index)
			return leaf.SHA256, proof, err
		}
	}
	return "", Proof{}, fmt.Errorf("merkle: %s is not in the hash scope", path)
}

func digests(refs []hashscope.FileRef) []string {
	out := make([]string, len(refs))
	for index, ref := range refs {
		out[index] = ref.SHA256
	}
	return out
}

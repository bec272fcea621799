package ir

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// StateComponent is one (phase, stable_id, content_hash) triple folded into a
// state digest.
type StateComponent struct {
	Phase       Phase
	StableID    string
	ContentHash string
}

func compareComponents(a, b StateComponent) int {
	return cmp.Or(
		cmp.Compare(a.Phase, b.Phase),
		cmp.Compare(a.StableID, b.StableID),
		cmp.Compare(a.ContentHash, b.ContentHash),
	)
}

// StateDigest folds components into a 64-character hex digest.
// Components are sorted by (phase, stable_id, content_hash) and exact
// duplicates collapse, so insertion order never affects the result. The
// sorted list is encoded as {"state_components":[...]} with MarshalCanonical
// and hashed with SHA-256.
func StateDigest(components []StateComponent) (string, error) {
	sorted := slices.Clone(components)
	slices.SortFunc(sorted, compareComponents)
	sorted = slices.Compact(sorted)

	list := make(IRArray, len(sorted))
	for i, c := range sorted {
		list[i] = IRObject{
			"phase":        IRString(c.Phase),
			"stable_id":    IRString(c.StableID),
			"content_hash": IRString(c.ContentHash),
		}
	}

	canonical, err := MarshalCanonical(IRObject{"state_components": list})
	if err != nil {
		return "", fmt.Errorf("state digest: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Package chain computes and verifies the hash chain linking commits.
//
// Every commit's hash is xxhash64(id bytes ‖ parent hash bytes), rendered as
// 16 lowercase hex characters. Walking commits in CompareKey order, each
// commit's ParentHash must equal the previous commit's Hash, starting from
// model.NullParentHash. The hash is a corruption and reordering detector,
// not a security boundary.
package chain

import (
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/roach88/strata/internal/model"
)

// Hash computes the chain hash of a commit id on top of parentHash.
// It is a pure function of its inputs.
func Hash(id uuid.UUID, parentHash string) string {
	d := xxhash.New()
	_, _ = d.Write(id[:])
	_, _ = d.Write(parentHashBytes(parentHash))
	return formatHash(d.Sum64())
}

// parentHashBytes decodes a hex parent hash; anything that is not valid hex
// is hashed as its raw string bytes so corrupted values still hash stably.
func parentHashBytes(parentHash string) []byte {
	if b, err := hex.DecodeString(parentHash); err == nil {
		return b
	}
	return []byte(parentHash)
}

func formatHash(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

// SetParentHash points c at parentHash and recomputes c.Hash.
// Returns true if either value changed.
func SetParentHash(c *model.Commit, parentHash string) bool {
	hash := Hash(c.ID, parentHash)
	changed := c.ParentHash != parentHash || c.Hash != hash
	c.ParentHash = parentHash
	c.Hash = hash
	return changed
}

// Rechain rewrites ParentHash/Hash for commits, which must already be in
// CompareKey order, starting from seed. It returns the commits whose values
// changed and the hash of the last commit (seed if commits is empty).
func Rechain(commits []*model.Commit, seed string) (changed []*model.Commit, head string) {
	head = seed
	for _, c := range commits {
		if SetParentHash(c, head) {
			changed = append(changed, c)
		}
		head = c.Hash
	}
	return changed, head
}

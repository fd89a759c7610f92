// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import (
	"github.com/luxfi/dagbft-driver/validators"
	"github.com/luxfi/ids"
)

// Verifier answers quorum questions against a fixed validator set, grounded
// on validators.Set's Light() (stake) accessor. A set of authors satisfies
// quorum when their combined stake exceeds two thirds of total stake.
type Verifier struct {
	set validators.Set
}

// NewVerifier wraps a validator set for quorum checks.
func NewVerifier(set validators.Set) *Verifier {
	return &Verifier{set: set}
}

// Len returns the number of validators in the set.
func (v *Verifier) Len() int {
	return v.set.Len()
}

// QuorumCheck reports whether authors collectively hold more than two
// thirds of total stake. Authors not present in the validator set
// contribute no stake.
func (v *Verifier) QuorumCheck(authors []ids.NodeID) bool {
	stakeByID := make(map[ids.NodeID]uint64, v.set.Len())
	var total uint64
	for _, val := range v.set.List() {
		stakeByID[val.ID()] = val.Light()
		total += val.Light()
	}
	if total == 0 {
		return false
	}

	seen := make(map[ids.NodeID]struct{}, len(authors))
	var sum uint64
	for _, a := range authors {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		sum += stakeByID[a]
	}
	// Byzantine quorum: stake(authors) > 2/3 * total, computed without
	// floating point: 3*sum > 2*total.
	return 3*sum > 2*total
}

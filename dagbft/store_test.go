// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import (
	"testing"

	"github.com/luxfi/dagbft-driver/validators"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func testVerifier(t *testing.T, n int) (*Verifier, []ids.NodeID) {
	t.Helper()
	authors := make([]ids.NodeID, n)
	vals := make([]validatorStub, n)
	for i := range authors {
		authors[i] = ids.GenerateTestNodeID()
		vals[i] = validatorStub{id: authors[i], light: 1}
	}
	return NewVerifier(fakeValidatorSet{vals: vals}), authors
}

func certNode(epoch Epoch, round Round, author ids.NodeID, digest ids.ID, parents []NodeMetadata) CertifiedNode {
	return CertifiedNode{
		Node: Node{
			Epoch:       epoch,
			Round:       round,
			Author:      author,
			StrongLinks: parents,
		},
		Digest: digest,
	}
}

func TestStoreAddNodeDuplicateInvalidEpochUnknownParents(t *testing.T) {
	require := require.New(t)
	_, authors := testVerifier(t, 4)
	s := NewStore(1)

	n1 := certNode(1, 1, authors[0], ids.GenerateTestID(), nil)
	require.NoError(s.AddNode(n1))
	require.ErrorIs(s.AddNode(n1), ErrDuplicateNode)

	wrongEpoch := certNode(2, 1, authors[1], ids.GenerateTestID(), nil)
	require.ErrorIs(s.AddNode(wrongEpoch), ErrInvalidEpoch)

	missingParent := certNode(1, 2, authors[0], ids.GenerateTestID(), []NodeMetadata{
		{Epoch: 1, Round: 1, Author: authors[1], Digest: ids.GenerateTestID()},
	})
	require.ErrorIs(s.AddNode(missingParent), ErrUnknownParents)

	require.Equal(1, s.Size())
}

func TestGetStrongLinksForRoundQuorumAndDeterminism(t *testing.T) {
	require := require.New(t)
	verifier, authors := testVerifier(t, 4)
	s := NewStore(1)

	// Round 0 is the vacuous genesis parent.
	links, ok := s.GetStrongLinksForRound(0, verifier)
	require.True(ok)
	require.Empty(links)

	// Only 2 of 4 validators at round 1: below quorum (need > 2/3 of 4 = 3).
	require.NoError(s.AddNode(certNode(1, 1, authors[0], ids.GenerateTestID(), nil)))
	require.NoError(s.AddNode(certNode(1, 1, authors[1], ids.GenerateTestID(), nil)))
	_, ok = s.GetStrongLinksForRound(1, verifier)
	require.False(ok)

	// A third validator reaches quorum.
	require.NoError(s.AddNode(certNode(1, 1, authors[2], ids.GenerateTestID(), nil)))
	got1, ok := s.GetStrongLinksForRound(1, verifier)
	require.True(ok)
	require.Len(got1, 3)

	got2, ok := s.GetStrongLinksForRound(1, verifier)
	require.True(ok)
	require.Equal(got1, got2, "selection must be deterministic across repeated calls")
}

func TestReachableBFS(t *testing.T) {
	require := require.New(t)
	_, authors := testVerifier(t, 2)
	s := NewStore(1)

	r1a := certNode(1, 1, authors[0], ids.GenerateTestID(), nil)
	require.NoError(s.AddNode(r1a))
	r1aMeta := r1a.Metadata()

	r2a := certNode(1, 2, authors[0], ids.GenerateTestID(), []NodeMetadata{r1aMeta})
	require.NoError(s.AddNode(r2a))
	r2aMeta := r2a.Metadata()

	visited := s.Reachable([]NodeMetadata{r2aMeta}, 0, nil)
	require.Len(visited, 2)
}

// --- fakes used only within this package's tests ---

type validatorStub struct {
	id    ids.NodeID
	light uint64
}

func (v validatorStub) ID() ids.NodeID { return v.id }
func (v validatorStub) Light() uint64  { return v.light }

type fakeValidatorSet struct {
	vals []validatorStub
}

func (s fakeValidatorSet) Has(id ids.NodeID) bool {
	for _, v := range s.vals {
		if v.id == id {
			return true
		}
	}
	return false
}

func (s fakeValidatorSet) Len() int { return len(s.vals) }

func (s fakeValidatorSet) List() []validators.Validator {
	out := make([]validators.Validator, len(s.vals))
	for i, v := range s.vals {
		out[i] = v
	}
	return out
}

func (s fakeValidatorSet) Light() uint64 {
	var total uint64
	for _, v := range s.vals {
		total += v.light
	}
	return total
}

func (s fakeValidatorSet) Sample(size int) ([]ids.NodeID, error) {
	out := make([]ids.NodeID, 0, size)
	for i := 0; i < size && i < len(s.vals); i++ {
		out = append(out, s.vals[i].id)
	}
	return out, nil
}

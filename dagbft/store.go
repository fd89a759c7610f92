// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import (
	"sort"
	"sync"

	"github.com/luxfi/ids"
)

// Store is the in-memory DAG: a round-indexed map of author to
// CertifiedNode, behind a single reader-writer lock. Mirrors the
// mutex-guarded-map shape of engine/dag/state.serializer, keyed by
// (round, author) instead of vertex ID.
//
// No suspension point may be reached while holding the lock; callers must
// keep critical sections to plain map operations.
type Store struct {
	mu      sync.RWMutex
	epoch   Epoch
	byRound map[Round]map[ids.NodeID]CertifiedNode
	highest Round
}

// NewStore creates an empty DAG store for the given epoch.
func NewStore(epoch Epoch) *Store {
	return &Store{
		epoch:   epoch,
		byRound: make(map[Round]map[ids.NodeID]CertifiedNode),
	}
}

// Exists reports membership by metadata: the store holds a node at
// (meta.Round, meta.Author) whose digest matches.
func (s *Store) Exists(meta NodeMetadata) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.existsLocked(meta)
}

func (s *Store) existsLocked(meta NodeMetadata) bool {
	authors, ok := s.byRound[meta.Round]
	if !ok {
		return false
	}
	node, ok := authors[meta.Author]
	if !ok {
		return false
	}
	return node.Digest == meta.Digest
}

// AllExist is the conjunctive form of Exists.
func (s *Store) AllExist(metas []NodeMetadata) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range metas {
		if !s.existsLocked(m) {
			return false
		}
	}
	return true
}

// AddNode inserts a certified node. Atomic: a failed add leaves the store
// unchanged.
func (s *Store) AddNode(node CertifiedNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node.Epoch != s.epoch {
		return ErrInvalidEpoch
	}
	if authors, ok := s.byRound[node.Round]; ok {
		if _, dup := authors[node.Author]; dup {
			return ErrDuplicateNode
		}
	}
	for _, parent := range node.StrongLinks {
		if !s.existsLocked(parent) {
			return ErrUnknownParents
		}
	}

	authors, ok := s.byRound[node.Round]
	if !ok {
		authors = make(map[ids.NodeID]CertifiedNode)
		s.byRound[node.Round] = authors
	}
	authors[node.Author] = node
	if node.Round > s.highest {
		s.highest = node.Round
	}
	return nil
}

// HighestRound returns the maximum round with any node present.
func (s *Store) HighestRound() Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.highest
}

// Size returns the total number of nodes stored, for diagnostics/metrics.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, authors := range s.byRound {
		total += len(authors)
	}
	return total
}

// NodesAt returns a snapshot of the certified nodes present at round r. Used
// by tests and by the driver to read parent timestamps when it builds a new
// node.
func (s *Store) NodesAt(r Round) []CertifiedNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	authors := s.byRound[r]
	out := make([]CertifiedNode, 0, len(authors))
	for _, n := range authors {
		out = append(out, n)
	}
	return out
}

// GetStrongLinksForRound returns the metadata of round r's nodes if their
// authors' aggregate stake satisfies quorum, else (nil, false). Selection
// among more-than-quorum candidates is deterministic: nodes are sorted by
// ascending author id before the metadata set is built, so two replicas
// holding identical round-r state produce the identical set.
func (s *Store) GetStrongLinksForRound(r Round, verifier *Verifier) ([]NodeMetadata, bool) {
	if r == 0 {
		// Round 0 is the vacuous genesis parent: round 1's proposals link
		// to an empty strong-link set rather than to real round-0 nodes.
		return nil, true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	authors := s.byRound[r]
	if len(authors) == 0 {
		return nil, false
	}

	ids := make([]ids.NodeID, 0, len(authors))
	for a := range authors {
		ids = append(ids, a)
	}
	if !verifier.QuorumCheck(ids) {
		return nil, false
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	out := make([]NodeMetadata, 0, len(ids))
	for _, a := range ids {
		out = append(out, authors[a].Metadata())
	}
	return out, true
}

// NodeStatus wraps a certified node surfaced by Reachable.
type NodeStatus struct {
	node CertifiedNode
}

// AsNode returns the wrapped certified node.
func (n NodeStatus) AsNode() CertifiedNode { return n.node }

// Reachable performs a backward BFS over strong links starting at roots,
// stopping below lowerRoundBound, filtering by predicate. Visit order is
// (round desc, author asc); each node is visited at most once.
func (s *Store) Reachable(roots []NodeMetadata, lowerRoundBound Round, predicate func(CertifiedNode) bool) []NodeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[NodeMetadata]struct{})
	frontier := make([]NodeMetadata, 0, len(roots))
	for _, r := range roots {
		if _, ok := visited[r]; ok {
			continue
		}
		visited[r] = struct{}{}
		frontier = append(frontier, r)
	}

	var out []NodeStatus
	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool {
			if frontier[i].Round != frontier[j].Round {
				return frontier[i].Round > frontier[j].Round
			}
			return frontier[i].Author.String() < frontier[j].Author.String()
		})

		var next []NodeMetadata
		for _, meta := range frontier {
			if meta.Round < lowerRoundBound {
				continue
			}
			authors, ok := s.byRound[meta.Round]
			if !ok {
				continue
			}
			node, ok := authors[meta.Author]
			if !ok || node.Digest != meta.Digest {
				continue
			}
			if predicate == nil || predicate(node) {
				out = append(out, NodeStatus{node: node})
			}
			for _, parent := range node.StrongLinks {
				if parent.Round < lowerRoundBound {
					continue
				}
				if _, ok := visited[parent]; ok {
					continue
				}
				visited[parent] = struct{}{}
				next = append(next, parent)
			}
		}
		frontier = next
	}
	return out
}

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"
)

// Round indexes proposal layers in the DAG. Strictly monotonically
// increasing for any single author's own proposals.
type Round uint64

// Epoch identifies the validator-set generation a node was produced under.
type Epoch uint64

var (
	// ErrDuplicateNode is returned by Store.AddNode when (round, author) is
	// already present. Benign: the RPC handler treats it as success.
	ErrDuplicateNode = errors.New("dagbft: duplicate node")
	// ErrInvalidEpoch is returned by Store.AddNode on an epoch mismatch.
	ErrInvalidEpoch = errors.New("dagbft: invalid epoch")
	// ErrUnknownParents is returned by Store.AddNode when a strong link is
	// not present in the store.
	ErrUnknownParents = errors.New("dagbft: unknown parents")
	// ErrMissingParents is returned by Driver.AddNode on the same condition,
	// after having enqueued a fetch request for the missing parents.
	ErrMissingParents = errors.New("dagbft: missing parents")
	// ErrMissingStrongLinks signals that EnterNewRound's precondition
	// (round-1 is complete) does not hold. A fatal invariant violation.
	ErrMissingStrongLinks = errors.New("dagbft: missing strong links for round")
	// ErrUnknownSchemaVersion is returned by Journal.GetPendingNode when the
	// persisted node was written by an incompatible schema version.
	ErrUnknownSchemaVersion = errors.New("dagbft: unknown pending-node schema version")
)

// NodeMetadata uniquely identifies a Node: (epoch, round, author, digest).
type NodeMetadata struct {
	Epoch  Epoch
	Round  Round
	Author ids.NodeID
	Digest ids.ID
}

func (m NodeMetadata) String() string {
	return fmt.Sprintf("Node(e=%d, r=%d, author=%s, digest=%s)", m.Epoch, m.Round, m.Author, m.Digest)
}

// Extensions carries forward-compatible, protocol-defined extra fields. The
// driver never inspects its contents; it is opaque payload metadata.
type Extensions struct {
	Data []byte
}

// Node is an uncertified proposal: one per (author, round).
type Node struct {
	Epoch       Epoch
	Round       Round
	Author      ids.NodeID
	TimestampUs int64
	Payload     Payload
	StrongLinks []NodeMetadata
	Extensions  Extensions
}

// Metadata derives this node's identifying metadata. The digest is supplied
// by the caller (the driver computes it with its DigestFunc); Node itself
// neither stores nor recomputes it.
func (n Node) Metadata(digest ids.ID) NodeMetadata {
	return NodeMetadata{
		Epoch:  n.Epoch,
		Round:  n.Round,
		Author: n.Author,
		Digest: digest,
	}
}

// ParentsMetadata returns this node's strong-link set, for parent-closure
// checks against the Store.
func (n Node) ParentsMetadata() []NodeMetadata {
	return n.StrongLinks
}

// AggregateCertificate is the quorum-aggregated signature over a
// NodeMetadata produced by the SignatureBuilder aggregator.
type AggregateCertificate struct {
	Metadata   NodeMetadata
	Signatures map[ids.NodeID][]byte
}

// CertifiedNode is a Node plus proof that a quorum of validators endorsed
// its metadata.
type CertifiedNode struct {
	Node
	Digest      ids.ID
	Certificate AggregateCertificate
}

// Metadata returns the certified node's identifying metadata.
func (c CertifiedNode) Metadata() NodeMetadata {
	return NodeMetadata{
		Epoch:  c.Epoch,
		Round:  c.Round,
		Author: c.Author,
		Digest: c.Digest,
	}
}

// CertifiedNodeMessage piggybacks the latest known LedgerInfo onto a
// certified node so peers learn commit progress without a separate round
// trip.
type CertifiedNodeMessage struct {
	CertifiedNode CertifiedNode
	LedgerInfo    LedgerInfo
}

// CertifiedAck is returned to a peer once their certified node is present
// in the DAG, whether it was already there or was just added.
type CertifiedAck struct {
	Epoch Epoch
}

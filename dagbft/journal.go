// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import (
	"fmt"

	"github.com/luxfi/dagbft-driver/codec"
	"github.com/luxfi/database"
)

// pendingNodeKey is the single fixed key the journal's pending-node slot
// lives under.
var pendingNodeKey = []byte("dagbft/pending_node")

// persistedNode is the wire shape saved to the journal: the schema version
// the node was encoded with, plus the node itself.
type persistedNode struct {
	Version codec.CodecVersion
	Node    Node
}

// Journal is the durable key/value surface for the single in-flight
// self-proposal. Failures are fatal: callers refuse to proceed rather than
// broadcast an unrecoverable or unjournalled proposal (spec §4.2).
type Journal interface {
	SavePendingNode(node Node) error
	GetPendingNode() (*Node, error)
	ClearPendingNode() error
}

// dbJournal implements Journal over a database.Database, the same KV
// surface engine/dag/state.serializer already uses for vertex lookups.
type dbJournal struct {
	db database.Database
}

// NewJournal wraps a database.Database as a Journal.
func NewJournal(db database.Database) Journal {
	return &dbJournal{db: db}
}

// SavePendingNode overwrites the single pending-node slot. Durable before
// returning, per the underlying database.Database.Put contract.
func (j *dbJournal) SavePendingNode(node Node) error {
	raw, err := codec.Codec.Marshal(codec.CurrentVersion, persistedNode{
		Version: codec.CurrentVersion,
		Node:    node,
	})
	if err != nil {
		return fmt.Errorf("dagbft: marshal pending node: %w", err)
	}
	if err := j.db.Put(pendingNodeKey, raw); err != nil {
		return fmt.Errorf("dagbft: save pending node: %w", err)
	}
	return nil
}

// GetPendingNode reads the pending node at startup, or (nil, nil) if none
// is persisted.
func (j *dbJournal) GetPendingNode() (*Node, error) {
	has, err := j.db.Has(pendingNodeKey)
	if err != nil {
		return nil, fmt.Errorf("dagbft: read pending node: %w", err)
	}
	if !has {
		return nil, nil
	}

	raw, err := j.db.Get(pendingNodeKey)
	if err != nil {
		return nil, fmt.Errorf("dagbft: read pending node: %w", err)
	}

	var p persistedNode
	if _, err := codec.Codec.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("dagbft: decode pending node: %w", err)
	}
	if p.Version != codec.CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSchemaVersion, p.Version)
	}
	return &p.Node, nil
}

// ClearPendingNode idempotently erases the pending-node slot.
func (j *dbJournal) ClearPendingNode() error {
	if err := j.db.Delete(pendingNodeKey); err != nil {
		return fmt.Errorf("dagbft: clear pending node: %w", err)
	}
	return nil
}

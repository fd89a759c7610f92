// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import (
	"context"
	"time"
)

// Payload is the opaque transaction batch a proposer attaches to a Node.
// Block/payload construction itself is out of scope (spec §1); the driver
// only ever moves Payload values around.
type Payload struct {
	Transactions [][]byte
	Bytes        int
}

// Empty reports whether the payload carries no transactions.
func (p Payload) Empty() bool {
	return len(p.Transactions) == 0
}

// PayloadFilter excludes already-proposed or already-committed
// transactions from the next payload pull. An empty filter (no strong
// links yet, e.g. round 1) excludes nothing.
type PayloadFilter struct {
	Exclude [][]byte
}

// NewPayloadFilterFromPayloads builds a filter over every transaction
// carried by the given payloads.
func NewPayloadFilterFromPayloads(payloads []Payload) PayloadFilter {
	var exclude [][]byte
	for _, p := range payloads {
		exclude = append(exclude, p.Transactions...)
	}
	return PayloadFilter{Exclude: exclude}
}

// PayloadPullBudget bounds a single pull_payload call: time, transaction
// count, and byte size. Fixed by spec §6.
type PayloadPullBudget struct {
	Deadline time.Duration
	MaxCount int
	MaxBytes int
}

// DefaultPayloadPullBudget is the budget spec.md §6 fixes: <=1s, <=1000
// txns, <=10MiB.
var DefaultPayloadPullBudget = PayloadPullBudget{
	Deadline: time.Second,
	MaxCount: 1000,
	MaxBytes: 10 * 1024 * 1024,
}

// PayloadClient pulls a bounded payload from the mempool, respecting the
// supplied filter and budget. Consumed as an external collaborator (spec
// §6); mempool filtering and construction are out of scope.
type PayloadClient interface {
	PullPayload(ctx context.Context, budget PayloadPullBudget, filter PayloadFilter) (Payload, error)
}

// PayloadManager prefetches the data referenced by a payload so it is
// locally available by the time the node is certified.
type PayloadManager interface {
	PrefetchPayloadData(payload Payload, timestampUs int64)
}

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dagbfttest provides in-memory fakes for dagbft's collaborator
// capabilities, in the style of the teacher's consensustest/chaintest/
// enginetest packages: hand-written fakes for simple interfaces, used
// directly by dagbft's own tests and available to embedders writing their
// own.
package dagbfttest

import (
	"context"
	"sync"

	"github.com/luxfi/dagbft-driver/dagbft"
	"github.com/luxfi/ids"
)

// PayloadClient is a fake dagbft.PayloadClient returning a fixed payload
// (or a configured error) regardless of the requested filter/budget.
type PayloadClient struct {
	mu      sync.Mutex
	Payload dagbft.Payload
	Err     error
	Calls   int
}

func (f *PayloadClient) PullPayload(ctx context.Context, budget dagbft.PayloadPullBudget, filter dagbft.PayloadFilter) (dagbft.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return dagbft.Payload{}, f.Err
	}
	return f.Payload, nil
}

// PayloadManager is a fake dagbft.PayloadManager recording every prefetch.
type PayloadManager struct {
	mu    sync.Mutex
	Calls []dagbft.Payload
}

func (f *PayloadManager) PrefetchPayloadData(payload dagbft.Payload, timestampUs int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, payload)
}

// FetchRequester is a fake dagbft.FetchRequester recording every request.
type FetchRequester struct {
	mu       sync.Mutex
	Requests []dagbft.CertifiedNode
	Err      error
}

func (f *FetchRequester) Request(ctx context.Context, node dagbft.CertifiedNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, node)
	return f.Err
}

func (f *FetchRequester) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

// OrderRule is a fake dagbft.OrderRule recording every node pushed to it.
type OrderRule struct {
	mu    sync.Mutex
	Nodes []dagbft.NodeMetadata
}

func (f *OrderRule) ProcessNewNode(meta dagbft.NodeMetadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Nodes = append(f.Nodes, meta)
}

func (f *OrderRule) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Nodes)
}

// LedgerInfoProvider is a fake dagbft.LedgerInfoProvider with settable
// fields; safe for concurrent reads while the test goroutine owns writes
// before starting the driver.
type LedgerInfoProvider struct {
	mu                  sync.Mutex
	LatestLedgerInfo    dagbft.LedgerInfo
	CommittedAnchorRound dagbft.Round
}

func (f *LedgerInfoProvider) GetLatestLedgerInfo() dagbft.LedgerInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.LatestLedgerInfo
}

func (f *LedgerInfoProvider) GetHighestCommittedAnchorRound() dagbft.Round {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CommittedAnchorRound
}

func (f *LedgerInfoProvider) SetCommittedAnchorRound(r dagbft.Round) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CommittedAnchorRound = r
}

// Broadcaster is a fake dagbft.ReliableBroadcastClient that immediately
// feeds every known peer's reply to the aggregator, completing as soon as
// the aggregator reports quorum. Useful for driver tests that don't need
// to exercise retry/backoff behavior.
type Broadcaster struct {
	Peers []ids.NodeID
}

func (b *Broadcaster) Broadcast(ctx context.Context, payload []byte, agg dagbft.Aggregator) error {
	for _, p := range b.Peers {
		done, err := agg.Add(p, nil)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// BlockedBroadcaster never completes until Unblock is called; used to
// exercise the abort-on-round-skip scenario.
type BlockedBroadcaster struct {
	unblock chan struct{}
	once    sync.Once
}

func NewBlockedBroadcaster() *BlockedBroadcaster {
	return &BlockedBroadcaster{unblock: make(chan struct{})}
}

func (b *BlockedBroadcaster) Unblock() {
	b.once.Do(func() { close(b.unblock) })
}

func (b *BlockedBroadcaster) Broadcast(ctx context.Context, payload []byte, agg dagbft.Aggregator) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.unblock:
		return nil
	}
}

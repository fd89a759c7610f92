// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/dagbft-driver/dagbft/dagbfttest"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

type testReplica struct {
	author  ids.NodeID
	driver  *Driver
	dag     *Store
	journal Journal
	order   *dagbfttest.OrderRule
	fetch   *dagbfttest.FetchRequester
	ledger  *dagbfttest.LedgerInfoProvider
}

func newTestReplica(t *testing.T, epoch Epoch, author ids.NodeID, verifier *Verifier, peers []ids.NodeID) *testReplica {
	t.Helper()
	dag := NewStore(epoch)
	journal := NewJournal(newMemDB())
	order := &dagbfttest.OrderRule{}
	fetch := &dagbfttest.FetchRequester{}
	ledger := &dagbfttest.LedgerInfoProvider{}
	payloadClient := &dagbfttest.PayloadClient{}
	payloadManager := &dagbfttest.PayloadManager{}
	rb := &dagbfttest.Broadcaster{Peers: peers}

	cfg := Config{Author: author, Epoch: epoch, Budget: DefaultPayloadPullBudget}
	d := NewDriver(cfg, verifier, DefaultDigest, dag, journal, rb, payloadClient, payloadManager, order, fetch, ledger, NewClock(), nil, nil)
	return &testReplica{author: author, driver: d, dag: dag, journal: journal, order: order, fetch: fetch, ledger: ledger}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition not met before timeout")
}

// Scenario 1: no-conflict progress. 4 validators, empty DAG, every replica
// proposes round 1 concurrently; after all four round-1 certificates
// cross-ingest, every replica enters round 2 exactly once.
func TestNoConflictProgress(t *testing.T) {
	verifier, authors := testVerifier(t, 4)
	replicas := make([]*testReplica, 4)
	for i, a := range authors {
		replicas[i] = newTestReplica(t, 1, a, verifier, authors)
	}

	ctx := context.Background()
	for _, r := range replicas {
		require.NoError(t, r.driver.Start(ctx))
	}
	for _, r := range replicas {
		r.driver.Wait()
	}

	// Cross-ingest: every replica's round-1 node becomes visible to every
	// other replica via the RPC handler.
	var round1 []CertifiedNode
	for _, r := range replicas {
		round1 = append(round1, r.dag.NodesAt(1)...)
	}
	require.Len(t, round1, 4)

	for _, r := range replicas {
		for _, n := range round1 {
			_, _ = r.driver.Process(ctx, n)
		}
	}
	for _, r := range replicas {
		r.driver.Wait()
	}

	for _, r := range replicas {
		waitFor(t, time.Second, func() bool { return r.driver.CurrentRound() == 2 })
		require.Len(t, r.dag.NodesAt(1), 4)
	}
}

// Scenario 3: missing parents. Deliver a round-3 certified node whose
// round-2 parent is absent.
func TestAddNodeMissingParents(t *testing.T) {
	require := require.New(t)
	verifier, authors := testVerifier(t, 4)
	r := newTestReplica(t, 1, authors[0], verifier, authors)
	ctx := context.Background()
	require.NoError(r.driver.Start(ctx))
	r.driver.Wait()

	before := r.driver.CurrentRound()

	missingParent := NodeMetadata{Epoch: 1, Round: 2, Author: authors[1], Digest: ids.GenerateTestID()}
	node := certNode(1, 3, authors[2], ids.GenerateTestID(), []NodeMetadata{missingParent})

	err := r.driver.AddNode(ctx, node)
	require.ErrorIs(err, ErrMissingParents)
	require.Equal(1, r.fetch.RequestCount())
	require.Equal(before, r.driver.CurrentRound())
}

// Scenario 6: duplicate RPC. Ingesting the same CertifiedNode twice yields
// an Ack both times and the order rule is notified exactly once for that
// node (on top of whatever the replica's own self-proposal already
// produced).
func TestProcessDuplicateRPC(t *testing.T) {
	require := require.New(t)
	verifier, authors := testVerifier(t, 4)
	r := newTestReplica(t, 1, authors[0], verifier, authors)
	ctx := context.Background()

	require.NoError(r.driver.Start(ctx))
	r.driver.Wait()
	require.Equal(1, r.order.Count(), "self-proposal at round 1 notifies the order rule once")

	own := r.dag.NodesAt(1)
	require.Len(own, 1)
	parent := own[0].Metadata()

	node := certNode(1, 2, authors[1], ids.GenerateTestID(), []NodeMetadata{parent})

	ack1, err := r.driver.Process(ctx, node)
	require.NoError(err)
	require.Equal(Epoch(1), ack1.Epoch)

	ack2, err := r.driver.Process(ctx, node)
	require.NoError(err)
	require.Equal(Epoch(1), ack2.Epoch)

	require.Equal(2, r.order.Count())
	require.Equal(2, r.dag.Size())
}

// Scenario 4: abort on round advance. A driver stuck broadcasting round 1
// sees three peers complete round 1 without it, enters round 2, and
// replaces the stuck round-1 chain with the round-2 chain.
func TestAbortOnRoundSkip(t *testing.T) {
	require := require.New(t)
	verifier, authors := testVerifier(t, 4)

	dag := NewStore(1)
	journal := NewJournal(newMemDB())
	order := &dagbfttest.OrderRule{}
	fetch := &dagbfttest.FetchRequester{}
	ledger := &dagbfttest.LedgerInfoProvider{}
	payloadClient := &dagbfttest.PayloadClient{}
	payloadManager := &dagbfttest.PayloadManager{}
	blocked := dagbfttest.NewBlockedBroadcaster()

	cfg := Config{Author: authors[0], Epoch: 1, Budget: DefaultPayloadPullBudget}
	d := NewDriver(cfg, verifier, DefaultDigest, dag, journal, blocked, payloadClient, payloadManager, order, fetch, ledger, NewClock(), nil, nil)

	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	require.Equal(t, Round(1), d.CurrentRound())

	// Three peers form quorum at round 1 without this replica.
	for i := 1; i < 4; i++ {
		n := certNode(1, 1, authors[i], ids.GenerateTestID(), nil)
		_, err := d.Process(ctx, n)
		require.NoError(t, err)
	}

	waitFor(t, time.Second, func() bool { return d.CurrentRound() == 2 })
	blocked.Unblock()
	d.Wait()
}

// Scenario 5: payload-filter closure. A strong-linked parent at or above
// committedAnchor-DAGWindow is reachable and its transactions are excluded
// from the next pull so they aren't proposed twice.
func TestPayloadFilterClosesOverReachableWindow(t *testing.T) {
	require := require.New(t)
	verifier, authors := testVerifier(t, 2)
	r := newTestReplica(t, 1, authors[0], verifier, authors)
	r.ledger.SetCommittedAnchorRound(10) // lowerBound = 10 - DAGWindow(4) = 6

	n1 := certNode(1, 6, authors[0], ids.GenerateTestID(), nil)
	n1.Payload = Payload{Transactions: [][]byte{[]byte("within-window")}}
	require.NoError(r.dag.AddNode(n1))

	filter := r.driver.buildPayloadFilter([]NodeMetadata{n1.Metadata()})
	require.NotEmpty(filter.Exclude, "round 6 is within the DAGWindow of committed round 10 and must be excluded from re-proposal")
}

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
)

// encodeForBroadcast serializes a wire message for the reliable-broadcast
// transport. Unlike the journal (which is schema-versioned for durable
// cross-restart compatibility), wire messages are plain JSON: both ends of
// a single broadcast round trip always run the same binary.
func encodeForBroadcast(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DigestFunc computes the collision-resistant hash over a node's body.
// Hashing itself is a signature/crypto-primitive concern and is consumed
// as an abstract capability (spec §1), supplied by the embedding process.
type DigestFunc func(Node) ids.ID

// Driver is the per-validator DAG consensus state machine: it advances
// local rounds, ingests certified nodes from peers, and drives the
// reliable-broadcast chain for its own proposals.
//
// current_round and the in-flight broadcast's cancel func are owned
// exclusively by the driver and guarded by driverMu. Start, EnterNewRound,
// BroadcastNode and the round-advancing tail of AddNode hold driverMu, so
// at most one of them enters a round or replaces the broadcast chain at a
// time. The parent check and DAG insert in AddNode, and the existence check
// in Process, run outside driverMu under the Store's own lock.
type Driver struct {
	cfg      Config
	verifier *Verifier
	digest   DigestFunc

	dag            *Store
	journal        Journal
	rb             ReliableBroadcastClient
	payloadClient  PayloadClient
	payloadManager PayloadManager
	orderRule      OrderRule
	fetchRequester FetchRequester
	ledgerInfo     LedgerInfoProvider
	clock          *Clock
	log            log.Logger
	metrics        *metrics

	driverMu     sync.Mutex
	currentRound Round
	rbCancel     context.CancelFunc
	broadcastWG  sync.WaitGroup
}

// NewDriver constructs a Driver. The constructor does no I/O and enters no
// round; call Start to run recovery and kick off round advancement (spec
// §9: block-on during construction is avoided by making this an explicit
// post-construction phase).
func NewDriver(
	cfg Config,
	verifier *Verifier,
	digest DigestFunc,
	dag *Store,
	journal Journal,
	rb ReliableBroadcastClient,
	payloadClient PayloadClient,
	payloadManager PayloadManager,
	orderRule OrderRule,
	fetchRequester FetchRequester,
	ledgerInfo LedgerInfoProvider,
	clock *Clock,
	logger log.Logger,
	reg prometheus.Registerer,
) *Driver {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Driver{
		cfg:            cfg,
		verifier:       verifier,
		digest:         digest,
		dag:            dag,
		journal:        journal,
		rb:             rb,
		payloadClient:  payloadClient,
		payloadManager: payloadManager,
		orderRule:      orderRule,
		fetchRequester: fetchRequester,
		ledgerInfo:     ledgerInfo,
		clock:          clock,
		log:            logger,
		metrics:        newMetrics(reg),
	}
}

// completeRoundOrPrevious mirrors the startup/add_node computation of
// spec §4.4 step 2/5: q = h if round h is complete, else h-1 (saturating
// at 0).
func (d *Driver) completeRoundOrPrevious(h Round) Round {
	if _, ok := d.dag.GetStrongLinksForRound(h, d.verifier); ok {
		return h
	}
	if h == 0 {
		return 0
	}
	return h - 1
}

// Start runs the startup/recovery algorithm (spec §4.4) and returns once
// the first round has been entered or resumed. Journal failures here are
// fatal, per spec §4.2/§7.
func (d *Driver) Start(ctx context.Context) error {
	pending, err := d.journal.GetPendingNode()
	if err != nil {
		return fmt.Errorf("dagbft: fatal startup error reading journal: %w", err)
	}

	h := d.dag.HighestRound()
	q := d.completeRoundOrPrevious(h)

	d.driverMu.Lock()
	defer d.driverMu.Unlock()

	if pending != nil && pending.Round == q+1 {
		d.currentRound = pending.Round
		d.log.Debug("resuming in-flight proposal after restart", "round", pending.Round)
		d.broadcastNodeLocked(ctx, *pending)
		return nil
	}

	d.currentRound = q
	return d.enterNewRoundLocked(ctx, q+1)
}

// AddNode ingests a peer-certified node (spec §4.4 add_node). On success,
// it may trigger round advancement.
func (d *Driver) AddNode(ctx context.Context, node CertifiedNode) error {
	if !d.dag.AllExist(node.ParentsMetadata()) {
		if err := d.fetchRequester.Request(ctx, node); err != nil {
			d.log.Warn("fetch request failed", "err", err)
		}
		d.metrics.nodesRejected.WithLabelValues("missing_parents").Inc()
		return ErrMissingParents
	}

	d.payloadManager.PrefetchPayloadData(node.Payload, node.TimestampUs)

	if err := d.dag.AddNode(node); err != nil {
		d.metrics.nodesRejected.WithLabelValues(rejectReason(err)).Inc()
		return err
	}
	d.metrics.nodesAdded.Inc()

	h := d.dag.HighestRound()
	q := d.completeRoundOrPrevious(h)

	d.driverMu.Lock()
	defer d.driverMu.Unlock()
	if d.currentRound <= q {
		// q falls back to h-1 without checking that round h-1 is complete;
		// round q+1 is entered only once round q itself has quorum.
		if _, ok := d.dag.GetStrongLinksForRound(q, d.verifier); ok {
			return d.enterNewRoundLocked(ctx, q+1)
		}
	}
	return nil
}

func rejectReason(err error) string {
	switch err {
	case ErrDuplicateNode:
		return "duplicate"
	case ErrInvalidEpoch:
		return "invalid_epoch"
	case ErrUnknownParents:
		return "unknown_parents"
	default:
		return "other"
	}
}

// EnterNewRound advances the driver to newRound, pulling payload, building
// and journalling the new node, then broadcasting it. Callers must hold
// the precondition that round newRound-1 is complete; its absence is a
// fatal invariant violation (spec §4.4 step 1).
func (d *Driver) EnterNewRound(ctx context.Context, newRound Round) error {
	d.driverMu.Lock()
	defer d.driverMu.Unlock()
	return d.enterNewRoundLocked(ctx, newRound)
}

func (d *Driver) enterNewRoundLocked(ctx context.Context, newRound Round) error {
	d.log.Debug("entering new round", "round", newRound)

	strongLinks, ok := d.dag.GetStrongLinksForRound(newRound-1, d.verifier)
	if !ok {
		return fmt.Errorf("%w: %d", ErrMissingStrongLinks, newRound-1)
	}

	filter := d.buildPayloadFilter(strongLinks)

	pullCtx, cancel := context.WithTimeout(ctx, d.cfg.Budget.Deadline)
	payload, err := d.payloadClient.PullPayload(pullCtx, d.cfg.Budget, filter)
	cancel()
	if err != nil {
		// Resolved open question (spec §9): proceed with an empty payload
		// rather than stalling or panicking; round progress must never
		// block on mempool availability.
		d.log.Warn("payload pull failed, proceeding with empty payload", "round", newRound, "err", err)
		payload = Payload{}
	}

	timestamp := d.clock.NowUnixMicro()
	for _, parent := range strongLinks {
		// Resolved open question (spec §9): strict-greater-than-max of
		// parent timestamps, not a median.
		if parents := d.dag.NodesAt(parent.Round); len(parents) > 0 {
			for _, p := range parents {
				if p.Author == parent.Author && p.TimestampUs >= timestamp {
					timestamp = p.TimestampUs + 1
				}
			}
		}
	}

	node := Node{
		Epoch:       d.cfg.Epoch,
		Round:       newRound,
		Author:      d.cfg.Author,
		TimestampUs: timestamp,
		Payload:     payload,
		StrongLinks: strongLinks,
		Extensions:  Extensions{},
	}

	if err := d.journal.SavePendingNode(node); err != nil {
		return fmt.Errorf("dagbft: fatal error saving pending node: %w", err)
	}

	d.currentRound = newRound
	d.metrics.roundsEntered.Inc()
	d.broadcastNodeLocked(ctx, node)
	return nil
}

func (d *Driver) buildPayloadFilter(strongLinks []NodeMetadata) PayloadFilter {
	if len(strongLinks) == 0 {
		return PayloadFilter{}
	}
	highestCommitted := d.ledgerInfo.GetHighestCommittedAnchorRound()
	lowerBound := Round(0)
	if highestCommitted > DAGWindow {
		lowerBound = highestCommitted - DAGWindow
	}
	reachable := d.dag.Reachable(strongLinks, lowerBound, nil)
	payloads := make([]Payload, 0, len(reachable))
	for _, status := range reachable {
		payloads = append(payloads, status.AsNode().Payload)
	}
	return NewPayloadFilterFromPayloads(payloads)
}

// BroadcastNode builds fresh aggregators for node and spawns the chained,
// abortable two-phase broadcast (sign, then ack). Any previously in-flight
// chain is cancelled: at most one in-flight proposal per replica (spec §5).
func (d *Driver) BroadcastNode(ctx context.Context, node Node) {
	d.driverMu.Lock()
	defer d.driverMu.Unlock()
	d.broadcastNodeLocked(ctx, node)
}

func (d *Driver) broadcastNodeLocked(ctx context.Context, node Node) {
	rbCtx, cancel := context.WithCancel(ctx)

	digest := d.digest(node)
	meta := node.Metadata(digest)
	sigBuilder := NewSignatureBuilder(meta, d.verifier)
	ackState := NewCertificateAckState(d.verifier)

	d.broadcastWG.Add(1)
	go func() {
		defer d.broadcastWG.Done()
		d.runBroadcastChain(rbCtx, node, digest, sigBuilder, ackState)
	}()

	if prev := d.rbCancel; prev != nil {
		prev()
		d.metrics.broadcastsAborted.Inc()
	}
	d.rbCancel = cancel
}

func (d *Driver) runBroadcastChain(ctx context.Context, node Node, digest ids.ID, sigBuilder *SignatureBuilder, ackState *CertificateAckState) {
	d.log.Debug("starting reliable broadcast", "round", node.Round)

	nodePayload, err := encodeForBroadcast(node)
	if err != nil {
		d.log.Warn("failed to encode node for broadcast", "round", node.Round, "err", err)
		return
	}
	if err := d.rb.Broadcast(ctx, nodePayload, sigBuilder); err != nil {
		d.log.Debug("signature broadcast did not complete", "round", node.Round, "err", err)
		return
	}

	certified := CertifiedNode{
		Node:        node,
		Digest:      digest,
		Certificate: sigBuilder.Output(),
	}
	msg := CertifiedNodeMessage{
		CertifiedNode: certified,
		LedgerInfo:    d.ledgerInfo.GetLatestLedgerInfo(),
	}
	msgPayload, err := encodeForBroadcast(msg)
	if err != nil {
		d.log.Warn("failed to encode certified node for broadcast", "round", node.Round, "err", err)
		return
	}
	if err := d.rb.Broadcast(ctx, msgPayload, ackState); err != nil {
		d.log.Debug("ack broadcast did not complete", "round", node.Round, "err", err)
		return
	}

	d.log.Debug("finished reliable broadcast", "round", node.Round)

	// The round only advances once this replica's own node is visible in
	// its own DAG store (round r's quorum must include the possibility of
	// this author); self-ingest exactly the way a peer's certified node
	// would be ingested via the RPC handler.
	if err := d.AddNode(ctx, certified); err != nil && err != ErrDuplicateNode {
		d.log.Warn("failed to self-ingest own certified node", "round", node.Round, "err", err)
		return
	}
	d.orderRule.ProcessNewNode(certified.Metadata())
}

// Process is the RPC handler for inbound certified nodes (spec §4.4 RPC
// handler). Already-present nodes are acknowledged without re-adding.
func (d *Driver) Process(ctx context.Context, node CertifiedNode) (CertifiedAck, error) {
	epoch := node.Epoch
	if d.dag.Exists(node.Metadata()) {
		return CertifiedAck{Epoch: epoch}, nil
	}

	meta := node.Metadata()
	if err := d.AddNode(ctx, node); err != nil {
		if err == ErrDuplicateNode {
			return CertifiedAck{Epoch: epoch}, nil
		}
		return CertifiedAck{}, err
	}
	d.orderRule.ProcessNewNode(meta)
	return CertifiedAck{Epoch: epoch}, nil
}

// CurrentRound returns the round this replica is currently proposing (or
// has just finished proposing).
func (d *Driver) CurrentRound() Round {
	d.driverMu.Lock()
	defer d.driverMu.Unlock()
	return d.currentRound
}

// Wait blocks until every broadcast goroutine this driver has spawned has
// returned. Intended for clean shutdown in tests; production callers
// typically let aborted chains unwind asynchronously.
func (d *Driver) Wait() {
	d.broadcastWG.Wait()
}

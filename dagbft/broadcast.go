// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

// Aggregator collects per-peer replies to a single reliably-broadcast
// message and reports when enough of them have arrived to call the
// broadcast complete. Implementations are not safe for concurrent use by
// more than one Broadcaster at a time.
type Aggregator interface {
	// Add records a reply from peer. Returns true once the aggregate
	// condition (typically stake quorum) is satisfied.
	Add(peer ids.NodeID, reply []byte) (done bool, err error)
}

// SignatureBuilder collects per-author signatures over a NodeMetadata,
// completing when signer stake meets quorum. Its Output is the resulting
// AggregateCertificate.
type SignatureBuilder struct {
	meta     NodeMetadata
	verifier *Verifier

	mu   sync.Mutex
	sigs map[ids.NodeID][]byte
}

// NewSignatureBuilder starts a fresh signature aggregation for meta.
func NewSignatureBuilder(meta NodeMetadata, verifier *Verifier) *SignatureBuilder {
	return &SignatureBuilder{
		meta:     meta,
		verifier: verifier,
		sigs:     make(map[ids.NodeID][]byte),
	}
}

// Add records peer's signature over the builder's metadata.
func (b *SignatureBuilder) Add(peer ids.NodeID, reply []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sigs[peer] = reply

	signers := make([]ids.NodeID, 0, len(b.sigs))
	for p := range b.sigs {
		signers = append(signers, p)
	}
	return b.verifier.QuorumCheck(signers), nil
}

// Output returns the aggregate certificate built so far.
func (b *SignatureBuilder) Output() AggregateCertificate {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[ids.NodeID][]byte, len(b.sigs))
	for k, v := range b.sigs {
		out[k] = v
	}
	return AggregateCertificate{Metadata: b.meta, Signatures: out}
}

// CertificateAckState collects peer acknowledgments of a certified node,
// completing at quorum. Its output is unused: the second broadcast phase
// is fire-and-forget once quorum acks are in.
type CertificateAckState struct {
	verifier *Verifier

	mu   sync.Mutex
	acks map[ids.NodeID]struct{}
}

// NewCertificateAckState starts a fresh ack aggregation sized to the
// validator set verifier describes.
func NewCertificateAckState(verifier *Verifier) *CertificateAckState {
	return &CertificateAckState{
		verifier: verifier,
		acks:     make(map[ids.NodeID]struct{}),
	}
}

// Add records peer's acknowledgment.
func (a *CertificateAckState) Add(peer ids.NodeID, _ []byte) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks[peer] = struct{}{}

	acked := make([]ids.NodeID, 0, len(a.acks))
	for p := range a.acks {
		acked = append(acked, p)
	}
	return a.verifier.QuorumCheck(acked), nil
}

// ReliableBroadcastClient is the abstract capability the driver depends
// on: broadcast a message, driven by an Aggregator, until quorum or
// cancellation. *Broadcaster is the concrete implementation; tests may
// supply a fake.
type ReliableBroadcastClient interface {
	Broadcast(ctx context.Context, payload []byte, agg Aggregator) error
}

// PeerTransport sends one RPC to one peer and returns its raw reply.
// Implementations retry nothing themselves; Broadcaster owns retry/backoff.
type PeerTransport interface {
	SendToPeer(ctx context.Context, peer ids.NodeID, payload []byte) ([]byte, error)
}

// Broadcaster drives a message to every peer until the supplied Aggregator
// reports completion, retrying per-peer with exponential backoff.
// Composing two broadcasts into one cancelable chain is the caller's
// responsibility (see Driver.BroadcastNode); Broadcaster itself broadcasts
// exactly one message per call.
type Broadcaster struct {
	transport PeerTransport
	peers     []ids.NodeID
	log       log.Logger
}

// NewBroadcaster builds a Broadcaster that sends to the given peer set
// over transport.
func NewBroadcaster(transport PeerTransport, peers []ids.NodeID, logger log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Broadcaster{transport: transport, peers: peers, log: logger}
}

// Broadcast sends payload to every peer, retrying each with exponential
// backoff, until agg reports completion or ctx is cancelled. Each peer runs
// its own retry loop concurrently; the call returns as soon as agg is
// satisfied, without waiting for stragglers.
func (b *Broadcaster) Broadcast(ctx context.Context, payload []byte, agg Aggregator) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	var once sync.Once
	finish := func(err error) {
		once.Do(func() {
			select {
			case done <- err:
			default:
			}
		})
	}

	var wg sync.WaitGroup
	for _, peer := range b.peers {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.sendWithBackoff(ctx, peer, payload, agg, finish)
		}()
	}
	go func() {
		wg.Wait()
		// If every peer goroutine has returned without the aggregator
		// reaching quorum, that can only be because ctx was cancelled;
		// ctx.Err() is nil only in the (harmless, already-finished) race
		// where quorum completed at essentially the same moment.
		finish(ctx.Err())
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (b *Broadcaster) sendWithBackoff(ctx context.Context, peer ids.NodeID, payload []byte, agg Aggregator, finish func(error)) {
	policy := backoff.NewExponentialBackOff()
	// Never give up on a peer: retries end only at quorum or cancellation.
	policy.MaxElapsedTime = 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		reply, err := b.transport.SendToPeer(ctx, peer, payload)
		if err != nil {
			b.log.Debug("peer send failed, retrying", "peer", peer, "err", err)
			wait := policy.NextBackOff()
			if wait == backoff.Stop {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		done, err := agg.Add(peer, reply)
		if err != nil {
			b.log.Debug("peer reply rejected", "peer", peer, "err", err)
			continue
		}
		if done {
			finish(nil)
			return
		}
	}
}

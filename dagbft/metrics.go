// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the driver's prometheus counters, wired the way
// poll/default.go wires its factory: a bare prometheus.Registerer handed
// in by the embedding process, not the luxfi/metric wrapper, matching the
// teacher's own concrete call sites.
type metrics struct {
	roundsEntered    prometheus.Counter
	nodesAdded       prometheus.Counter
	nodesRejected    *prometheus.CounterVec
	broadcastsAborted prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		roundsEntered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dagbft_rounds_entered_total",
			Help: "Number of rounds this replica has entered.",
		}),
		nodesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dagbft_nodes_added_total",
			Help: "Number of certified nodes successfully added to the DAG store.",
		}),
		nodesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dagbft_nodes_rejected_total",
			Help: "Number of certified nodes rejected, by reason.",
		}, []string{"reason"}),
		broadcastsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dagbft_broadcasts_aborted_total",
			Help: "Number of in-flight reliable-broadcast chains superseded by a new round.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.roundsEntered, m.nodesAdded, m.nodesRejected, m.broadcastsAborted)
	}
	return m
}

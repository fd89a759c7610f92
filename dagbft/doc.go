// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dagbft implements the per-validator core of a DAG-based BFT
// consensus protocol: one node proposed per round, strong-linked to a
// certified quorum of the previous round, reliably broadcast for
// certification, then pushed into an external ordering rule.
//
// The driver is the only stateful component; Store, Journal, Broadcaster
// and the collaborator interfaces (PayloadClient, FetchRequester,
// OrderRule, LedgerInfoProvider) are capability sets it depends on.
package dagbft

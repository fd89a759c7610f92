// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import "context"

// FetchRequester enqueues a request to fetch the missing ancestors of a
// node whose parents are not yet present locally. Fire-and-forget: the
// driver never awaits its result (spec §5 suspension points).
type FetchRequester interface {
	Request(ctx context.Context, node CertifiedNode) error
}

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import "github.com/luxfi/ids"

// DAGWindow is the number of rounds kept live below the committed anchor
// round when computing a payload filter's reachability bound.
const DAGWindow = 4

// Config is the fixed, process-supplied configuration for a Driver. No
// config-file parsing is in scope here (spec §1 places bootstrap/CLI out
// of scope); the embedding process is responsible for populating this
// struct from whatever source it uses.
type Config struct {
	Author ids.NodeID
	Epoch  Epoch
	Budget PayloadPullBudget
}

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import (
	"encoding/json"

	"github.com/luxfi/ids"
	"github.com/zeebo/blake3"
)

// DefaultDigest hashes a node's body with blake3, the hashing primitive
// already used elsewhere in this dependency tree (ringtail's certificate
// binding). Digest computation is a signature/crypto-primitive concern
// consumed as an abstract capability per spec §1; this is a reasonable
// default for embedders that don't already have their own collision
// resistant hash wired in, not the only valid choice.
func DefaultDigest(n Node) ids.ID {
	// Round and Author anchor the digest to a single author/round slot
	// even in the (disallowed) case of marshal collisions across nodes
	// with identical payload/links but different slots.
	body, err := json.Marshal(struct {
		Epoch       Epoch
		Round       Round
		Author      ids.NodeID
		TimestampUs int64
		Payload     Payload
		StrongLinks []NodeMetadata
		Extensions  Extensions
	}{n.Epoch, n.Round, n.Author, n.TimestampUs, n.Payload, n.StrongLinks, n.Extensions})
	if err != nil {
		// json.Marshal on these plain value types cannot fail; a panic
		// here indicates a programming error (a field type was changed
		// to something unmarshalable without updating this function).
		panic(err)
	}

	sum := blake3.Sum256(body)
	var id ids.ID
	copy(id[:], sum[:])
	return id
}

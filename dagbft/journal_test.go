// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import (
	"errors"
	"sync"
	"testing"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

// memDB is a minimal in-memory database.Database fake, grounded on the
// Get/Put/Delete/Has surface engine/dag/state.serializer consumes.
type memDB struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemDB() *memDB { return &memDB{data: make(map[string][]byte)} }

func (d *memDB) Has(key []byte) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.data[string(key)]
	return ok, nil
}

func (d *memDB) Get(key []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.data[string(key)]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func (d *memDB) Put(key, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (d *memDB) Delete(key []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.data, string(key))
	return nil
}

func (d *memDB) NewBatch() database.Batch { panic("not implemented") }
func (d *memDB) Close() error             { return nil }

func TestJournalRoundTripAndClear(t *testing.T) {
	require := require.New(t)
	db := newMemDB()
	j := NewJournal(db)

	got, err := j.GetPendingNode()
	require.NoError(err)
	require.Nil(got)

	node := Node{Epoch: 1, Round: 5, Author: ids.GenerateTestNodeID(), TimestampUs: 42}
	require.NoError(j.SavePendingNode(node))

	got, err = j.GetPendingNode()
	require.NoError(err)
	require.NotNil(got)
	require.Equal(node.Round, got.Round)
	require.Equal(node.Author, got.Author)
	require.Equal(node.TimestampUs, got.TimestampUs)

	require.NoError(j.ClearPendingNode())
	got, err = j.GetPendingNode()
	require.NoError(err)
	require.Nil(got)

	// Idempotent.
	require.NoError(j.ClearPendingNode())
}

func TestJournalOverwritesPendingNode(t *testing.T) {
	require := require.New(t)
	db := newMemDB()
	j := NewJournal(db)

	require.NoError(j.SavePendingNode(Node{Round: 1}))
	require.NoError(j.SavePendingNode(Node{Round: 2}))

	got, err := j.GetPendingNode()
	require.NoError(err)
	require.Equal(Round(2), got.Round)
}

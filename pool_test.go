package extmem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadWritePoolHintThenRead(t *testing.T) {
	m := newTestManager(t, 1, 1<<20)
	bids, err := m.NewBlocks(StripingStrategy(), 1, 4096)
	require.NoError(t, err)
	bid := bids[0]

	p, err := NewReadWritePool(m, 4096, 2, 2, true)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Hint(bid))
	buf, req, err := p.Read(bid)
	require.NoError(t, err)
	require.NoError(t, req.Wait())
	p.Release(buf)
}

func TestReadWritePoolWriteBackpressure(t *testing.T) {
	backend := NewMockFileBackend(1 << 20)
	backend.Latency = 20 * time.Millisecond
	m, err := NewBlockManager([]DiskConfig{{Backend: backend, Capacity: 1 << 20, Policy: PolicyNone, Workers: 1, Debug: true}}, nil)
	require.NoError(t, err)
	defer m.Shutdown()

	bids, err := m.NewBlocks(SingleDiskStrategy(0), 10, 4096)
	require.NoError(t, err)

	p, err := NewReadWritePool(m, 4096, 2, 2, true)
	require.NoError(t, err)
	defer p.Close()

	var reqs []*Request
	for _, bid := range bids {
		buf, acqErr := p.acquireFree()
		require.NoError(t, acqErr)
		req, werr := p.Write(buf, bid)
		require.NoError(t, werr)
		reqs = append(reqs, req)
	}
	for _, r := range reqs {
		require.NoError(t, r.Wait())
	}
}

func TestReadWritePoolStealsLRUWhenExhausted(t *testing.T) {
	m := newTestManager(t, 1, 1<<20)
	bids, err := m.NewBlocks(StripingStrategy(), 3, 4096)
	require.NoError(t, err)

	p, err := NewReadWritePool(m, 4096, 2, 0, true)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Hint(bids[0]))
	require.NoError(t, p.Hint(bids[1]))
	// pool has only 2 buffers; hinting a third must steal the LRU entry
	require.NoError(t, p.Hint(bids[2]))

	p.mu.Lock()
	_, stillPrefetched := p.prefetched[bids[0]]
	p.mu.Unlock()
	require.False(t, stillPrefetched, "bids[0] should have been evicted as the least-recently-hinted entry")
}

func TestReadWritePoolWriteWhilePrefetchOutstandingIsBugAssertInDebug(t *testing.T) {
	m := newTestManager(t, 1, 1<<20)
	bids, err := m.NewBlocks(StripingStrategy(), 1, 4096)
	require.NoError(t, err)
	bid := bids[0]

	p, err := NewReadWritePool(m, 4096, 2, 2, true)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Hint(bid))
	buf, err := NewAlignedBuffer(4096)
	require.NoError(t, err)
	defer buf.Release()
	_, err = p.Write(buf, bid)
	require.Error(t, err)
	require.True(t, Is(err, CodeBugAssert))
}

func TestReadWritePoolSetPrefetchAggressivenessShrinks(t *testing.T) {
	m := newTestManager(t, 1, 1<<20)
	bids, err := m.NewBlocks(StripingStrategy(), 3, 4096)
	require.NoError(t, err)

	p, err := NewReadWritePool(m, 4096, 3, 0, true)
	require.NoError(t, err)
	defer p.Close()

	for _, bid := range bids {
		require.NoError(t, p.Hint(bid))
	}
	p.SetPrefetchAggressiveness(1)

	p.mu.Lock()
	remaining := len(p.prefetched)
	p.mu.Unlock()
	require.Equal(t, 1, remaining)
}

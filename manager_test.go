package extmem

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, numDisks int, capacity int64) *BlockManager {
	t.Helper()
	var configs []DiskConfig
	for i := 0; i < numDisks; i++ {
		configs = append(configs, DiskConfig{
			Backend:  NewMockFileBackend(capacity),
			Capacity: capacity,
			Policy:   PolicyNone,
			Workers:  1,
			Debug:    true,
		})
	}
	m, err := NewBlockManager(configs, nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Shutdown() })
	return m
}

func TestBlockManagerStripingRoundRobin(t *testing.T) {
	m := newTestManager(t, 2, 1<<20)
	bids, err := m.NewBlocks(StripingStrategy(), 16, 4096)
	require.NoError(t, err)
	require.Len(t, bids, 16)
	for i, b := range bids {
		require.Equal(t, i%2, b.Disk, "block %d landed on the wrong disk", i)
	}
}

func TestBlockManagerStripingContinuesAcrossCalls(t *testing.T) {
	m := newTestManager(t, 2, 1<<20)
	strategy := StripingStrategy()
	first, err := m.NewBlocks(strategy, 3, 4096)
	require.NoError(t, err)
	second, err := m.NewBlocks(strategy, 3, 4096)
	require.NoError(t, err)

	require.Equal(t, []int{0, 1, 0}, []int{first[0].Disk, first[1].Disk, first[2].Disk})
	require.Equal(t, []int{1, 0, 1}, []int{second[0].Disk, second[1].Disk, second[2].Disk})
}

func TestBlockManagerSingleDiskStrategy(t *testing.T) {
	m := newTestManager(t, 3, 1<<20)
	bids, err := m.NewBlocks(SingleDiskStrategy(2), 5, 4096)
	require.NoError(t, err)
	for _, b := range bids {
		require.Equal(t, 2, b.Disk)
	}
}

func TestBlockManagerSimpleRandomUsesOneDiskPerCall(t *testing.T) {
	m := newTestManager(t, 4, 1<<20)
	rng := rand.New(rand.NewSource(1))
	bids, err := m.NewBlocks(SimpleRandomStrategy(rng), 6, 4096)
	require.NoError(t, err)
	for _, b := range bids[1:] {
		require.Equal(t, bids[0].Disk, b.Disk, "simple_random must pick one disk per call")
	}
}

func TestBlockManagerNewBlocksDeleteBlocksRoundTrip(t *testing.T) {
	m := newTestManager(t, 2, 1<<20)
	bids, err := m.NewBlocks(StripingStrategy(), 10, 4096)
	require.NoError(t, err)
	require.NoError(t, m.DeleteBlocks(bids))

	for i := 0; i < m.NumDisks(); i++ {
		require.Equal(t, m.Disk(i).Allocator.Capacity(), m.Disk(i).Allocator.FreeBytes())
	}
}

func TestBlockManagerOutOfSpaceRollsBackAllDisks(t *testing.T) {
	m := newTestManager(t, 2, 8192) // only two 4096-byte blocks per disk
	_, err := m.NewBlocks(StripingStrategy(), 6, 4096)
	require.Error(t, err)
	require.True(t, Is(err, CodeOutOfSpace))

	for i := 0; i < m.NumDisks(); i++ {
		require.Equal(t, m.Disk(i).Allocator.Capacity(), m.Disk(i).Allocator.FreeBytes(),
			"a failed call must not leave partial allocations behind")
	}
}

func TestBlockManagerStatsPerDiskBreakdownAndAggregate(t *testing.T) {
	m := newTestManager(t, 2, 1<<20)
	bids, err := m.NewBlocks(StripingStrategy(), 4, 4096)
	require.NoError(t, err)

	for _, b := range bids {
		q := m.Disk(b.Disk).Queue
		require.NoError(t, q.Awrite(make([]byte, 4096), b.Offset, nil).Wait())
	}

	stats := m.Stats()
	require.Len(t, stats.PerDisk, 2)
	require.Equal(t, uint64(2), stats.PerDisk[0].WriteOps)
	require.Equal(t, uint64(2), stats.PerDisk[1].WriteOps)
	require.Equal(t, uint64(4), stats.Aggregate.WriteOps)
	require.Equal(t, uint64(4*4096), stats.Aggregate.WriteBytes)
}

func TestBlockManagerDeleteBlocksOnUnknownDiskIsBugAssert(t *testing.T) {
	m := newTestManager(t, 1, 4096)
	err := m.DeleteBlocks([]BID{{Disk: 5, Offset: 0, Size: 4096}})
	require.Error(t, err)
	require.True(t, Is(err, CodeBugAssert))
}

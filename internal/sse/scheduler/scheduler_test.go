package scheduler

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFusedPoolJoinsAllWorkerResults(t *testing.T) {
	pool := NewFusedPool(4)
	got := pool.Run(func(workerIndex, workerCount int) []uint64 {
		return []uint64{uint64(workerIndex)}
	})
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Equal(t, []uint64{0, 1, 2, 3}, got)
}

func TestFusedPoolHandlesEmptyWorkerResults(t *testing.T) {
	pool := NewFusedPool(3)
	got := pool.Run(func(workerIndex, workerCount int) []uint64 {
		if workerIndex == 1 {
			return nil
		}
		return []uint64{uint64(workerIndex)}
	})
	require.Len(t, got, 2)
}

func TestNewFusedPoolClampsNonPositiveWorkers(t *testing.T) {
	require.Equal(t, 1, NewFusedPool(0).Workers)
	require.Equal(t, 1, NewFusedPool(-5).Workers)
}

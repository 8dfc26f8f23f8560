package classify

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocularqa/ocular/api/schemas"
)

func resultForState(key string) schemas.ClassificationResult {
	return schemas.ClassificationResult{State: schemas.ScreenState{Key: key}}
}

func TestHistoryAppendAndLast(t *testing.T) {
	h := NewHistory(10)

	_, ok := h.Last()
	assert.False(t, ok)

	h.Append(resultForState("initial"))
	h.Append(resultForState("main_app"))

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "main_app", last.State.Key)
	assert.Equal(t, 2, h.Len())
}

func TestHistoryEvictsOldestOverCap(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Append(resultForState(fmt.Sprintf("state-%d", i)))
	}

	assert.Equal(t, 3, h.Len())

	snapshot := h.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "state-2", snapshot[0].State.Key)
	assert.Equal(t, "state-4", snapshot[2].State.Key)
}

func TestHistoryZeroCapDisablesRecording(t *testing.T) {
	h := NewHistory(0)
	h.Append(resultForState("initial"))

	assert.Zero(t, h.Len())
	_, ok := h.Last()
	assert.False(t, ok)
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	h := NewHistory(5)
	h.Append(resultForState("initial"))

	snapshot := h.Snapshot()
	snapshot[0].State.Key = "mutated"

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "initial", last.State.Key)
}

func TestHistoryConcurrentAppends(t *testing.T) {
	h := NewHistory(64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Append(resultForState(fmt.Sprintf("worker-%d", n)))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 64, h.Len())
}

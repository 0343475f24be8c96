package ingest

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadJSONInvokesCallbackPerPosting(t *testing.T) {
	doc := `{"bitcoin": [1, 2, 3], "mixer": [4, 5]}`

	var mu sync.Mutex
	got := map[string][]uint64{}
	err := LoadJSON(strings.NewReader(doc), 1, func(keyword string, docID uint64) {
		mu.Lock()
		defer mu.Unlock()
		got[keyword] = append(got[keyword], docID)
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 2, 3}, got["bitcoin"])
	require.ElementsMatch(t, []uint64{4, 5}, got["mixer"])
}

func TestLoadJSONConcurrentWorkersCoverAllPostings(t *testing.T) {
	doc := `{"a": [1,2,3,4,5], "b": [6,7,8], "c": [9,10]}`

	var mu sync.Mutex
	total := 0
	err := LoadJSON(strings.NewReader(doc), 4, func(keyword string, docID uint64) {
		mu.Lock()
		total++
		mu.Unlock()
	})
	require.NoError(t, err)
	require.Equal(t, 10, total)
}

func TestLoadJSONRejectsNonObjectTopLevel(t *testing.T) {
	err := LoadJSON(strings.NewReader(`[1,2,3]`), 1, func(string, uint64) {})
	require.Error(t, err)
}

func TestGenerateSyntheticProducesThreeGroupsPerDocument(t *testing.T) {
	var mu sync.Mutex
	count := 0
	GenerateSynthetic(50, func(keyword string, docID uint64) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.Equal(t, 150, count)
}

func TestIsSyntheticEnabledDefaultsFalse(t *testing.T) {
	t.Setenv("ENABLE_SYNTHETIC", "")
	require.False(t, IsSyntheticEnabled())
	t.Setenv("ENABLE_SYNTHETIC", "true")
	require.True(t, IsSyntheticEnabled())
}

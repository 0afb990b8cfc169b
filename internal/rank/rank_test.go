package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopK(t *testing.T) {
	scores := []float32{0.01, 0.05, 0, 0.02, 0.02, 0, 0, 0.9, 0, 0}

	got := TopK(scores, 3)
	assert.Equal(t, []Entry{{7, 0.9}, {1, 0.05}, {3, 0.02}}, got)

	got = TopK(scores, 5)
	require.Len(t, got, 5)
	assert.Equal(t, 4, got[3].Digit, "ties keep class order")
	assert.Equal(t, 0, got[4].Digit)
}

func TestTopKBounds(t *testing.T) {
	scores := []float32{3, 1, 2}

	assert.Len(t, TopK(scores, 10), 3)
	assert.Empty(t, TopK(scores, 0))
	assert.Empty(t, TopK(scores, -1))
	assert.Empty(t, TopK(nil, 3))
}

func TestTopKStrictlyDescending(t *testing.T) {
	scores := []float32{-2.5, 4.1, 0.3, 9.9, -7, 1.2, 3.3, 0, 8.8, 2}
	got := TopK(scores, 4)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i-1].Score, got[i].Score)
	}
	assert.Equal(t, []int{3, 8, 1, 6}, []int{got[0].Digit, got[1].Digit, got[2].Digit, got[3].Digit})
}

func TestSearchSingleList(t *testing.T) {
	list := []Entry{{7, 0.9}, {1, 0.05}, {4, 0.02}}

	got := Search([][]Entry{list}, 5)
	assert.Equal(t, []Candidate{{"7", 0.9}, {"1", 0.05}, {"4", 0.02}}, got)
}

func TestSearchTwoComponents(t *testing.T) {
	lists := [][]Entry{
		{{7, 0.9}, {1, 0.3}},
		{{3, 0.8}, {8, 0.6}},
	}

	got := Search(lists, 5)
	require.Len(t, got, 4)
	assert.Equal(t, "73", got[0].Text)
	assert.InDelta(t, 1.7, got[0].Score, 1e-6)
	assert.Equal(t, []string{"73", "78", "13", "18"},
		[]string{got[0].Text, got[1].Text, got[2].Text, got[3].Text})
}

func TestSearchBeamWidthPrunes(t *testing.T) {
	lists := [][]Entry{
		{{1, 3}, {2, 2}, {3, 1}},
		{{4, 3}, {5, 2}, {6, 1}},
		{{7, 3}, {8, 2}, {9, 1}},
	}

	got := Search(lists, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "147", got[0].Text)
	for _, c := range got {
		assert.Len(t, c.Text, 3)
	}
}

func TestSearchDeduplicatesKeepingBest(t *testing.T) {
	// A repeated digit in a rank list reaches the same text twice.
	lists := [][]Entry{
		{{1, 0.9}, {1, 0.4}, {2, 0.1}},
		{{5, 0.5}},
	}

	got := Search(lists, 5)
	require.Len(t, got, 2)
	assert.Equal(t, "15", got[0].Text)
	assert.InDelta(t, 1.4, got[0].Score, 1e-6)
	assert.Equal(t, "25", got[1].Text)
	assert.InDelta(t, 0.6, got[1].Score, 1e-6)
}

func TestSearchEmpty(t *testing.T) {
	assert.Empty(t, Search(nil, 5))
	assert.Empty(t, Search([][]Entry{{{1, 1}}}, 0))
}

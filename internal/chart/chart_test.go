package chart

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLKinds(t *testing.T) {
	cases := []*Chart{
		{Kind: Bar, Title: "Scores", Categories: []string{"A", "B"}, Series: []Series{{Name: "score", Values: []float64{85, 90.5}}}},
		{Kind: Line, Categories: []string{"1", "2"}, Series: []Series{{Name: "y", Values: []float64{1, math.NaN()}}}},
		{Kind: Scatter, Series: []Series{{Name: "pts", Points: [][2]float64{{1, 2}, {3, 4}}}}},
		{Kind: Pie, Categories: []string{"a", "b"}, Series: []Series{{Name: "share", Values: []float64{1, 3}}}},
		{Kind: Histogram, Bins: 4, Series: []Series{{Name: "x", Samples: []float64{1, 2, 3, 4, 5}}}},
		{Kind: Box, Categories: []string{"a"}, Series: []Series{{Name: "v", Groups: [][]float64{{1, 2, 3, 4}}}}},
	}
	for _, c := range cases {
		t.Run(string(c.Kind), func(t *testing.T) {
			html, err := c.HTML()
			require.NoError(t, err)
			assert.Contains(t, html, "echarts")
			if c.Title != "" {
				assert.Contains(t, html, c.Title)
			}
		})
	}
}

func TestHTMLUnknownKind(t *testing.T) {
	_, err := (&Chart{Kind: "radar"}).HTML()
	assert.Error(t, err)
}

func TestBinned(t *testing.T) {
	c := &Chart{Kind: Histogram, Bins: 2, Series: []Series{{Samples: []float64{0, 1, 2, 3, 4, math.NaN()}}}}
	cats, series := c.binned()
	require.Len(t, cats, 2)
	require.Len(t, series, 1)
	assert.Equal(t, []float64{2, 3}, series[0].Values)
}

func TestFiveNumber(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, fiveNumber([]float64{5, 4, 3, 2, 1}))
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, fiveNumber(nil))
}

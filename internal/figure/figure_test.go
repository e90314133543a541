package figure

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestRenderLayers(t *testing.T) {
	cases := map[string]Layer{
		"bar":     {Kind: Bar, Categories: []string{"A", "B"}, Values: []float64{85, 90.5}},
		"barh":    {Kind: BarH, Categories: []string{"A", "B"}, Values: []float64{1, 2}},
		"line":    {Kind: Line, X: []float64{1, 2, 3}, Y: []float64{3, math.NaN(), 1}},
		"scatter": {Kind: Scatter, X: []float64{1, 2}, Y: []float64{2, 4}},
		"hist":    {Kind: Hist, Samples: []float64{1, 2, 2, 3, 3, 3}, Bins: 3},
		"box":     {Kind: Box, Categories: []string{"a", "b"}, Groups: [][]float64{{1, 2, 3}, {4, 5, 6}}},
		"heatmap": {Kind: Heatmap, Categories: []string{"x", "y"}, RowLabels: []string{"x", "y"}, Matrix: [][]float64{{1, 0.5}, {0.5, 1}}},
	}
	for name, l := range cases {
		t.Run(name, func(t *testing.T) {
			f := &Figure{Title: name, XLabel: "x", YLabel: "y"}
			f.Add(l)
			data, err := f.PNG()
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(data, pngMagic))
		})
	}
}

func TestRenderUnknownKind(t *testing.T) {
	f := &Figure{Layers: []Layer{{Kind: "pie3d"}}}
	_, err := f.PNG()
	assert.Error(t, err)
}

func TestRegistryOrderAndDrain(t *testing.T) {
	r := NewRegistry()
	a := r.New()
	a.Title = "a"
	r.Add(Image{Title: "img", Data: pngMagic})
	b := r.New()
	b.Title = "b"
	assert.Same(t, b, r.Current())
	assert.Equal(t, 3, r.Len())

	r.Close()
	assert.Same(t, a, r.Current())

	got := r.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Label())
	assert.Equal(t, "img", got[1].Label())
	assert.Equal(t, 0, r.Len())
}

func TestRegistryCurrentOpensImplicitly(t *testing.T) {
	r := NewRegistry()
	f := r.Current()
	require.NotNil(t, f)
	assert.Equal(t, 1, r.Len())
	r.CloseAll()
	assert.Equal(t, 0, r.Len())
}

package render

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/figure"
	"github.com/KaramelBytes/vizloom-cli/internal/sandbox"
)

type fakeTable struct {
	f     *dataset.Frame
	err   error
	panic bool
}

func (t fakeTable) Table() (*dataset.Frame, error) {
	if t.panic {
		panic("boom")
	}
	return t.f, t.err
}

type fakeChart struct{ html string }

func (c fakeChart) ToHTML() (string, error) { return c.html, nil }

type panicFigure struct{}

func (panicFigure) Label() string        { return "broken" }
func (panicFigure) PNG() ([]byte, error) { panic("no canvas") }

func small(name string) *dataset.Frame {
	return dataset.MustNew(name, []dataset.Column{{Name: "x", Values: []any{int64(1), int64(2)}}})
}

func TestCollectOrderAndReservedName(t *testing.T) {
	reg := figure.NewRegistry()
	reg.Add(figure.Image{Title: "first", Data: []byte("png1")})
	reg.Add(figure.Image{Data: []byte("png2")})

	bindings := []sandbox.Binding{
		{Name: "pd"},
		{Name: "df", Value: fakeTable{f: small("df")}},
		{Name: "summary", Value: fakeTable{f: small("summary")}},
		{Name: "fig", Value: fakeChart{html: "<html>chart</html>"}},
		{Name: "n", Value: 3},
	}
	rep := Collect(reg, bindings, Options{})

	require.Len(t, rep.Figures, 2)
	assert.Equal(t, "first", rep.Figures[0].Label)
	assert.Equal(t, []byte("png2"), rep.Figures[1].PNG)
	require.Len(t, rep.Charts, 1)
	assert.Equal(t, "fig", rep.Charts[0].Label)
	require.Len(t, rep.Tables, 1)
	assert.Equal(t, "summary", rep.Tables[0].Label)
	assert.Empty(t, rep.Warnings)
	assert.Zero(t, reg.Len())

	var kinds []Kind
	for _, a := range rep.Artifacts() {
		kinds = append(kinds, a.Kind)
	}
	assert.Equal(t, []Kind{KindFigure, KindFigure, KindChart, KindTable}, kinds)
	assert.Equal(t, 4, rep.Len())
}

func TestCollectIsolatesFailures(t *testing.T) {
	reg := figure.NewRegistry()
	reg.Add(panicFigure{})
	reg.Add(figure.Image{Title: "ok", Data: []byte("png")})

	bindings := []sandbox.Binding{
		{Name: "bad", Value: fakeTable{panic: true}},
		{Name: "err", Value: fakeTable{err: errors.New("no rows")}},
		{Name: "good", Value: fakeTable{f: small("good")}},
	}
	rep := Collect(reg, bindings, Options{})

	require.Len(t, rep.Figures, 1)
	assert.Equal(t, "ok", rep.Figures[0].Label)
	require.Len(t, rep.Tables, 1)
	assert.Equal(t, "good", rep.Tables[0].Label)
	require.Len(t, rep.Warnings, 3)
	assert.Contains(t, rep.Warnings[0], "broken")
	assert.Contains(t, rep.Warnings[1], "panic: boom")
	assert.Contains(t, rep.Warnings[2], "no rows")
}

func TestCollectRendersFiguresOnce(t *testing.T) {
	reg := figure.NewRegistry()
	f := reg.New()
	f.Title = "line"
	f.Add(figure.Layer{Kind: figure.Line, X: []float64{1, 2}, Y: []float64{3, 4}})

	rep := Collect(reg, nil, Options{})
	require.Len(t, rep.Figures, 1)
	assert.Equal(t, "\x89PNG", string(rep.Figures[0].PNG[:4]))

	again := Collect(reg, nil, Options{})
	assert.Empty(t, again.Figures)
}

func TestCollectCustomReserved(t *testing.T) {
	bindings := []sandbox.Binding{
		{Name: "df", Value: fakeTable{f: small("df")}},
		{Name: "raw", Value: fakeTable{f: small("raw")}},
	}
	rep := Collect(nil, bindings, Options{Reserved: []string{"raw"}})
	require.Len(t, rep.Tables, 1)
	assert.Equal(t, "df", rep.Tables[0].Label)
}

package starlib

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/figure"
)

func sampleFrame(t *testing.T) *dataset.Frame {
	t.Helper()
	f, err := dataset.New("scores.csv", []dataset.Column{
		{Name: "class", Values: []any{"A", "B", "A", "B", "C"}},
		{Name: "score", Values: []any{int64(80), int64(70), int64(90), int64(75), int64(60)}},
		{Name: "ratio", Values: []any{0.5, nil, 1.5, 2.0, 1.0}},
	})
	require.NoError(t, err)
	return f
}

type result struct {
	globals starlark.StringDict
	out     string
	reg     *figure.Registry
}

func run(t *testing.T, src string) (result, error) {
	t.Helper()
	reg := figure.NewRegistry()
	env := NewEnv(reg)
	predeclared := env.Modules()
	predeclared["df"] = env.Frame(sampleFrame(t))
	for k, v := range Helpers() {
		predeclared[k] = v
	}
	var out strings.Builder
	thread := &starlark.Thread{Name: "test", Print: func(_ *starlark.Thread, msg string) {
		out.WriteString(msg)
		out.WriteString("\n")
	}}
	for k, v := range CompareBuiltins() {
		predeclared[k] = v
	}
	opts := &syntax.FileOptions{TopLevelControl: true, While: true, GlobalReassign: true, Set: true}
	f, err := opts.Parse("test.star", src, 0)
	if err != nil {
		return result{reg: reg}, err
	}
	RewriteComparisons(f)
	err = starlark.ExecREPLChunk(f, thread, predeclared)
	return result{globals: predeclared, out: out.String(), reg: reg}, err
}

func mustRun(t *testing.T, src string) result {
	t.Helper()
	r, err := run(t, src)
	require.NoError(t, err)
	return r
}

func TestGroupByMean(t *testing.T) {
	r := mustRun(t, `
means = df.groupby("class")["score"].mean()
print(means)
`)
	assert.Contains(t, r.out, "class\n")
	assert.Contains(t, r.out, "A    85.0")
	assert.Contains(t, r.out, "B    72.5")
	assert.Contains(t, r.out, "Name: score, dtype: float64")

	s := r.globals["means"].(*Series)
	tbl, err := s.Table()
	require.NoError(t, err)
	assert.Equal(t, []string{"class", "score"}, tbl.Columns())
	assert.Equal(t, 3, tbl.Len())
}

func TestGroupByFrameSkipsTextColumns(t *testing.T) {
	r := mustRun(t, `
g = df.groupby("class").mean()
flat = df.groupby("class", as_index=False).agg({"score": "max"})
n = df.groupby("class").size()
`)
	g := r.globals["g"].(*DataFrame)
	assert.Equal(t, []string{"score", "ratio"}, g.cols)
	flat := r.globals["flat"].(*DataFrame)
	assert.Equal(t, []string{"class", "score"}, flat.cols)
	assert.Equal(t, "90", flat.data["score"][0].String())
	n := r.globals["n"].(*Series)
	assert.Equal(t, "2", n.values[0].String())
}

func TestMaskAndAssignment(t *testing.T) {
	r := mustRun(t, `
high = df[df["score"].gt(72) & df["class"].ne("B")]
df2 = df.copy()
df2["double"] = df2["score"] * 2
rows = len(high)
`)
	assert.Equal(t, "2", r.globals["rows"].String())
	df2 := r.globals["df2"].(*DataFrame)
	assert.Equal(t, "160", df2.data["double"][0].String())

	// The wrapped dataset is untouched.
	orig := sampleFrame(t)
	assert.Equal(t, 3, orig.Width())
}

func TestDescribeAndValueCounts(t *testing.T) {
	r := mustRun(t, `
d = df["score"].describe()
vc = df["class"].value_counts()
mean_score = df["score"].mean()
missing = df.isnull().sum()
`)
	d := r.globals["d"].(*Series)
	assert.Equal(t, "5.0", display(d.values[0]))
	assert.Equal(t, "75.0", display(d.values[1]))

	vc := r.globals["vc"].(*Series)
	assert.Equal(t, "count", vc.name)
	assert.Equal(t, []string{"A", "B", "C"}, labels(vc.index))

	assert.Equal(t, "75.0", display(r.globals["mean_score"]))
	missing := r.globals["missing"].(*Series)
	assert.Equal(t, []string{"0", "0", "1"}, labels(missing.values))
}

func TestSortAndIloc(t *testing.T) {
	r := mustRun(t, `
top = df.sort_values("score", ascending=False).head(2)
first = top.iloc[0]["class"]
cell = df.iloc[1, 1]
tail = df.iloc[3:]
`)
	assert.Equal(t, `"A"`, r.globals["first"].String())
	assert.Equal(t, "70", r.globals["cell"].String())
	assert.Equal(t, 2, r.globals["tail"].(*DataFrame).rows())
}

func TestPivotAndConversions(t *testing.T) {
	r := mustRun(t, `
p = df.pivot_table(index="class", values="score", aggfunc="sum")
nums = pd.to_numeric(pd.Series(["1", "2.5", "x"]), errors="coerce")
built = pd.DataFrame({"k": ["a", "b"], "v": [1, 2]})
`)
	p := r.globals["p"].(*DataFrame)
	assert.Equal(t, []string{"score"}, p.cols)
	assert.Equal(t, "170", p.data["score"][0].String())

	nums := r.globals["nums"].(*Series)
	assert.Equal(t, "1", nums.values[0].String())
	assert.True(t, isNA(nums.values[2]))

	built := r.globals["built"].(*DataFrame)
	assert.Equal(t, []string{"k", "v"}, built.cols)
}

func TestFiguresRegistered(t *testing.T) {
	r := mustRun(t, `
plt.figure(figsize=(8, 4))
plt.bar(["a", "b"], [1, 2])
plt.title("Bars")
fig, ax = plt.subplots()
sns.barplot(data=df, x="class", y="score", ax=ax)
ax.set_title("Means")
plt.figure()
plt.close()
`)
	figs := r.reg.Drain()
	require.Len(t, figs, 2)
	assert.Equal(t, "Bars", figs[0].Label())
	assert.Equal(t, "Means", figs[1].Label())

	means := figs[1].(*figure.Figure).Layers[0]
	assert.Equal(t, []string{"A", "B", "C"}, means.Categories)
	assert.Equal(t, []float64{85, 72.5, 60}, means.Values)
}

func TestPandasPlotAccessor(t *testing.T) {
	r := mustRun(t, `
df.groupby("class")["score"].mean().plot(kind="bar", title="Avg")
df.plot.scatter(x="score", y="ratio")
`)
	figs := r.reg.Drain()
	require.Len(t, figs, 2)
	assert.Equal(t, "Avg", figs[0].Label())
}

func TestPlotlyChart(t *testing.T) {
	r := mustRun(t, `
fig = px.bar(df, x="class", y="score", title="Totals")
fig.update_layout(xaxis_title="Class")
`)
	c, ok := r.globals["fig"].(*Chart)
	require.True(t, ok)
	html, err := c.ToHTML()
	require.NoError(t, err)
	assert.Contains(t, html, "Totals")
	assert.Equal(t, "Class", c.c.XTitle)
	assert.Equal(t, []float64{170, 145, 60}, c.c.Series[0].Values)
}

func TestHelpers(t *testing.T) {
	r := mustRun(t, `
total = sum([1, 2, 3])
r = round(2.567, 2)
n = round(2.5)
`)
	assert.Equal(t, "6", r.globals["total"].String())
	assert.Equal(t, "2.57", r.globals["r"].String())
	assert.Equal(t, "2", r.globals["n"].String())
}

func TestErrorsAreReported(t *testing.T) {
	_, err := run(t, `x = df["missing"]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	_, err = run(t, `pd.read_csv("data.csv")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already loaded as df")
}

func TestStrAndDtAccessors(t *testing.T) {
	r := mustRun(t, `
lower = df["class"].str.lower()
has = df["class"].str.contains("a", case=False)
years = pd.to_datetime(pd.Series(["2024-03-01", "2023-12-31"])).dt.year
`)
	assert.Equal(t, `"a"`, r.globals["lower"].(*Series).values[0].String())
	assert.Equal(t, "True", r.globals["has"].(*Series).values[0].String())
	assert.Equal(t, []string{"2024", "2023"}, labels(r.globals["years"].(*Series).values))
}

func TestComparisonOperatorsOnSeries(t *testing.T) {
	r := mustRun(t, `
high = df[df["score"] > 72]
a_scores = df.loc[df["class"] == "A", "score"]
flipped = 72 < df["score"]
both = df[(df["score"] >= 75) & (df["class"] != "B")]
plain = 1 < 2
mixed = "a" == 1
picked = [x for x in [1, 5, 9] if x >= 5]
`)
	assert.Equal(t, 3, r.globals["high"].(*DataFrame).rows())
	assert.Equal(t, []string{"80", "90"}, labels(r.globals["a_scores"].(*Series).values))
	assert.Equal(t, []string{"True", "False", "True", "True", "False"}, labels(r.globals["flipped"].(*Series).values))
	assert.Equal(t, 2, r.globals["both"].(*DataFrame).rows())
	assert.Equal(t, starlark.True, r.globals["plain"])
	assert.Equal(t, starlark.False, r.globals["mixed"])
	assert.Equal(t, "[5, 9]", r.globals["picked"].String())

	_, err := run(t, "x = 1\ny = df[\"class\"] > 3\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot compare")
}

func TestSeriesAnyAll(t *testing.T) {
	r := mustRun(t, `
any_high = (df["score"] > 85).any()
none = (df["score"] > 100).any()
all_pass = df["score"].gt(50).all()
all_high = (df["score"] > 85).all()
ratio_all = df["ratio"].all()
`)
	assert.Equal(t, starlark.True, r.globals["any_high"])
	assert.Equal(t, starlark.False, r.globals["none"])
	assert.Equal(t, starlark.True, r.globals["all_pass"])
	assert.Equal(t, starlark.False, r.globals["all_high"])
	assert.Equal(t, starlark.True, r.globals["ratio_all"])
}

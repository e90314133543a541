package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var csvRows = []string{
	"Group;Concentration (g/L);Temp (°F);Score;LocaleNumber;Category;Note",
	"A;0,5;70;10,0;1.000,0;alpha;first",
	"A;0,6;71;11,0;1.100,0;alpha;second",
	"A;0,55;69;9,5;0.900,0;beta;third",
	"B;0,7;75;10,5;1.050,0;alpha;fourth",
	"B;0,65;74;9,8;0.980,0;beta;fifth",
	"B;0,68;73;10,2;1.020,0;alpha;sixth",
	"A;0,52;68;8,8;0.880,0;gamma;seventh",
	"B;0,75;76;9,7;0.970,0;beta;eighth",
	"A;3,0;95;50,0;5.000,0;alpha;ninth",
	"B;0,66;72;10,1;1.010,0;gamma;tenth",
}

func localeOptions() Options {
	opt := DefaultOptions()
	opt.DecimalSeparator = ','
	opt.ThousandsSeparator = '.'
	opt.UnitNormalize = true
	return opt
}

func TestLoadFileLocaleAndUnits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(csvRows, "\n")), 0o644))

	f, err := LoadFile(path, localeOptions())
	require.NoError(t, err)

	assert.Equal(t, "metrics.csv", f.Name())
	assert.Equal(t, 10, f.Len())
	assert.Equal(t, []string{"Group", "Concentration (g/L)", "Temp (°F)", "Score", "LocaleNumber", "Category", "Note"}, f.Columns())

	conc, ok := f.Column("Concentration (g/L)")
	require.True(t, ok)
	assert.Equal(t, KindNumeric, conc.Kind)
	assert.Equal(t, "mg/L", conc.Unit)
	assert.InDelta(t, 500.0, conc.Values[0], 1e-9)

	temp, _ := f.Column("Temp (°F)")
	assert.Equal(t, "°C", temp.Unit)
	assert.InDelta(t, (70-32)*5.0/9.0, temp.Values[0], 1e-9)

	loc, _ := f.Column("LocaleNumber")
	assert.Equal(t, 1000.0, loc.Values[0])

	score, _ := f.Column("Score")
	assert.Equal(t, 9.5, score.Values[2])

	cat, _ := f.Column("Category")
	assert.Equal(t, KindCategorical, cat.Kind)
}

func TestDescribeAndMarkdown(t *testing.T) {
	f, err := Load("metrics.csv", strings.NewReader(strings.Join(csvRows, "\n")), localeOptions())
	require.NoError(t, err)

	s := f.Describe(3)
	require.Len(t, s.Samples, 3)
	assert.Equal(t, "A", s.Samples[0][0])

	var score ColumnSummary
	for _, c := range s.Cols {
		if c.Name == "Score" {
			score = c
		}
	}
	assert.Equal(t, 1, score.OutliersCount)
	assert.Equal(t, 10, score.NonNull)

	md := s.Markdown()
	assert.Contains(t, md, "[DATASET SUMMARY]")
	assert.Contains(t, md, "File: metrics.csv")
	assert.Contains(t, md, "Rows: 10")
	assert.Contains(t, md, "Concentration (g/L) [mg/L]: numeric")
	assert.Contains(t, md, "outliers: 1 above |z|>3.5")
	assert.Contains(t, md, "alpha(5)")

	tbl := s.Table()
	assert.Equal(t, 7, tbl.Len())
	assert.Equal(t, "Group", tbl.Cell(0, 0))
}

func TestLoadRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		input string
		line  int
	}{
		{name: "binary", input: "a,b\n\x00\x01\x02"},
		{name: "empty", input: "   \n"},
		{name: "too many fields", input: "a,b\n1,2\n1,2,3\n", line: 3},
		{name: "bad quote", input: "a,b\n1,\"x\"y\n", line: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load("upload.csv", strings.NewReader(tc.input), DefaultOptions())
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want ParseError, got %v", err)
			if tc.line > 0 {
				assert.Equal(t, tc.line, pe.Line)
			}
		})
	}

	_, err := Load("empty.csv", strings.NewReader(""), DefaultOptions())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoadSizeLimit(t *testing.T) {
	opt := DefaultOptions()
	opt.MaxBytes = 8
	_, err := Load("big.csv", strings.NewReader("a,b\n1,2\n3,4\n"), opt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 8 bytes")
}

func TestLoadPadsShortRowsAndNamesHeaders(t *testing.T) {
	f, err := Load("short.csv", strings.NewReader("a,a,,b\n1,x\n2,y,z,NA\n"), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a.1", "Unnamed: 2", "b"}, f.Columns())
	assert.Nil(t, f.Cell(0, 3))
	assert.Nil(t, f.Cell(1, 3))
	assert.Equal(t, int64(2), f.Cell(1, 0))
	assert.Equal(t, KindUnknown, f.Schema()[3].Kind)
}

func TestLoadTSVAndBooleans(t *testing.T) {
	f, err := Load("flags.tsv", strings.NewReader("name\tok\tscore\nx\ttrue\t1.5\ny\tFalse\t\n"), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, KindBool, f.Schema()[1].Kind)
	assert.Equal(t, true, f.Cell(0, 1))
	assert.Equal(t, 1.5, f.Cell(0, 2))
	assert.Nil(t, f.Cell(1, 2))
}

func TestLoadKeepsLargeIntegersExact(t *testing.T) {
	f, err := Load("ids.csv", strings.NewReader("id,big\n12345678901234567,1\n-9007199254740993,99999999999999999999\n"), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, KindNumeric, f.Kind("id"))
	assert.Equal(t, int64(12345678901234567), f.Cell(0, 0))
	assert.Equal(t, int64(-9007199254740993), f.Cell(1, 0))

	// Out of int64 range stays as written instead of wrapping.
	assert.NotEqual(t, KindNumeric, f.Kind("big"))
	assert.Equal(t, "99999999999999999999", f.Cell(1, 1))
}

func TestParseNumericSeparators(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{in: "1,234", want: 1234, ok: true},
		{in: "1,234,567", want: 1234567, ok: true},
		{in: "1,5", want: 1.5, ok: true},
		{in: "0,125", want: 0.125, ok: true},
		{in: "1.234.567", want: 1234567, ok: true},
		{in: "1.000,5", want: 1000.5, ok: true},
		{in: "1,234.5", want: 1234.5, ok: true},
		{in: "1 234", want: 1234, ok: true},
		{in: "-2.5", want: -2.5, ok: true},
		{in: "12 %", want: 12, ok: true},
		{in: "3 4", ok: false},
		{in: "12,34,5", ok: false},
		{in: "1.2.3", ok: false},
		{in: "0x10", ok: false},
		{in: ".", ok: false},
	}
	for _, tc := range cases {
		got, ok := parseNumeric(tc.in, DefaultOptions())
		assert.Equal(t, tc.ok, ok, "parseNumeric(%q)", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got.f, "parseNumeric(%q)", tc.in)
		}
	}

	n, ok := parseNumeric("1234", DefaultOptions())
	require.True(t, ok)
	assert.True(t, n.integer)
	assert.Equal(t, int64(1234), n.i)

	// Configured separators are applied without grouping checks.
	opt := DefaultOptions()
	opt.DecimalSeparator = ','
	opt.ThousandsSeparator = '.'
	n, ok = parseNumeric("0.900,0", opt)
	require.True(t, ok)
	assert.Equal(t, 900.0, n.f)
	assert.False(t, n.integer)
}

func TestLoadSpacedAndQuotedValuesStayText(t *testing.T) {
	f, err := Load("mixed.csv", strings.NewReader("code,amount\n3 4,\"1,234\"\n5 6,\"2,500\"\n"), DefaultOptions())
	require.NoError(t, err)
	assert.NotEqual(t, KindNumeric, f.Kind("code"))
	assert.Equal(t, "3 4", f.Cell(0, 0))
	assert.Equal(t, KindNumeric, f.Kind("amount"))
	assert.Equal(t, int64(1234), f.Cell(0, 1))
	assert.Equal(t, int64(2500), f.Cell(1, 1))
}

func TestHeadTailAndImmutability(t *testing.T) {
	f := MustNew("nums", []Column{{Name: "n", Values: []any{int64(1), int64(2), int64(3)}}})
	assert.Equal(t, 2, f.Head(2).Len())
	assert.Equal(t, 3, f.Head(10).Len())
	assert.Equal(t, int64(3), f.Tail(1).Cell(0, 0))

	c, _ := f.Column("n")
	c.Values[0] = int64(99)
	assert.Equal(t, int64(1), f.Cell(0, 0))
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "85.0", FormatCell(85.0))
	assert.Equal(t, "85.333333", FormatCell(85.0+1.0/3.0))
	assert.Equal(t, "NaN", FormatCell(nil))
	assert.Equal(t, "True", FormatCell(true))
	assert.Equal(t, "7", FormatCell(int64(7)))
}

package dataset

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Summary is a markdown-friendly description of a frame.
type Summary struct {
	Name    string
	Rows    int
	Cols    []ColumnSummary
	Samples [][]string
}

// ColumnSummary captures the kind and statistics of one column.
type ColumnSummary struct {
	Name    string
	Kind    Kind
	Unit    string
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min    float64
	Max    float64
	Mean   float64
	Std    float64
	Median float64
	// Outliers (robust Z via MAD)
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
	// Categorical top values
	TopValues    []CategoryCount
	ExampleTexts []string
}

type CategoryCount struct {
	Value string
	Count int
}

// Describe computes per-column statistics. sampleRows bounds the sample table.
func (f *Frame) Describe(sampleRows int) *Summary {
	if sampleRows <= 0 {
		sampleRows = 5
	}
	s := &Summary{Name: f.name, Rows: f.rows}
	for _, c := range f.cols {
		s.Cols = append(s.Cols, summarize(c))
	}
	s.Samples = f.Head(sampleRows).Records()
	return s
}

func summarize(c Column) ColumnSummary {
	s := ColumnSummary{Name: c.Name, Kind: c.Kind, Unit: c.Unit}
	counts := map[string]int{}
	var nums []float64
	// Welford
	var n int
	var mean, m2 float64
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range c.Values {
		if v == nil {
			s.Missing++
			continue
		}
		s.NonNull++
		if c.Kind == KindNumeric {
			x, ok := AsFloat(v)
			if !ok {
				continue
			}
			nums = append(nums, x)
			n++
			if x < min {
				min = x
			}
			if x > max {
				max = x
			}
			delta := x - mean
			mean += delta / float64(n)
			m2 += delta * (x - mean)
			continue
		}
		key := FormatCell(v)
		counts[key]++
		if c.Kind == KindText && len(s.ExampleTexts) < 3 {
			s.ExampleTexts = append(s.ExampleTexts, key)
		}
	}
	if c.Kind == KindNumeric && n > 0 {
		s.Min, s.Max, s.Mean = min, max, mean
		if n > 1 {
			s.Std = math.Sqrt(m2 / float64(n-1))
		}
		sorted := append([]float64(nil), nums...)
		sort.Float64s(sorted)
		s.Median = quantile(sorted, 0.5)
		uniq := map[float64]struct{}{}
		for _, x := range nums {
			uniq[x] = struct{}{}
		}
		s.Unique = len(uniq)
		if len(nums) >= 8 {
			s.OutlierThreshold = 3.5
			median, mad := medianMAD(nums)
			if mad > 0 {
				for _, x := range nums {
					az := math.Abs(0.6745 * (x - median) / mad)
					if az > s.OutlierThreshold {
						s.OutliersCount++
					}
					if az > s.OutliersMaxAbsZ {
						s.OutliersMaxAbsZ = az
					}
				}
			}
		}
		return s
	}
	s.Unique = len(counts)
	if c.Kind == KindCategorical || c.Kind == KindBool || c.Kind == KindDatetime {
		tops := make([]CategoryCount, 0, len(counts))
		for k, v := range counts {
			tops = append(tops, CategoryCount{Value: k, Count: v})
		}
		sort.Slice(tops, func(i, j int) bool {
			if tops[i].Count == tops[j].Count {
				return tops[i].Value < tops[j].Value
			}
			return tops[i].Count > tops[j].Count
		})
		if len(tops) > 8 {
			tops = tops[:8]
		}
		s.TopValues = tops
	}
	return s
}

// Table renders the summary as a frame with one row per column, in the
// spirit of describe().
func (s *Summary) Table() *Frame {
	names := make([]any, len(s.Cols))
	kinds := make([]any, len(s.Cols))
	count := make([]any, len(s.Cols))
	missing := make([]any, len(s.Cols))
	unique := make([]any, len(s.Cols))
	mean := make([]any, len(s.Cols))
	std := make([]any, len(s.Cols))
	minv := make([]any, len(s.Cols))
	maxv := make([]any, len(s.Cols))
	top := make([]any, len(s.Cols))
	for i, c := range s.Cols {
		names[i] = c.Name
		kinds[i] = string(c.Kind)
		count[i] = int64(c.NonNull)
		missing[i] = int64(c.Missing)
		unique[i] = int64(c.Unique)
		if c.Kind == KindNumeric && c.NonNull > 0 {
			mean[i], std[i], minv[i], maxv[i] = c.Mean, c.Std, c.Min, c.Max
		}
		if len(c.TopValues) > 0 {
			top[i] = c.TopValues[0].Value
		}
	}
	return MustNew(s.Name, []Column{
		{Name: "column", Values: names},
		{Name: "kind", Values: kinds},
		{Name: "count", Values: count},
		{Name: "missing", Values: missing},
		{Name: "unique", Values: unique},
		{Name: "mean", Kind: KindNumeric, Values: mean},
		{Name: "std", Kind: KindNumeric, Values: std},
		{Name: "min", Kind: KindNumeric, Values: minv},
		{Name: "max", Kind: KindNumeric, Values: maxv},
		{Name: "top", Values: top},
	})
}

// SchemaLine renders "name: kind" pairs for prompts.
func (f *Frame) SchemaLine() string {
	parts := make([]string, 0, len(f.cols))
	for _, c := range f.cols {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Name, c.Kind))
	}
	return strings.Join(parts, ", ")
}

// Markdown renders a compact report suitable for prompts or standalone docs.
func (s *Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if s.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", s.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", s.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(s.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range s.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		name := safeName(c.Name)
		if c.Unit != "" && !strings.Contains(name, c.Unit) {
			name = fmt.Sprintf("%s [%s]", name, c.Unit)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", name, c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case KindNumeric:
			b.WriteString(fmt.Sprintf(", min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
			if c.OutlierThreshold > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
			}
		case KindCategorical, KindBool, KindDatetime:
			if len(c.TopValues) > 0 {
				b.WriteString(", top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		case KindText:
			if len(c.ExampleTexts) > 0 {
				b.WriteString(", e.g., ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(s.Samples) > 0 {
		b.WriteString("\n[HEAD]\n| ")
		for i, c := range s.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n|")
		for range s.Cols {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range s.Samples {
			b.WriteString("| ")
			for i, val := range row {
				if i > 0 {
					b.WriteString(" | ")
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := append([]float64(nil), vals...)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

// Quantile interpolates linearly over sorted values.
func Quantile(sorted []float64, q float64) float64 { return quantile(sorted, q) }

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

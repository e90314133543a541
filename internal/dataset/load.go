package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Options controls how delimited text is read.
type Options struct {
	// Delimiter for CSV. If 0, picked from the file extension.
	Delimiter rune
	// MaxRows limits rows loaded; 0 means unlimited.
	MaxRows int
	// MaxBytes rejects larger inputs; 0 means unlimited.
	MaxBytes int64
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// UnitNormalize converts values to target units using simple mappings.
	UnitNormalize bool
	UnitTargets   map[string]string
}

// DefaultOptions returns the loader defaults.
func DefaultOptions() Options {
	return Options{
		MaxBytes: 200 << 20,
		UnitTargets: map[string]string{
			"g/L":  "mg/L",
			"ug/L": "mg/L",
			"°F":   "°C",
		},
	}
}

// ErrEmpty is wrapped by ParseError when the input has no header row.
var ErrEmpty = errors.New("no columns to parse from file")

// ParseError reports why an upload could not be read as delimited text.
type ParseError struct {
	Name string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s: line %d: %v", e.Name, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Name, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LoadFile opens path and loads it with Load.
func LoadFile(path string, opt Options) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Load(filepath.Base(path), f, opt)
}

// Load reads delimited text into a Frame. The header row names the columns;
// rows with fewer fields are padded with missing values, rows with more are
// rejected.
func Load(name string, r io.Reader, opt Options) (*Frame, error) {
	limit := opt.MaxBytes
	if limit <= 0 {
		limit = math.MaxInt64 - 1
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, &ParseError{Name: name, Err: fmt.Errorf("read: %w", err)}
	}
	if int64(len(data)) > limit {
		return nil, &ParseError{Name: name, Err: fmt.Errorf("file exceeds %d bytes", limit)}
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return nil, &ParseError{Name: name, Err: errors.New("not a delimited text file (binary content)")}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Name: name, Err: ErrEmpty}
	}

	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(name, data)
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = ErrEmpty
		}
		return nil, &ParseError{Name: name, Line: 1, Err: err}
	}
	names := uniqueHeaders(header)
	ncol := len(names)

	raw := make([][]string, ncol)
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	rows := 0
	for rows < maxRows {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			line := rows + 2
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &ParseError{Name: name, Line: line, Err: err}
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && ncol > 1 {
			continue
		}
		if len(rec) > ncol {
			line, _ := cr.FieldPos(0)
			return nil, &ParseError{Name: name, Line: line, Err: fmt.Errorf("expected %d fields, saw %d", ncol, len(rec))}
		}
		for j := 0; j < ncol; j++ {
			v := ""
			if j < len(rec) {
				v = strings.TrimSpace(rec[j])
			}
			raw[j] = append(raw[j], v)
		}
		rows++
	}

	cols := make([]Column, ncol)
	for j := range names {
		cols[j] = typeColumn(names[j], raw[j], rows, opt)
	}
	return &Frame{name: name, cols: cols, rows: rows}, nil
}

// typeColumn converts raw strings into typed cells. A column is numeric only
// when every present value parses as a number.
func typeColumn(name string, raw []string, rows int, opt Options) Column {
	_, unit := splitUnits(name)
	c := Column{Name: name, Unit: unit, Values: make([]any, rows)}

	var present, nums, dts, bools, pct int
	integral := true
	parsed := make([]number, rows)
	for i, v := range raw {
		if isMissing(v) {
			continue
		}
		present++
		if strings.HasSuffix(v, "%") {
			pct++
		}
		if x, ok := parseNumeric(v, opt); ok {
			nums++
			parsed[i] = x
			if !x.integer {
				integral = false
			}
			continue
		}
		if _, ok := parseBool(v); ok {
			bools++
			continue
		}
		if _, ok := parseTimeMaybe(v); ok {
			dts++
		}
	}

	switch {
	case present == 0:
		c.Kind = KindUnknown
		for i, v := range raw {
			if !isMissing(v) {
				c.Values[i] = v
			}
		}
		return c
	case nums == present:
		c.Kind = KindNumeric
		if pct == present && c.Unit == "" {
			c.Unit = "%"
		}
		target, convert := c.Unit, false
		if opt.UnitNormalize && c.Unit != "" {
			if _, nu, ok := normalizeUnit(0, c.Unit, opt); ok {
				target, convert = nu, true
			}
		}
		asInt := integral && present == rows && !convert
		for i, v := range raw {
			if isMissing(v) {
				continue
			}
			if asInt {
				c.Values[i] = parsed[i].i
				continue
			}
			x := parsed[i].f
			if convert {
				x, _, _ = normalizeUnit(x, c.Unit, opt)
			}
			c.Values[i] = x
		}
		c.Unit = target
		return c
	case bools == present:
		c.Kind = KindBool
		for i, v := range raw {
			if b, ok := parseBool(v); ok {
				c.Values[i] = b
			}
		}
		return c
	case dts == present:
		c.Kind = KindDatetime
	default:
		c.Kind = categoricalOrText(raw, present)
	}
	for i, v := range raw {
		if !isMissing(v) {
			c.Values[i] = v
		}
	}
	return c
}

func categoricalOrText(raw []string, present int) Kind {
	seen := make(map[string]struct{})
	long := false
	for _, v := range raw {
		if isMissing(v) {
			continue
		}
		if len(v) > 64 {
			long = true
		}
		seen[v] = struct{}{}
	}
	if long {
		return KindText
	}
	if len(seen) <= 20 || len(seen)*2 <= present {
		return KindCategorical
	}
	return KindText
}

// uniqueHeaders fills blank names and suffixes duplicates with .1, .2, ...
func uniqueHeaders(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s.%d", h, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// sniffDelimiter picks tab for .tsv files; otherwise it counts candidate
// separators on the first line and falls back to comma.
func sniffDelimiter(name string, data []byte) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	best, bestN := ',', bytes.Count(first, []byte(","))
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(first, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

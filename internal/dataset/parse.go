package dataset

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var missingTokens = map[string]bool{
	"": true, "NA": true, "N/A": true, "NaN": true, "nan": true, "null": true,
	"NULL": true, "None": true, "#N/A": true,
}

func isMissing(s string) bool { return missingTokens[s] }

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "True", "true", "TRUE":
		return true, true
	case "False", "false", "FALSE":
		return false, true
	}
	return false, false
}

// number is a parsed numeric cell. Integers that fit in int64 are kept
// exactly in i.
type number struct {
	f       float64
	i       int64
	integer bool
}

// parseNumeric accepts locale-formatted numbers such as "1.000,5", "1 234"
// or "12 %". Separators are auto-detected per value unless fixed in opt;
// detected thousands separators must group digits in threes. Integers
// outside the int64 range are rejected so they stay text.
func parseNumeric(s string, opt Options) (number, bool) {
	raw := strings.ReplaceAll(s, "%", "")
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "\u00A0", " "))
	if raw == "" {
		return number{}, false
	}
	sign := ""
	if raw[0] == '-' || raw[0] == '+' {
		sign, raw = raw[:1], raw[1:]
	}
	canon, ok := canonicalNumber(raw, opt)
	if !ok {
		return number{}, false
	}
	canon = sign + canon
	if !strings.ContainsAny(canon, ".eE") {
		i, err := strconv.ParseInt(canon, 10, 64)
		if err != nil {
			return number{}, false
		}
		return number{f: float64(i), i: i, integer: true}, true
	}
	f, err := strconv.ParseFloat(canon, 64)
	if err != nil {
		return number{}, false
	}
	return number{f: f}, true
}

// canonicalNumber rewrites raw with '.' as the decimal point and no
// grouping.
func canonicalNumber(raw string, opt Options) (string, bool) {
	dec, thou := opt.DecimalSeparator, opt.ThousandsSeparator
	explicitThou := thou != 0
	switch {
	case dec == 0 && thou == '.':
		dec = ','
	case dec == 0 && thou != 0:
		dec = '.'
	case dec == 0:
		dec, thou = detectSeparators(raw)
	}
	intPart, frac, hasFrac := raw, "", false
	if i := strings.IndexRune(raw, dec); i >= 0 {
		intPart, frac, hasFrac = raw[:i], raw[i+1:], true
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec && strings.ContainsRune(intPart, sep) {
				thou = sep
				break
			}
		}
	}
	if thou != 0 && thou != dec && strings.ContainsRune(intPart, thou) {
		if !explicitThou && !validGrouping(intPart, thou) {
			return "", false
		}
		intPart = strings.ReplaceAll(intPart, string(thou), "")
	}
	if intPart == "" && !hasFrac {
		return "", false
	}
	if strings.ContainsAny(intPart, ",. ") || strings.ContainsAny(frac, ",. ") {
		return "", false
	}
	if hasFrac {
		return intPart + "." + frac, true
	}
	return intPart, true
}

// detectSeparators guesses the decimal and thousands separators of one
// value. A lone comma is a thousands separator only when it groups digits.
func detectSeparators(raw string) (dec, thou rune) {
	commas, dots := strings.Count(raw, ","), strings.Count(raw, ".")
	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(raw, ",") > strings.LastIndex(raw, ".") {
			return ',', '.'
		}
		return '.', ','
	case commas > 1:
		return '.', ','
	case commas == 1:
		if validGrouping(raw, ',') {
			return '.', ','
		}
		return ',', 0
	case dots > 1:
		return ',', '.'
	}
	return '.', 0
}

// validGrouping reports whether s is digits split by sep into a leading
// group of one to three digits and further groups of exactly three.
func validGrouping(s string, sep rune) bool {
	groups := strings.Split(s, string(sep))
	if len(groups) < 2 {
		return false
	}
	for i, g := range groups {
		if g == "" || strings.Trim(g, "0123456789") != "" {
			return false
		}
		if i == 0 {
			if len(g) > 3 || (g[0] == '0') {
				return false
			}
			continue
		}
		if len(g) != 3 {
			return false
		}
	}
	return true
}

func normalizeUnit(x float64, unit string, opt Options) (float64, string, bool) {
	if opt.UnitTargets == nil {
		return x, unit, false
	}
	target, ok := opt.UnitTargets[unit]
	if !ok {
		return x, unit, false
	}
	switch unit + ">" + target {
	case "g/L>mg/L":
		return x * 1000, target, true
	case "ug/L>mg/L":
		return x / 1000, target, true
	case "°F>°C":
		return (x - 32) * 5.0 / 9.0, target, true
	default:
		return x, unit, false
	}
}

var unitPatterns = []struct {
	re   *regexp.Regexp
	pick int
}{
	{regexp.MustCompile(`^(.*)\s*\(([^)]+)\)\s*$`), 2},  // Alpha (%)
	{regexp.MustCompile(`^(.*)\s*\[([^\]]+)\]\s*$`), 2}, // Mass [mg/L]
	{regexp.MustCompile(`^(.*?)[_\s-]+(mg/L|g/L|ug/L|°[CF]|Brix|%|ppm|ppb)$`), 2},
}

// splitUnits separates a trailing unit annotation from a header.
func splitUnits(name string) (clean string, unit string) {
	s := strings.TrimSpace(name)
	for _, p := range unitPatterns {
		if m := p.re.FindStringSubmatch(s); len(m) >= 3 {
			base := strings.TrimSpace(m[1])
			u := strings.TrimSpace(m[p.pick])
			if base != "" && u != "" {
				return base, u
			}
		}
	}
	return s, ""
}

// ParseTime parses the date and timestamp layouts recognized when typing
// columns.
func ParseTime(s string) (time.Time, bool) { return parseTimeMaybe(strings.TrimSpace(s)) }

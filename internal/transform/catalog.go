package transform

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// goLayoutFor converts the token-style date patterns partners use in
// configuration (YYYY-MM-DD, MM/DD/YYYY, ...) into Go reference layouts.
// Already-Go layouts pass through untouched.
func goLayoutFor(pattern string) string {
	if !strings.ContainsAny(pattern, "YMD") {
		return pattern
	}
	r := strings.NewReplacer(
		"YYYY", "2006",
		"YY", "06",
		"MM", "01",
		"DD", "02",
		"hh", "15",
		"mm", "04",
		"ss", "05",
	)
	return r.Replace(pattern)
}

// ParseDate tries each format in order and returns the normalized
// ISO-8601 date plus the format that matched. A format that fails to
// parse the value is skipped, never silently accepted.
func ParseDate(value string, formats []string) (iso string, matched string, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", eris.New("transform: empty date value")
	}
	for _, f := range formats {
		layout := goLayoutFor(f)
		t, parseErr := time.Parse(layout, value)
		if parseErr != nil {
			continue
		}
		return t.Format("2006-01-02"), f, nil
	}
	return "", "", eris.Errorf("transform: %q matched none of %d date formats", value, len(formats))
}

// NumberOptions configures locale-aware numeric parsing.
type NumberOptions struct {
	ThousandsSeparator string
	DecimalSeparator   string
}

// ParseNumber parses a numeric cell with locale-aware separators and
// currency/percent symbol stripping.
func ParseNumber(value string, opts NumberOptions) (float64, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, eris.New("transform: empty numeric value")
	}

	for _, sym := range []string{"$", "€", "£", "¥", "%"} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(s)

	// Accounting negatives: (1,234.56).
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	thousands := opts.ThousandsSeparator
	if thousands == "" {
		thousands = ","
	}
	decimal := opts.DecimalSeparator
	if decimal == "" {
		decimal = "."
	}
	s = strings.ReplaceAll(s, thousands, "")
	if decimal != "." {
		s = strings.ReplaceAll(s, decimal, ".")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "transform: parse number %q", value)
	}
	if negative {
		f = -f
	}
	return f, nil
}

var currencyCodeRe = regexp.MustCompile(`\b([A-Z]{3})\b`)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
}

// ExtractCurrency pulls an ISO currency code out of a cell: either a
// literal 3-letter code or a recognized symbol.
func ExtractCurrency(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if m := currencyCodeRe.FindStringSubmatch(value); m != nil {
		return m[1], true
	}
	for sym, code := range currencySymbols {
		if strings.Contains(value, sym) {
			return code, true
		}
	}
	return "", false
}

// SplitField splits one cell into parts, by a pattern when given,
// otherwise by the separator.
func SplitField(value, separator, pattern string) ([]string, error) {
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "transform: split pattern %q", pattern)
		}
		return re.Split(value, -1), nil
	}
	if separator == "" {
		separator = " "
	}
	return strings.Split(value, separator), nil
}

// Concatenate joins many cells into one with the given separator.
func Concatenate(values []string, separator string) string {
	nonEmpty := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}
	return strings.Join(nonEmpty, separator)
}

// Lookup substitutes a value through a table, falling back to the input
// when no entry exists.
func Lookup(value string, table map[string]string) string {
	if mapped, ok := table[value]; ok {
		return mapped
	}
	return value
}

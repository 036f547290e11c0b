package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"bank-ledger-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"20060102",
}

var dayFirstLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/06",
	"2-1-06",
	"2.1.06",
}

var monthFirstLayouts = []string{
	"1/2/2006",
	"1-2-2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/06",
	"1-2-06",
}

var textualLayouts = []string{
	"2-Jan-2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2-Jan-06",
	"2 Jan 06",
	"Mon, 2 Jan 2006",
}

// ParseDate parses a date permissively. ISO forms are tried first, then
// day-first numeric forms, then month-first numeric forms (the two numeric
// groups swap when preferMonthFirst is set), then forms with month names.
// The result is the calendar date at midnight UTC.
func ParseDate(raw string, preferMonthFirst bool) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	groups := [][]string{isoLayouts, dayFirstLayouts, monthFirstLayouts, textualLayouts}
	if preferMonthFirst {
		groups[1], groups[2] = groups[2], groups[1]
	}

	for _, layouts := range groups {
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return models.CivilDate(t), nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s'", s)
}

var currencyCodes = []string{"GBP", "USD", "EUR"}

// ParseAmount parses an amount permissively. It accepts currency symbols
// and codes, thousands separators (see resolveSeparators), a leading or trailing minus sign,
// parentheses for negatives and a trailing CR or DR marker (DR is negative).
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"):
		negative = true
		s = strings.TrimSpace(s[:len(s)-2])
	case strings.HasSuffix(upper, "CR"):
		s = strings.TrimSpace(s[:len(s)-2])
	}

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = !negative
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, code := range currencyCodes {
		if strings.HasPrefix(strings.ToUpper(s), code) {
			s = strings.TrimSpace(s[len(code):])
		} else if strings.HasSuffix(strings.ToUpper(s), code) {
			s = strings.TrimSpace(s[:len(s)-len(code)])
		}
	}

	var b strings.Builder
	sign := ""
	for i, r := range s {
		switch {
		case r == '£' || r == '$' || r == '€' || unicode.IsSpace(r):
		case r == '-' || r == '+':
			if sign != "" || (b.Len() > 0 && i != len(s)-1) {
				return decimal.Zero, fmt.Errorf("invalid amount format '%s'", raw)
			}
			sign = string(r)
		default:
			b.WriteRune(r)
		}
	}

	if sign == "+" {
		sign = ""
	}
	number, err := resolveSeparators(b.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format '%s': %w", raw, err)
	}
	d, err := decimal.NewFromString(sign + number)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format '%s': %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// resolveSeparators rewrites the digits of an amount with a single '.' as
// the decimal mark. When both ',' and '.' appear the last one is the decimal
// mark. A lone ',' followed by one or two digits is a decimal comma, and
// several '.' are thousands separators. Thousands groups must hold three
// digits, so an ambiguous string is an error rather than a different number.
func resolveSeparators(s string) (string, error) {
	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")

	var decimalMark, groupMark string
	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			decimalMark, groupMark = ",", "."
		} else {
			decimalMark, groupMark = ".", ","
		}
	case commas == 1 && len(s)-strings.Index(s, ",")-1 <= 2:
		decimalMark = ","
	case commas > 0:
		groupMark = ","
	case dots > 1:
		groupMark = "."
	default:
		return s, nil
	}

	whole, fraction := s, ""
	if decimalMark != "" {
		i := strings.LastIndex(s, decimalMark)
		whole, fraction = s[:i], s[i+1:]
		if strings.ContainsAny(fraction, ",.") {
			return "", fmt.Errorf("misplaced decimal separator")
		}
	}
	if strings.Contains(whole, decimalMark) && decimalMark != "" {
		return "", fmt.Errorf("more than one decimal separator")
	}

	if groupMark != "" {
		groups := strings.Split(whole, groupMark)
		if len(groups[0]) == 0 || len(groups[0]) > 3 {
			return "", fmt.Errorf("bad thousands grouping")
		}
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return "", fmt.Errorf("bad thousands grouping")
			}
		}
		whole = strings.Join(groups, "")
	}

	if fraction == "" && decimalMark == "" {
		return whole, nil
	}
	return whole + "." + fraction, nil
}

var (
	embeddedISODate     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	embeddedNumericDate = regexp.MustCompile(`\b(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4}|\d{2})\b`)
)

// ExtractDescriptionDate finds the first date written inside a free-text
// description, such as a payroll run date on a ledger line. The numeric form
// is read day-first unless preferMonthFirst is set.
func ExtractDescriptionDate(description string, preferMonthFirst bool) (time.Time, bool) {
	if m := embeddedISODate.FindString(description); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t, true
		}
	}

	for _, m := range embeddedNumericDate.FindAllStringSubmatch(description, -1) {
		first, second, year := m[1], m[2], m[3]
		day, month := first, second
		if preferMonthFirst {
			day, month = second, first
		}
		layout := "2/1/2006"
		if len(year) == 2 {
			layout = "2/1/06"
		}
		if t, err := time.Parse(layout, day+"/"+month+"/"+year); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

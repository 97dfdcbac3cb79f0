package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date format names, tried in the order an issuer profile lists them.
const (
	FormatSlashLongYear  = "MM/DD/YYYY"
	FormatSlashShortYear = "MM/DD/YY"
	FormatSlashNoYear    = "MM/DD"
	FormatMonthDayYear   = "Mon DD, YYYY"
	FormatMonthDay       = "Mon DD"
)

const monthAlternation = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

// dateFormat is one named leading-date parser. The pattern is anchored at
// the start of the line and must be followed by whitespace or end of line.
type dateFormat struct {
	name    string
	pattern *regexp.Regexp
	hasYear bool
	// fields extracts month, day and year (0 when absent) from submatches.
	fields func(m []string) (month, day, year int, ok bool)
}

var dateFormats = map[string]dateFormat{
	FormatSlashLongYear: {
		name:    FormatSlashLongYear,
		pattern: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})(?:\s+|$)`),
		hasYear: true,
		fields:  numericFields,
	},
	FormatSlashShortYear: {
		name:    FormatSlashShortYear,
		pattern: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2})(?:\s+|$)`),
		hasYear: true,
		fields:  numericFields,
	},
	FormatSlashNoYear: {
		name:    FormatSlashNoYear,
		pattern: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:\s+|$)`),
		fields:  numericFields,
	},
	FormatMonthDayYear: {
		name:    FormatMonthDayYear,
		pattern: regexp.MustCompile(`(?i)^` + monthAlternation + `\.?\s+(\d{1,2}),?\s+(\d{4})(?:\s+|$)`),
		hasYear: true,
		fields:  textFields,
	},
	FormatMonthDay: {
		name:    FormatMonthDay,
		pattern: regexp.MustCompile(`(?i)^` + monthAlternation + `\.?\s+(\d{1,2})(?:\s+|$)`),
		fields:  textFields,
	},
}

// defaultDateOrder is used by issuers that do not declare their own order.
var defaultDateOrder = []string{
	FormatSlashLongYear,
	FormatSlashShortYear,
	FormatSlashNoYear,
	FormatMonthDayYear,
	FormatMonthDay,
}

var monthNumbers = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

func numericFields(m []string) (int, int, int, bool) {
	month, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, 0, false
	}
	day, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, 0, false
	}
	year := 0
	if len(m) > 3 && m[3] != "" {
		year, err = strconv.Atoi(m[3])
		if err != nil {
			return 0, 0, 0, false
		}
		if len(m[3]) == 2 {
			year += 2000
		}
	}
	return month, day, year, true
}

func textFields(m []string) (int, int, int, bool) {
	month, ok := monthNumbers[strings.ToLower(m[1])[:3]]
	if !ok {
		return 0, 0, 0, false
	}
	day, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, 0, false
	}
	year := 0
	if len(m) > 3 && m[3] != "" {
		year, err = strconv.Atoi(m[3])
		if err != nil {
			return 0, 0, 0, false
		}
	}
	return month, day, year, true
}

// leadingDate is the result of matching a date token at the start of a line.
type leadingDate struct {
	format string
	month  int
	day    int
	year   int // 0 when the token carries no year
	rest   string
}

var errInvalidDate = errors.New("invalid date")

// matchLeadingDate tries each named format in order; the first one whose
// pattern matches and whose fields form a real calendar date wins.
// It returns ok=false when no pattern matches at all, and errInvalidDate
// when a pattern matched but no format produced a valid date.
func matchLeadingDate(line string, order []string) (leadingDate, bool, error) {
	matched := false
	for _, name := range order {
		f, ok := dateFormats[name]
		if !ok {
			continue
		}
		m := f.pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		matched = true
		month, day, year, ok := f.fields(m)
		if !ok || !validDate(month, day, year) {
			continue
		}
		return leadingDate{
			format: f.name,
			month:  month,
			day:    day,
			year:   year,
			rest:   strings.TrimSpace(line[len(m[0]):]),
		}, true, nil
	}
	if matched {
		return leadingDate{}, true, errInvalidDate
	}
	return leadingDate{}, false, nil
}

// validDate checks the month/day pair against a calendar. A missing year is
// checked against a leap year so 02/29 stays acceptable until resolved.
func validDate(month, day, year int) bool {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return false
	}
	y := year
	if y == 0 {
		y = 2000
	}
	t := time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Month() == time.Month(month) && t.Day() == day
}

// stripPostingDate removes a second leading date (the posting date some
// issuers print after the transaction date).
func stripPostingDate(rest string) string {
	for _, name := range defaultDateOrder {
		if loc := dateFormats[name].pattern.FindStringIndex(rest); loc != nil {
			return strings.TrimSpace(rest[loc[1]:])
		}
	}
	return rest
}

// trailingAmountPattern matches the amount token at the end of a line:
// $1,234.56, -$4.75, $-4.75, ($150.00), 150.00 CR, 150.00-, +12.00
var trailingAmountPattern = regexp.MustCompile(
	`(?i)(?:^|\s)(\(\s*[-+]?[$£€]?\s?\d[\d,]*\.\d{2}\s*\)|[-+]?[$£€]?\s?-?\d[\d,]*\.\d{2})(\s*CR|-)?\s*$`,
)

// splitTrailingAmount separates the trailing amount token from the text
// before it. ok is false when the line does not end in an amount.
func splitTrailingAmount(s string) (head, token string, ok bool) {
	loc := trailingAmountPattern.FindStringSubmatchIndex(s)
	if loc == nil {
		return s, "", false
	}
	token = s[loc[2]:loc[3]]
	if loc[4] >= 0 {
		token += strings.TrimSpace(s[loc[4]:loc[5]])
	}
	return strings.TrimSpace(s[:loc[0]]), token, true
}

// hasTrailingAmount reports whether a line ends in an amount token.
func hasTrailingAmount(s string) bool {
	return trailingAmountPattern.MatchString(s)
}

// parseAmount converts an amount token like "$1,234.56", "($150.00)",
// "-4.75" or "150.00 CR" to a signed decimal. Parenthesized, minus-signed
// and CR-suffixed amounts are negative.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	negative := false

	upper := strings.ToUpper(s)
	if strings.HasSuffix(upper, "CR") {
		negative = true
		s = strings.TrimSpace(s[:len(s)-2])
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = s[:len(s)-1]
	}
	if strings.Contains(s, "-") {
		negative = true
	}

	s = strings.NewReplacer(
		"$", "",
		"£", "",
		"€", "",
		",", "",
		"+", "",
		"-", "",
		" ", "",
		"\u00a0", "",
	).Replace(s)

	if s == "" {
		return decimal.Zero, errors.New("empty amount")
	}

	amt, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		amt = amt.Neg()
	}
	return amt, nil
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	hasLetter     = regexp.MustCompile(`[A-Za-z]`)
)

// cleanDescription trims layout padding and collapses whitespace runs.
func cleanDescription(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// isInvalidMerchant rejects descriptions that cannot name a merchant.
func isInvalidMerchant(desc string) bool {
	return len(desc) < 3 || !hasLetter.MatchString(desc)
}

package parser

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/insightdelivered/card-statement-ledger/internal/models"
)

// periodLabels introduce the billing window on statement headers.
var periodLabels = []string{
	"closing date", "statement closing", "statement period", "billing period",
	"billing cycle", "opening/closing date", "statement date", "account summary for",
}

var (
	fullSlashDate = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})\b`)
	fullTextDate  = regexp.MustCompile(`(?i)\b` + monthAlternation + `\.?\s+(\d{1,2}),?\s+(\d{4})\b`)
)

type datedMatch struct {
	pos int
	t   time.Time
}

// fullDates returns every date with an explicit year in s, in position order.
func fullDates(s string) []time.Time {
	var found []datedMatch
	collect := func(re *regexp.Regexp, fields func([]string) (int, int, int, bool)) {
		for _, idx := range re.FindAllStringSubmatchIndex(s, -1) {
			m := make([]string, len(idx)/2)
			for i := range m {
				if idx[2*i] >= 0 {
					m[i] = s[idx[2*i]:idx[2*i+1]]
				}
			}
			month, day, year, ok := fields(m)
			if !ok || !validDate(month, day, year) {
				continue
			}
			found = append(found, datedMatch{
				pos: idx[0],
				t:   time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC),
			})
		}
	}
	collect(fullSlashDate, numericFields)
	collect(fullTextDate, textFields)

	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	dates := make([]time.Time, len(found))
	for i, f := range found {
		dates[i] = f.t
	}
	return dates
}

// extractBillingPeriod finds the billing window from a header line, falling
// back to the latest fully dated token anywhere in the statement.
func extractBillingPeriod(pages []string) models.BillingPeriod {
	for _, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			lower := strings.ToLower(line)
			if !containsAnyFold(lower, periodLabels) {
				continue
			}
			dates := fullDates(line)
			switch {
			case len(dates) >= 2:
				return models.BillingPeriod{Start: dates[0], Close: dates[len(dates)-1]}
			case len(dates) == 1:
				return models.BillingPeriod{Close: dates[0]}
			}
		}
	}

	var latest time.Time
	for _, page := range pages {
		for _, t := range fullDates(page) {
			if t.After(latest) {
				latest = t
			}
		}
	}
	return models.BillingPeriod{Close: latest}
}

// resolveYear picks the year for a date printed without one. The closing
// year is the explicit year when given, else the billing period's; months
// after the closing month belong to the previous year. hint is used only
// when neither is known.
func resolveYear(month int, period models.BillingPeriod, explicit, hint int) (int, bool) {
	year := explicit
	if year == 0 && !period.IsZero() {
		year = period.Close.Year()
	}
	if year != 0 {
		if !period.IsZero() && month > int(period.Close.Month()) {
			year--
		}
		return year, true
	}
	if hint != 0 {
		return hint, true
	}
	return 0, false
}

func containsAnyFold(lower string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

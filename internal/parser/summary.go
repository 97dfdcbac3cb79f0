package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/card-statement-ledger/internal/models"
)

// extractSummary reads the totals box printed on the statement. Totals that
// are not found stay nil.
func extractSummary(p profile, pages []string) models.StatementSummary {
	text := strings.Join(pages, "\n")
	var summary models.StatementSummary

	for _, re := range p.purchases {
		if amt, ok := firstAmount(re, text); ok {
			summary.Purchases = &amt
			break
		}
	}

	var paid decimal.Decimal
	found := false
	for _, re := range p.payments {
		if amt, ok := firstAmount(re, text); ok {
			paid = paid.Add(amt)
			found = true
		}
	}
	if found {
		summary.PaymentsCredits = &paid
	}
	return summary
}

func firstAmount(re *regexp.Regexp, text string) (decimal.Decimal, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, false
	}
	amt, err := parseAmount(m[1])
	if err != nil {
		return decimal.Zero, false
	}
	return amt.Abs(), true
}

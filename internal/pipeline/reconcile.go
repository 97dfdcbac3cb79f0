package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/card-statement-ledger/internal/models"
)

// reconcile compares extracted purchases against the statement's printed
// purchases total. ok is false when the statement has no such total.
func reconcile(info *models.StatementInfo) (matched, ok bool) {
	if info == nil || info.Summary.Purchases == nil {
		return false, false
	}
	got := spendOf(info.Transactions).Round(2)
	want := info.Summary.Purchases.Round(2)
	return got.Equal(want), true
}

// spendOf sums the positive spend amounts, which is what issuers print as
// the purchases total.
func spendOf(txns []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		if t.Type == models.TypeSpend && t.Amount.IsPositive() {
			total = total.Add(t.Amount)
		}
	}
	return total
}

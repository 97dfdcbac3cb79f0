package parser

import (
	"regexp"
	"strings"
)

// summaryKeywords mark statement summary, balance and account lines.
// Any line containing one of them is skipped, dated or not.
var summaryKeywords = []string{
	"statement balance", "new balance", "previous balance", "balance as of",
	"beginning balance", "ending balance", "minimum payment", "payment due",
	"late payment", "account summary", "account ending", "account number",
	"credit limit", "available credit", "credit line", "cash advance limit",
	"total fees", "total interest", "interest charged", "finance charge",
	"annual percentage rate", "year-to-date", "year to date",
	"statement period", "billing period", "closing date", "opening/closing",
	"days in billing cycle", "rewards balance", "points earned",
}

// footerPattern matches page furniture repeated on every page.
var footerPattern = regexp.MustCompile(`(?i)(^page\s+\d+(\s+of\s+\d+)?\b|\bpage\s+\d+\s+of\s+\d+|continued on (the )?next page|^continued\b)`)

// totalPattern matches running totals ("Total purchases for this period ...").
var totalPattern = regexp.MustCompile(`(?i)^totals?\b`)

// summaryLinePattern matches undated summary rows that print a labelled
// total, e.g. "Purchases +$1,234.56" or "Payments -$150.00".
var summaryLinePattern = regexp.MustCompile(
	`(?i)^(purchases|payments|other credits|credits|fees charged|interest charged|cash advances|transactions|balance transfers|fees|interest)\b[^$]*[-+]?\s*\$`,
)

var dateWord = regexp.MustCompile(`\bdate\b`)

// isColumnHeader detects the transaction table header row.
func isColumnHeader(lower string) bool {
	return dateWord.MatchString(lower) &&
		(strings.Contains(lower, "description") || strings.Contains(lower, "merchant") ||
			strings.Contains(lower, "transaction") || strings.Contains(lower, "details")) &&
		(strings.Contains(lower, "amount") || strings.Contains(lower, "$"))
}

// isSkipLine reports whether a line is statement furniture: headers,
// footers, column headers, balances and totals. Dated lines are never
// column headers.
func isSkipLine(line string, dated bool) (bool, string) {
	lower := strings.ToLower(line)
	for _, kw := range summaryKeywords {
		if strings.Contains(lower, kw) {
			return true, "summary"
		}
	}
	if footerPattern.MatchString(line) {
		return true, "footer"
	}
	if totalPattern.MatchString(line) {
		return true, "total"
	}
	if !dated && isColumnHeader(lower) {
		return true, "column_header"
	}
	if summaryLinePattern.MatchString(line) {
		return true, "summary"
	}
	return false, ""
}

// paymentKeywords identify payments made to the card.
var paymentKeywords = []string{
	"payment", "autopay", "auto pay", "auto-pay", "thank you", "pymt", "online pmt",
}

var achWord = regexp.MustCompile(`(?i)\bach\b`)

// isCardPayment detects payments made to the card account.
func isCardPayment(desc string) bool {
	lower := strings.ToLower(desc)
	for _, kw := range paymentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return achWord.MatchString(desc)
}

// section is the statement table a line sits in.
type section int

const (
	sectionNone section = iota
	sectionPayments
	sectionCredits
	sectionPurchases
	sectionFees
	sectionInterest
	sectionCashAdvances
)

func (s section) String() string {
	switch s {
	case sectionPayments:
		return "payments"
	case sectionCredits:
		return "credits"
	case sectionPurchases:
		return "purchases"
	case sectionFees:
		return "fees"
	case sectionInterest:
		return "interest"
	case sectionCashAdvances:
		return "cash_advances"
	default:
		return "none"
	}
}

// sectionHeaders are checked in order; longer headers come first so that
// "payments and other credits" is not read as "payments".
var sectionHeaders = []struct {
	prefix  string
	section section
}{
	{"payments and other credits", sectionPayments},
	{"payments and credits", sectionPayments},
	{"payments, credits", sectionPayments},
	{"payment received", sectionPayments},
	{"payments", sectionPayments},
	{"other credits", sectionCredits},
	{"credits", sectionCredits},
	{"returns and credits", sectionCredits},
	{"refunds and credits", sectionCredits},
	{"credits and refunds", sectionCredits},
	{"purchases and adjustments", sectionPurchases},
	{"purchases and other charges", sectionPurchases},
	{"purchase activity", sectionPurchases},
	{"standard purchases", sectionPurchases},
	{"purchases", sectionPurchases},
	{"purchase", sectionPurchases},
	{"new charges", sectionPurchases},
	{"charges", sectionPurchases},
	{"transactions", sectionPurchases},
	{"account activity", sectionNone},
	{"fees charged", sectionFees},
	{"fees", sectionFees},
	{"interest charged", sectionInterest},
	{"cash advances", sectionCashAdvances},
}

// detectSectionHeader recognises a table header line. Header lines are
// short and carry no amount.
func detectSectionHeader(line string) (section, bool) {
	if hasTrailingAmount(line) || len(strings.Fields(line)) > 6 {
		return sectionNone, false
	}
	lower := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(line)), ":")
	for _, h := range sectionHeaders {
		if lower == h.prefix || strings.HasPrefix(lower, h.prefix+" ") {
			return h.section, true
		}
	}
	return sectionNone, false
}

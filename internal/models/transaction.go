package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TypeSpend   = "spend"
	TypeCredit  = "credit"
	TypePayment = "payment"
)

// Transaction represents a single card statement transaction.
//
// Amount is signed: purchases are positive, payments and credits negative.
type Transaction struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"` // spend, credit or payment
	Card        string          `json:"card"`
	SourceFile  string          `json:"sourceFile"`
	Page        int             `json:"page"`
	Line        int             `json:"line"`
	Category    string          `json:"category,omitempty"`
	Subcategory string          `json:"subcategory,omitempty"`
}

// IssuerType identifies a card issuer statement layout.
type IssuerType string

const (
	IssuerCapitalOne    IssuerType = "capital_one"
	IssuerBarclays      IssuerType = "barclays"
	IssuerBankOfAmerica IssuerType = "bank_of_america"
	IssuerCiti          IssuerType = "citi"
	IssuerDiscover      IssuerType = "discover"
	IssuerChase         IssuerType = "chase"
	IssuerAmex          IssuerType = "amex"
	IssuerGeneric       IssuerType = "generic"
)

// Line classification results.
const (
	LineParsed       = "parsed"
	LineSkipped      = "skipped"
	LinePayment      = "payment"
	LineContinuation = "continuation"
	LineDropped      = "dropped"
)

// LineResult captures what the parser did with each input line.
type LineResult struct {
	Page   int    `json:"page"`
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Result string `json:"result"`
	Reason string `json:"reason,omitempty"`
	Format string `json:"format,omitempty"` // date format that matched
}

// BillingPeriod is the statement's billing window. Start may be zero when
// only the closing date is printed.
type BillingPeriod struct {
	Start time.Time `json:"start,omitempty"`
	Close time.Time `json:"close"`
}

// IsZero reports whether no closing date is known.
func (b BillingPeriod) IsZero() bool {
	return b.Close.IsZero()
}

// StatementSummary holds the totals printed on the statement, when found.
type StatementSummary struct {
	Purchases       *decimal.Decimal `json:"purchases,omitempty"`
	PaymentsCredits *decimal.Decimal `json:"paymentsCredits,omitempty"`
}

// StatementInfo holds everything extracted from one statement.
type StatementInfo struct {
	Issuer        IssuerType       `json:"issuer"`
	Card          string           `json:"card"`
	SourceFile    string           `json:"sourceFile"`
	BillingYear   int              `json:"billingYear,omitempty"`
	BillingPeriod BillingPeriod    `json:"billingPeriod"`
	Summary       StatementSummary `json:"summary"`
	Transactions  []Transaction    `json:"transactions"`

	LinesTotal    int            `json:"linesTotal"`
	Skipped       int            `json:"skipped"`
	Payments      int            `json:"payments"`
	Continuations int            `json:"continuations"`
	Dropped       int            `json:"dropped"`
	DropReasons   map[string]int `json:"dropReasons,omitempty"`
	Lines         []LineResult   `json:"lines,omitempty"`
}

package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/insightdelivered/card-statement-ledger/internal/models"
)

// Drop reasons recorded in StatementInfo.DropReasons.
const (
	DropInvalidDate     = "invalid_date"
	DropNoAmount        = "no_amount"
	DropInvalidAmount   = "invalid_amount"
	DropInvalidMerchant = "invalid_merchant"
	DropNoBillingYear   = "no_billing_year"
	DropUndatedAmount   = "undated_amount"
	DropNoise           = "noise"
)

// idNamespace seeds the name-based transaction IDs so that parsing the same
// text twice yields the same IDs.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("card-statement-ledger/transaction"))

// StatementParser is the line engine shared by every issuer. Issuers differ
// only in their profile: date formats, detection needles and summary totals.
//
// Each line is classified in priority order:
//
//	skip lines (headers, footers, balances, totals)  -> skipped
//	dated line with payment text                     -> payment (excluded unless IncludePayments)
//	dated line ending in an amount                   -> parsed
//	undated line following a parsed transaction      -> continuation
//	anything else                                    -> dropped
type StatementParser struct {
	profile profile
	opts    Options
}

// parseState is the state carried between lines. The continuation anchor
// is reset at every page boundary.
type parseState struct {
	anchor      int // index of the transaction that may take continuations, -1 when none
	anchorLines int
	section     section
}

func (p *StatementParser) IssuerName() string {
	return p.profile.name
}

func (p *StatementParser) Parse(pages []string) (*models.StatementInfo, error) {
	info := &models.StatementInfo{
		Issuer:        p.profile.issuer,
		Card:          p.opts.Card,
		SourceFile:    p.opts.SourceFile,
		BillingPeriod: extractBillingPeriod(pages),
		Summary:       extractSummary(p.profile, pages),
		DropReasons:   map[string]int{},
	}

	info.BillingYear = p.opts.BillingYear
	if info.BillingYear == 0 && !info.BillingPeriod.IsZero() {
		info.BillingYear = info.BillingPeriod.Close.Year()
	}
	if info.BillingYear == 0 {
		info.BillingYear = p.opts.BillingYearHint
	}

	st := &parseState{anchor: -1}
	for pageIdx, page := range pages {
		st.anchor, st.anchorLines = -1, 0

		lines := strings.Split(strings.ReplaceAll(page, "\r\n", "\n"), "\n")
		for i, raw := range lines {
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}
			info.LinesTotal++

			res := p.parseLine(info, st, pageIdx+1, i+1, line)
			p.tally(info, res)
		}
	}

	assignIDs(info)
	return info, nil
}

func (p *StatementParser) parseLine(info *models.StatementInfo, st *parseState, page, lineNum int, line string) models.LineResult {
	res := models.LineResult{Page: page, Line: lineNum, Text: line}

	date, dated, dateErr := matchLeadingDate(line, p.profile.dateOrder)

	// Skip rules win over everything, including dated lines.
	if skip, reason := isSkipLine(line, dated); skip {
		res.Result, res.Reason = models.LineSkipped, reason
		return res
	}

	if !dated {
		return p.parseUndated(info, st, res, line)
	}

	// A dated line always ends the previous description.
	st.anchor, st.anchorLines = -1, 0

	if dateErr != nil {
		return dropped(res, DropInvalidDate)
	}
	res.Format = date.format

	rest := stripPostingDate(date.rest)
	head, token, ok := splitTrailingAmount(rest)
	if !ok {
		return dropped(res, DropNoAmount)
	}
	amount, err := parseAmount(token)
	if err != nil {
		return dropped(res, DropInvalidAmount)
	}
	desc := cleanDescription(head)
	if isInvalidMerchant(desc) {
		return dropped(res, DropInvalidMerchant)
	}

	// Payment tables also list refunds, so the description decides.
	payment := isCardPayment(desc)
	if payment {
		info.Payments++
		if !p.opts.IncludePayments {
			res.Result, res.Reason = models.LinePayment, "excluded"
			return res
		}
	}

	year := date.year
	if year == 0 {
		year, ok = resolveYear(date.month, info.BillingPeriod, p.opts.BillingYear, p.opts.BillingYearHint)
		if !ok {
			return dropped(res, DropNoBillingYear)
		}
	}

	txn := models.Transaction{
		Date:        time.Date(year, time.Month(date.month), date.day, 0, 0, 0, 0, time.UTC),
		Description: desc,
		Amount:      amount,
		Type:        models.TypeSpend,
		Card:        p.opts.Card,
		SourceFile:  p.opts.SourceFile,
		Page:        page,
		Line:        lineNum,
	}
	switch {
	case payment:
		txn.Amount = amount.Abs().Neg()
		txn.Type = models.TypePayment
	case st.section == sectionCredits:
		txn.Amount = amount.Abs().Neg()
		txn.Type = models.TypeCredit
	case amount.IsNegative():
		txn.Type = models.TypeCredit
	}

	info.Transactions = append(info.Transactions, txn)
	st.anchor, st.anchorLines = len(info.Transactions)-1, 0

	res.Result = models.LineParsed
	return res
}

func (p *StatementParser) parseUndated(info *models.StatementInfo, st *parseState, res models.LineResult, line string) models.LineResult {
	if sec, ok := detectSectionHeader(line); ok {
		st.section = sec
		res.Result, res.Reason = models.LineSkipped, "section_header"
		return res
	}

	if isCardPayment(line) {
		res.Result, res.Reason = models.LineSkipped, "payment_text"
		return res
	}

	if hasTrailingAmount(line) {
		return dropped(res, DropUndatedAmount)
	}

	if st.anchor >= 0 && st.anchorLines < p.opts.MaxContinuation {
		last := &info.Transactions[st.anchor]
		last.Description = cleanDescription(last.Description + " " + line)
		st.anchorLines++
		res.Result = models.LineContinuation
		return res
	}

	return dropped(res, DropNoise)
}

func (p *StatementParser) tally(info *models.StatementInfo, res models.LineResult) {
	switch res.Result {
	case models.LineSkipped:
		info.Skipped++
	case models.LineContinuation:
		info.Continuations++
	case models.LineDropped:
		info.Dropped++
		info.DropReasons[res.Reason]++
	}
	if p.opts.Debug {
		info.Lines = append(info.Lines, res)
	}
}

func dropped(res models.LineResult, reason string) models.LineResult {
	res.Result, res.Reason = models.LineDropped, reason
	return res
}

// assignIDs gives every transaction a name-based UUID derived from its
// source position and final content.
func assignIDs(info *models.StatementInfo) {
	for i := range info.Transactions {
		t := &info.Transactions[i]
		key := fmt.Sprintf("%s|%d|%d|%s|%s|%s",
			t.SourceFile, t.Page, t.Line, t.Date.Format("2006-01-02"), t.Amount.StringFixed(2), t.Description)
		t.ID = uuid.NewSHA1(idNamespace, []byte(key)).String()
	}
}

package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/insightdelivered/card-statement-ledger/internal/models"
)

// ErrUnknownIssuer is returned when an issuer name or type is not supported.
var ErrUnknownIssuer = errors.New("unknown card issuer")

// Parser turns the text of one statement into transactions.
type Parser interface {
	// Parse takes raw text from PDF pages and returns structured statement data.
	Parse(pages []string) (*models.StatementInfo, error)
	// IssuerName returns the human-readable issuer name.
	IssuerName() string
}

// Options configure a statement parser for one document.
type Options struct {
	Card       string
	SourceFile string
	// BillingYear is the closing year of the billing period; it wins over
	// the statement header. 0 means infer it from the header.
	BillingYear int
	// BillingYearHint is the closing year used only when the statement
	// shows no billing period.
	BillingYearHint int
	// IncludePayments emits payments to the card as negative transactions
	// instead of skipping them.
	IncludePayments bool
	// MaxContinuation caps how many wrapped lines join one description.
	MaxContinuation int
	// Debug records a LineResult for every input line.
	Debug bool
}

// DefaultMaxContinuation is used when Options.MaxContinuation is zero.
const DefaultMaxContinuation = 3

// New returns a parser for the given issuer.
func New(issuer models.IssuerType, opts Options) (Parser, error) {
	p, ok := lookupProfile(issuer)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIssuer, issuer)
	}
	if opts.MaxContinuation <= 0 {
		opts.MaxContinuation = DefaultMaxContinuation
	}
	return &StatementParser{profile: p, opts: opts}, nil
}

// ParseIssuer maps a user-supplied issuer name to an IssuerType.
func ParseIssuer(name string) (models.IssuerType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "generic", "auto":
		return models.IssuerGeneric, nil
	case "capital_one", "capitalone", "capital-one", "venture":
		return models.IssuerCapitalOne, nil
	case "barclays", "barclaycard":
		return models.IssuerBarclays, nil
	case "bank_of_america", "bankofamerica", "boa", "bofa":
		return models.IssuerBankOfAmerica, nil
	case "citi", "citibank":
		return models.IssuerCiti, nil
	case "discover":
		return models.IssuerDiscover, nil
	case "chase":
		return models.IssuerChase, nil
	case "amex", "american_express", "americanexpress":
		return models.IssuerAmex, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownIssuer, name)
	}
}

// AutoDetect tries to identify the issuer from the statement text.
func AutoDetect(pages []string) (models.IssuerType, bool) {
	combined := strings.ToLower(strings.Join(pages, "\n"))
	for _, p := range profiles {
		if containsAnyFold(combined, p.needles) {
			return p.issuer, true
		}
	}
	return models.IssuerGeneric, false
}

var (
	monthYearJoined = regexp.MustCompile(`(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\d{4}`)
	monthYearSpaced = regexp.MustCompile(`(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\s+\d{4}`)
)

// DetectFromFilename guesses the issuer from the uploaded file name, using
// the naming each issuer applies to its statement downloads.
func DetectFromFilename(name string) (models.IssuerType, bool) {
	base := strings.ToLower(filepath.Base(name))

	switch {
	case strings.Contains(base, "venture") || strings.Contains(base, "capitalone") || strings.Contains(base, "capital_one"):
		return models.IssuerCapitalOne, true
	case strings.Contains(base, "barclays") || strings.Contains(base, "creditcardstatement"):
		return models.IssuerBarclays, true
	case strings.Contains(base, "estmt") || strings.Contains(base, "bankofamerica") || hasToken(base, "boa"):
		return models.IssuerBankOfAmerica, true
	case strings.Contains(base, "amex") || strings.Contains(base, "americanexpress"):
		return models.IssuerAmex, true
	case strings.Contains(base, "chase"):
		return models.IssuerChase, true
	case monthYearJoined.MatchString(base):
		return models.IssuerCiti, true
	case monthYearSpaced.MatchString(base):
		return models.IssuerDiscover, true
	}
	return models.IssuerGeneric, false
}

var nameSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// hasToken reports whether tok appears in name as a whole word, split on
// anything that is not a letter or digit.
func hasToken(name, tok string) bool {
	for _, t := range nameSeparators.Split(name, -1) {
		if t == tok {
			return true
		}
	}
	return false
}

// Detect identifies the issuer from content first, then the file name.
func Detect(name string, pages []string) models.IssuerType {
	if issuer, ok := AutoDetect(pages); ok {
		return issuer
	}
	issuer, _ := DetectFromFilename(name)
	return issuer
}

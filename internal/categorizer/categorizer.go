// Package categorizer assigns a (category, subcategory) pair to a
// transaction description using an ordered rule table. The table is data:
// rules can be added, removed or reordered without touching the engine, and
// the first rule that matches wins.
package categorizer

import (
	"fmt"
	"strings"

	"github.com/insightdelivered/card-statement-ledger/internal/models"
)

// Lookup is the categorization contract consumed by the pipeline and the
// presentation layer. It never fails.
type Lookup interface {
	Categorize(description string) (category, subcategory string)
}

// Func adapts a plain function to Lookup.
type Func func(description string) (category, subcategory string)

func (f Func) Categorize(description string) (string, string) {
	return f(description)
}

// Position says where extra rules go relative to the base table.
type Position int

const (
	Prepend Position = iota
	Append
)

// ParsePosition maps "prepend" / "append" to a Position.
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "prepend":
		return Prepend, nil
	case "append":
		return Append, nil
	default:
		return Prepend, fmt.Errorf("unknown rule position %q (want prepend or append)", s)
	}
}

func (p Position) String() string {
	if p == Append {
		return "append"
	}
	return "prepend"
}

// Categorizer evaluates rules strictly in declaration order.
// It is immutable after construction and safe for concurrent use.
type Categorizer struct {
	rules []Rule
}

// New returns a categorizer over a copy of rules.
func New(rules []Rule) *Categorizer {
	return &Categorizer{rules: append([]Rule(nil), rules...)}
}

// NewDefault returns a categorizer over DefaultRules.
func NewDefault() *Categorizer {
	return New(DefaultRules())
}

// WithRules returns a new categorizer with extra rules placed before or
// after the existing table.
func (c *Categorizer) WithRules(extra []Rule, pos Position) *Categorizer {
	combined := make([]Rule, 0, len(c.rules)+len(extra))
	if pos == Prepend {
		combined = append(combined, extra...)
		combined = append(combined, c.rules...)
	} else {
		combined = append(combined, c.rules...)
		combined = append(combined, extra...)
	}
	return &Categorizer{rules: combined}
}

// Match returns the first rule matching description.
func (c *Categorizer) Match(description string) (Rule, bool) {
	normalized := Normalize(description)
	if normalized == "" {
		return Rule{}, false
	}
	for _, r := range c.rules {
		if r.Matcher != nil && r.Matcher.Match(normalized) {
			return r, true
		}
	}
	return Rule{}, false
}

// Categorize returns the category pair of the first matching rule, or the
// fallback pair.
func (c *Categorizer) Categorize(description string) (string, string) {
	if r, ok := c.Match(description); ok {
		return r.Category, r.Subcategory
	}
	return FallbackCategory, FallbackSubcategory
}

// Rules returns a copy of the effective rule table.
func (c *Categorizer) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Apply returns a copy of txns with Category and Subcategory set from
// lookup. Descriptions are left untouched.
func Apply(lookup Lookup, txns []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(txns))
	for i, txn := range txns {
		txn.Category, txn.Subcategory = lookup.Categorize(txn.Description)
		out[i] = txn
	}
	return out
}

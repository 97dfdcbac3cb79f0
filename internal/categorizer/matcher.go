package categorizer

import (
	"regexp"
	"strings"
)

// Matcher tests a normalized description (lower-cased, whitespace
// collapsed). Implementations must be safe for concurrent use.
type Matcher interface {
	Match(normalized string) bool
	String() string
}

// Normalize lower-cases s and collapses whitespace runs to single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

type containsMatcher struct {
	subs []string
}

// Contains matches when any of the substrings occurs in the description.
func Contains(subs ...string) Matcher {
	return containsMatcher{subs: normalizeAll(subs)}
}

func (m containsMatcher) Match(s string) bool {
	for _, sub := range m.subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (m containsMatcher) String() string {
	return "contains(" + strings.Join(m.subs, "|") + ")"
}

type patternMatcher struct {
	re   *regexp.Regexp
	desc string
}

// Words matches when any of the words occurs as a whole word, so "bar"
// matches "JOE'S BAR" but not "BARNES & NOBLE".
func Words(words ...string) Matcher {
	quoted := make([]string, 0, len(words))
	for _, w := range normalizeAll(words) {
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	if len(quoted) == 0 {
		return containsMatcher{}
	}
	return patternMatcher{
		re:   regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`),
		desc: "words(" + strings.Join(quoted, "|") + ")",
	}
}

// Pattern matches a regular expression against the normalized description.
func Pattern(expr string) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return patternMatcher{re: re, desc: "pattern(" + expr + ")"}, nil
}

// MustPattern is like Pattern but panics on an invalid expression.
func MustPattern(expr string) Matcher {
	m, err := Pattern(expr)
	if err != nil {
		panic(err)
	}
	return m
}

func (m patternMatcher) Match(s string) bool {
	return m.re.MatchString(s)
}

func (m patternMatcher) String() string {
	return m.desc
}

type anyMatcher struct {
	ms []Matcher
}

// Any matches when at least one matcher matches.
func Any(ms ...Matcher) Matcher {
	return anyMatcher{ms: ms}
}

func (m anyMatcher) Match(s string) bool {
	for _, sub := range m.ms {
		if sub.Match(s) {
			return true
		}
	}
	return false
}

func (m anyMatcher) String() string {
	return "any(" + joinMatchers(m.ms) + ")"
}

type allMatcher struct {
	ms []Matcher
}

// All matches when every matcher matches.
func All(ms ...Matcher) Matcher {
	return allMatcher{ms: ms}
}

func (m allMatcher) Match(s string) bool {
	if len(m.ms) == 0 {
		return false
	}
	for _, sub := range m.ms {
		if !sub.Match(s) {
			return false
		}
	}
	return true
}

func (m allMatcher) String() string {
	return "all(" + joinMatchers(m.ms) + ")"
}

func joinMatchers(ms []Matcher) string {
	parts := make([]string, len(ms))
	for i, sub := range ms {
		parts[i] = sub.String()
	}
	return strings.Join(parts, ", ")
}

func normalizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = Normalize(s)
	}
	return out
}

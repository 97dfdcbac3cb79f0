package categorizer

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRule is returned for a rule definition that cannot be compiled.
var ErrInvalidRule = errors.New("invalid categorization rule")

// RuleSpec is the serializable form of a Rule, as it appears in config and
// rule files. Substring is shorthand for a single Contains entry.
type RuleSpec struct {
	Name        string   `yaml:"name" mapstructure:"name" json:"name"`
	Substring   string   `yaml:"substring,omitempty" mapstructure:"substring" json:"substring,omitempty"`
	Contains    []string `yaml:"contains,omitempty" mapstructure:"contains" json:"contains,omitempty"`
	Words       []string `yaml:"words,omitempty" mapstructure:"words" json:"words,omitempty"`
	Pattern     string   `yaml:"pattern,omitempty" mapstructure:"pattern" json:"pattern,omitempty"`
	Category    string   `yaml:"category" mapstructure:"category" json:"category"`
	Subcategory string   `yaml:"subcategory" mapstructure:"subcategory" json:"subcategory"`
}

// Compile turns the entry into a Rule. Multiple match kinds are combined
// with Any.
func (s RuleSpec) Compile() (Rule, error) {
	if s.Category == "" || s.Subcategory == "" {
		return Rule{}, fmt.Errorf("%w: rule %q needs both category and subcategory", ErrInvalidRule, s.Name)
	}

	var ms []Matcher
	subs := s.Contains
	if s.Substring != "" {
		subs = append([]string{s.Substring}, subs...)
	}
	if len(subs) > 0 {
		ms = append(ms, Contains(subs...))
	}
	if len(s.Words) > 0 {
		ms = append(ms, Words(s.Words...))
	}
	if s.Pattern != "" {
		m, err := Pattern(s.Pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, s.Name, err)
		}
		ms = append(ms, m)
	}
	if len(ms) == 0 {
		return Rule{}, fmt.Errorf("%w: rule %q has no matcher", ErrInvalidRule, s.Name)
	}

	name := s.Name
	if name == "" {
		name = s.Category + "/" + s.Subcategory
	}
	var m Matcher = Any(ms...)
	if len(ms) == 1 {
		m = ms[0]
	}
	return Rule{Name: name, Matcher: m, Category: s.Category, Subcategory: s.Subcategory}, nil
}

// CompileRules compiles entries in order, stopping at the first bad one.
func CompileRules(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for i, rs := range specs {
		r, err := rs.Compile()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

type ruleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// LoadRules reads a YAML document of the form
//
//	rules:
//	  - name: gym
//	    contains: [equinox, solidcore]
//	    category: Subscriptions
//	    subcategory: Health / Fitness
func LoadRules(r io.Reader) ([]Rule, error) {
	var f ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return CompileRules(f.Rules)
}

// LoadRulesFile opens path and calls LoadRules.
func LoadRulesFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()

	rules, err := LoadRules(f)
	if err != nil {
		return nil, fmt.Errorf("load rules from %s: %w", path, err)
	}
	return rules, nil
}

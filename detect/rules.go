package detect

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrUnknownRule is returned when a configured rule id names no built-in rule.
var ErrUnknownRule = errors.New("unknown pattern rule")

// Rule is one structural detector. Every match of Pattern becomes a span.
type Rule struct {
	ID      string
	Pattern *regexp.Regexp
	// Date marks rules whose matches must pass the birth-date window.
	Date bool
}

// Rule ids of the built-in detectors.
const (
	RuleName       = "name"
	RuleDateDash   = "date-dash"
	RuleDateSlash  = "date-slash"
	RulePhoneLong  = "phone-digits"
	RulePhoneNL    = "phone-nl"
	RuleNationalID = "bsn"
	RuleEmail      = "email"
	RuleCurrency   = "currency"
	RulePostcode   = "postcode"
	RuleSalutation = "salutation"
	RuleStreet     = "street"
)

const amount = `\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2}|,-)?`

var builtin = []Rule{
	{ID: RuleName, Pattern: regexp.MustCompile(`\b[A-Z][a-z]+(?: (?:(?:van|de|der|den|ter|ten|het) )*[A-Z][a-z]+)+\b`)},
	{ID: RuleDateDash, Pattern: regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{4}\b`), Date: true},
	{ID: RuleDateSlash, Pattern: regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`), Date: true},
	{ID: RulePhoneLong, Pattern: regexp.MustCompile(`\b\d{10,}\b`)},
	{ID: RulePhoneNL, Pattern: regexp.MustCompile(`(?:\+31|\b0031)[ -]?(?:\(0\)[ -]?)?[1-9](?:[ -]?\d){8}\b|\b06[ -]?(?:\d{8}|\d{2}[ -]?\d{3}[ -]?\d{3}|\d{4} \d{4}|\d{2}(?: \d{2}){3})\b`)},
	{ID: RuleNationalID, Pattern: regexp.MustCompile(`\b\d{9}\b`)},
	{ID: RuleEmail, Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{ID: RuleCurrency, Pattern: regexp.MustCompile(`(?:\x{20AC}|\bEUR\b|\b[Ee]uro\b) ?` + amount + `|\b` + amount + ` ?(?:\x{20AC}|EUR\b|[Ee]uro\b)`)},
	{ID: RulePostcode, Pattern: regexp.MustCompile(`\b[1-9][0-9]{3} ?[A-Z]{2}\b`)},
	{ID: RuleSalutation, Pattern: regexp.MustCompile(`\b(?:Geachte heer|Geachte mevrouw|Beste|Aan|Dhr\.|Mevr\.)\s+[A-Z][a-z]+\b`)},
	{ID: RuleStreet, Pattern: regexp.MustCompile(`\b[A-Z][a-z]+(?:straat|laan|weg|dijk|plein|gracht|singel)\s+\d+[a-z]?\b`)},
}

// DefaultRules returns the built-in detectors in their fixed order.
func DefaultRules() []Rule {
	return append([]Rule(nil), builtin...)
}

// RuleIDs lists the ids of the built-in detectors in order.
func RuleIDs() []string {
	ids := make([]string, len(builtin))
	for i, r := range builtin {
		ids[i] = r.ID
	}
	return ids
}

// CustomRule is a user supplied detector.
type CustomRule struct {
	ID      string `yaml:"id" json:"id"`
	Pattern string `yaml:"pattern" json:"pattern"`
	Date    bool   `yaml:"date" json:"date"`
}

// SelectRules builds an ordered rule list from built-in ids followed by
// custom rules. An empty id list selects every built-in rule.
func SelectRules(ids []string, custom []CustomRule) ([]Rule, error) {
	var rules []Rule
	if len(ids) == 0 {
		rules = DefaultRules()
	}
	for _, id := range ids {
		r, ok := lookupRule(id)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRule, id)
		}
		rules = append(rules, r)
	}
	for _, c := range custom {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", c.ID, err)
		}
		rules = append(rules, Rule{ID: c.ID, Pattern: re, Date: c.Date})
	}
	return rules, nil
}

func lookupRule(id string) (Rule, bool) {
	for _, r := range builtin {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

package password

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// ErrPolicy is wrapped by every [PolicyError].
var ErrPolicy = errors.New("password policy violation")

// MinPolicyLength is the floor no policy may go below.
const MinPolicyLength = 8

// PolicyError describes one violated rule. Code is stable; Message is meant
// for logs and never shown to end users verbatim.
type PolicyError struct {
	Code    string
	Message string
}

func (e *PolicyError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *PolicyError) Unwrap() error {
	return ErrPolicy
}

// Rule validates a candidate password.
type Rule interface {
	Validate(password string) error
}

// RuleFunc adapts a function to a [Rule].
type RuleFunc func(password string) error

func (f RuleFunc) Validate(password string) error {
	return f(password)
}

// PolicyConfig selects the built-in rules. Zero values disable optional rules.
type PolicyConfig struct {
	MinLength        int
	MaxLength        int
	MinClasses       int
	MinStrengthScore int
}

// Policy applies rules in order and reports the first violation.
type Policy struct {
	rules []Rule
}

// NewPolicy builds a policy from cfg plus any extra rules. The minimum length
// is clamped to [MinPolicyLength].
func NewPolicy(cfg PolicyConfig, extra ...Rule) *Policy {
	minLength := cfg.MinLength
	if minLength < MinPolicyLength {
		minLength = MinPolicyLength
	}

	rules := []Rule{MinLengthRule(minLength)}
	if cfg.MaxLength > 0 {
		rules = append(rules, MaxLengthRule(cfg.MaxLength))
	}
	if cfg.MinClasses > 0 {
		rules = append(rules, CharacterClassesRule(cfg.MinClasses))
	}
	if cfg.MinStrengthScore > 0 {
		rules = append(rules, StrengthRule(cfg.MinStrengthScore))
	}
	rules = append(rules, extra...)
	return &Policy{rules: rules}
}

// Validate returns nil or an error wrapping [ErrPolicy].
func (p *Policy) Validate(password string) error {
	if p == nil {
		return NewPolicy(PolicyConfig{}).Validate(password)
	}
	for _, rule := range p.rules {
		if err := rule.Validate(password); err != nil {
			return err
		}
	}
	return nil
}

// MinLengthRule counts runes, not bytes.
func MinLengthRule(min int) Rule {
	return RuleFunc(func(password string) error {
		if utf8.RuneCountInString(password) < min {
			return &PolicyError{
				Code:    "min_length",
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		return nil
	})
}

func MaxLengthRule(max int) Rule {
	return RuleFunc(func(password string) error {
		if utf8.RuneCountInString(password) > max {
			return &PolicyError{
				Code:    "max_length",
				Message: fmt.Sprintf("password must be at most %d characters long", max),
			}
		}
		return nil
	})
}

// CharacterClassesRule requires min distinct classes among upper, lower,
// digit and symbol.
func CharacterClassesRule(min int) Rule {
	return RuleFunc(func(password string) error {
		var upper, lower, digit, symbol bool
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsLower(r):
				lower = true
			case unicode.IsDigit(r):
				digit = true
			case unicode.IsSymbol(r) || unicode.IsPunct(r):
				symbol = true
			}
		}

		classes := 0
		for _, present := range []bool{upper, lower, digit, symbol} {
			if present {
				classes++
			}
		}
		if classes >= min {
			return nil
		}
		return &PolicyError{
			Code:    "character_classes",
			Message: fmt.Sprintf("password must include at least %d character types", min),
		}
	})
}

// StrengthRule enforces a minimum zxcvbn score (0-4).
func StrengthRule(minScore int, userInputs ...string) Rule {
	if minScore > 4 {
		minScore = 4
	}
	return RuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}
		result := zxcvbn.PasswordStrength(password, userInputs)
		if result.Score >= minScore {
			return nil
		}
		return &PolicyError{
			Code:    "weak_password",
			Message: "password is too weak",
		}
	})
}

// Package classify maps build error output to a failure Category.
//
// Rules are evaluated in order and the first rule with a matching needle
// decides the category. Matching is a case-insensitive substring search. The
// default order is Architecture, Dependency, Toolchain, so output mentioning
// both the ABI and the dependency is an Architecture failure.
package classify

import "strings"

// Category is the kind of build failure.
type Category int

const (
	// Unknown means no rule matched.
	Unknown Category = iota
	// Architecture failures mention the target ABI.
	Architecture
	// Dependency failures mention the third-party library.
	Dependency
	// Toolchain failures mention the NDK.
	Toolchain
)

func (c Category) String() string {
	switch c {
	case Architecture:
		return "architecture"
	case Dependency:
		return "dependency"
	case Toolchain:
		return "toolchain"
	default:
		return "unknown"
	}
}

// Rule assigns Category to any text containing one of Needles.
type Rule struct {
	Category Category
	Needles  []string
}

// Classifier evaluates rules in priority order.
type Classifier struct {
	rules []Rule
}

// New creates a Classifier; earlier rules take priority over later ones.
func New(rules ...Rule) *Classifier {
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		needles := make([]string, 0, len(r.Needles))
		for _, n := range r.Needles {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				needles = append(needles, n)
			}
		}
		normalized = append(normalized, Rule{Category: r.Category, Needles: needles})
	}
	return &Classifier{rules: normalized}
}

// Default returns the classifier for a build targeting abi and linking library.
func Default(abi, library string) *Classifier {
	library = strings.ToLower(library)
	return New(
		Rule{Category: Architecture, Needles: []string{abi}},
		Rule{Category: Dependency, Needles: []string{library, "lib" + library}},
		Rule{Category: Toolchain, Needles: []string{"ndk"}},
	)
}

// Classify returns the category of the first matching rule, or Unknown.
func (c *Classifier) Classify(text string) Category {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		for _, n := range r.Needles {
			if strings.Contains(lower, n) {
				return r.Category
			}
		}
	}
	return Unknown
}

// Rules returns the rules in priority order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

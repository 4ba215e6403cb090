package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher decides whether a page URL is one the console proxy should mask.
// Patterns use the browser extension match style where '*' stands for any run
// of characters, e.g. "https://*.console.aws.amazon.com/*".
type Matcher struct {
	patterns []*regexp.Regexp
	sources  []string
}

// NewMatcher compiles the activation patterns.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.Split(p, "*")
		for i, part := range parts {
			parts[i] = regexp.QuoteMeta(part)
		}
		re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
		if err != nil {
			return nil, fmt.Errorf("invalid activation pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
		m.sources = append(m.sources, p)
	}
	return m, nil
}

// Matches reports whether rawURL matches any activation pattern. An empty
// matcher matches nothing.
func (m *Matcher) Matches(rawURL string) bool {
	if m == nil {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns in configuration order.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.sources))
	copy(out, m.sources)
	return out
}

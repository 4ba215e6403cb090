package privacy

import (
	"fmt"
	"regexp"
	"strings"
)

// Built-in rule IDs, listed in priority order.
const (
	RuleARN       = "ARN"
	RuleAccountID = "ACCOUNT_ID"
	RuleAccessKey = "ACCESS_KEY"
	RuleSecretKey = "SECRET_KEY"

	customPrefix = "CUSTOM_"
)

// jsWhitespace is the character class body of \s in browser regular
// expressions; RE2's \s only covers ASCII.
const jsWhitespace = `\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}`

var (
	// An ARN embeds account IDs and keys-looking runs, so it goes first and
	// claims the whole string.
	arnPattern       = regexp.MustCompile(`\barn:aws[a-zA-Z-]*:[^` + jsWhitespace + `"']+`)
	accountIDPattern = regexp.MustCompile(`\b(\d{12}|\d{4}-\d{4}-\d{4})\b`)
	accessKeyPattern = regexp.MustCompile(`\b(AKIA[0-9A-Z]{16})\b`)
	secretKeyPattern = regexp.MustCompile(`\b([0-9a-zA-Z/+]{40})\b`)
)

type builtinRule struct {
	id          string
	regex       *regexp.Regexp
	enabled     func(Settings) bool
	description string
}

var builtinRules = []builtinRule{
	{RuleARN, arnPattern, func(s Settings) bool { return s.ARN }, "AWS resource name (arn:aws...:...)"},
	{RuleAccountID, accountIDPattern, func(s Settings) bool { return s.AccountID }, "12-digit account ID, plain or 4-4-4 hyphenated"},
	{RuleAccessKey, accessKeyPattern, func(s Settings) bool { return s.AccessKey }, "AKIA access key ID"},
	{RuleSecretKey, secretKeyPattern, func(s Settings) bool { return s.SecretKey }, "40-character secret access key"},
}

// BuildActivePatterns assembles the ordered pattern set for one masking
// invocation. Built-ins come first in fixed priority order, followed by one
// exact, case-sensitive literal pattern per non-blank custom string when the
// custom toggle is on. The result is never cached by callers.
func BuildActivePatterns(settings Settings, customStrings []string) []Pattern {
	var patterns []Pattern

	for _, rule := range builtinRules {
		if rule.enabled(settings) {
			patterns = append(patterns, Pattern{ID: rule.id, Regex: rule.regex, Priority: len(patterns)})
		}
	}

	if settings.CustomStrings {
		for i, literal := range customStrings {
			if strings.TrimSpace(literal) == "" {
				continue
			}
			patterns = append(patterns, Pattern{
				ID:       fmt.Sprintf("%s%d", customPrefix, i),
				Regex:    regexp.MustCompile(regexp.QuoteMeta(literal)),
				Priority: len(patterns),
			})
		}
	}

	return patterns
}

// IsCustom reports whether id names a pattern built from a user literal.
func IsCustom(id string) bool {
	return strings.HasPrefix(id, customPrefix)
}

// Describe lists the built-in rules in priority order.
func Describe() []RuleInfo {
	out := make([]RuleInfo, 0, len(builtinRules))
	for _, rule := range builtinRules {
		out = append(out, RuleInfo{ID: rule.id, Pattern: rule.regex.String(), Description: rule.description})
	}
	return out
}

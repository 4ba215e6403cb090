package privacy

import "regexp"

// Pattern is one classification rule of an active set. Priority mirrors the
// rule's position in the set; the order of the slice is what Resolve honours.
type Pattern struct {
	ID       string
	Regex    *regexp.Regexp
	Priority int
}

// MatchSpan is a half-open byte range [Start, End) into a text node's content.
type MatchSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Settings holds the five independent masking toggles. The JSON names are the
// ones the settings store has always persisted.
type Settings struct {
	AccountID     bool `json:"maskAccountId"`
	ARN           bool `json:"maskArn"`
	AccessKey     bool `json:"maskAccessKey"`
	SecretKey     bool `json:"maskSecretKey"`
	CustomStrings bool `json:"maskCustomStrings"`
}

// DefaultSettings enables everything. It is also the fallback when settings
// cannot be loaded, so a failure masks more rather than less.
func DefaultSettings() Settings {
	return Settings{
		AccountID:     true,
		ARN:           true,
		AccessKey:     true,
		SecretKey:     true,
		CustomStrings: true,
	}
}

// RuleInfo describes a built-in rule for the info endpoint.
type RuleInfo struct {
	ID          string `json:"id"`
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
}

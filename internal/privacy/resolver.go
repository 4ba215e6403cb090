package privacy

import "sort"

// Resolve returns the spans of text to mask under the given pattern set.
//
// Patterns are consulted in order and the first one that matches anywhere in
// text wins outright: all of its matches become candidates and no later pattern
// is tried. Candidates are sorted by start and any span starting before the end
// of the previously kept span is dropped, so the result is ascending and
// non-overlapping.
func Resolve(text string, patterns []Pattern) []MatchSpan {
	spans, _ := ResolveWithID(text, patterns)
	return spans
}

// ResolveWithID is Resolve that also returns the ID of the winning pattern,
// or "" when nothing matched.
func ResolveWithID(text string, patterns []Pattern) ([]MatchSpan, string) {
	if text == "" || len(patterns) == 0 {
		return nil, ""
	}

	var (
		candidates []MatchSpan
		winner     string
	)
	for _, p := range patterns {
		locs := p.Regex.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		candidates = make([]MatchSpan, 0, len(locs))
		for _, loc := range locs {
			if loc[1] > loc[0] {
				candidates = append(candidates, MatchSpan{Start: loc[0], End: loc[1]})
			}
		}
		if len(candidates) == 0 {
			continue
		}
		winner = p.ID
		break
	}

	if len(candidates) == 0 {
		return nil, ""
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Start < candidates[j].Start
	})

	resolved := candidates[:1]
	for _, span := range candidates[1:] {
		if span.Start < resolved[len(resolved)-1].End {
			continue
		}
		resolved = append(resolved, span)
	}

	return resolved, winner
}

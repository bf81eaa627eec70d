package format

import "regexp"

// The three documented thinking-marker string formats (spec §4.4/§4.7/P8).
// Stale thinking text resent to the upstream triggers signature-mismatch
// errors, so assistant content must be stripped of these before
// transmission — the upstream regenerates fresh thinking itself.
var thinkingMarkerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<thinking>.*?</thinking>`),
	regexp.MustCompile(`\[Thinking:[^\]]*\]`),
	regexp.MustCompile(`(?m)^> \*Thinking:.*\*$`),
}

// StripThinkingMarkers removes all three documented thinking-marker
// substrings from text bound for the upstream (P8).
func StripThinkingMarkers(text string) string {
	for _, re := range thinkingMarkerPatterns {
		text = re.ReplaceAllString(text, "")
	}
	return text
}

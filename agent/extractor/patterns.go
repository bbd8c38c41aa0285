package extractor

import (
	"regexp"
	"strconv"
	"strings"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

// Rule-based extraction backs the model path up: the PRO formats are
// anchored, phone numbers are filtered out before digit runs are
// considered, and intent falls out of keyword groups.
var (
	proInHousePattern  = regexp.MustCompile(`\bWE[0-9]{9}\b`)
	proUPSPattern      = regexp.MustCompile(`\b1Z[A-Z0-9]{16}\b`)
	proFedExPattern    = regexp.MustCompile(`\b[0-9]{12}\b`)
	proPrefixedPattern = regexp.MustCompile(`(?i)\b(?:PRO|tracking|track)[\s#:]*([0-9]{7,10})\b`)

	phonePattern = regexp.MustCompile(`\b(?:\+?1[-.\s]?)?(?:\([0-9]{3}\)|[0-9]{3})[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`)
	datePattern  = regexp.MustCompile(`\b[0-9]{4}-[0-9]{2}-[0-9]{2}\b`)

	lanePattern = regexp.MustCompile(`(?i)\bfrom\s+([A-Za-z .]+?)\s+to\s+([A-Za-z .]+?)(?:[.,!?]|$)`)

	ordinalPattern = regexp.MustCompile(`\b([0-9]+)(?:st|nd|rd|th)\b`)
)

var urgencyKeywords = []string{
	"urgent", "emergency", "asap", "immediately", "critical", "rush",
	"right away", "today",
}

var delayKeywords = []string{
	"delayed", "late", "missing", "lost", "still waiting", "hasn't arrived",
	"not arrived", "held up",
}

var trackKeywords = []string{
	"track", "tracking", "where is", "where's", "status", "eta", "locate",
	"shipment", "freight", "delivery",
}

var preferenceKeywords = []string{
	"prefer", "email me", "call me", "reach me", "contact me",
}

var ordinalWords = map[string]int{
	"first":  1,
	"second": 2,
	"third":  3,
	"fourth": 4,
	"fifth":  5,
	"last":   -1,
}

const (
	ruleConfidenceStrong = 0.85
	ruleConfidenceWeak   = 0.6
)

// extractByRules is the deterministic fallback path. It always returns
// a well-formed result; when nothing matches, intent is UNKNOWN with
// confidence 0.
func extractByRules(text string, tc contractx.TurnContext) contractx.ExtractionResult {
	lower := strings.ToLower(text)
	out := contractx.ExtractionResult{Intent: contractx.IntentUnknown}

	if pro, ok := findPRO(text); ok {
		out.PRO = contractx.Field{Value: pro, Confidence: ruleConfidenceStrong}
	}

	if m := lanePattern.FindStringSubmatch(text); len(m) == 3 {
		out.Origin = contractx.Field{Value: trimKeywordTail(m[1]), Confidence: ruleConfidenceWeak}
		out.Destination = contractx.Field{Value: trimKeywordTail(m[2]), Confidence: ruleConfidenceWeak}
	}

	if dates := datePattern.FindAllString(text, 2); len(dates) > 0 {
		out.DateFrom = contractx.Field{Value: dates[0], Confidence: ruleConfidenceWeak}
		if len(dates) > 1 {
			out.DateTo = contractx.Field{Value: dates[1], Confidence: ruleConfidenceWeak}
		}
	}

	// delay language counts as urgency for strategy selection
	out.Urgent = containsAny(lower, urgencyKeywords) || containsAny(lower, delayKeywords)
	out.Ordinal = findOrdinal(lower)

	switch {
	case tc.CandidateCount > 0 && out.Ordinal != 0:
		out.Intent = contractx.IntentDisambiguate
		out.Confidence = ruleConfidenceStrong
	case containsAny(lower, preferenceKeywords):
		out.Intent = contractx.IntentPreference
		out.Confidence = ruleConfidenceWeak
		out.Preference = contractx.Field{Value: preferredChannel(lower), Confidence: ruleConfidenceWeak}
	case containsAny(lower, delayKeywords):
		out.Intent = contractx.IntentReportDelay
		out.Confidence = ruleConfidenceWeak
		if out.PRO.Present() {
			out.Confidence = ruleConfidenceStrong
		}
	case out.PRO.Present() || containsAny(lower, trackKeywords):
		out.Intent = contractx.IntentTrack
		out.Confidence = ruleConfidenceWeak
		if out.PRO.Present() {
			out.Confidence = ruleConfidenceStrong
		}
	}

	return out
}

// findPRO scans the tracked formats in specificity order, skipping
// digit runs that are part of a phone number.
func findPRO(text string) (string, bool) {
	if m := proInHousePattern.FindString(text); m != "" {
		return m, true
	}
	if m := proUPSPattern.FindString(strings.ToUpper(text)); m != "" {
		return m, true
	}

	phoneSpans := phonePattern.FindAllStringIndex(text, -1)
	inPhone := func(start, end int) bool {
		for _, span := range phoneSpans {
			if start >= span[0] && end <= span[1] {
				return true
			}
		}
		return false
	}

	for _, span := range proFedExPattern.FindAllStringIndex(text, -1) {
		if !inPhone(span[0], span[1]) {
			return text[span[0]:span[1]], true
		}
	}
	for _, m := range proPrefixedPattern.FindAllStringSubmatchIndex(text, -1) {
		if len(m) >= 4 && !inPhone(m[2], m[3]) {
			return text[m[2]:m[3]], true
		}
	}
	return "", false
}

func findOrdinal(lower string) int {
	for word, n := range ordinalWords {
		if strings.Contains(lower, "the "+word) || strings.Contains(lower, word+" one") {
			return n
		}
	}
	if m := ordinalPattern.FindStringSubmatch(lower); len(m) == 2 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}

func preferredChannel(lower string) string {
	if strings.Contains(lower, "call") || strings.Contains(lower, "phone") {
		return "phone"
	}
	if strings.Contains(lower, "email") {
		return "email"
	}
	return ""
}

// trimKeywordTail drops trailing urgency words the lane pattern may
// have swallowed into a place name ("Miami ASAP").
func trimKeywordTail(s string) string {
	words := strings.Fields(strings.TrimSpace(s))
	for len(words) > 0 {
		last := strings.ToLower(words[len(words)-1])
		if !containsAny(last, urgencyKeywords) && !containsAny(last, delayKeywords) {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func containsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

package negotiation

import (
	"regexp"
	"strconv"
	"strings"
)

// IntentRule maps a message pattern to an intent. Rules are evaluated in
// order and the first match wins.
type IntentRule struct {
	Name    string
	Pattern *regexp.Regexp
	Intent  Intent
}

// intentRules is ordered by priority: a greeting that also contains a price
// is still a greeting, a refusal that mentions a deal is still a refusal.
var intentRules = []IntentRule{
	{
		Name:    "greeting",
		Pattern: regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good\s+(morning|afternoon|evening))\b`),
		Intent:  IntentGreet,
	},
	{
		Name:    "refusal",
		Pattern: regexp.MustCompile(`(?i)\b(no|not\s+now|later|can['’]?t|cannot|won['’]?t|not\s+interested)\b`),
		Intent:  IntentHandleRefusal,
	},
	{
		Name:    "acceptance",
		Pattern: regexp.MustCompile(`(?i)\b(accept\w*|agree\w*|deal|sounds\s+good)\b`),
		Intent:  IntentAccept,
	},
	{
		Name: "counter",
		Pattern: regexp.MustCompile(`(?i)(\$\s*\d` +
			`|\b\d+(\.\d+)?\s*(usd|dollars?)\b` +
			`|\b\d+(\.\d+)?\s*(/|per)\s*(unit|item|piece|each|box|case|kg|lb)\b` +
			`|\bnet\s*-?\s*(30|60|90)\b)`),
		Intent: IntentCounterDirect,
	},
}

// DefaultFallbackIntent is returned when no rule matches.
const DefaultFallbackIntent = IntentAskForOffer

var (
	fallbackPricePattern = regexp.MustCompile(`\$\s*(\d[\d,]*(?:\.\d+)?)`)
	fallbackTermsPattern = regexp.MustCompile(`(?i)\bnet\s*-?\s*(30|60|90)\b`)
)

// IntentRules returns a copy of the ordered fallback rules.
func IntentRules() []IntentRule {
	out := make([]IntentRule, len(intentRules))
	copy(out, intentRules)
	return out
}

// ClassifyFallback classifies a message without the model.
func ClassifyFallback(message string) Intent {
	for _, rule := range intentRules {
		if rule.Pattern.MatchString(message) {
			return rule.Intent
		}
	}
	return DefaultFallbackIntent
}

// ParseOfferFallback extracts the first "$<amount>" as the total price and
// the first Net 30/60/90 as payment terms. Wider term ranges are left to the
// model.
func ParseOfferFallback(message string) Offer {
	var offer Offer
	if m := fallbackPricePattern.FindStringSubmatch(message); m != nil {
		amount := strings.TrimRight(strings.ReplaceAll(m[1], ",", ""), ".")
		if price, err := strconv.ParseFloat(amount, 64); err == nil {
			offer.TotalPrice = &price
		}
	}
	if m := fallbackTermsPattern.FindStringSubmatch(message); m != nil {
		terms := "Net " + m[1]
		offer.PaymentTerms = &terms
	}
	return offer
}

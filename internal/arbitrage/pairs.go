// Package arbitrage holds the market pair registry and the YES+NO
// opportunity detector.
package arbitrage

import (
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ExtractPair builds a MarketPair from a market with exactly two tokens, one
// labelled "yes" and one "no" (case-insensitive).
func ExtractPair(m domain.Market) (domain.MarketPair, bool) {
	if len(m.Tokens) != 2 {
		return domain.MarketPair{}, false
	}

	var yes, no string
	for _, t := range m.Tokens {
		switch strings.ToLower(strings.TrimSpace(t.Outcome)) {
		case "yes":
			yes = t.TokenID
		case "no":
			no = t.TokenID
		}
	}
	if yes == "" || no == "" {
		return domain.MarketPair{}, false
	}

	desc := m.Question
	if desc == "" {
		desc = "Unknown"
	}
	return domain.MarketPair{
		MarketID:    m.ConditionID,
		YesTokenID:  yes,
		NoTokenID:   no,
		Description: desc,
	}, true
}

// MatchesTopic reports whether the question contains any keyword,
// case-insensitively.
func MatchesTopic(question string, keywords []string) bool {
	q := strings.ToLower(question)
	for _, k := range keywords {
		if k != "" && strings.Contains(q, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

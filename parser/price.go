package parser

import "strings"

// ExternalCheckoutText is the placeholder shown when a price hint points
// at a third-party ticketing checkout instead of a price.
const ExternalCheckoutText = "Ver Sympla"

// Price is the normalized reading of a free-text price hint.
type Price struct {
	IsFree bool
	Text   string
}

// ParsePrice classifies a free-text price hint. Free markers win over
// everything and drop the text; a third-party checkout marker maps to the
// fixed placeholder; anything else passes through unchanged.
func ParsePrice(text string) Price {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Price{}
	}

	if strings.Contains(lower, "gratuito") || strings.Contains(lower, "grátis") || strings.Contains(lower, "free") {
		return Price{IsFree: true}
	}
	if strings.Contains(lower, "sympla") {
		return Price{Text: ExternalCheckoutText}
	}
	return Price{Text: strings.TrimSpace(text)}
}

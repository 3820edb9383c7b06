package ocr

import (
	"regexp"
	"strings"

	"github.com/JoeYatesss/invoice/internal/document"
)

var (
	reDate   = regexp.MustCompile(`\b20\d{2}\b`)
	reCurr   = regexp.MustCompile(`\b(usd|eur|gbp|cad|aud|inr|jpy)\b|[$£€]`)
	reAmount = regexp.MustCompile(`\b\d{1,3}(,\d{3})*(\.\d{2})\b|\b\d+\.\d{2}\b`)
)

// heuristicConfidence scores decoded text by how invoice-like it looks:
// date-ish, currency-ish and amount-ish artifacts each add a bit.
func heuristicConfidence(txt string) float64 {
	txtL := strings.ToLower(txt)
	score := 0.2 // base
	if reDate.MatchString(txtL) {
		score += 0.2
	}
	if reCurr.MatchString(txtL) {
		score += 0.15
	}
	if reAmount.MatchString(txtL) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// BlendedConfidence combines the engines' mean word confidence with the
// text heuristic, weighting the engine signal higher when present.
func BlendedConfidence(tokens []document.TextToken, flat string) float64 {
	var sum float64
	var n int
	for _, t := range tokens {
		if t.Source == document.SourceOCR && t.Confidence >= 0 {
			sum += t.Confidence
			n++
		}
	}
	heur := heuristicConfidence(flat)
	if n == 0 {
		return heur
	}
	conf := 0.7*(sum/float64(n)) + 0.3*heur
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

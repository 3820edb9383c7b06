package constants

import "strings"

// Method selects the extraction policy for one document.
type Method string

const (
	MethodAuto       Method = "AUTO"
	MethodLayoutOnly Method = "LAYOUT_ONLY"
	MethodOCROnly    Method = "OCR_ONLY"
	MethodOCRPlusAI  Method = "OCR_PLUS_AI"
)

// Candidate source labels, also used in provenance maps.
const (
	SourceRules = "rules"
	SourceAI    = "ai"
)

// ParseMethod maps user input ("auto", "ocr only", ...) to a Method.
// Unknown or empty input falls back to AUTO, matching the UI behavior
// of accepting free-form method labels.
func ParseMethod(s string) Method {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")) {
	case "LAYOUT_ONLY", "LAYOUT":
		return MethodLayoutOnly
	case "OCR_ONLY", "OCR":
		return MethodOCROnly
	case "OCR_PLUS_AI", "OCR_+_AI", "OCR+AI", "AI":
		return MethodOCRPlusAI
	default:
		return MethodAuto
	}
}

package llm

import "strings"

const maxPromptChars = 6000

// BuildSystemPrompt composes the system message: output discipline,
// date and currency formats, and how the money fields relate.
func BuildSystemPrompt() string {
	parts := []string{
		"You are an invoice parser. Return ONLY JSON that matches the provided JSON Schema.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Currency must be a 3-letter ISO 4217 code.",
		"All money values are decimal strings, e.g. \"1500.00\". tax_rate is a percentage, e.g. \"10\" for 10%.",
		"The vendor is the party issuing the invoice; the client is the party billed (often after 'Bill To').",
		"For each line item include description and, where visible, quantity, rate and amount.",
		"Do not compute or correct totals; transcribe what the document states.",
		"Never output null. If a field is not present in the document, omit it entirely.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the document text, truncated to keep the
// request inside the token budget.
func BuildUserPrompt(text string, pages int) string {
	var b strings.Builder
	b.WriteString("Document text in reading order")
	if pages > 1 {
		b.WriteString(" (pages separated by form feeds)")
	}
	b.WriteString(":\n")
	text = strings.TrimSpace(text)
	if len(text) > maxPromptChars {
		b.WriteString(text[:maxPromptChars])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	return b.String()
}

// Package llm implements the AI-assisted extraction strategy: the
// flattened document text is sent to a chat-completions endpoint with a
// JSON Schema constraint, and the reply is sanitized and validated
// before anything downstream trusts it.
package llm

// PartialParty mirrors entity.Party on the wire. Everything is optional.
type PartialParty struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// PartialLineItem carries money values as decimal strings; the schema
// pattern enforces the format so parsing cannot fail after validation.
type PartialLineItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`
	Rate        string `json:"rate,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

// PartialInvoice is the JSON shape requested from the model. A missing
// key means the model did not find the field; null is never allowed.
type PartialInvoice struct {
	Vendor        *PartialParty     `json:"vendor,omitempty"`
	Client        *PartialParty     `json:"client,omitempty"`
	InvoiceNumber string            `json:"invoice_number,omitempty"`
	IssueDate     string            `json:"issue_date,omitempty"` // YYYY-MM-DD
	DueDate       string            `json:"due_date,omitempty"`   // YYYY-MM-DD
	Currency      string            `json:"currency,omitempty"`   // ISO 4217
	LineItems     []PartialLineItem `json:"line_items,omitempty"`
	Subtotal      string            `json:"subtotal,omitempty"`
	TaxRate       string            `json:"tax_rate,omitempty"` // percent
	TaxAmount     string            `json:"tax_amount,omitempty"`
	Total         string            `json:"total,omitempty"`
}

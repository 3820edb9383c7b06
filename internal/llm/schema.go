package llm

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as
// a generic map. It is passed to the model as a structured output
// constraint and used locally to validate the reply. Nothing is
// required: a field the model cannot find must be omitted, not nulled.
func BuildInvoiceJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"vendor":         partyProp(),
			"client":         partyProp(),
			"invoice_number": map[string]any{"type": "string", "minLength": 1},
			"issue_date":     dateProp(),
			"due_date":       dateProp(),
			"currency":       map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
			"line_items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"description": map[string]any{"type": "string", "minLength": 1},
						"quantity":    decimalProp(),
						"rate":        decimalProp(),
						"amount":      decimalProp(),
					},
					"required": []string{"description"},
				},
			},
			"subtotal":   decimalProp(),
			"tax_rate":   decimalProp(),
			"tax_amount": decimalProp(),
			"total":      decimalProp(),
		},
	}
}

func partyProp() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":    map[string]any{"type": "string", "minLength": 1},
			"address": map[string]any{"type": "string"},
			"email":   map[string]any{"type": "string"},
			"phone":   map[string]any{"type": "string"},
		},
	}
}

func dateProp() map[string]any {
	return map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,4})?$`,
	}
}

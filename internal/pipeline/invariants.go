package pipeline

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/JoeYatesss/invoice/internal/entity"
)

// epsilon is the rounding tolerance for the arithmetic invariants,
// one cent in the document's currency unit.
var epsilon = decimal.NewFromFloat(0.01)

// CheckInvariants recomputes the arithmetic relations on the merged
// record and reports every violation as a warning. The record is never
// mutated: a human reviews the flagged values, the pipeline does not
// guess which side of the equation is wrong. has reports whether a field
// was actually extracted (absent fields are not checked against zero).
func CheckInvariants(rec *entity.InvoiceRecord, has func(field string) bool) []string {
	var warnings []string

	for i, item := range rec.LineItems {
		if item.Quantity.IsZero() || item.Rate.IsZero() {
			continue
		}
		expected := item.Quantity.Mul(item.Rate)
		if expected.Sub(item.Amount).Abs().GreaterThan(epsilon) {
			warnings = append(warnings, fmt.Sprintf(
				"line item %d (%s): amount %s does not match quantity %s x rate %s = %s",
				i+1, item.Description, item.Amount, item.Quantity, item.Rate, expected))
		}
	}

	if has(entity.FieldSubtotal) && has(entity.FieldLineItems) && len(rec.LineItems) > 0 {
		sum := decimal.Zero
		for _, item := range rec.LineItems {
			sum = sum.Add(item.Amount)
		}
		if sum.Sub(rec.Subtotal).Abs().GreaterThan(epsilon) {
			warnings = append(warnings, fmt.Sprintf(
				"subtotal %s does not match line item sum %s", rec.Subtotal, sum))
		}
	}

	if has(entity.FieldTotal) && has(entity.FieldSubtotal) && has(entity.FieldTaxAmount) {
		expected := rec.Subtotal.Add(rec.TaxAmount)
		if expected.Sub(rec.Total).Abs().GreaterThan(epsilon) {
			warnings = append(warnings, fmt.Sprintf(
				"total %s does not match subtotal %s + tax %s = %s",
				rec.Total, rec.Subtotal, rec.TaxAmount, expected))
		}
	}

	if has(entity.FieldTaxRate) && has(entity.FieldTaxAmount) && has(entity.FieldSubtotal) &&
		!rec.TaxRate.IsZero() {
		expected := rec.Subtotal.Mul(rec.TaxRate).Div(decimal.NewFromInt(100))
		if expected.Sub(rec.TaxAmount).Abs().GreaterThan(epsilon) {
			warnings = append(warnings, fmt.Sprintf(
				"tax amount %s does not match subtotal %s x rate %s%%",
				rec.TaxAmount, rec.Subtotal, rec.TaxRate))
		}
	}

	return warnings
}

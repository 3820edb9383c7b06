package pipeline

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/JoeYatesss/invoice/internal/entity"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func hasAllFields(string) bool { return true }

func TestCheckInvariantsCleanRecord(t *testing.T) {
	rec := entity.InvoiceRecord{
		LineItems: []entity.LineItem{
			{Description: "Consulting", Quantity: dec("10"), Rate: dec("150"), Amount: dec("1500")},
		},
		Subtotal:  dec("1500"),
		TaxRate:   dec("10"),
		TaxAmount: dec("150"),
		Total:     dec("1650"),
	}
	if warnings := CheckInvariants(&rec, hasAllFields); len(warnings) != 0 {
		t.Errorf("clean record produced warnings: %v", warnings)
	}
}

func TestCheckInvariantsFlagsViolations(t *testing.T) {
	rec := entity.InvoiceRecord{
		LineItems: []entity.LineItem{
			{Description: "Consulting", Quantity: dec("10"), Rate: dec("150"), Amount: dec("1400")},
		},
		Subtotal:  dec("1500"),
		TaxAmount: dec("150"),
		Total:     dec("1700"),
	}
	warnings := CheckInvariants(&rec, hasAllFields)

	wantFragments := []string{
		"amount 1400 does not match",
		"subtotal 1500 does not match line item sum 1400",
		"total 1700 does not match subtotal 1500 + tax 150",
	}
	for _, frag := range wantFragments {
		found := false
		for _, w := range warnings {
			if strings.Contains(w, frag) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no warning containing %q in %v", frag, warnings)
		}
	}

	// Flagged, never fixed.
	if !rec.Total.Equal(dec("1700")) || !rec.LineItems[0].Amount.Equal(dec("1400")) {
		t.Error("invariant check mutated the record")
	}
}

func TestCheckInvariantsToleratesRounding(t *testing.T) {
	rec := entity.InvoiceRecord{
		LineItems: []entity.LineItem{
			{Description: "Thirds", Quantity: dec("3"), Rate: dec("33.33"), Amount: dec("100.00")},
		},
	}
	// 3 x 33.33 = 99.99, one cent off: inside epsilon.
	if warnings := CheckInvariants(&rec, hasAllFields); len(warnings) != 0 {
		t.Errorf("rounding inside epsilon flagged: %v", warnings)
	}
}

func TestCheckInvariantsSkipsAbsentFields(t *testing.T) {
	rec := entity.InvoiceRecord{
		LineItems: []entity.LineItem{
			{Description: "Consulting", Quantity: dec("2"), Rate: dec("100"), Amount: dec("200")},
		},
		// Subtotal and total were never extracted; zero values must not
		// be compared against the item sum.
	}
	has := func(field string) bool { return field == entity.FieldLineItems }
	if warnings := CheckInvariants(&rec, has); len(warnings) != 0 {
		t.Errorf("absent fields were checked: %v", warnings)
	}
}

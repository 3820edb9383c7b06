package rules

import (
	"regexp"
	"strings"

	"github.com/JoeYatesss/invoice/internal/document"
	"github.com/JoeYatesss/invoice/internal/entity"
	"github.com/JoeYatesss/invoice/internal/extract"
	"github.com/JoeYatesss/invoice/internal/layout"
	"github.com/shopspring/decimal"
)

var (
	reRowNumber  = regexp.MustCompile(`^[$€£¥]?-?\d{1,3}(?:[.,]\d{3})*(?:[.,]\d+)?$`)
	reSkipRow    = regexp.MustCompile(`(?i)\b(sub\s*-?\s*total|total|tax|vat|gst|balance|amount\s+due|invoice|discount|payment)\b`)
	reCommaRow   = regexp.MustCompile(`^\s*([A-Za-z][^,]{1,80}?)\s*,\s*([\d.,]+)\s*,\s*[$€£¥]?\s*([\d.,]+)\s*(?:,\s*[$€£¥]?\s*([\d.,]+)\s*)?$`)
	reColumnsRow = regexp.MustCompile(`^\s*(.{2,80}?)\s{2,}([\d.,]+)\s+[$€£¥]?([\d.,]+)(?:\s+[$€£¥]?([\d.,]+))?\s*$`)
)

// itemsFromTable parses the table region's rows into line items.
// Each row splits into leading descriptive tokens and trailing numeric
// columns read positionally as quantity, rate, amount; when only two
// numbers are present the amount is computed.
func itemsFromTable(doc *extract.DocumentText, table document.Region) []entity.LineItem {
	toks := doc.RegionTokens(table)
	lines := layout.Lines(toks)

	var items []entity.LineItem
	for _, ln := range lines {
		var words []string
		for _, i := range ln.TokIdx {
			words = append(words, toks[i].Text)
		}
		if item, ok := itemFromColumns(words); ok {
			items = append(items, item)
		}
	}
	return items
}

func itemFromColumns(words []string) (entity.LineItem, bool) {
	if len(words) < 3 {
		return entity.LineItem{}, false
	}
	// Trailing numeric columns, right to left.
	var nums []decimal.Decimal
	i := len(words) - 1
	for ; i >= 0 && len(nums) < 3; i-- {
		w := strings.TrimSpace(words[i])
		if !reRowNumber.MatchString(w) {
			break
		}
		d, ok := ParseAmount(w)
		if !ok {
			break
		}
		nums = append([]decimal.Decimal{d}, nums...)
	}
	desc := strings.TrimSpace(strings.Join(words[:i+1], " "))
	if len(nums) < 2 || desc == "" {
		return entity.LineItem{}, false
	}
	if reSkipRow.MatchString(desc) {
		return entity.LineItem{}, false
	}
	return buildItem(desc, nums), true
}

// itemsFromText scans flat text for line-item shaped rows: either
// comma-separated ("Consulting, 10, 150") or column-aligned
// ("Consulting    10   150.00   1500.00").
func itemsFromText(flat string) []entity.LineItem {
	var items []entity.LineItem
	for _, raw := range strings.Split(flat, "\n") {
		line := strings.TrimSpace(strings.Trim(raw, "\f"))
		if line == "" || reSkipRow.MatchString(line) {
			continue
		}
		m := reCommaRow.FindStringSubmatch(line)
		if m == nil {
			m = reColumnsRow.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		desc := strings.TrimSpace(m[1])
		nums := make([]decimal.Decimal, 0, 3)
		for _, g := range m[2:] {
			if g == "" {
				continue
			}
			if d, ok := ParseAmount(g); ok {
				nums = append(nums, d)
			}
		}
		if desc == "" || len(nums) < 2 {
			continue
		}
		items = append(items, buildItem(desc, nums))
	}
	return items
}

// buildItem maps positional numbers to quantity, rate, amount.
// With two numbers the amount is quantity times rate.
func buildItem(desc string, nums []decimal.Decimal) entity.LineItem {
	item := entity.LineItem{Description: desc}
	switch len(nums) {
	case 2:
		item.Quantity = nums[0]
		item.Rate = nums[1]
		item.Amount = nums[0].Mul(nums[1])
	default:
		item.Quantity = nums[0]
		item.Rate = nums[1]
		item.Amount = nums[2]
	}
	return item
}

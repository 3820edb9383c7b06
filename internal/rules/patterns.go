package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	reEmail = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	rePhone = regexp.MustCompile(`(?i)(?:phone|tel|tele|mobile|cell)\.?\s*:?\s*(\+?[\d][\d\s().-]{6,}\d)`)

	reInvoiceNumber = []*regexp.Regexp{
		regexp.MustCompile(`(?i)invoice\s*(?:number|no\.?)\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9/-]*)`),
		regexp.MustCompile(`(?i)invoice\s*#\s*:?\s*([A-Za-z0-9][A-Za-z0-9/-]*)`),
		regexp.MustCompile(`(?i)\binv\s*#?\s*:?\s*([A-Za-z0-9][A-Za-z0-9/-]*)`),
		regexp.MustCompile(`(?i)invoice\s*:?\s+([A-Za-z]{0,4}\d[A-Za-z0-9/-]*)`),
	}

	reCurrencyCode   = regexp.MustCompile(`\b(USD|EUR|GBP|CAD|AUD|CHF|JPY|CNY|INR|MXN|BRL|SEK|NOK|DKK|NZD)\b`)
	reCurrencySymbol = regexp.MustCompile(`[$€£¥]`)

	// Numbers like 1,234.56 / 1.234,56 / 1234.56 / 1500 with optional symbol.
	reMoney = regexp.MustCompile(`[$€£¥]?\s*-?\d{1,3}(?:[.,\s]\d{3})*(?:[.,]\d{1,2})?`)

	datePattern = `(\d{4}-\d{2}-\d{2}|\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}|\d{4}[/.-]\d{1,2}[/.-]\d{1,2}|(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}|\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?,?\s+\d{4})`

	reIssueDate = regexp.MustCompile(`(?i)(?:invoice\s+date|issue\s+date|date\s+of\s+issue|dated?)\s*:?\s*` + datePattern)
	reDueDate   = regexp.MustCompile(`(?i)(?:due\s+date|payment\s+due|due\s+by|due\s+on)\s*:?\s*` + datePattern)
	reAnyDate   = regexp.MustCompile(datePattern)

	reNumericDate = regexp.MustCompile(`^(\d{1,4})[/.-](\d{1,2})[/.-](\d{1,4})$`)
)

var symbolCurrency = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
}

var monthNameFormats = []string{
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Jan. 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2 Jan. 2006",
}

// NormalizeDate parses the locale formats seen on invoices and returns
// an ISO 8601 date. Ambiguous all-numeric dates (both readings valid)
// are read US-style, month first.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("2006-01-02"), true
	}
	for _, f := range monthNameFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	m := reNumericDate.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	c, _ := strconv.Atoi(m[3])

	var year, month, day int
	if a >= 1000 { // YYYY-M-D
		year, month, day = a, b, c
	} else { // D/M/Y or M/D/Y with 2- or 4-digit year
		year = c
		if year < 100 {
			year += 2000
		}
		if a > 12 && b <= 12 { // day first
			day, month = a, b
		} else { // US reading wins ties
			month, day = a, b
		}
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

// ParseAmount converts a locale-formatted money string to a decimal.
// Handles both 1,234.56 and 1.234,56 plus plain integers; currency
// symbols and spaces are stripped.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£¥ ")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Whichever separator comes last is the decimal point.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// Three digits after the last comma reads as thousands grouping
		// (1,234); one or two as a decimal comma (12,50).
		if len(s)-lastComma-1 == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// DetectCurrency finds an ISO currency code in the text, falling back
// to mapping a currency symbol. The bool reports an explicit code match
// (higher confidence) versus a symbol inference.
func DetectCurrency(text string) (code string, explicit bool) {
	if m := reCurrencyCode.FindString(text); m != "" {
		return m, true
	}
	if m := reCurrencySymbol.FindString(text); m != "" {
		if c, ok := symbolCurrency[m]; ok {
			return c, false
		}
	}
	return "", false
}

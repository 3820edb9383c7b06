// Package rules extracts invoice fields from flat or positioned text
// with a fixed battery of pattern matchers. It never calls external
// services and never fails fatally: an unmatched field is simply absent.
package rules

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/JoeYatesss/invoice/constants"
	"github.com/JoeYatesss/invoice/internal/document"
	"github.com/JoeYatesss/invoice/internal/entity"
	"github.com/JoeYatesss/invoice/internal/extract"
	"github.com/JoeYatesss/invoice/internal/layout"
	"github.com/shopspring/decimal"
)

// Confidence tiers: an explicit label match beats positional inference,
// which beats loose layout heuristics. Native text gets a small bump
// since it carries no recognition error.
const (
	confLabel      = 0.80
	confPositional = 0.50
	confHeuristic  = 0.40
	nativeBump     = 0.10
)

var (
	reSubtotalLine = regexp.MustCompile(`(?i)^\s*sub\s*-?\s*total\b`)
	reTaxLine      = regexp.MustCompile(`(?i)^\s*(?:sales\s+)?(?:tax|vat|gst)\b(?:\s*\(?\s*(\d+(?:\.\d+)?)\s*%\s*\)?)?`)
	reTotalLine    = regexp.MustCompile(`(?i)^\s*(?:grand\s+)?(?:total|amount\s+due|balance\s+due)\b`)
	reTaxRateOnly  = regexp.MustCompile(`(?i)\b(?:tax|vat|gst)\s*(?:rate)?\s*\(?\s*(\d+(?:\.\d+)?)\s*%\s*\)?`)
	reClientLabel  = regexp.MustCompile(`(?i)^\s*(?:bill(?:ed)?\s+to|invoice\s+to|client|customer|sold\s+to)\b\s*:?\s*(.*)$`)
	reDocWord      = regexp.MustCompile(`(?i)^\s*(?:tax\s+)?(?:invoice|receipt|bill|statement|estimate|quote)\s*$`)
)

// Extractor is the rule-based field extraction strategy.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

func (e *Extractor) Method() string { return constants.SourceRules }

// Produce runs the pattern battery over the document text. Patterns are
// ordered; later patterns only fill fields that are still absent.
func (e *Extractor) Produce(ctx context.Context, doc *extract.DocumentText) (extract.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return extract.Candidate{}, err
	}

	c := extract.Candidate{
		Method:          constants.SourceRules,
		FieldConfidence: map[string]float64{},
	}
	bump := 0.0
	if doc.NativeText {
		bump = nativeBump
	}
	set := func(field string, v any, conf float64) {
		if _, done := c.FieldConfidence[field]; done {
			return
		}
		c.Record.Set(field, v)
		if conf+bump > 0.95 {
			c.FieldConfidence[field] = 0.95
		} else {
			c.FieldConfidence[field] = conf + bump
		}
	}

	flat := doc.Flat
	lines := splitLines(flat)

	e.extractInvoiceNumber(flat, set)
	e.extractDates(flat, set)
	e.extractCurrency(flat, set)
	e.extractMoneyLines(lines, set)
	e.extractVendor(doc, lines, set)
	e.extractClient(lines, set)
	e.extractLineItems(doc, flat, set)

	e.logger.Debug("rules.extract.done",
		"fields", c.FieldCount(), "native", doc.NativeText, "pages", doc.Pages)
	return c, nil
}

func (e *Extractor) extractInvoiceNumber(flat string, set setFunc) {
	for _, re := range reInvoiceNumber {
		if m := re.FindStringSubmatch(flat); m != nil {
			set(entity.FieldInvoiceNumber, strings.TrimSpace(m[1]), confLabel)
			return
		}
	}
}

func (e *Extractor) extractDates(flat string, set setFunc) {
	// The due-date label contains the word "date", so carve its span out
	// before the issue-date patterns see the text.
	issueText := flat
	if loc := reDueDate.FindStringSubmatchIndex(flat); loc != nil {
		if m := reDueDate.FindStringSubmatch(flat); m != nil {
			if iso, ok := NormalizeDate(m[1]); ok {
				set(entity.FieldDueDate, iso, confLabel)
			}
		}
		issueText = flat[:loc[0]] + "\n" + flat[loc[1]:]
	}
	if m := reIssueDate.FindStringSubmatch(issueText); m != nil {
		if iso, ok := NormalizeDate(m[1]); ok {
			set(entity.FieldIssueDate, iso, confLabel)
		}
	}
	// Unlabeled fallback: the first date on the document is usually the
	// issue date.
	if m := reAnyDate.FindStringSubmatch(flat); m != nil {
		if iso, ok := NormalizeDate(m[1]); ok {
			set(entity.FieldIssueDate, iso, confPositional)
		}
	}
}

func (e *Extractor) extractCurrency(flat string, set setFunc) {
	code, explicit := DetectCurrency(flat)
	if code == "" {
		return
	}
	if explicit {
		set(entity.FieldCurrency, code, confLabel)
	} else {
		set(entity.FieldCurrency, code, confPositional)
	}
}

func (e *Extractor) extractMoneyLines(lines []string, set setFunc) {
	for _, line := range lines {
		switch {
		case reSubtotalLine.MatchString(line):
			if d, ok := lastAmount(line); ok {
				set(entity.FieldSubtotal, d, confLabel)
			}
		case reTaxLine.MatchString(line):
			m := reTaxLine.FindStringSubmatch(line)
			if m[1] != "" {
				if rate, ok := ParseAmount(m[1]); ok {
					set(entity.FieldTaxRate, rate, confLabel)
				}
			}
			if d, ok := lastAmount(line); ok {
				set(entity.FieldTaxAmount, d, confLabel)
			}
		case reTotalLine.MatchString(line):
			if d, ok := lastAmount(line); ok {
				set(entity.FieldTotal, d, confLabel)
			}
		default:
			if m := reTaxRateOnly.FindStringSubmatch(line); m != nil {
				if rate, ok := ParseAmount(m[1]); ok {
					set(entity.FieldTaxRate, rate, confLabel)
				}
			}
		}
	}
}

func (e *Extractor) extractVendor(doc *extract.DocumentText, lines []string, set setFunc) {
	if m := reEmail.FindString(doc.Flat); m != "" {
		set(entity.FieldVendorEmail, m, confPositional)
	}
	if m := rePhone.FindStringSubmatch(doc.Flat); m != nil {
		set(entity.FieldVendorPhone, strings.TrimSpace(m[1]), confLabel)
	}

	// Prefer the layout header region when one exists.
	var headerLines []string
	for _, r := range doc.Regions {
		if r.Kind == document.RegionHeader && r.Page == 0 {
			headerLines = regionLines(doc, r)
			break
		}
	}
	conf := confPositional
	if headerLines == nil {
		// Original heuristic: the first plausible line of the document.
		if len(lines) > 5 {
			headerLines = lines[:5]
		} else {
			headerLines = lines
		}
		conf = confHeuristic
	}

	nameAt := -1
	for i, line := range headerLines {
		line = strings.TrimSpace(line)
		if len(line) <= 2 || strings.Contains(line, "@") || strings.Contains(line, ":") ||
			reDocWord.MatchString(line) {
			continue
		}
		if reAnyDate.MatchString(line) || reSubtotalLine.MatchString(line) || reTotalLine.MatchString(line) {
			continue
		}
		if !strings.ContainsFunc(line, isLetterRune) {
			continue
		}
		set(entity.FieldVendorName, line, conf)
		nameAt = i
		break
	}

	// Up to two following header lines that look like address text.
	if nameAt >= 0 {
		var addr []string
		for _, line := range headerLines[nameAt+1:] {
			line = strings.TrimSpace(line)
			// Label lines ("Invoice Number: ...") are not address text.
			if line == "" || strings.Contains(line, "@") || strings.Contains(line, ":") ||
				rePhone.MatchString(line) || reAnyDate.MatchString(line) ||
				reClientLabel.MatchString(line) {
				continue
			}
			addr = append(addr, line)
			if len(addr) == 2 {
				break
			}
		}
		if len(addr) > 0 {
			set(entity.FieldVendorAddress, strings.Join(addr, ", "), confHeuristic)
		}
	}
}

func (e *Extractor) extractClient(lines []string, set setFunc) {
	for i, line := range lines {
		m := reClientLabel.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rest := strings.TrimSpace(m[1])
		var addr []string
		j := i + 1
		if rest != "" {
			set(entity.FieldClientName, rest, confLabel)
		} else {
			for ; j < len(lines); j++ {
				if s := strings.TrimSpace(lines[j]); s != "" {
					set(entity.FieldClientName, s, confLabel)
					j++
					break
				}
			}
		}
		for ; j < len(lines) && len(addr) < 2; j++ {
			s := strings.TrimSpace(lines[j])
			if s == "" || strings.Contains(s, "@") || strings.Contains(s, ":") ||
				reSubtotalLine.MatchString(s) || reTotalLine.MatchString(s) ||
				reClientLabel.MatchString(s) || reAnyDate.MatchString(s) ||
				reCommaRow.MatchString(s) || reColumnsRow.MatchString(s) {
				break
			}
			addr = append(addr, s)
		}
		if len(addr) > 0 {
			set(entity.FieldClientAddress, strings.Join(addr, ", "), confPositional)
		}
		return
	}
}

func (e *Extractor) extractLineItems(doc *extract.DocumentText, flat string, set setFunc) {
	for _, r := range doc.Regions {
		if r.Kind != document.RegionTable {
			continue
		}
		if items := itemsFromTable(doc, r); len(items) > 0 {
			set(entity.FieldLineItems, items, confLabel)
			return
		}
	}
	if items := itemsFromText(flat); len(items) > 0 {
		set(entity.FieldLineItems, items, confPositional)
	}
}

type setFunc func(field string, v any, conf float64)

func splitLines(flat string) []string {
	return strings.FieldsFunc(flat, func(r rune) bool { return r == '\n' || r == '\f' })
}

func lastAmount(line string) (decimal.Decimal, bool) {
	matches := reMoney.FindAllString(line, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if v, parsed := ParseAmount(matches[i]); parsed {
			return v, true
		}
	}
	return decimal.Zero, false
}

func regionLines(doc *extract.DocumentText, r document.Region) []string {
	toks := doc.RegionTokens(r)
	var out []string
	for _, ln := range layout.Lines(toks) {
		out = append(out, layout.LineText(toks, ln))
	}
	return out
}

func isLetterRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

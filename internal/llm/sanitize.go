package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Wire formats the schema enforces; sanitize drops values that would
// fail them so one bad field never sinks the remaining good ones.
var (
	reWireDate    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reWireDecimal = regexp.MustCompile(`^-?\d+(\.\d{1,4})?$`)
)

var moneyKeys = []string{"subtotal", "tax_rate", "tax_amount", "total"}

var topLevelKeys = map[string]struct{}{
	"vendor": {}, "client": {}, "invoice_number": {}, "issue_date": {},
	"due_date": {}, "currency": {}, "line_items": {}, "subtotal": {},
	"tax_rate": {}, "tax_amount": {}, "total": {},
}

var partyKeys = map[string]struct{}{
	"name": {}, "address": {}, "email": {}, "phone": {},
}

var itemKeys = map[string]struct{}{
	"description": {}, "quantity": {}, "rate": {}, "amount": {},
}

// StripCodeFence removes a ```json ... ``` wrapper when the model
// ignored the JSON-only instruction.
func StripCodeFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return []byte(strings.TrimSpace(s))
}

// SanitizeFields normalizes a model reply so a well-meaning but sloppy
// answer still validates:
//   - unknown keys are removed at every level
//   - null and empty-string values are dropped
//   - numeric money values are coerced to decimal strings
//   - currency is upper-cased
//   - values that would fail the schema's formats (dates, decimals,
//     currency length) are dropped, never fatal
//
// It returns the cleaned document and the list of adjustments made.
func SanitizeFields(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string
	for k := range m {
		if _, ok := topLevelKeys[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	for _, k := range []string{"vendor", "client"} {
		if v, ok := m[k]; ok {
			p, changes := sanitizeObject(v, partyKeys, nil)
			if p == nil {
				delete(m, k)
				dropped = append(dropped, k+"(invalid)")
			} else {
				m[k] = p
			}
			dropped = append(dropped, prefixed(k, changes)...)
		}
	}

	for _, k := range []string{"invoice_number", "issue_date", "due_date", "currency"} {
		if v, ok := m[k]; ok {
			if _, isStr := v.(string); !isStr {
				if f, isNum := v.(float64); isNum && k == "invoice_number" {
					m[k] = strconv.FormatFloat(f, 'f', -1, 64)
					dropped = append(dropped, k+"(number)")
				} else if v != nil {
					delete(m, k)
					dropped = append(dropped, k+"(type)")
				}
			}
		}
		dropped = append(dropped, trimOrDrop(m, k)...)
	}
	for _, k := range []string{"issue_date", "due_date"} {
		if v, ok := m[k].(string); ok && !reWireDate.MatchString(v) {
			delete(m, k)
			dropped = append(dropped, k+"(bad date)")
		}
	}
	if v, ok := m["currency"].(string); ok {
		v = strings.ToUpper(v)
		if len(v) != 3 {
			delete(m, "currency")
			dropped = append(dropped, "currency(not iso)")
		} else {
			m["currency"] = v
		}
	}

	for _, k := range moneyKeys {
		dropped = append(dropped, coerceMoney(m, k)...)
	}

	if v, ok := m["line_items"]; ok {
		items, changes := sanitizeItems(v)
		if items == nil {
			delete(m, "line_items")
			dropped = append(dropped, "line_items(invalid)")
		} else {
			m["line_items"] = items
		}
		dropped = append(dropped, changes...)
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}

func sanitizeObject(v any, allowed map[string]struct{}, money []string) (map[string]any, []string) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, nil
	}
	var changes []string
	for k := range obj {
		if _, ok := allowed[k]; !ok {
			delete(obj, k)
			changes = append(changes, k+"(unknown)")
		}
	}
	for k := range allowed {
		if contains(money, k) {
			changes = append(changes, coerceMoney(obj, k)...)
		} else {
			changes = append(changes, trimOrDrop(obj, k)...)
		}
	}
	return obj, changes
}

func sanitizeItems(v any) ([]any, []string) {
	arr, ok := v.([]any)
	if !ok {
		return nil, nil
	}
	var changes []string
	out := make([]any, 0, len(arr))
	for i, e := range arr {
		obj, objChanges := sanitizeObject(e, itemKeys, []string{"quantity", "rate", "amount"})
		if obj == nil {
			changes = append(changes, fmt.Sprintf("line_items[%d](invalid)", i))
			continue
		}
		if _, ok := obj["description"].(string); !ok {
			changes = append(changes, fmt.Sprintf("line_items[%d](no description)", i))
			continue
		}
		changes = append(changes, prefixed(fmt.Sprintf("line_items[%d]", i), objChanges)...)
		out = append(out, obj)
	}
	if len(out) == 0 {
		return nil, changes
	}
	return out, changes
}

// coerceMoney turns a numeric value into a decimal string and drops
// anything that cannot read as a number.
func coerceMoney(m map[string]any, k string) []string {
	v, ok := m[k]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		if !reWireDecimal.MatchString(s) {
			delete(m, k)
			return []string{k + "(not decimal)"}
		}
		m[k] = s
		return []string{k + "(number)"}
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") {
			delete(m, k)
			return []string{k + "(empty)"}
		}
		if !reWireDecimal.MatchString(s) {
			delete(m, k)
			return []string{k + "(not numeric)"}
		}
		m[k] = s
		return nil
	case nil:
		delete(m, k)
		return []string{k + "(null)"}
	default:
		delete(m, k)
		return []string{k + "(type)"}
	}
}

func trimOrDrop(m map[string]any, k string) []string {
	v, ok := m[k]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			delete(m, k)
			return []string{k + "(empty)"}
		}
		m[k] = s
		return nil
	case nil:
		delete(m, k)
		return []string{k + "(null)"}
	default:
		return nil
	}
}

func prefixed(prefix string, changes []string) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		out = append(out, prefix+"."+c)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

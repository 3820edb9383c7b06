package entity

import (
	"github.com/shopspring/decimal"
)

// Party is one side of an invoice (vendor or client).
type Party struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// LineItem is one billed row. Amount should equal Quantity*Rate within
// a rounding tolerance; the pipeline flags violations instead of fixing them.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoiceRecord is the normalized target shape. All fields are optional
// until filled; presence is tracked by the producing candidate's
// per-field confidence map, not by zero values.
type InvoiceRecord struct {
	Vendor        Party           `json:"vendor"`
	Client        Party           `json:"client"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	IssueDate     string          `json:"issue_date,omitempty"` // YYYY-MM-DD
	DueDate       string          `json:"due_date,omitempty"`   // YYYY-MM-DD
	Currency      string          `json:"currency,omitempty"`   // ISO 4217
	LineItems     []LineItem      `json:"line_items,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal,omitempty"`
	TaxRate       decimal.Decimal `json:"tax_rate,omitempty"` // percent, e.g. 10 for 10%
	TaxAmount     decimal.Decimal `json:"tax_amount,omitempty"`
	Total         decimal.Decimal `json:"total,omitempty"`
}

// Canonical field names used in confidence and provenance maps.
const (
	FieldVendorName    = "vendor.name"
	FieldVendorAddress = "vendor.address"
	FieldVendorEmail   = "vendor.email"
	FieldVendorPhone   = "vendor.phone"
	FieldClientName    = "client.name"
	FieldClientAddress = "client.address"
	FieldInvoiceNumber = "invoice_number"
	FieldIssueDate     = "issue_date"
	FieldDueDate       = "due_date"
	FieldCurrency      = "currency"
	FieldLineItems     = "line_items"
	FieldSubtotal      = "subtotal"
	FieldTaxRate       = "tax_rate"
	FieldTaxAmount     = "tax_amount"
	FieldTotal         = "total"
)

// Fields lists every mergeable field in a stable order.
var Fields = []string{
	FieldVendorName, FieldVendorAddress, FieldVendorEmail, FieldVendorPhone,
	FieldClientName, FieldClientAddress,
	FieldInvoiceNumber, FieldIssueDate, FieldDueDate, FieldCurrency,
	FieldLineItems,
	FieldSubtotal, FieldTaxRate, FieldTaxAmount, FieldTotal,
}

// Get returns the value stored under a canonical field name.
func (r *InvoiceRecord) Get(field string) any {
	switch field {
	case FieldVendorName:
		return r.Vendor.Name
	case FieldVendorAddress:
		return r.Vendor.Address
	case FieldVendorEmail:
		return r.Vendor.Email
	case FieldVendorPhone:
		return r.Vendor.Phone
	case FieldClientName:
		return r.Client.Name
	case FieldClientAddress:
		return r.Client.Address
	case FieldInvoiceNumber:
		return r.InvoiceNumber
	case FieldIssueDate:
		return r.IssueDate
	case FieldDueDate:
		return r.DueDate
	case FieldCurrency:
		return r.Currency
	case FieldLineItems:
		return r.LineItems
	case FieldSubtotal:
		return r.Subtotal
	case FieldTaxRate:
		return r.TaxRate
	case FieldTaxAmount:
		return r.TaxAmount
	case FieldTotal:
		return r.Total
	}
	return nil
}

// Set stores a value under a canonical field name. Values of the wrong
// type are ignored; the merge layer only moves values produced by Get.
func (r *InvoiceRecord) Set(field string, v any) {
	switch field {
	case FieldVendorName:
		if s, ok := v.(string); ok {
			r.Vendor.Name = s
		}
	case FieldVendorAddress:
		if s, ok := v.(string); ok {
			r.Vendor.Address = s
		}
	case FieldVendorEmail:
		if s, ok := v.(string); ok {
			r.Vendor.Email = s
		}
	case FieldVendorPhone:
		if s, ok := v.(string); ok {
			r.Vendor.Phone = s
		}
	case FieldClientName:
		if s, ok := v.(string); ok {
			r.Client.Name = s
		}
	case FieldClientAddress:
		if s, ok := v.(string); ok {
			r.Client.Address = s
		}
	case FieldInvoiceNumber:
		if s, ok := v.(string); ok {
			r.InvoiceNumber = s
		}
	case FieldIssueDate:
		if s, ok := v.(string); ok {
			r.IssueDate = s
		}
	case FieldDueDate:
		if s, ok := v.(string); ok {
			r.DueDate = s
		}
	case FieldCurrency:
		if s, ok := v.(string); ok {
			r.Currency = s
		}
	case FieldLineItems:
		if items, ok := v.([]LineItem); ok {
			r.LineItems = items
		}
	case FieldSubtotal:
		if d, ok := v.(decimal.Decimal); ok {
			r.Subtotal = d
		}
	case FieldTaxRate:
		if d, ok := v.(decimal.Decimal); ok {
			r.TaxRate = d
		}
	case FieldTaxAmount:
		if d, ok := v.(decimal.Decimal); ok {
			r.TaxAmount = d
		}
	case FieldTotal:
		if d, ok := v.(decimal.Decimal); ok {
			r.Total = d
		}
	}
}

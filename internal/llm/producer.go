package llm

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/JoeYatesss/invoice/constants"
	"github.com/JoeYatesss/invoice/internal/entity"
	"github.com/JoeYatesss/invoice/internal/extract"
)

// confSchemaValid is the per-field confidence for values that came back
// schema-valid from the model. High but below certainty: a labeled rule
// match on native text can still outrank it.
const confSchemaValid = 0.90

// Producer adapts the client to the extraction strategy interface.
type Producer struct {
	client *Client
	logger *slog.Logger
}

func NewProducer(client *Client, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{client: client, logger: logger}
}

func (p *Producer) Method() string { return constants.SourceAI }

// Available reports whether the underlying client has credentials.
func (p *Producer) Available() bool { return p.client.Available() }

func (p *Producer) Produce(ctx context.Context, doc *extract.DocumentText) (extract.Candidate, error) {
	partial, _, err := p.client.Extract(ctx, doc.Flat, doc.Pages)
	if err != nil {
		return extract.Candidate{}, err
	}
	return p.toCandidate(partial), nil
}

// toCandidate maps the wire shape onto the record, claiming only fields
// the model actually returned. Decimal strings were schema-validated so
// parse failures only occur for values that should stay absent anyway.
func (p *Producer) toCandidate(in PartialInvoice) extract.Candidate {
	c := extract.Candidate{
		Method:          constants.SourceAI,
		FieldConfidence: map[string]float64{},
	}
	set := func(field string, v any) {
		c.Record.Set(field, v)
		c.FieldConfidence[field] = confSchemaValid
	}
	setStr := func(field, v string) {
		if v != "" {
			set(field, v)
		}
	}
	setDec := func(field, v string) {
		if v == "" {
			return
		}
		if d, err := decimal.NewFromString(v); err == nil {
			set(field, d)
		}
	}

	if in.Vendor != nil {
		setStr(entity.FieldVendorName, in.Vendor.Name)
		setStr(entity.FieldVendorAddress, in.Vendor.Address)
		setStr(entity.FieldVendorEmail, in.Vendor.Email)
		setStr(entity.FieldVendorPhone, in.Vendor.Phone)
	}
	if in.Client != nil {
		setStr(entity.FieldClientName, in.Client.Name)
		setStr(entity.FieldClientAddress, in.Client.Address)
	}
	setStr(entity.FieldInvoiceNumber, in.InvoiceNumber)
	setStr(entity.FieldIssueDate, in.IssueDate)
	setStr(entity.FieldDueDate, in.DueDate)
	setStr(entity.FieldCurrency, in.Currency)
	setDec(entity.FieldSubtotal, in.Subtotal)
	setDec(entity.FieldTaxRate, in.TaxRate)
	setDec(entity.FieldTaxAmount, in.TaxAmount)
	setDec(entity.FieldTotal, in.Total)

	if len(in.LineItems) > 0 {
		items := make([]entity.LineItem, 0, len(in.LineItems))
		for _, it := range in.LineItems {
			item := entity.LineItem{Description: it.Description}
			if d, err := decimal.NewFromString(it.Quantity); err == nil {
				item.Quantity = d
			}
			if d, err := decimal.NewFromString(it.Rate); err == nil {
				item.Rate = d
			}
			if d, err := decimal.NewFromString(it.Amount); err == nil {
				item.Amount = d
			} else if !item.Quantity.IsZero() {
				item.Amount = item.Quantity.Mul(item.Rate)
			}
			items = append(items, item)
		}
		set(entity.FieldLineItems, items)
	}
	return c
}

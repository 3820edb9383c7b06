package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/JoeYatesss/invoice/internal/common"
)

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestExtractNoCredential(t *testing.T) {
	c := NewClient(Config{}, nil)
	_, _, err := c.Extract(context.Background(), "some text", 1)
	if !errors.Is(err, common.ErrAIUnavailable) {
		t.Fatalf("err = %v; want ErrAIUnavailable", err)
	}
}

func TestExtractSuccessWithFencedReply(t *testing.T) {
	reply := "```json\n" + `{
		"vendor": {"name": "ACME Corp"},
		"invoice_number": "INV-2024-001",
		"issue_date": "2024-03-15",
		"currency": "USD",
		"line_items": [{"description": "Consulting", "quantity": "10", "rate": "150", "amount": "1500"}],
		"subtotal": "1500",
		"tax_amount": "150",
		"total": "1650"
	}` + "\n```"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["model"] != "test-model" {
			t.Errorf("model = %v", req["model"])
		}
		_, _ = w.Write(completionBody(t, reply))
	}))
	defer ts.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: ts.URL, Model: "test-model"}, nil)
	out, raw, err := c.Extract(context.Background(), "flattened text", 1)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.Vendor == nil || out.Vendor.Name != "ACME Corp" {
		t.Errorf("vendor = %+v", out.Vendor)
	}
	if out.InvoiceNumber != "INV-2024-001" || out.Total != "1650" {
		t.Errorf("fields = %+v", out)
	}
	if len(out.LineItems) != 1 || out.LineItems[0].Description != "Consulting" {
		t.Errorf("line items = %+v", out.LineItems)
	}
	if len(raw) == 0 {
		t.Error("raw payload not returned")
	}
}

func TestExtractKeepsValidFieldsWhenOneIsMalformed(t *testing.T) {
	reply := `{"vendor":{"name":"ACME Corp"},"invoice_number":"INV-2024-001",
		"issue_date":"15/03/2024","total":"1650.00"}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(completionBody(t, reply))
	}))
	defer ts.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: ts.URL}, nil)
	out, _, err := c.Extract(context.Background(), "text", 1)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.IssueDate != "" {
		t.Errorf("issue_date = %q; want malformed date treated as absent", out.IssueDate)
	}
	if out.InvoiceNumber != "INV-2024-001" || out.Total != "1650.00" {
		t.Errorf("valid fields lost: %+v", out)
	}
	if out.Vendor == nil || out.Vendor.Name != "ACME Corp" {
		t.Errorf("vendor = %+v", out.Vendor)
	}
}

func TestExtractMalformedReply(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(completionBody(t, "I could not find any invoice data, sorry."))
	}))
	defer ts.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: ts.URL}, nil)
	_, _, err := c.Extract(context.Background(), "text", 1)
	if !errors.Is(err, common.ErrAIResponseMalformed) {
		t.Fatalf("err = %v; want ErrAIResponseMalformed", err)
	}
}

func TestExtractRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(completionBody(t, `{"invoice_number":"INV-1"}`))
	}))
	defer ts.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: ts.URL, MaxRetries: 2}, nil)
	out, _, err := c.Extract(context.Background(), "text", 1)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.InvoiceNumber != "INV-1" {
		t.Errorf("fields = %+v", out)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d; want 2", got)
	}
}

func TestExtractRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: ts.URL, MaxRetries: 1}, nil)
	_, _, err := c.Extract(context.Background(), "text", 1)
	if !errors.Is(err, common.ErrAIUnavailable) {
		t.Fatalf("err = %v; want ErrAIUnavailable", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d; want 2 (initial + one retry)", got)
	}
}

func TestExtractAuthFailureDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := NewClient(Config{APIKey: "bad", BaseURL: ts.URL, MaxRetries: 3}, nil)
	_, _, err := c.Extract(context.Background(), "text", 1)
	if !errors.Is(err, common.ErrAIUnavailable) {
		t.Fatalf("err = %v; want ErrAIUnavailable", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d; want 1", got)
	}
}

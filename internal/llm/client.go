package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JoeYatesss/invoice/internal/common"
)

// Config for the chat-completions client.
type Config struct {
	APIKey      string        // empty means the AI method is not configured
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g. "gpt-4o-mini"
	Temperature float32       // 0 for reproducible extraction
	Timeout     time.Duration // per-request http timeout
	MaxTokens   int
	MaxRetries  int // retries on transient failures (timeouts, 429, 5xx)
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Available reports whether the client has credentials to call out with.
func (c *Client) Available() bool { return c.cfg.APIKey != "" }

// Extract sends the document text and returns the validated partial
// record plus the raw JSON it was decoded from. Failures map onto the
// recoverable taxonomy: transport and quota problems are
// common.ErrAIUnavailable, replies that survive sanitizing but still
// break the schema are common.ErrAIResponseMalformed.
func (c *Client) Extract(ctx context.Context, text string, pages int) (PartialInvoice, []byte, error) {
	if !c.Available() {
		return PartialInvoice{}, nil, common.WrapError(common.ErrAIUnavailable, "no api key configured")
	}

	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("llm.extract.start",
		"req_id", rid, "model", c.cfg.Model, "temp", c.cfg.Temperature,
		"text_len", len(text), "pages", pages)

	schema := BuildInvoiceJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      c.cfg.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": BuildSystemPrompt()},
			{"role": "user", "content": BuildUserPrompt(text, pages) + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, rid, endpoint, body)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return PartialInvoice{}, nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw))
		return PartialInvoice{}, raw, common.WrapError(common.ErrAIResponseMalformed, "decode completion")
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices", "req_id", rid, "raw_bytes", len(raw))
		return PartialInvoice{}, raw, common.WrapError(common.ErrAIResponseMalformed, "no choices in completion")
	}

	content := StripCodeFence([]byte(cc.Choices[0].Message.Content))
	cleaned, dropped, sErr := SanitizeFields(content)
	if sErr != nil {
		c.logger.Error("llm.extract.sanitize_failed",
			"req_id", rid, "error", sErr, "elapsed_ms", time.Since(start).Milliseconds())
		return PartialInvoice{}, content, common.WrapError(common.ErrAIResponseMalformed, "not a json object")
	}
	if len(dropped) > 0 {
		c.logger.Warn("llm.extract.sanitize_applied", "req_id", rid, "dropped", dropped)
	}
	if vErr := ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
		c.logger.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", vErr, "elapsed_ms", time.Since(start).Milliseconds())
		return PartialInvoice{}, cleaned, common.WrapError(common.ErrAIResponseMalformed, "schema validation failed")
	}

	var out PartialInvoice
	if err := json.Unmarshal(cleaned, &out); err != nil {
		c.logger.Error("llm.extract.unmarshal_failed", "req_id", rid, "error", err)
		return PartialInvoice{}, cleaned, common.WrapError(common.ErrAIResponseMalformed, "unmarshal fields")
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"vendor", out.Vendor != nil,
		"invoice_number", out.InvoiceNumber,
		"line_items", len(out.LineItems),
		"total", out.Total,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, cleaned, nil
}

// post sends the request with bounded retries. Timeouts, connection
// errors, 429 and 5xx are retried with exponential backoff; any other
// non-2xx status fails immediately. Exhausting the retry budget maps
// to common.ErrAIUnavailable.
func (c *Client) post(ctx context.Context, rid, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(250*(1<<(attempt-1))) * time.Millisecond
			c.logger.Warn("llm.http.retry",
				"req_id", rid, "attempt", attempt, "backoff_ms", backoff.Milliseconds(), "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		raw, _ := io.ReadAll(resp.Body)
		if cErr := resp.Body.Close(); cErr != nil {
			c.logger.Warn("llm.http.response_body_close_error", "req_id", rid, "error", cErr)
		}

		switch {
		case resp.StatusCode/100 == 2:
			return raw, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5:
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(raw))
			continue
		default:
			return nil, common.WrapError(common.ErrAIUnavailable,
				fmt.Sprintf("status %d: %s", resp.StatusCode, truncateBody(raw)))
		}
	}
	return nil, common.WrapError(common.ErrAIUnavailable, fmt.Sprintf("retries exhausted: %v", lastErr))
}

func truncateBody(raw []byte) string {
	const max = 512
	if len(raw) > max {
		return string(raw[:max]) + "…"
	}
	return string(raw)
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

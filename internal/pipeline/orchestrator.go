package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JoeYatesss/invoice/constants"
	"github.com/JoeYatesss/invoice/internal/common"
	"github.com/JoeYatesss/invoice/internal/document"
	"github.com/JoeYatesss/invoice/internal/extract"
)

// availabler is implemented by strategies that may be unconfigured
// (the AI producer without credentials). Strategies that don't implement
// it are always available.
type availabler interface {
	Available() bool
}

// Orchestrator is the method-policy state machine. It owns no mutable
// state across requests: every Extract call normalizes, acquires tokens
// and runs strategies on its own document.
type Orchestrator struct {
	normalizer *document.Normalizer
	acquirer   *Acquirer
	rules      extract.Producer
	ai         extract.Producer
	logger     *slog.Logger
}

func NewOrchestrator(normalizer *document.Normalizer, acquirer *Acquirer, rules, ai extract.Producer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		normalizer: normalizer,
		acquirer:   acquirer,
		rules:      rules,
		ai:         ai,
		logger:     logger,
	}
}

// Extract runs the full pipeline for one document under the selected
// policy. The caller always gets either a best-effort record with its
// warnings and provenance, or one clearly-kinded fatal error.
func (o *Orchestrator) Extract(ctx context.Context, content []byte, declaredFormat string, method constants.Method) (*extract.Outcome, error) {
	start := time.Now()
	if declaredFormat == "" {
		declaredFormat = document.SniffFormat(content)
	}

	forceRaster := method == constants.MethodOCROnly
	doc, err := o.normalizer.Normalize(ctx, content, declaredFormat, forceRaster)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	nativeOnly := method == constants.MethodLayoutOnly
	dt, err := o.acquirer.Acquire(ctx, doc, nativeOnly)
	if err != nil {
		return nil, err
	}

	warnings := append([]string(nil), dt.Warnings...)
	var cands []extract.Candidate

	switch method {
	case constants.MethodLayoutOnly, constants.MethodOCROnly:
		cand, err := o.rules.Produce(ctx, dt)
		if err != nil {
			return nil, err
		}
		cands = append(cands, cand)

	case constants.MethodOCRPlusAI:
		cand, aiErr := o.runAI(ctx, dt)
		if aiErr == nil {
			cands = append(cands, cand)
			break
		}
		if !recoverable(aiErr) {
			return nil, aiErr
		}
		// Same tokens, deterministic strategy.
		warnings = append(warnings, "ai method failed, fell back to rules: "+aiErr.Error())
		fallback, err := o.rules.Produce(ctx, dt)
		if err != nil {
			return nil, err
		}
		cands = append(cands, fallback)

	default: // AUTO
		var rulesCand, aiCand extract.Candidate
		var aiErr error
		aiRan := false

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			c, err := o.rules.Produce(gctx, dt)
			if err != nil {
				return err
			}
			rulesCand = c
			return nil
		})
		if o.aiAvailable() {
			g.Go(func() error {
				c, err := o.runAI(gctx, dt)
				if err != nil {
					if recoverable(err) {
						aiErr = err
						return nil
					}
					return err
				}
				aiCand = c
				aiRan = true
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		cands = append(cands, rulesCand)
		if aiRan {
			cands = append(cands, aiCand)
		} else if aiErr != nil {
			warnings = append(warnings, "ai method skipped: "+aiErr.Error())
		}
	}

	for _, c := range cands {
		warnings = append(warnings, c.Warnings...)
	}

	rec, confs, prov := MergeCandidates(cands)
	if len(prov) == 0 {
		o.logger.Error("pipeline.extract.exhausted",
			"method", method, "warnings", warnings, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, common.NewAppError("EXTRACTION_EXHAUSTED",
			strings.Join(warnings, "; "), common.ErrExtractionExhausted)
	}

	warnings = append(warnings, CheckInvariants(&rec, func(field string) bool {
		_, ok := confs[field]
		return ok
	})...)

	outcome := &extract.Outcome{
		Record:     rec,
		Warnings:   warnings,
		MethodUsed: methodUsed(prov),
		Provenance: prov,
	}
	o.logger.Info("pipeline.extract.done",
		"method", method,
		"method_used", outcome.MethodUsed,
		"fields", len(prov),
		"warnings", len(warnings),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return outcome, nil
}

// runAI guards against a nil or unconfigured AI producer so callers only
// deal with the recoverable taxonomy.
func (o *Orchestrator) runAI(ctx context.Context, dt *extract.DocumentText) (extract.Candidate, error) {
	if o.ai == nil || !o.aiAvailable() {
		return extract.Candidate{}, fmt.Errorf("%w: not configured", common.ErrAIUnavailable)
	}
	return o.ai.Produce(ctx, dt)
}

func (o *Orchestrator) aiAvailable() bool {
	if o.ai == nil {
		return false
	}
	if av, ok := o.ai.(availabler); ok {
		return av.Available()
	}
	return true
}

func recoverable(err error) bool {
	return errors.Is(err, common.ErrAIUnavailable) || errors.Is(err, common.ErrAIResponseMalformed)
}

// methodUsed summarizes which strategies contributed winning fields,
// rules first for a stable label.
func methodUsed(prov map[string]string) string {
	seen := map[string]bool{}
	for _, m := range prov {
		seen[m] = true
	}
	methods := make([]string, 0, len(seen))
	for m := range seen {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool {
		if methods[i] == constants.SourceRules {
			return true
		}
		if methods[j] == constants.SourceRules {
			return false
		}
		return methods[i] < methods[j]
	})
	return strings.Join(methods, "+")
}

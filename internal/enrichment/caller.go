package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/breaker"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/logging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/metrics"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// Collaborator names, used for breaker identity and metric labels.
const (
	CollaboratorTextML  = "text_ml"
	CollaboratorURLML   = "url_ml"
	CollaboratorScanner = "attachment_scanner"
)

// Caller runs collaborator calls through a named circuit breaker and a
// bounded wait. A rejected, failed, or timed-out call never surfaces an
// error; it degrades to the neutral fallback fragment.
type Caller struct {
	breakers   *breaker.Registry
	breakerCfg breaker.Config
	timeout    time.Duration
	log        *logging.Logger
}

// NewCaller wires a caller onto the shared breaker registry.
func NewCaller(registry *breaker.Registry, cfg breaker.Config, timeout time.Duration, log *logging.Logger) *Caller {
	return &Caller{
		breakers:   registry,
		breakerCfg: cfg,
		timeout:    timeout,
		log:        log,
	}
}

// Fragment executes fn under the named breaker with the caller's timeout.
// The timed-out inner call is abandoned; its goroutine finishes into a
// buffered channel and is discarded.
func (c *Caller) Fragment(ctx context.Context, name string, kind model.FragmentKind, fn func(context.Context) (model.Fragment, error)) model.Fragment {
	b := c.breakers.GetOrCreate(name, c.breakerCfg)

	start := time.Now()
	var frag model.Fragment

	err := b.Call(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		type result struct {
			frag model.Fragment
			err  error
		}
		done := make(chan result, 1)
		go func() {
			f, callErr := fn(callCtx)
			done <- result{frag: f, err: callErr}
		}()

		select {
		case r := <-done:
			if r.err != nil {
				return r.err
			}
			frag = r.frag
			return nil
		case <-callCtx.Done():
			return fmt.Errorf("%s call timed out after %v: %w", name, c.timeout, callCtx.Err())
		}
	})

	metrics.EnrichmentDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, breaker.ErrOpen):
			reason = "circuit_open"
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		}
		metrics.EnrichmentFallbacks.WithLabelValues(name, reason).Inc()
		c.log.WarnContext(ctx, "enrichment call degraded to fallback",
			"collaborator", name,
			"reason", reason,
			"error", err)
		return model.FallbackFragment(kind)
	}

	frag.Kind = kind
	return frag
}

// Scan runs the attachment scanner, degrading to a clean-with-caveat result
// when the scanner errors. Scanner trouble never fails the pipeline.
func (c *Caller) Scan(ctx context.Context, scanner AttachmentScanner, attachments []model.Attachment) ScanResult {
	if scanner == nil || len(attachments) == 0 {
		return ScanResult{Available: scanner != nil}
	}

	start := time.Now()
	res, err := scanner.Scan(ctx, attachments)
	metrics.EnrichmentDuration.WithLabelValues(CollaboratorScanner).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.EnrichmentFallbacks.WithLabelValues(CollaboratorScanner, "error").Inc()
		c.log.WarnContext(ctx, "attachment scan unavailable",
			"collaborator", CollaboratorScanner,
			"error", err)
		return ScanResult{Infected: false, Available: false}
	}
	return res
}

// Package admission throttles and classifies inbound requests before they
// enter the processing pipeline.
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/counter"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/logging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/metrics"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// Scope names the attribution dimension a limit applies to.
type Scope string

const (
	ScopeAddress    Scope = "address"
	ScopeCredential Scope = "credential"
	ScopeTenant     Scope = "tenant"
)

// scopeOrder fixes the evaluation order so rejections are deterministic.
var scopeOrder = []Scope{ScopeAddress, ScopeCredential, ScopeTenant}

// Limit is one fixed-window budget: Max requests per Window.
type Limit struct {
	Max    int64
	Window time.Duration
}

// Limits maps each scope to its budget. A missing scope is unlimited.
type Limits map[Scope]Limit

// DefaultLimits mirrors the production defaults: 100/min by address,
// 10k/hour by credential, 1M/day by tenant.
func DefaultLimits() Limits {
	return Limits{
		ScopeAddress:    {Max: 100, Window: time.Minute},
		ScopeCredential: {Max: 10000, Window: time.Hour},
		ScopeTenant:     {Max: 1000000, Window: 24 * time.Hour},
	}
}

// RequestMeta carries the request attributes the abuse heuristics inspect.
type RequestMeta struct {
	UserAgent   string
	HeaderCount int
}

// Result is the admission outcome. Flags are advisory only; a flagged
// request is still admitted.
type Result struct {
	Allowed    bool
	Scope      Scope
	RetryAfter time.Duration
	Flags      []string
}

// RejectedError signals an over-limit request with a retry-after hint.
type RejectedError struct {
	Scope      Scope
	RetryAfter time.Duration
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("admission rejected: %s limit exceeded, retry after %s", e.Scope, e.RetryAfter)
}

// Controller enforces the per-scope limits against the shared counter store.
type Controller struct {
	store  counter.Store
	limits Limits
	log    *logging.Logger
}

// NewController creates an admission controller.
func NewController(store counter.Store, limits Limits, log *logging.Logger) *Controller {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Controller{store: store, limits: limits, log: log}
}

// Admit checks every applicable scope for the identity and endpoint class.
// The request is rejected if any scope is over budget. Counter increments
// are the only state mutation. A counter-store failure is surfaced to the
// caller; admission is a mandatory stage and never silently degrades.
func (c *Controller) Admit(ctx context.Context, id model.RequestIdentity, endpoint string, meta RequestMeta) (Result, error) {
	flags := suspiciousFlags(meta)
	for _, f := range flags {
		metrics.AdmissionFlags.WithLabelValues(f).Inc()
		c.log.WarnContext(ctx, "suspicious request flagged",
			"flag", f,
			"address", id.RemoteAddr,
			"endpoint", endpoint,
		)
	}

	for _, scope := range scopeOrder {
		limit, ok := c.limits[scope]
		if !ok || limit.Max <= 0 {
			continue
		}
		key := counterKey(scope, scopeIdentity(scope, id), endpoint)
		current, err := c.store.Incr(ctx, key, limit.Window)
		if err != nil {
			return Result{}, fmt.Errorf("admission check for %s: %w", scope, err)
		}
		if current > limit.Max {
			metrics.AdmissionRejections.WithLabelValues(string(scope)).Inc()
			c.log.WarnContext(ctx, "rate limit exceeded",
				"scope", string(scope),
				"endpoint", endpoint,
				"current", current,
				"limit", limit.Max,
			)
			return Result{
				Allowed:    false,
				Scope:      scope,
				RetryAfter: limit.Window,
				Flags:      flags,
			}, nil
		}
	}

	return Result{Allowed: true, Flags: flags}, nil
}

// ResetScope clears all counters for one identity within a scope.
// Operator use only.
func (c *Controller) ResetScope(ctx context.Context, scope Scope, identity string) (int64, error) {
	return c.store.Reset(ctx, fmt.Sprintf("ratelimit:%s:%s:*", scope, identity))
}

func counterKey(scope Scope, identity, endpoint string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", scope, identity, endpoint)
}

func scopeIdentity(scope Scope, id model.RequestIdentity) string {
	switch scope {
	case ScopeAddress:
		return id.RemoteAddr
	case ScopeCredential:
		return id.CredentialHash
	case ScopeTenant:
		return id.TenantID
	}
	return "unknown"
}

// suspiciousFlags applies the abuse heuristics. Most legitimate clients
// send a user agent and five or more headers; misses are logged for abuse
// review, never enforced as a hard block.
func suspiciousFlags(meta RequestMeta) []string {
	var flags []string
	if meta.UserAgent == "" {
		flags = append(flags, "missing_user_agent")
	}
	if meta.HeaderCount > 0 && meta.HeaderCount < 5 {
		flags = append(flags, "sparse_headers")
	}
	return flags
}

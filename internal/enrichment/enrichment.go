// Package enrichment produces the per-collaborator scoring fragments the
// risk engine consumes. Collaborator calls are wrapped in circuit breakers
// and bounded waits; a failed or slow collaborator yields a neutral
// fallback fragment instead of an error.
package enrichment

import (
	"context"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// TextScorer scores message text for phishing language.
type TextScorer interface {
	ScoreText(ctx context.Context, subject, body string) (model.Fragment, error)
}

// URLScorer scores a message's URL set.
type URLScorer interface {
	ScoreURLs(ctx context.Context, urls []string) (model.Fragment, error)
}

// ScanResult is the attachment scanner outcome. Available is false when the
// scan engine could not run; callers treat that as clean-with-caveat.
type ScanResult struct {
	Infected  bool               `json:"infected"`
	Hits      []model.MalwareHit `json:"hits,omitempty"`
	Available bool               `json:"available"`
}

// AttachmentScanner checks attachments for malware.
type AttachmentScanner interface {
	Scan(ctx context.Context, attachments []model.Attachment) (ScanResult, error)
}

// Package model defines the data types shared across the PhishX pipeline.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority selects the orchestrator lane a message is queued on.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Attachment references one attachment by filename and raw content.
type Attachment struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// Message is the immutable snapshot of one inbound email. It is created at
// ingest and never mutated afterwards; every downstream stage reads the same
// snapshot keyed by ID.
type Message struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenant_id"`
	Subject     string       `json:"subject"`
	Sender      string       `json:"sender"`
	Recipient   string       `json:"recipient"`
	Body        string       `json:"body"`
	URLs        []string     `json:"urls,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Priority    Priority     `json:"priority"`
	ReceivedAt  time.Time    `json:"received_at"`
}

// NewMessage builds a Message with a generated identifier and deduplicated,
// order-preserving URL list. The identifier is immutable after ingest.
func NewMessage(tenantID, subject, sender, recipient, body string, urls []string, attachments []Attachment, priority Priority) *Message {
	if priority != PriorityHigh {
		priority = PriorityNormal
	}
	return &Message{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Subject:     subject,
		Sender:      sender,
		Recipient:   recipient,
		Body:        body,
		URLs:        dedupeURLs(urls),
		Attachments: attachments,
		Priority:    priority,
		ReceivedAt:  time.Now().UTC(),
	}
}

// Validate checks the structural invariants a message must satisfy before it
// enters the pipeline. Violations are terminal and never retried.
func (m *Message) Validate() error {
	if m == nil {
		return &ValidationError{Field: "message", Reason: "nil message"}
	}
	if m.ID == "" {
		return &ValidationError{Field: "id", Reason: "missing message identifier"}
	}
	if m.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Reason: "missing tenant identifier"}
	}
	if strings.TrimSpace(m.Sender) == "" {
		return &ValidationError{Field: "sender", Reason: "missing sender address"}
	}
	if m.Subject == "" && m.Body == "" {
		return &ValidationError{Field: "body", Reason: "empty subject and body"}
	}
	return nil
}

// ValidationError marks a malformed message. It maps to a 4xx-equivalent
// rejection at the boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message: %s: %s", e.Field, e.Reason)
}

func dedupeURLs(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

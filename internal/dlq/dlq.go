// Package dlq stores retry-exhausted messages on disk as replayable JSON
// files. The terminal path records a safe-default decision elsewhere; the
// DLQ entry preserves the full message for later replay or forensics.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/logging"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// FailedMessage captures a terminal pipeline failure for replay.
type FailedMessage struct {
	Timestamp   time.Time      `json:"timestamp"`
	Message     *model.Message `json:"message"`
	Error       string         `json:"error"`
	Stage       string         `json:"stage"`
	Attempts    int            `json:"attempts"`
	LastAttempt time.Time      `json:"last_attempt"`
}

// Queue writes failed messages to a directory.
type Queue struct {
	basePath string
	log      *logging.Logger

	mu      sync.Mutex
	written uint64
}

// NewQueue creates a DLQ rooted at basePath.
func NewQueue(basePath string, log *logging.Logger) (*Queue, error) {
	if basePath == "" {
		basePath = "/var/lib/phishx/dlq"
	}

	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}

	return &Queue{basePath: basePath, log: log}, nil
}

// Write records a terminally failed message. A nil queue is a no-op so
// callers need no enabled check.
func (q *Queue) Write(ctx context.Context, msg *model.Message, cause error, stage string, attempts int) error {
	if q == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	failed := FailedMessage{
		Timestamp:   now,
		Message:     msg,
		Error:       cause.Error(),
		Stage:       stage,
		Attempts:    attempts,
		LastAttempt: now,
	}

	filename := fmt.Sprintf("failed_%d_%d.json", now.Unix(), q.written)
	filePath := filepath.Join(q.basePath, filename)

	data, err := json.MarshalIndent(failed, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}

	q.written++
	q.log.WarnContext(ctx, "message routed to dead-letter queue",
		"message_id", msg.ID,
		"stage", stage,
		"attempts", attempts,
		"file", filename)
	return nil
}

// Stats reports queue totals.
func (q *Queue) Stats() map[string]any {
	if q == nil {
		return map[string]any{"enabled": false}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := os.ReadDir(q.basePath)
	if err != nil {
		return map[string]any{
			"enabled": true,
			"written": q.written,
			"error":   err.Error(),
		}
	}

	return map[string]any{
		"enabled":       true,
		"written":       q.written,
		"pending_files": len(files),
		"base_path":     q.basePath,
	}
}

// List returns up to limit failed messages, oldest file order.
func (q *Queue) List(ctx context.Context, limit int) ([]FailedMessage, error) {
	if q == nil {
		return nil, fmt.Errorf("dlq not enabled")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}

	var out []FailedMessage
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}

		data, err := os.ReadFile(filepath.Join(q.basePath, file.Name()))
		if err != nil {
			continue
		}

		var failed FailedMessage
		if err := json.Unmarshal(data, &failed); err != nil {
			continue
		}
		out = append(out, failed)
	}
	return out, nil
}

// Purge removes every entry.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	if q == nil {
		return 0, fmt.Errorf("dlq not enabled")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := os.ReadDir(q.basePath)
	if err != nil {
		return 0, fmt.Errorf("read dlq directory: %w", err)
	}

	deleted := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(q.basePath, file.Name())); err != nil {
			continue
		}
		deleted++
	}
	return deleted, nil
}

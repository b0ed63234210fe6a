package enrichment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// ClamAVScanner shells out to clamscan for each attachment. When the binary
// is not installed the scanner reports itself unavailable instead of
// erroring, so the pipeline proceeds with a clean-with-caveat result.
type ClamAVScanner struct {
	binPath string
}

// NewClamAVScanner locates clamscan on PATH. A missing binary is not an
// error; the returned scanner just reports Available false.
func NewClamAVScanner() *ClamAVScanner {
	path, err := exec.LookPath("clamscan")
	if err != nil {
		return &ClamAVScanner{}
	}
	return &ClamAVScanner{binPath: path}
}

// Scan writes each attachment to a temp file and runs clamscan over it.
// Per-attachment scan errors are skipped rather than failing the batch.
func (s *ClamAVScanner) Scan(ctx context.Context, attachments []model.Attachment) (ScanResult, error) {
	if s.binPath == "" {
		return ScanResult{Infected: false, Available: false}, nil
	}
	if len(attachments) == 0 {
		return ScanResult{Available: true}, nil
	}

	dir, err := os.MkdirTemp("", "phishx-scan-")
	if err != nil {
		return ScanResult{}, fmt.Errorf("scan workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	var hits []model.MalwareHit
	for i, att := range attachments {
		if len(att.Content) == 0 {
			continue
		}

		path := filepath.Join(dir, fmt.Sprintf("att-%d", i))
		if err := os.WriteFile(path, att.Content, 0o600); err != nil {
			continue
		}

		out, err := exec.CommandContext(ctx, s.binPath, "--no-summary", path).Output()
		if ctx.Err() != nil {
			return ScanResult{}, fmt.Errorf("attachment scan interrupted: %w", ctx.Err())
		}
		// clamscan exits 1 on detection; that is a result, not a failure.
		output := strings.TrimSpace(string(out))
		if err != nil && output == "" {
			continue
		}

		if strings.Contains(output, "FOUND") {
			hits = append(hits, model.MalwareHit{
				Attachment: att.Filename,
				Engine:     "clamav",
				Signature:  parseSignature(output),
			})
		}
	}

	return ScanResult{
		Infected:  len(hits) > 0,
		Hits:      hits,
		Available: true,
	}, nil
}

// parseSignature pulls the signature name out of a line like
// "/tmp/att-0: Eicar-Test-Signature FOUND".
func parseSignature(output string) string {
	line := output
	if idx := strings.IndexByte(output, '\n'); idx >= 0 {
		line = output[:idx]
	}
	if idx := strings.LastIndexByte(line, ':'); idx >= 0 {
		line = line[idx+1:]
	}
	line = strings.TrimSuffix(strings.TrimSpace(line), "FOUND")
	return strings.TrimSpace(line)
}

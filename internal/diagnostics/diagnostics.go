// Package diagnostics writes selector-drift artifacts (page snapshots,
// screenshots) to a scratch directory. Artifacts are triage material, not
// part of the durable data model.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxHTMLBytes bounds how much page source one snapshot keeps.
const maxHTMLBytes = 64 << 10

// Snapshot captures the page state at the moment discovery or extraction
// came up empty, so a selector-drift investigation has something to look at.
type Snapshot struct {
	RequestID  string    `json:"request_id,omitempty"`
	Source     string    `json:"source"`
	URL        string    `json:"url"`
	PageTitle  string    `json:"page_title,omitempty"`
	PageLength int       `json:"page_length"`
	Reason     string    `json:"reason"`
	CapturedAt time.Time `json:"captured_at"`

	HTML       []byte `json:"-"`
	Screenshot []byte `json:"-"`
}

// Sink is a filesystem-backed snapshot writer.
type Sink struct {
	baseDir string
	logger  *zap.Logger
}

// NewSink prepares the scratch directory.
func NewSink(baseDir string, logger *zap.Logger) (*Sink, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("diagnostics directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create diagnostics directory: %w", err)
	}
	return &Sink{baseDir: baseDir, logger: logger}, nil
}

// WriteSnapshot stores the snapshot metadata as JSON next to the truncated
// page source (and screenshot, when present) and returns the metadata path.
// Failures are the caller's to ignore; diagnostics never block the pipeline.
func (s *Sink) WriteSnapshot(_ context.Context, snap Snapshot) (string, error) {
	stamp := snap.CapturedAt
	if stamp.IsZero() {
		stamp = time.Now()
		snap.CapturedAt = stamp
	}
	snap.PageLength = len(snap.HTML)

	base := fmt.Sprintf("%s_%s_%d", sanitize(snap.Source), stamp.UTC().Format("20060102T150405"), stamp.UnixNano()%1e6)
	dir := s.baseDir
	if snap.RequestID != "" {
		dir = filepath.Join(dir, sanitize(snap.RequestID))
	}
	if err := s.ensureInBase(dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}

	if len(snap.HTML) > 0 {
		html := snap.HTML
		if len(html) > maxHTMLBytes {
			html = html[:maxHTMLBytes]
		}
		if err := os.WriteFile(filepath.Join(dir, base+".html"), html, 0o600); err != nil {
			return "", fmt.Errorf("write snapshot html: %w", err)
		}
	}
	if len(snap.Screenshot) > 0 {
		if err := os.WriteFile(filepath.Join(dir, base+".png"), snap.Screenshot, 0o600); err != nil {
			return "", fmt.Errorf("write snapshot screenshot: %w", err)
		}
	}

	meta, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot metadata: %w", err)
	}
	metaPath := filepath.Join(dir, base+".json")
	if err := os.WriteFile(metaPath, meta, 0o600); err != nil {
		return "", fmt.Errorf("write snapshot metadata: %w", err)
	}

	s.logger.Info("diagnostic snapshot written",
		zap.String("source", snap.Source),
		zap.String("url", snap.URL),
		zap.String("reason", snap.Reason),
		zap.String("path", metaPath),
	)
	return metaPath, nil
}

// ensureInBase guards against a request ID smuggling path traversal.
func (s *Sink) ensureInBase(dir string) error {
	cleanBase := filepath.Clean(s.baseDir)
	cleanDir := filepath.Clean(dir)
	if cleanDir != cleanBase && !strings.HasPrefix(cleanDir, cleanBase+string(filepath.Separator)) {
		return fmt.Errorf("snapshot path escapes base directory")
	}
	return nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

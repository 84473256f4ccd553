package textsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoTextLayer is returned when a PDF yields no text, typically a scanned
// document that needs OCR.
var ErrNoTextLayer = errors.New("pdf has no extractable text")

// Runner lets tests stub external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger *zap.Logger
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		log.Error("exec failed",
			zap.String("cmd", name),
			zap.String("args", strings.Join(args, " ")),
			zap.Int64("duration_ms", dur.Milliseconds()),
			zap.String("stderr", truncate(errb.String(), 8<<10)),
			zap.Error(err),
		)
	} else {
		log.Debug("exec ok",
			zap.String("cmd", name),
			zap.Int64("duration_ms", dur.Milliseconds()),
			zap.Int("stdout_bytes", out.Len()),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

// PDFToTextConfig configures the poppler-based PDF source.
type PDFToTextConfig struct {
	Binary   string // binary name or absolute path; if empty -> "pdftotext"
	Layout   bool   // pass -layout; keeps columns but can interleave side-by-side fields
	MaxPages int    // 0 = no limit
	TempDir  string // where uploads are staged; "" = os.TempDir()
}

// PDFToText extracts a PDF's text layer with the external pdftotext tool.
type PDFToText struct {
	cfg    PDFToTextConfig
	runner Runner
	logger *zap.Logger
}

// NewPDFToText creates a PDF source. A nil runner executes the real binary.
func NewPDFToText(cfg PDFToTextConfig, runner Runner, logger *zap.Logger) *PDFToText {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Binary == "" {
		cfg.Binary = "pdftotext"
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &PDFToText{cfg: cfg, runner: runner, logger: logger}
}

// Text implements Source.
func (p *PDFToText) Text(ctx context.Context, doc Document) (string, error) {
	if len(doc.Data) == 0 {
		return "", fmt.Errorf("%s: empty document", doc.Name)
	}

	f, err := os.CreateTemp(p.cfg.TempDir, "ownerscan-*.pdf")
	if err != nil {
		return "", fmt.Errorf("staging pdf: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(doc.Data); err != nil {
		f.Close()
		return "", fmt.Errorf("staging pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("staging pdf: %w", err)
	}

	// pdftotext [-layout] -enc UTF-8 -eol unix [-l N] <path> -
	args := []string{}
	if p.cfg.Layout {
		args = append(args, "-layout")
	}
	args = append(args, "-enc", "UTF-8", "-eol", "unix")
	if p.cfg.MaxPages > 0 {
		args = append(args, "-l", fmt.Sprintf("%d", p.cfg.MaxPages))
	}
	args = append(args, filepath.Clean(path), "-")

	out, errb, err := p.runner.Run(ctx, p.cfg.Binary, args...)
	if err != nil {
		msg := strings.TrimSpace(string(errb))
		if msg != "" {
			return "", fmt.Errorf("pdftotext %s: %w: %s", doc.Name, err, truncate(msg, 512))
		}
		return "", fmt.Errorf("pdftotext %s: %w", doc.Name, err)
	}

	text := Normalize(string(out))
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", doc.Name, ErrNoTextLayer)
	}

	p.logger.Debug("pdf text extracted",
		zap.String("file", doc.Name),
		zap.Int("pages", 1+strings.Count(string(out), "\f")),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const timestampLayout = "20060102_150405"

// fileSafe keeps letters, digits, '-' and '_' and maps everything else to '_'.
func fileSafe(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// DriftReportName is drift_test_<id>_<timestamp>.json.
func DriftReportName(scenarioID string, at time.Time) string {
	return fmt.Sprintf("drift_test_%s_%s.json", fileSafe(scenarioID), at.Format(timestampLayout))
}

// StrengthReportName is prompt_strength_<id>_<mode>_<timestamp>.json.
func StrengthReportName(scenarioID, mode string, at time.Time) string {
	return fmt.Sprintf("prompt_strength_%s_%s_%s.json", fileSafe(scenarioID), fileSafe(mode), at.Format(timestampLayout))
}

// ReportName picks the file name for a report of kind k.
func ReportName(k Kind, scenarioID, mode string, at time.Time) string {
	if k == KindDrift {
		return DriftReportName(scenarioID, at)
	}
	return StrengthReportName(scenarioID, mode, at)
}

// Uploader stores a finished report somewhere other than the local disk.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// WriteReport writes v as indented JSON to dir/name. The file appears only
// once fully written.
func WriteReport(dir, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename report: %w", err)
	}
	return path, nil
}

// UploadReport marshals v and hands it to u under reports/<name>.
func UploadReport(ctx context.Context, u Uploader, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	url, err := u.Upload(ctx, "reports/"+name, data, "application/json")
	if err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}
	return url, nil
}

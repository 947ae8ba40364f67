package drift

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportNames(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, "drift_test_scn-1_20260301_090507.json", DriftReportName("scn-1", at))
	assert.Equal(t, "prompt_strength_scn-1_assess_mode_20260301_090507.json", StrengthReportName("scn-1", "assess_mode", at))
	assert.Equal(t, DriftReportName("x", at), ReportName(KindDrift, "x", "try_mode", at))
	assert.Equal(t, StrengthReportName("x", "try_mode", at), ReportName(KindComprehensive, "x", "try_mode", at))

	assert.Equal(t, "drift_test____etc_passwd_20260301_090507.json", DriftReportName("../etc/passwd", at))
	assert.Equal(t, "drift_test_unknown_20260301_090507.json", DriftReportName("", at))
}

func TestWriteReport_SlashInScenarioID(t *testing.T) {
	dir := t.TempDir()
	name := DriftReportName("team/scn 1", time.Now())
	path, err := WriteReport(dir, name, map[string]int{"score": 1})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
}

func TestWriteReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	path, err := WriteReport(dir, "drift_test_a_1.json", map[string]int{"score": 80})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 80, got["score"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteReport_MarshalErrorWritesNothing(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteReport(dir, "bad.json", map[string]any{"ch": make(chan int)})
	require.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

type memUploader struct {
	key  string
	data []byte
}

func (m *memUploader) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.key, m.data = key, data
	return "https://cdn.example.com/" + key, nil
}

func TestUploadReport(t *testing.T) {
	u := &memUploader{}
	url, err := UploadReport(context.Background(), u, "drift_test_a_1.json", map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, "reports/drift_test_a_1.json", u.key)
	assert.Equal(t, "https://cdn.example.com/reports/drift_test_a_1.json", url)
	assert.JSONEq(t, `{"a":"b"}`, string(u.data))
}

package modelconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_ExpandsEnvironmentReferences(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test-123")

	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  - model_id: gpt
    name: GPT
    provider: openai
    model: gpt-4o-mini
    api_key: ${TEST_OPENAI_KEY}
    temperature: 0.7
    max_tokens: 2048
    timeout: 20
    max_retries: 2
`), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	require.Len(t, m.Models, 1)
	require.Equal(t, "sk-test-123", m.Models[0].APIKey)

	entries := m.ToEntries()
	require.Len(t, entries, 1)
	require.Equal(t, "gpt", entries[0].ModelID)
	require.Equal(t, 20*1e9, float64(entries[0].Timeout))
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadEnvFile_ToleratesMissingFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")))
}

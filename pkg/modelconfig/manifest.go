// Package modelconfig loads the model manifest (spec §6) from YAML, expands
// ${VAR}-style references against the process environment and a loaded
// .env file, and builds an llm.Registry from the result. Grounded on
// hector's pkg/config/env.go (env-var expansion and .env loading via
// godotenv) and pkg/config/provider/file.go (fsnotify-based hot reload).
package modelconfig

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shuaitravel/agent/pkg/llm"
)

// ModelEntry is the YAML shape of one manifest row.
type ModelEntry struct {
	ModelID     string  `yaml:"model_id"`
	Name        string  `yaml:"name"`
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIBase     string  `yaml:"api_base"`
	APIKey      string  `yaml:"api_key"`
	APIVersion  string  `yaml:"api_version"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSec  int     `yaml:"timeout"`
	MaxRetries  int     `yaml:"max_retries"`
}

// Manifest is the top-level YAML document.
type Manifest struct {
	Models []ModelEntry `yaml:"models"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)

func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// LoadEnvFile loads a .env file into the process environment, tolerating
// its absence — the manifest may rely solely on variables already set by
// the host environment.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("modelconfig: loading %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a manifest file, expanding environment references
// in each entry's api_key and api_base fields. Other fields are used as
// written.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("modelconfig: reading %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("modelconfig: parsing %s: %w", path, err)
	}

	for i := range m.Models {
		m.Models[i].APIKey = expandEnv(m.Models[i].APIKey)
		m.Models[i].APIBase = expandEnv(m.Models[i].APIBase)
	}
	return m, nil
}

// ToEntries converts the YAML manifest into llm.Entry values, applying the
// spec's defaults for omitted fields.
func (m Manifest) ToEntries() []llm.Entry {
	out := make([]llm.Entry, 0, len(m.Models))
	for _, row := range m.Models {
		timeout := time.Duration(row.TimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		out = append(out, llm.Entry{
			ModelID:     row.ModelID,
			Name:        row.Name,
			Provider:    llm.Provider(row.Provider),
			Model:       row.Model,
			APIBase:     row.APIBase,
			APIKey:      row.APIKey,
			APIVersion:  row.APIVersion,
			Temperature: row.Temperature,
			MaxTokens:   row.MaxTokens,
			Timeout:     timeout,
			MaxRetries:  row.MaxRetries,
		})
	}
	return out
}

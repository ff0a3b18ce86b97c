package runconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoCategories indicates a configuration without anomaly categories.
	ErrNoCategories = errors.New("at least one category is required")
	// ErrNoSettings indicates a configuration without a settings mapping.
	ErrNoSettings = errors.New("settings are required")
)

// RunConfiguration is the user-chosen parameter set of an analysis run.
type RunConfiguration struct {
	Categories []string `json:"categories" yaml:"categories"`
	Settings   Settings `json:"settings" yaml:"settings"`
}

// Default returns a configuration with the default settings and the given
// categories.
func Default(categories ...string) RunConfiguration {
	return RunConfiguration{
		Categories: NormalizeCategories(categories),
		Settings:   DefaultSettings(),
	}
}

// Validate reports whether c can drive a run.
func (c RunConfiguration) Validate() error {
	if len(NormalizeCategories(c.Categories)) == 0 {
		return ErrNoCategories
	}
	if c.Settings == nil {
		return ErrNoSettings
	}
	return c.Settings.Validate()
}

// Snapshot returns a deep copy of c that later edits of c cannot affect.
func (c RunConfiguration) Snapshot() RunConfiguration {
	return RunConfiguration{
		Categories: NormalizeCategories(c.Categories),
		Settings:   c.Settings.Clone(),
	}
}

// NormalizeCategories trims entries and drops blanks and duplicates while
// keeping the original order.
func NormalizeCategories(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// Load reads a YAML document holding categories and settings.
func Load(path string) (RunConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfiguration{}, fmt.Errorf("read run configuration: %w", err)
	}
	var cfg RunConfiguration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RunConfiguration{}, fmt.Errorf("parse run configuration %s: %w", path, err)
	}
	cfg.Categories = NormalizeCategories(cfg.Categories)
	return cfg, nil
}

// LoadSettings reads a YAML settings mapping. Missing keys are not filled in.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes a YAML (or JSON) settings mapping.
func ParseSettings(data []byte) (Settings, error) {
	settings := Settings{}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return settings, nil
}

// LoadCategories reads a YAML list of categories.
func LoadCategories(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	var categories []string
	if err := yaml.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("parse categories %s: %w", path, err)
	}
	return NormalizeCategories(categories), nil
}

// EncodeSettings renders s as YAML with keys in sorted order.
func EncodeSettings(s Settings) ([]byte, error) {
	data, err := yaml.Marshal(map[string]any(s))
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return data, nil
}

// Save writes c as YAML to path.
func Save(path string, c RunConfiguration) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode run configuration: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create run configuration directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run configuration: %w", err)
	}
	return nil
}

// RunNameFromVideo derives a readable analysis name from a video file path.
func RunNameFromVideo(videoPath string) string {
	base := filepath.Base(strings.TrimSpace(videoPath))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	return cases.Title(language.English).String(strings.Join(strings.Fields(base), " "))
}

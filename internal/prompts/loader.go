// Package prompts provides versioned LLM prompt templates, embedded at
// compile time. The version string participates in the enrichment cache
// key, so editing a template automatically invalidates cached results
// once its version is bumped.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

// Prompt is one versioned template.
type Prompt struct {
	Version  string `json:"version"`
	Template string `json:"template"`
}

var (
	cache   map[string]Prompt
	cacheMu sync.Mutex
)

// Get retrieves a prompt by task key.
func Get(key string) (Prompt, error) {
	prompts, err := load()
	if err != nil {
		return Prompt{}, err
	}
	p, ok := prompts[key]
	if !ok {
		return Prompt{}, fmt.Errorf("prompt key %q not found", key)
	}
	return p, nil
}

// MustGet retrieves a prompt by task key, panicking when missing. Use
// for prompts required at initialization time.
func MustGet(key string) Prompt {
	p, err := Get(key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return p
}

// Format replaces {{.Key}} placeholders in the template with values
// from data.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		result = strings.ReplaceAll(result, fmt.Sprintf("{{.%s}}", key), value)
	}
	return result
}

func load() (map[string]Prompt, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cache != nil {
		return cache, nil
	}

	data, err := promptFiles.ReadFile("enrich.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}
	var prompts map[string]Prompt
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file: %w", err)
	}
	cache = prompts
	return cache, nil
}

// List returns all available prompt keys.
func List() ([]string, error) {
	prompts, err := load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(prompts))
	for key := range prompts {
		keys = append(keys, key)
	}
	return keys, nil
}

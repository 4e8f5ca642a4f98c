// Package llm provides the model client used by enrichment tasks.
package llm

// ModelTier selects a capability level rather than a concrete model, so
// callers describe the task and the config decides which model serves it.
type ModelTier string

const (
	// TierLite is for cheap classification and scoring tasks.
	TierLite ModelTier = "lite"
	// TierStandard is for structured extraction and summarization.
	TierStandard ModelTier = "standard"
)

// Config maps tiers to Gemini model names.
type Config struct {
	Models map[ModelTier]string
}

// DefaultConfig returns the default tier-to-model mapping.
func DefaultConfig() *Config {
	return &Config{
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
		},
	}
}

// Model returns the model name for a tier, falling back to lite when
// the tier has no mapping.
func (c *Config) Model(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	return c.Models[TierLite]
}

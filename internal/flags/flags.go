// Package flags provides feature flags for optional pipeline behavior.
// Flags are read-only after initialization and default to off when unknown.
package flags

import (
	"maps"
	"slices"

	"github.com/macropulse/macropulse/internal/log"
)

const (
	// FlagFREDCSVFallback retries a failed FRED API series through the public CSV endpoint.
	FlagFREDCSVFallback = "fred-csv-fallback"

	// FlagPublishDiffLog logs a unified diff of the artifact on every replace.
	FlagPublishDiffLog = "publish-diff-log"

	// FlagLLMCommentary enables model-written brief commentary.
	// When disabled, or when no key is configured, the rule-based analyst is used.
	FlagLLMCommentary = "llm-commentary"

	// FlagS3Mirror mirrors each distributed artifact to the configured bucket.
	FlagS3Mirror = "s3-mirror"
)

// Known lists every flag the binary understands.
var Known = []string{
	FlagFREDCSVFallback,
	FlagPublishDiffLog,
	FlagLLMCommentary,
	FlagS3Mirror,
}

// Registry holds feature flag state loaded from configuration.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map.
// If flags is nil, an empty registry is created (all flags disabled).
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	maps.Copy(r.flags, flags)
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags), "flags", r.All())
	for _, name := range r.Unknown() {
		log.Warn(log.CatConfig, "Ignoring unknown feature flag", "flag", name)
	}
	return r
}

// Enabled returns true if the named flag is enabled.
// Unknown flags and a nil registry report false.
func (r *Registry) Enabled(name string) bool {
	if r == nil || r.flags == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "Unknown flag accessed", "flag", name, "result", false)
		return false
	}
	return value
}

// All returns a copy of all flags.
func (r *Registry) All() map[string]bool {
	if r == nil || r.flags == nil {
		return make(map[string]bool)
	}
	result := make(map[string]bool, len(r.flags))
	maps.Copy(result, r.flags)
	return result
}

// Unknown returns configured flag names that are not in Known, sorted.
func (r *Registry) Unknown() []string {
	if r == nil {
		return nil
	}
	var out []string
	for name := range r.flags {
		if !slices.Contains(Known, name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

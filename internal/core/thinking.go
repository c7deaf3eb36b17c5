package core

// ValidThinkingLevels is the fixed enum a task's planningModelConfig or
// executionModelConfig thinkingLevel must belong to, mirrored on the
// reasoning-effort vocabulary a provider's API accepts.
var ValidThinkingLevels = map[string]bool{
	"minimal": true,
	"low":     true,
	"medium":  true,
	"high":    true,
	"xhigh":   true,
	"max":     true,
}

// IsValidThinkingLevel reports whether level is a recognized thinking level.
func IsValidThinkingLevel(level string) bool {
	return ValidThinkingLevels[level]
}

// reasoningCapableProviders lists providers whose models accept a thinking
// level at all; a thinking level on any other provider is a validation
// error rather than a silently ignored hint.
var reasoningCapableProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
}

// ProviderSupportsThinking reports whether provider exposes a thinking
// level knob.
func ProviderSupportsThinking(provider string) bool {
	return reasoningCapableProviders[provider]
}

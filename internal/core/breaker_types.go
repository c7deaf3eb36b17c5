package core

import "time"

// OpenRecord describes a currently-open breaker for one (provider, modelId)
// pair.
type OpenRecord struct {
	Category     BreakerCategory `json:"category"`
	OpenedAt     time.Time       `json:"openedAt"`
	RetryAt      time.Time       `json:"retryAt"`
	FailureCount int             `json:"failureCount"`
	ErrorMessage string          `json:"errorMessage"`
}

// ModelKey identifies a (provider, modelId) pair for breaker and fallback
// bookkeeping.
type ModelKey struct {
	Provider string
	ModelID  string
}

// String renders the key for logging.
func (k ModelKey) String() string {
	return k.Provider + "/" + k.ModelID
}

// KeyOf extracts the breaker key from a model config.
func KeyOf(cfg ModelConfig) ModelKey {
	return ModelKey{Provider: cfg.Provider, ModelID: cfg.ModelID}
}

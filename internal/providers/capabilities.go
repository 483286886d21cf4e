package providers

// Capabilities defines what a provider can do. The chat dispatcher reads
// Streaming to decide between forwarding native deltas and chunking a
// complete response itself.
type Capabilities struct {
	Chat             bool `json:"chat"`
	Streaming        bool `json:"streaming"`
	MaxContextTokens int  `json:"max_context_tokens"`
}

// ProviderInfo is the shape returned by the provider-listing endpoint.
type ProviderInfo struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
	Models       []Model      `json:"models,omitempty"`
	DefaultModel string       `json:"default_model,omitempty"`
}

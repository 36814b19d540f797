package llm

import "context"

// Client makes a single generation attempt against the text provider.
// Implementations classify provider failures into *ProviderError kinds;
// retry and credential failover live in Gateway, not here.
type Client interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
}

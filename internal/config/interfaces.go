package config

import "context"

// SecretProvider resolves secret parameter paths to plaintext values.
// SSMProvider serves deployed environments; EnvVarProvider serves local runs.
type SecretProvider interface {
	// GetParametersBatch returns path -> value for every key it resolved.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

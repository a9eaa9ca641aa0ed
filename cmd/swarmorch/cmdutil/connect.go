package cmdutil

import (
	"fmt"
	"os"

	"swarmorch/config"
	"swarmorch/pkg/sdk/client"
)

const envContext = "SWARMORCH_CONTEXT"

// Connect returns an SDK client by resolving the endpoint from flags, env
// vars, or the config file's current-context. Resolution order:
//
//  1. endpointFlag / SWARMORCH_ENDPOINT
//  2. contextFlag / SWARMORCH_CONTEXT
//  3. current-context from config file
//  4. the local default endpoint
func Connect(endpointFlag, contextFlag string) (*client.Client, error) {
	endpoint, err := ResolveEndpoint(endpointFlag, contextFlag)
	if err != nil {
		return nil, err
	}
	return client.New(endpoint)
}

// ResolveEndpoint applies the resolution order of Connect without building
// a client.
func ResolveEndpoint(endpointFlag, contextFlag string) (string, error) {
	if endpoint := firstNonEmpty(endpointFlag, os.Getenv("SWARMORCH_ENDPOINT")); endpoint != "" {
		return endpoint, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}

	if name := firstNonEmpty(contextFlag, os.Getenv(envContext)); name != "" {
		c, ok := cfg.Contexts[name]
		if !ok {
			return "", fmt.Errorf("context %q not found", name)
		}
		return c.Endpoint, nil
	}

	if _, c, ok := cfg.Current(); ok {
		return c.Endpoint, nil
	}
	return client.DefaultEndpoint(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package config

import "os"

const defaultRegion = "us-east-1"

// DefaultSecretProvider picks the provider for the current process. Local
// development reads plain variables only and gets nil; every other
// environment resolves *_SSM_PARAM pointers through SSM in AWS_REGION.
func DefaultSecretProvider() SecretProvider {
	return secretProviderFor(os.Getenv("APP_ENV"), os.Getenv("AWS_REGION"))
}

func secretProviderFor(appEnv, region string) SecretProvider {
	if appEnv == localEnv {
		return nil
	}
	if region == "" {
		region = defaultRegion
	}
	return NewSSMProvider(region)
}

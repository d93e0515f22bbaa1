package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/joho/godotenv"
)

// ExportEnvConfig controls ExportEnvFile.
type ExportEnvConfig struct {
	OutputPath  string
	Environment string
	SSM         *SSMManager
	Stderr      io.Writer

	// IncludeLocalDefaults adds the non-secret settings a local API run
	// needs, such as APP_ENV=local.
	IncludeLocalDefaults bool
}

// localDefaults turn an exported file into a runnable local configuration.
// APP_ENV=local keeps the loader away from SSM.
var localDefaults = map[string]string{
	"APP_ENV":           "local",
	"APP_URL":           "http://localhost:3000",
	"PORT":              "8080",
	"LOG_LEVEL":         "debug",
	"DB_RUN_MIGRATIONS": "true",
}

// ExportEnvFile reads every inventory parameter back from SSM and writes a
// dotenv file with owner-only permissions. Missing optional parameters are
// left out; a missing required one is an error.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	values, err := collectEnv(ctx, cfg.SSM, BuildInventory(NewValidatorWithDeps(nil, nil, nil)))
	if err != nil {
		return err
	}
	if cfg.IncludeLocalDefaults {
		for k, v := range localDefaults {
			if _, ok := values[k]; !ok {
				values[k] = v
			}
		}
	}

	body, err := godotenv.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding .env: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# BlackHub local environment exported from /%s/%s/\n", cfg.Environment, ssmNamespace)
	fmt.Fprintf(&b, "# Generated %s. Contains secrets; do not commit.\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString(body)
	b.WriteString("\n")

	if err := os.WriteFile(cfg.OutputPath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.OutputPath, err)
	}
	if cfg.Stderr != nil {
		fmt.Fprintf(cfg.Stderr, "  Wrote %d variables to %s\n", len(values), cfg.OutputPath)
	}
	return nil
}

func collectEnv(ctx context.Context, m *SSMManager, inventory []BootstrapStep) (map[string]string, error) {
	values := make(map[string]string)

	read := func(key, envVar string, optional bool) error {
		v, err := m.GetParameterValue(ctx, m.SSMPath(key), true)
		if err != nil {
			var notFound *ssmtypes.ParameterNotFound
			if errors.As(err, &notFound) && optional {
				return nil
			}
			return err
		}
		values[envVar] = v
		return nil
	}

	for _, step := range inventory {
		if err := read(step.SSMCategoryKey, step.EnvVar, step.Optional); err != nil {
			return nil, err
		}
		if step.CompanionKey != "" {
			if err := read(step.CompanionKey, step.CompanionEnvVar, step.Optional); err != nil {
				return nil, err
			}
		}
	}
	return values, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ssmNamespace is the application segment of every parameter path.
const ssmNamespace = "blackhub"

// ssmOperationTimeout bounds each SSM call. IAM propagation right after
// account setup can make the first calls slow.
const ssmOperationTimeout = 15 * time.Second

// SSMClient is the subset of the SSM API the bootstrap uses.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMManager reads and writes environment-scoped BlackHub parameters.
// Secret values never reach the log; only their length does.
type SSMManager struct {
	client SSMClient
	env    string
	logger *slog.Logger
}

func NewSSMManager(bctx *BootstrapContext) *SSMManager {
	return NewSSMManagerWithClient(ssm.NewFromConfig(bctx.AWSConfig), bctx.Environment, bctx.Logger)
}

func NewSSMManagerWithClient(client SSMClient, env string, logger *slog.Logger) *SSMManager {
	return &SSMManager{client: client, env: env, logger: logger}
}

// SSMPath returns /{env}/blackhub/{categoryAndKey}.
func (m *SSMManager) SSMPath(categoryAndKey string) string {
	return fmt.Sprintf("/%s/%s/%s", m.env, ssmNamespace, categoryAndKey)
}

// ParameterExists probes path without decryption, so kms:Decrypt is not
// needed for the check.
func (m *SSMManager) ParameterExists(ctx context.Context, path string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.GetParameter(opCtx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(false),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking SSM parameter %q: %w", path, err)
	}
	return true, nil
}

// GetParameterValue reads path, decrypting SecureStrings when decrypt is set.
// A missing parameter returns an error wrapping *ssmtypes.ParameterNotFound.
func (m *SSMManager) GetParameterValue(ctx context.Context, path string, decrypt bool) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	output, err := m.client.GetParameter(opCtx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		return "", fmt.Errorf("reading SSM parameter %q: %w", path, err)
	}
	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %q has no value", path)
	}

	value := aws.ToString(output.Parameter.Value)
	m.logger.Debug("SSM parameter read", "path", path, "value_length", len(value))
	return value, nil
}

// PutSecret writes an encrypted SecureString.
func (m *SSMManager) PutSecret(ctx context.Context, path, value string, overwrite bool) error {
	return m.putParameter(ctx, path, value, ssmtypes.ParameterTypeSecureString, overwrite)
}

// PutString writes a plaintext String. Strings are always overwritable.
func (m *SSMManager) PutString(ctx context.Context, path, value string) error {
	return m.putParameter(ctx, path, value, ssmtypes.ParameterTypeString, true)
}

func (m *SSMManager) putParameter(ctx context.Context, path, value string, paramType ssmtypes.ParameterType, overwrite bool) error {
	if path == "" {
		return errors.New("SSM parameter path must not be empty")
	}
	if value == "" {
		return fmt.Errorf("SSM parameter value must not be empty for path %q", path)
	}

	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.PutParameter(opCtx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      paramType,
		Overwrite: aws.Bool(overwrite),
	})
	if err != nil {
		var alreadyExists *ssmtypes.ParameterAlreadyExists
		if errors.As(err, &alreadyExists) {
			m.logger.Warn("SSM parameter already exists", "path", path, "type", string(paramType))
			return fmt.Errorf("SSM parameter %q already exists: %w", path, err)
		}
		return fmt.Errorf("writing SSM parameter %q: %w", path, err)
	}

	if paramType == ssmtypes.ParameterTypeSecureString {
		m.logger.Info("SSM parameter written", "path", path, "type", string(paramType), "value_length", len(value))
	} else {
		m.logger.Info("SSM parameter written", "path", path, "type", string(paramType), "value", value)
	}
	return nil
}

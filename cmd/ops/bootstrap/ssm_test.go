package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// mockSSMClient records calls and delegates to optional function fields.
type mockSSMClient struct {
	getParameterFn func(ctx context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
	putParameterFn func(ctx context.Context, input *ssm.PutParameterInput) (*ssm.PutParameterOutput, error)

	getCalls []*ssm.GetParameterInput
	putCalls []*ssm.PutParameterInput
}

var _ SSMClient = (*mockSSMClient)(nil)

func (m *mockSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.getCalls = append(m.getCalls, params)
	if m.getParameterFn != nil {
		return m.getParameterFn(ctx, params)
	}
	return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
}

func (m *mockSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	m.putCalls = append(m.putCalls, params)
	if m.putParameterFn != nil {
		return m.putParameterFn(ctx, params)
	}
	return &ssm.PutParameterOutput{Version: 1}, nil
}

func (m *mockSSMClient) putFor(path string) *ssm.PutParameterInput {
	for _, c := range m.putCalls {
		if aws.ToString(c.Name) == path {
			return c
		}
	}
	return nil
}

// withValues answers GetParameter from values keyed by full path.
func withValues(values map[string]string) *mockSSMClient {
	return &mockSSMClient{
		getParameterFn: func(_ context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			path := aws.ToString(input.Name)
			v, ok := values[path]
			if !ok {
				return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found: " + path)}
			}
			return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: aws.String(path), Value: aws.String(v)}}, nil
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSSMPath(t *testing.T) {
	m := NewSSMManagerWithClient(&mockSSMClient{}, "staging", discardLogger())
	if got := m.SSMPath("billing/paystack_secret_key"); got != "/staging/blackhub/billing/paystack_secret_key" {
		t.Errorf("SSMPath = %q", got)
	}
}

func TestParameterExists(t *testing.T) {
	m := NewSSMManagerWithClient(withValues(map[string]string{"/dev/blackhub/database/url": "x"}), "dev", discardLogger())

	exists, err := m.ParameterExists(context.Background(), "/dev/blackhub/database/url")
	if err != nil || !exists {
		t.Fatalf("expected existing parameter, got exists=%v err=%v", exists, err)
	}

	exists, err = m.ParameterExists(context.Background(), "/dev/blackhub/missing")
	if err != nil || exists {
		t.Fatalf("expected missing parameter, got exists=%v err=%v", exists, err)
	}
}

func TestParameterExists_DoesNotDecrypt(t *testing.T) {
	mock := &mockSSMClient{}
	m := NewSSMManagerWithClient(mock, "dev", discardLogger())

	_, _ = m.ParameterExists(context.Background(), "/dev/blackhub/database/url")
	if len(mock.getCalls) != 1 || aws.ToBool(mock.getCalls[0].WithDecryption) {
		t.Fatal("existence check must not request decryption")
	}
}

func TestParameterExists_OtherErrorsPropagate(t *testing.T) {
	mock := &mockSSMClient{
		getParameterFn: func(context.Context, *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return nil, errors.New("AccessDeniedException")
		},
	}
	m := NewSSMManagerWithClient(mock, "dev", discardLogger())

	if _, err := m.ParameterExists(context.Background(), "/dev/blackhub/database/url"); err == nil {
		t.Fatal("expected error")
	}
}

func TestPutSecretAndString(t *testing.T) {
	mock := &mockSSMClient{}
	m := NewSSMManagerWithClient(mock, "dev", discardLogger())

	if err := m.PutSecret(context.Background(), "/dev/blackhub/auth/cron_secret", "s3cret", false); err != nil {
		t.Fatal(err)
	}
	if err := m.PutString(context.Background(), "/dev/blackhub/push/vapid_public_key", "BPub"); err != nil {
		t.Fatal(err)
	}

	secret := mock.putFor("/dev/blackhub/auth/cron_secret")
	if secret.Type != ssmtypes.ParameterTypeSecureString || aws.ToBool(secret.Overwrite) {
		t.Errorf("secret put = %+v", secret)
	}
	str := mock.putFor("/dev/blackhub/push/vapid_public_key")
	if str.Type != ssmtypes.ParameterTypeString || !aws.ToBool(str.Overwrite) {
		t.Errorf("string put = %+v", str)
	}
}

func TestPutParameter_Rejections(t *testing.T) {
	m := NewSSMManagerWithClient(&mockSSMClient{}, "dev", discardLogger())

	if err := m.PutSecret(context.Background(), "", "v", false); err == nil {
		t.Error("expected error for empty path")
	}
	if err := m.PutSecret(context.Background(), "/dev/blackhub/x", "", false); err == nil {
		t.Error("expected error for empty value")
	}

	mock := &mockSSMClient{
		putParameterFn: func(context.Context, *ssm.PutParameterInput) (*ssm.PutParameterOutput, error) {
			return nil, &ssmtypes.ParameterAlreadyExists{Message: aws.String("exists")}
		},
	}
	m = NewSSMManagerWithClient(mock, "dev", discardLogger())
	err := m.PutSecret(context.Background(), "/dev/blackhub/x", "v", false)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("err = %v", err)
	}
}

func TestGetParameterValue(t *testing.T) {
	mock := withValues(map[string]string{"/dev/blackhub/email/resend_api_key": "re_abc"})
	m := NewSSMManagerWithClient(mock, "dev", discardLogger())

	v, err := m.GetParameterValue(context.Background(), "/dev/blackhub/email/resend_api_key", true)
	if err != nil || v != "re_abc" {
		t.Fatalf("got %q, %v", v, err)
	}
	if !aws.ToBool(mock.getCalls[0].WithDecryption) {
		t.Error("expected decryption to be requested")
	}

	_, err = m.GetParameterValue(context.Background(), "/dev/blackhub/missing", true)
	var notFound *ssmtypes.ParameterNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected ParameterNotFound, got %v", err)
	}
}

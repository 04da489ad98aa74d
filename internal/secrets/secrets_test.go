package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type secretsAPIStub struct {
	lastID string
	out    *secretsmanager.GetSecretValueOutput
	err    error
}

func (s *secretsAPIStub) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if in.SecretId != nil {
		s.lastID = *in.SecretId
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

func notaryKeyValue(v string) *secretsmanager.GetSecretValueOutput {
	return &secretsmanager.GetSecretValueOutput{SecretString: &v}
}

func TestAWSProvider_TrimsSecretString(t *testing.T) {
	t.Parallel()

	stub := &secretsAPIStub{out: notaryKeyValue("  4c0883a69102937d6231471b5dbb6204fe512961708279f2e3e8a5d4b8e3e3e8  ")}
	p, err := NewAWSWithClient(stub)
	if err != nil {
		t.Fatalf("NewAWSWithClient: %v", err)
	}

	got, err := p.Get(context.Background(), " escrow/notary-key ")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "4c0883a69102937d6231471b5dbb6204fe512961708279f2e3e8a5d4b8e3e3e8" {
		t.Fatalf("value = %q", got)
	}
	if stub.lastID != "escrow/notary-key" {
		t.Fatalf("secret id = %q, want trimmed reference", stub.lastID)
	}
}

func TestAWSProvider_FallsBackToBinaryAndReportsEmpty(t *testing.T) {
	t.Parallel()

	p, err := NewAWSWithClient(&secretsAPIStub{
		out: &secretsmanager.GetSecretValueOutput{SecretBinary: []byte("raw-token")},
	})
	if err != nil {
		t.Fatalf("NewAWSWithClient: %v", err)
	}
	got, err := p.Get(context.Background(), "escrow/api-token")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "raw-token" {
		t.Fatalf("value = %q", got)
	}

	empty, err := NewAWSWithClient(&secretsAPIStub{out: &secretsmanager.GetSecretValueOutput{}})
	if err != nil {
		t.Fatalf("NewAWSWithClient: %v", err)
	}
	if _, err := empty.Get(context.Background(), "escrow/api-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty secret: got %v, want ErrNotFound", err)
	}
}

func TestAWSProvider_RejectsNilClientAndEmptyReference(t *testing.T) {
	t.Parallel()

	if _, err := NewAWSWithClient(nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil client: got %v", err)
	}

	p, err := NewAWSWithClient(&secretsAPIStub{out: notaryKeyValue("x")})
	if err != nil {
		t.Fatalf("NewAWSWithClient: %v", err)
	}
	if _, err := p.Get(context.Background(), "  "); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("blank reference: got %v", err)
	}
}

func TestEnvProvider_TrimsAndReportsMissing(t *testing.T) {
	const key = "ESCROW_NOTARY_KEY_TEST"
	t.Setenv(key, "  hunter2  ")

	p := NewEnv()
	got, err := p.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("value = %q", got)
	}

	if _, err := p.Get(context.Background(), "ESCROW_NOTARY_KEY_UNSET"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing env: got %v, want ErrNotFound", err)
	}
}

// Package secrets resolves the values that must stay out of flags and
// process listings, such as the notary signing key and API bearer tokens.
// AWS Secrets Manager backs production; the env provider backs local runs,
// so both sides resolve through the same Provider interface.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

var (
	ErrInvalidConfig = errors.New("secrets: invalid config")
	ErrNotFound      = errors.New("secrets: not found")
)

// Provider resolves a secret reference to its value. The reference format is
// provider-specific: a Secrets Manager name or ARN, or an env var name.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
}

// secretsAPI is the slice of the Secrets Manager client the provider calls.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type AWSProvider struct {
	client secretsAPI
}

// NewAWS builds a provider from the ambient AWS credential chain.
func NewAWS(ctx context.Context) (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrInvalidConfig, err)
	}
	return NewAWSWithClient(secretsmanager.NewFromConfig(cfg))
}

func NewAWSWithClient(client secretsAPI) (*AWSProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil secretsmanager client", ErrInvalidConfig)
	}
	return &AWSProvider{client: client}, nil
}

func (p *AWSProvider) Get(ctx context.Context, key string) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("%w: nil aws provider", ErrInvalidConfig)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty secret reference", ErrInvalidConfig)
	}

	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &key})
	if err != nil {
		return "", fmt.Errorf("secrets: get %q: %w", key, err)
	}

	switch {
	case out.SecretString != nil && strings.TrimSpace(*out.SecretString) != "":
		return strings.TrimSpace(*out.SecretString), nil
	case len(out.SecretBinary) > 0:
		return string(out.SecretBinary), nil
	default:
		return "", fmt.Errorf("%w: secret %q has no value", ErrNotFound, key)
	}
}

// EnvProvider reads secrets from the process environment.
type EnvProvider struct{}

func NewEnv() *EnvProvider { return &EnvProvider{} }

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: nil env provider", ErrInvalidConfig)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty env name", ErrInvalidConfig)
	}
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%w: env %s is empty", ErrNotFound, key)
	}
	return v, nil
}

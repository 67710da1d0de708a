// Package awskeys loads the audit RSA keypair from AWS Secrets Manager.
//
// The secret value is a JSON document with "public_key" and "private_key"
// fields holding the PEM-encoded keys; "private_key" may be absent for
// encrypt-only deployments.
package awskeys

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretsManagerClient narrows the AWS client surface for mocking.
type secretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Config configures New.
type Config struct {
	// Region overrides the default AWS region.
	Region string
	// AWSConfig, when set, is used verbatim instead of loading the default
	// configuration chain.
	AWSConfig *aws.Config
}

// KeySource implements dkaudit.KeySource against AWS Secrets Manager.
type KeySource struct {
	client     secretsManagerClient
	secretName string
}

// New creates a KeySource reading the named secret.
func New(ctx context.Context, secretName string, cfg Config) (*KeySource, error) {
	if secretName == "" {
		return nil, fmt.Errorf("secret name is required")
	}

	var awsConfig aws.Config
	if cfg.AWSConfig != nil {
		awsConfig = *cfg.AWSConfig
	} else {
		opts := []func(*config.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		var err error
		awsConfig, err = config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
	}

	return &KeySource{
		client:     secretsmanager.NewFromConfig(awsConfig),
		secretName: secretName,
	}, nil
}

type keyPEMs struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// FetchKeyPEMs reads the keypair PEMs from the configured secret.
func (s *KeySource) FetchKeyPEMs(ctx context.Context) ([]byte, []byte, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretName),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read secret %q: %w", s.secretName, err)
	}
	if out.SecretString == nil {
		return nil, nil, fmt.Errorf("secret %q has no string value", s.secretName)
	}

	var pems keyPEMs
	if err := json.Unmarshal([]byte(*out.SecretString), &pems); err != nil {
		return nil, nil, fmt.Errorf("secret %q is not a key material document: %w", s.secretName, err)
	}
	if pems.PublicKey == "" {
		return nil, nil, fmt.Errorf("secret %q has no public_key field", s.secretName)
	}

	return []byte(pems.PublicKey), []byte(pems.PrivateKey), nil
}

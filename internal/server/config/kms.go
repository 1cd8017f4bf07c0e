package config

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

type decrypter interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// newKMSClient is a seam for tests.
var newKMSClient = func(ctx context.Context, c *Config) (decrypter, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.AWSRegion)}
	if c.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AWSAccessKeyID,
			c.AWSSecretAccessKey,
			"",
		)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return kms.NewFromConfig(cfg, func(o *kms.Options) {
		if c.KMSEndpoint != "" {
			o.BaseEndpoint = aws.String(c.KMSEndpoint)
		}
	}), nil
}

// DecryptSecret replaces SecretKey with the KMS plaintext of
// SecretKeyCiphertext. Without a ciphertext it does nothing.
func (c *Config) DecryptSecret(ctx context.Context) error {
	if c.SecretKeyCiphertext == "" {
		return nil
	}

	blob, err := base64.StdEncoding.DecodeString(c.SecretKeyCiphertext)
	if err != nil {
		return fmt.Errorf("decode secret ciphertext: %w", err)
	}

	client, err := newKMSClient(ctx, c)
	if err != nil {
		return fmt.Errorf("kms client: %w", err)
	}

	out, err := client.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return fmt.Errorf("kms decrypt: %w", err)
	}
	if len(out.Plaintext) == 0 {
		return fmt.Errorf("kms decrypt: empty plaintext")
	}

	c.SecretKey = string(out.Plaintext)
	return nil
}

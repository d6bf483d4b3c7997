// Package secretstore implements the secret store contract (§6): short-lived
// named credential entries, backed by AWS Secrets Manager. It satisfies both
// the rule-source syncer's SecretResolver (reading a git host token) and the
// orchestrator's CredentialStore (releasing a job's temporary credentials),
// the same way the object store and License Manager clients share one
// transport across multiple service-level interfaces.
package secretstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// ErrNotFound is returned by Get when the named secret does not exist.
var ErrNotFound = errors.New("secretstore: secret not found")

// Store is an AWS Secrets Manager-backed secret store.
type Store struct {
	client *secretsmanager.Client
}

// New builds a Store from the ambient AWS configuration (environment,
// shared config file, or instance role), matching the credential-resolution
// chain objectstore.NewS3Store already relies on.
func New(ctx context.Context) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Store{client: secretsmanager.NewFromConfig(awsCfg)}, nil
}

// Create stores value under name. A positive ttl is recorded as a tag only:
// Secrets Manager has no native per-secret TTL, so expiry is enforced by a
// caller-driven Delete once the owning job reaches a terminal state (§4.1).
func (s *Store) Create(ctx context.Context, name, value string, ttl time.Duration) error {
	in := &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
	}
	if ttl > 0 {
		in.Tags = []types.Tag{{Key: aws.String("ttl"), Value: aws.String(ttl.String())}}
	}
	_, err := s.client.CreateSecret(ctx, in)
	if err != nil {
		return fmt.Errorf("secretstore: create %s: %w", name, err)
	}
	return nil
}

// Get returns the named secret's value, or ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("secretstore: get %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", ErrNotFound
	}
	return *out.SecretString, nil
}

// Delete removes the named secret immediately (no recovery window), matching
// §5's "deletion is idempotent" requirement: a second delete of an
// already-gone secret is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(name),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("secretstore: delete %s: %w", name, err)
	}
	return nil
}

// Resolve adapts Get to rulesourcesyncer.SecretResolver.
func (s *Store) Resolve(ctx context.Context, secretName string) (string, error) {
	return s.Get(ctx, secretName)
}

// Release adapts Delete to orchestrator.CredentialStore: releasing a job's
// temporary credentials secret on terminal status (§4.1).
func (s *Store) Release(ctx context.Context, jobID string) error {
	return s.Delete(ctx, credentialsSecretName(jobID))
}

// credentialsSecretName derives the per-job credentials secret name the
// orchestrator sets as the CREDENTIALS_KEY worker env var (§6).
func credentialsSecretName(jobID string) string {
	return "rule-engine/job-credentials/" + jobID
}

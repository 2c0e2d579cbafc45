package secretsmanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	sm "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

var (
	// ErrNotFound is returned when the secret document does not exist.
	ErrNotFound = errors.New("secret not found")

	// ErrSecretIDRequired is returned when no secret identifier is configured.
	ErrSecretIDRequired = errors.New("secret id is required")
)

// archivePasswordKey is the field of the shared secret document that
// holds the bundle archive password. Other fields in the same document
// belong to other consumers and must survive rotation untouched.
const archivePasswordKey = "archive_password"

// Client is the Secrets Manager surface the store uses.
type Client interface {
	GetSecretValue(ctx context.Context, params *sm.GetSecretValueInput, optFns ...func(*sm.Options)) (*sm.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *sm.PutSecretValueInput, optFns ...func(*sm.Options)) (*sm.PutSecretValueOutput, error)
}

// Store reads and rotates one JSON secret document.
type Store struct {
	client   Client
	secretID string
}

// Config identifies the shared secret document.
type Config struct {
	SecretID string `env:"CERT_ARCHIVE_SECRET_ID"`
	Region   string `env:"AWS_REGION" envDefault:"us-east-1"`
}

// Option configures a Store.
type Option func(*Store)

// WithClient injects a pre-built Secrets Manager client. Test seam.
func WithClient(client Client) Option {
	return func(s *Store) {
		s.client = client
	}
}

// New creates the store, building an SDK client unless one is injected.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.SecretID == "" {
		return nil, ErrSecretIDRequired
	}

	s := &Store{secretID: cfg.SecretID}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		s.client = sm.NewFromConfig(awsConfig)
	}
	return s, nil
}

// GetJSON returns the current version of the secret document.
func (s *Store) GetJSON(ctx context.Context) (map[string]any, error) {
	out, err := s.client.GetSecretValue(ctx, &sm.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		var nf *smtypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.secretID)
		}
		return nil, fmt.Errorf("get secret %s: %w", s.secretID, err)
	}

	doc := map[string]any{}
	if out.SecretString != nil && *out.SecretString != "" {
		if err := json.Unmarshal([]byte(*out.SecretString), &doc); err != nil {
			return nil, fmt.Errorf("decode secret %s: %w", s.secretID, err)
		}
	}
	return doc, nil
}

// RotateArchivePassword merges the new password into the existing
// document and writes it back as a new version. A document that does not
// exist yet starts empty rather than failing, so first rotation
// bootstraps the field.
func (s *Store) RotateArchivePassword(ctx context.Context, newPassword string) error {
	doc, err := s.GetJSON(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		doc = map[string]any{}
	}

	doc[archivePasswordKey] = newPassword

	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode secret %s: %w", s.secretID, err)
	}

	if _, err := s.client.PutSecretValue(ctx, &sm.PutSecretValueInput{
		SecretId:     aws.String(s.secretID),
		SecretString: aws.String(string(merged)),
	}); err != nil {
		return fmt.Errorf("put secret version %s: %w", s.secretID, err)
	}
	return nil
}

// ArchivePassword returns the current archive password, or ErrNotFound
// when the document or field is absent.
func (s *Store) ArchivePassword(ctx context.Context) (string, error) {
	doc, err := s.GetJSON(ctx)
	if err != nil {
		return "", err
	}
	pw, ok := doc[archivePasswordKey].(string)
	if !ok || pw == "" {
		return "", fmt.Errorf("%w: field %s", ErrNotFound, archivePasswordKey)
	}
	return pw, nil
}

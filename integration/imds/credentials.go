package imds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	awsimds "github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

var (
	// ErrRoleRequired is returned when no role name is given.
	ErrRoleRequired = errors.New("role name is required")

	// ErrCredentialFetch is returned when the metadata service cannot
	// supply usable credentials. Expected transient; the next scheduled
	// cycle retries.
	ErrCredentialFetch = errors.New("temporary credential fetch failed")
)

// Credentials are short-lived keys scoped to an instance role.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	Expiration      time.Time
}

// Env renders the credentials as the conventional AWS environment
// variables, ready for injection into a task spec.
func (c Credentials) Env() []string {
	return []string{
		"AWS_ACCESS_KEY_ID=" + c.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY=" + c.SecretAccessKey,
		"AWS_SESSION_TOKEN=" + c.SessionToken,
		"AWS_REGION=" + c.Region,
	}
}

// Client is the metadata-service surface the provider uses.
type Client interface {
	GetMetadata(ctx context.Context, params *awsimds.GetMetadataInput, optFns ...func(*awsimds.Options)) (*awsimds.GetMetadataOutput, error)
	GetRegion(ctx context.Context, params *awsimds.GetRegionInput, optFns ...func(*awsimds.Options)) (*awsimds.GetRegionOutput, error)
}

// Provider fetches role credentials from the instance metadata service.
type Provider struct {
	client Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithClient injects a metadata client. Test seam.
func WithClient(client Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// NewProvider builds a Provider over the default IMDS client.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = awsimds.New(awsimds.Options{})
	}
	return p
}

// securityCredentials is the role document the metadata service serves.
type securityCredentials struct {
	Code            string    `json:"Code"`
	AccessKeyID     string    `json:"AccessKeyId"`
	SecretAccessKey string    `json:"SecretAccessKey"`
	Token           string    `json:"Token"`
	Expiration      time.Time `json:"Expiration"`
}

// FetchTemporaryCredentials retrieves credentials for roleName.
func (p *Provider) FetchTemporaryCredentials(ctx context.Context, roleName string) (Credentials, error) {
	if roleName == "" {
		return Credentials{}, ErrRoleRequired
	}

	out, err := p.client.GetMetadata(ctx, &awsimds.GetMetadataInput{
		Path: "iam/security-credentials/" + roleName,
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrCredentialFetch, err)
	}
	defer func() { _ = out.Content.Close() }()

	body, err := io.ReadAll(out.Content)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: read role document: %v", ErrCredentialFetch, err)
	}

	var doc securityCredentials
	if err := json.Unmarshal(body, &doc); err != nil {
		return Credentials{}, fmt.Errorf("%w: decode role document: %v", ErrCredentialFetch, err)
	}
	if doc.Code != "Success" || doc.AccessKeyID == "" {
		return Credentials{}, fmt.Errorf("%w: role document code %q", ErrCredentialFetch, doc.Code)
	}

	region, err := p.client.GetRegion(ctx, &awsimds.GetRegionInput{})
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: region lookup: %v", ErrCredentialFetch, err)
	}

	return Credentials{
		AccessKeyID:     doc.AccessKeyID,
		SecretAccessKey: doc.SecretAccessKey,
		SessionToken:    doc.Token,
		Region:          region.Region,
		Expiration:      doc.Expiration,
	}, nil
}

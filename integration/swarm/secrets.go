package swarm

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	swarmtypes "github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/errdefs"

	"github.com/swarmcert/swarmcert/pkg/logger"
)

// SecretInfo describes one stored secret handle.
type SecretInfo struct {
	ID   string
	Name string
}

// CreateSecret registers data under name and returns the secret ID.
// Names are expected to be run-scoped (pkg/secretname), so a name clash
// means a duplicate publish of the same run and maps to ErrSecretExists.
func (c *Client) CreateSecret(ctx context.Context, name string, data []byte, labels map[string]string) (string, error) {
	resp, err := c.api.SecretCreate(ctx, swarmtypes.SecretSpec{
		Annotations: swarmtypes.Annotations{
			Name:   name,
			Labels: labels,
		},
		Data: data,
	})
	if err != nil {
		if errdefs.IsConflict(err) {
			return "", fmt.Errorf("%w: %s", ErrSecretExists, name)
		}
		return "", fmt.Errorf("create secret %s: %w", name, err)
	}

	c.log.InfoContext(ctx, "secret created", logger.Secret(name))
	return resp.ID, nil
}

// RemoveSecret deletes the secret by name or ID.
func (c *Client) RemoveSecret(ctx context.Context, name string) error {
	if err := c.api.SecretRemove(ctx, name); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return fmt.Errorf("remove secret %s: %w", name, err)
	}
	c.log.InfoContext(ctx, "secret removed", logger.Secret(name))
	return nil
}

// SecretExists reports whether a secret with exactly this name is registered.
func (c *Client) SecretExists(ctx context.Context, name string) (bool, error) {
	secrets, err := c.api.SecretList(ctx, types.SecretListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return false, fmt.Errorf("list secrets: %w", err)
	}
	// The name filter matches substrings; require an exact hit.
	for _, s := range secrets {
		if s.Spec.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// ListSecrets returns every secret whose name starts with prefix.
func (c *Client) ListSecrets(ctx context.Context, prefix string) ([]SecretInfo, error) {
	secrets, err := c.api.SecretList(ctx, types.SecretListOptions{
		Filters: filters.NewArgs(filters.Arg("name", prefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}

	var infos []SecretInfo
	for _, s := range secrets {
		if strings.HasPrefix(s.Spec.Name, prefix) {
			infos = append(infos, SecretInfo{ID: s.ID, Name: s.Spec.Name})
		}
	}
	return infos, nil
}

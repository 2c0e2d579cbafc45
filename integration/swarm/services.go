package swarm

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/errdefs"

	"github.com/swarmcert/swarmcert/pkg/logger"
)

// UpdateServiceSecrets swaps secret attachments on a consuming service in
// one spec revision: attachments named in removals are dropped and
// additions appended, then a single ServiceUpdate is issued. Removals
// that are not currently attached are ignored, which keeps re-runs of the
// same cutover idempotent.
func (c *Client) UpdateServiceSecrets(ctx context.Context, serviceID string, removals []string, additions []SecretRef) error {
	service, _, err := c.api.ServiceInspectWithRaw(ctx, serviceID, types.ServiceInspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
		}
		return fmt.Errorf("inspect service %s: %w", serviceID, err)
	}

	spec := service.Spec
	if spec.TaskTemplate.ContainerSpec == nil {
		return fmt.Errorf("service %s has no container spec", serviceID)
	}

	remove := make(map[string]bool, len(removals))
	for _, name := range removals {
		remove[name] = true
	}

	kept := spec.TaskTemplate.ContainerSpec.Secrets[:0]
	for _, ref := range spec.TaskTemplate.ContainerSpec.Secrets {
		if ref != nil && !remove[ref.SecretName] {
			kept = append(kept, ref)
		}
	}
	spec.TaskTemplate.ContainerSpec.Secrets = append(kept, secretReferences(additions)...)

	resp, err := c.api.ServiceUpdate(ctx, service.ID, service.Version, spec, types.ServiceUpdateOptions{})
	if err != nil {
		return fmt.Errorf("update service %s secrets: %w", serviceID, err)
	}
	for _, warn := range resp.Warnings {
		c.log.WarnContext(ctx, "service update warning",
			logger.Service(serviceID), logger.Error(fmt.Errorf("%s", warn)))
	}

	c.log.InfoContext(ctx, "service secrets updated",
		logger.Service(serviceID),
		logger.Component("cutover"))
	return nil
}

// AttachedSecrets returns the secret names currently attached to a service.
func (c *Client) AttachedSecrets(ctx context.Context, serviceID string) ([]string, error) {
	service, _, err := c.api.ServiceInspectWithRaw(ctx, serviceID, types.ServiceInspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
		}
		return nil, fmt.Errorf("inspect service %s: %w", serviceID, err)
	}

	if service.Spec.TaskTemplate.ContainerSpec == nil {
		return nil, nil
	}

	var names []string
	for _, ref := range service.Spec.TaskTemplate.ContainerSpec.Secrets {
		if ref != nil {
			names = append(names, ref.SecretName)
		}
	}
	return names, nil
}

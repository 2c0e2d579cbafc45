package swarm

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	swarmtypes "github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/errdefs"

	"github.com/swarmcert/swarmcert/pkg/logger"
)

// TaskState is the coarse lifecycle state of a one-shot task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// TaskSpec describes a transient one-shot unit of compute.
type TaskSpec struct {
	Name        string
	Image       string
	Command     []string
	Env         []string
	Constraints []string
	Labels      map[string]string
	Secrets     []SecretRef
}

// SecretRef attaches one secret to a task or service, mounted at
// /run/secrets/<Target>.
type SecretRef struct {
	ID     string
	Name   string
	Target string
}

// LaunchOneShot creates a single-replica service with restarts disabled,
// so a failed worker never silently re-runs. Returns the service ID used
// as the task handle.
func (c *Client) LaunchOneShot(ctx context.Context, spec TaskSpec) (string, error) {
	one := uint64(1)

	serviceSpec := swarmtypes.ServiceSpec{
		Annotations: swarmtypes.Annotations{
			Name:   spec.Name,
			Labels: spec.Labels,
		},
		TaskTemplate: swarmtypes.TaskSpec{
			ContainerSpec: &swarmtypes.ContainerSpec{
				Image:   spec.Image,
				Command: spec.Command,
				Env:     spec.Env,
				Secrets: secretReferences(spec.Secrets),
			},
			RestartPolicy: &swarmtypes.RestartPolicy{
				Condition: swarmtypes.RestartPolicyConditionNone,
			},
			Placement: &swarmtypes.Placement{
				Constraints: spec.Constraints,
			},
		},
		Mode: swarmtypes.ServiceMode{
			Replicated: &swarmtypes.ReplicatedService{Replicas: &one},
		},
	}

	resp, err := c.api.ServiceCreate(ctx, serviceSpec, types.ServiceCreateOptions{})
	if err != nil {
		return "", fmt.Errorf("launch one-shot task %s: %w", spec.Name, err)
	}
	for _, warn := range resp.Warnings {
		c.log.WarnContext(ctx, "service create warning", logger.Task(resp.ID), logger.Error(fmt.Errorf("%s", warn)))
	}

	c.log.InfoContext(ctx, "one-shot task launched", logger.Task(resp.ID), logger.State(string(TaskPending)))
	return resp.ID, nil
}

// PollState returns the coarse state of the one-shot task. Before the
// scheduler has assigned a task the service reports pending.
func (c *Client) PollState(ctx context.Context, id string) (TaskState, error) {
	tasks, err := c.api.TaskList(ctx, types.TaskListOptions{
		Filters: filters.NewArgs(filters.Arg("service", id)),
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return "", fmt.Errorf("poll task state: %w", err)
	}
	if len(tasks) == 0 {
		return TaskPending, nil
	}

	// Restart policy none means exactly one task per service; take the
	// first regardless.
	return mapTaskState(tasks[0].Status.State), nil
}

// Remove tears the one-shot service down, terminating its task if still
// running.
func (c *Client) Remove(ctx context.Context, id string) error {
	if err := c.api.ServiceRemove(ctx, id); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return fmt.Errorf("remove task %s: %w", id, err)
	}
	c.log.InfoContext(ctx, "one-shot task removed", logger.Task(id))
	return nil
}

func mapTaskState(state swarmtypes.TaskState) TaskState {
	switch state {
	case swarmtypes.TaskStateComplete:
		return TaskSucceeded
	case swarmtypes.TaskStateFailed, swarmtypes.TaskStateRejected,
		swarmtypes.TaskStateShutdown, swarmtypes.TaskStateOrphaned:
		return TaskFailed
	case swarmtypes.TaskStateRunning:
		return TaskRunning
	default:
		return TaskPending
	}
}

func secretReferences(refs []SecretRef) []*swarmtypes.SecretReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]*swarmtypes.SecretReference, 0, len(refs))
	for _, ref := range refs {
		target := ref.Target
		if target == "" {
			target = ref.Name
		}
		out = append(out, &swarmtypes.SecretReference{
			SecretID:   ref.ID,
			SecretName: ref.Name,
			File: &swarmtypes.SecretReferenceFileTarget{
				Name: target,
				UID:  "0",
				GID:  "0",
				Mode: 0o400,
			},
		})
	}
	return out
}

package swarm

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types"
	swarmtypes "github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"

	"github.com/swarmcert/swarmcert/pkg/logger"
)

// API is the slice of the Docker Engine client this package uses.
// Satisfied by *client.Client and by test mocks.
type API interface {
	Info(ctx context.Context) (types.Info, error)
	ServiceCreate(ctx context.Context, service swarmtypes.ServiceSpec, options types.ServiceCreateOptions) (types.ServiceCreateResponse, error)
	ServiceRemove(ctx context.Context, serviceID string) error
	ServiceInspectWithRaw(ctx context.Context, serviceID string, opts types.ServiceInspectOptions) (swarmtypes.Service, []byte, error)
	ServiceUpdate(ctx context.Context, serviceID string, version swarmtypes.Version, service swarmtypes.ServiceSpec, options types.ServiceUpdateOptions) (types.ServiceUpdateResponse, error)
	TaskList(ctx context.Context, options types.TaskListOptions) ([]swarmtypes.Task, error)
	SecretCreate(ctx context.Context, secret swarmtypes.SecretSpec) (types.SecretCreateResponse, error)
	SecretRemove(ctx context.Context, id string) error
	SecretList(ctx context.Context, options types.SecretListOptions) ([]swarmtypes.Secret, error)
}

// Client bundles the three Swarm-backed collaborators behind one API handle.
type Client struct {
	api   API
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithAPI injects a pre-built API handle. Test seam.
func WithAPI(api API) Option {
	return func(c *Client) {
		c.api = api
	}
}

// withSleep overrides the readiness-poll sleep. Test seam.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// New connects to the local Docker Engine using the standard environment
// (DOCKER_HOST etc.) with API version negotiation.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.api == nil {
		api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, err
		}
		c.api = api
	}
	return c, nil
}

// WaitManagerReady blocks until this node is an active Swarm manager with
// a reachable control plane, or the timeout elapses.
func (c *Client) WaitManagerReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		info, err := c.api.Info(ctx)
		if err == nil &&
			info.Swarm.LocalNodeState == swarmtypes.LocalNodeStateActive &&
			info.Swarm.ControlAvailable {
			return nil
		}
		if err != nil {
			c.log.DebugContext(ctx, "swarm info probe failed", logger.Error(err))
		}

		if time.Now().After(deadline) {
			return ErrTargetUnavailable
		}
		if err := c.sleep(ctx, 2*time.Second); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

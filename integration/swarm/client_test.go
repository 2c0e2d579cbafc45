package swarm

import (
	"context"
	"testing"
	"time"

	swarmtypes "github.com/docker/docker/api/types/swarm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitManagerReady(t *testing.T) {
	api := newMockAPI()
	c := newTestClient(api)

	assert.NoError(t, c.WaitManagerReady(context.Background(), time.Second))
}

func TestWaitManagerReadyTimesOut(t *testing.T) {
	api := newMockAPI()
	api.info.Swarm.ControlAvailable = false
	c := newTestClient(api)

	err := c.WaitManagerReady(context.Background(), -time.Second)
	assert.ErrorIs(t, err, ErrTargetUnavailable)
}

func TestCreateSecret(t *testing.T) {
	api := newMockAPI()
	c := newTestClient(api)
	ctx := context.Background()

	id, err := c.CreateSecret(ctx, "example-com-cert.pem-run1", []byte("PEM"), map[string]string{"run_id": "run1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = c.CreateSecret(ctx, "example-com-cert.pem-run1", []byte("PEM"), nil)
	assert.ErrorIs(t, err, ErrSecretExists)
}

func TestSecretExistsExactMatch(t *testing.T) {
	api := newMockAPI()
	c := newTestClient(api)
	ctx := context.Background()

	_, err := c.CreateSecret(ctx, "example-com-cert.pem-run1-extended", []byte("x"), nil)
	require.NoError(t, err)

	// Substring matches from the engine's name filter must not count.
	ok, err := c.SecretExists(ctx, "example-com-cert.pem-run1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.CreateSecret(ctx, "example-com-cert.pem-run1", []byte("x"), nil)
	require.NoError(t, err)

	ok, err = c.SecretExists(ctx, "example-com-cert.pem-run1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemoveSecret(t *testing.T) {
	api := newMockAPI()
	c := newTestClient(api)
	ctx := context.Background()

	_, err := c.CreateSecret(ctx, "doomed", []byte("x"), nil)
	require.NoError(t, err)

	require.NoError(t, c.RemoveSecret(ctx, "doomed"))
	assert.ErrorIs(t, c.RemoveSecret(ctx, "doomed"), ErrSecretNotFound)
}

func TestListSecretsByPrefix(t *testing.T) {
	api := newMockAPI()
	c := newTestClient(api)
	ctx := context.Background()

	for _, name := range []string{
		"example-com-cert.pem-run1",
		"example-com-cert.pem-run2",
		"other-com-cert.pem-run1",
	} {
		_, err := c.CreateSecret(ctx, name, []byte("x"), nil)
		require.NoError(t, err)
	}

	infos, err := c.ListSecrets(ctx, "example-com-cert.pem-")
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestLaunchOneShotAndPoll(t *testing.T) {
	api := newMockAPI()
	c := newTestClient(api)
	ctx := context.Background()

	id, err := c.LaunchOneShot(ctx, TaskSpec{
		Name:        "certbot-renewal-run1",
		Image:       "swarmcert:latest",
		Command:     []string{"/swarmcert", "-mode=worker"},
		Constraints: []string{"node.role==manager"},
	})
	require.NoError(t, err)

	// Restart policy must be disabled so a failed worker never re-runs.
	svc := api.services[id]
	require.NotNil(t, svc.Spec.TaskTemplate.RestartPolicy)
	assert.Equal(t, swarmtypes.RestartPolicyConditionNone, svc.Spec.TaskTemplate.RestartPolicy.Condition)

	state, err := c.PollState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TaskPending, state)

	api.setTaskState(id, swarmtypes.TaskStateRunning)
	state, err = c.PollState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TaskRunning, state)

	api.setTaskState(id, swarmtypes.TaskStateComplete)
	state, err = c.PollState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TaskSucceeded, state)

	require.NoError(t, c.Remove(ctx, id))
	assert.ErrorIs(t, c.Remove(ctx, id), ErrTaskNotFound)
}

func TestPollStateFailureClasses(t *testing.T) {
	for _, state := range []swarmtypes.TaskState{
		swarmtypes.TaskStateFailed,
		swarmtypes.TaskStateRejected,
		swarmtypes.TaskStateShutdown,
		swarmtypes.TaskStateOrphaned,
	} {
		api := newMockAPI()
		c := newTestClient(api)
		ctx := context.Background()

		id, err := c.LaunchOneShot(ctx, TaskSpec{Name: "w", Image: "img"})
		require.NoError(t, err)

		api.setTaskState(id, state)
		got, err := c.PollState(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, TaskFailed, got, "swarm state %s", state)
	}
}

func TestUpdateServiceSecretsAtomicSwap(t *testing.T) {
	api := newMockAPI()
	c := newTestClient(api)
	ctx := context.Background()

	// Seed a consuming service attached to the old run's secrets.
	id, err := c.LaunchOneShot(ctx, TaskSpec{
		Name:  "web",
		Image: "nginx",
		Secrets: []SecretRef{
			{ID: "old1", Name: "example-com-cert.pem-run1"},
			{ID: "old2", Name: "example-com-privkey.pem-run1"},
		},
	})
	require.NoError(t, err)

	err = c.UpdateServiceSecrets(ctx, id,
		[]string{"example-com-cert.pem-run1", "example-com-privkey.pem-run1"},
		[]SecretRef{
			{ID: "new1", Name: "example-com-cert.pem-run2"},
			{ID: "new2", Name: "example-com-privkey.pem-run2"},
		})
	require.NoError(t, err)

	// One update call carried both the removal and the addition.
	assert.Equal(t, []string{id}, api.serviceUpdates)

	attached, err := c.AttachedSecrets(ctx, id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"example-com-cert.pem-run2",
		"example-com-privkey.pem-run2",
	}, attached)
}

func TestUpdateServiceSecretsIgnoresUnattachedRemovals(t *testing.T) {
	api := newMockAPI()
	c := newTestClient(api)
	ctx := context.Background()

	id, err := c.LaunchOneShot(ctx, TaskSpec{Name: "web", Image: "nginx"})
	require.NoError(t, err)

	err = c.UpdateServiceSecrets(ctx, id,
		[]string{"never-attached"},
		[]SecretRef{{ID: "new1", Name: "example-com-cert.pem-run2"}})
	require.NoError(t, err)

	attached, err := c.AttachedSecrets(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"example-com-cert.pem-run2"}, attached)
}

func TestUpdateServiceSecretsUnknownService(t *testing.T) {
	c := newTestClient(newMockAPI())

	err := c.UpdateServiceSecrets(context.Background(), "ghost", nil, nil)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

package swarm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	swarmtypes "github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/errdefs"
)

// mockAPI is an in-memory Docker Engine for the Swarm surface this
// package touches.
type mockAPI struct {
	mu sync.Mutex

	info    types.Info
	infoErr error

	secrets    map[string]swarmtypes.Secret // keyed by ID
	services   map[string]swarmtypes.Service
	tasks      map[string][]swarmtypes.Task // service ID -> tasks
	nextID     int
	updateErrs map[string]error // service ID -> forced update error

	serviceUpdates []string // service IDs in update order
	removedIDs     []string // service IDs removed
}

func newMockAPI() *mockAPI {
	return &mockAPI{
		info: types.Info{
			Swarm: swarmtypes.Info{
				LocalNodeState:   swarmtypes.LocalNodeStateActive,
				ControlAvailable: true,
			},
		},
		secrets:    map[string]swarmtypes.Secret{},
		services:   map[string]swarmtypes.Service{},
		tasks:      map[string][]swarmtypes.Task{},
		updateErrs: map[string]error{},
	}
}

func (m *mockAPI) id(prefix string) string {
	m.nextID++
	return prefix + strconv.Itoa(m.nextID)
}

func (m *mockAPI) Info(ctx context.Context) (types.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.infoErr != nil {
		return types.Info{}, m.infoErr
	}
	return m.info, nil
}

func (m *mockAPI) ServiceCreate(ctx context.Context, spec swarmtypes.ServiceSpec, options types.ServiceCreateOptions) (types.ServiceCreateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id("srv")
	m.services[id] = swarmtypes.Service{
		ID:      id,
		Meta:    swarmtypes.Meta{Version: swarmtypes.Version{Index: 1}},
		Spec:    spec,
	}
	return types.ServiceCreateResponse{ID: id}, nil
}

func (m *mockAPI) ServiceRemove(ctx context.Context, serviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[serviceID]; !ok {
		return errdefs.NotFound(fmt.Errorf("service %s not found", serviceID))
	}
	delete(m.services, serviceID)
	delete(m.tasks, serviceID)
	m.removedIDs = append(m.removedIDs, serviceID)
	return nil
}

func (m *mockAPI) ServiceInspectWithRaw(ctx context.Context, serviceID string, opts types.ServiceInspectOptions) (swarmtypes.Service, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.services[serviceID]
	if !ok {
		return swarmtypes.Service{}, nil, errdefs.NotFound(fmt.Errorf("service %s not found", serviceID))
	}
	return svc, nil, nil
}

func (m *mockAPI) ServiceUpdate(ctx context.Context, serviceID string, version swarmtypes.Version, spec swarmtypes.ServiceSpec, options types.ServiceUpdateOptions) (types.ServiceUpdateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateErrs[serviceID]; err != nil {
		return types.ServiceUpdateResponse{}, err
	}
	svc, ok := m.services[serviceID]
	if !ok {
		return types.ServiceUpdateResponse{}, errdefs.NotFound(fmt.Errorf("service %s not found", serviceID))
	}
	svc.Spec = spec
	svc.Version.Index++
	m.services[serviceID] = svc
	m.serviceUpdates = append(m.serviceUpdates, serviceID)
	return types.ServiceUpdateResponse{}, nil
}

func (m *mockAPI) TaskList(ctx context.Context, options types.TaskListOptions) ([]swarmtypes.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	serviceIDs := options.Filters.Get("service")
	if len(serviceIDs) == 0 {
		return nil, fmt.Errorf("mock requires a service filter")
	}
	return m.tasks[serviceIDs[0]], nil
}

func (m *mockAPI) SecretCreate(ctx context.Context, spec swarmtypes.SecretSpec) (types.SecretCreateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.secrets {
		if s.Spec.Name == spec.Name {
			return types.SecretCreateResponse{}, errdefs.Conflict(fmt.Errorf("secret %s already exists", spec.Name))
		}
	}
	id := m.id("sec")
	m.secrets[id] = swarmtypes.Secret{ID: id, Spec: spec}
	return types.SecretCreateResponse{ID: id}, nil
}

func (m *mockAPI) SecretRemove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[id]; ok {
		delete(m.secrets, id)
		return nil
	}
	for sid, s := range m.secrets {
		if s.Spec.Name == id {
			delete(m.secrets, sid)
			return nil
		}
	}
	return errdefs.NotFound(fmt.Errorf("secret %s not found", id))
}

func (m *mockAPI) SecretList(ctx context.Context, options types.SecretListOptions) ([]swarmtypes.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := options.Filters.Get("name")
	var out []swarmtypes.Secret
	for _, s := range m.secrets {
		if len(names) == 0 || strings.Contains(s.Spec.Name, names[0]) {
			out = append(out, s)
		}
	}
	return out, nil
}

// setTaskState simulates the scheduler driving a service's task.
func (m *mockAPI) setTaskState(serviceID string, state swarmtypes.TaskState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[serviceID] = []swarmtypes.Task{{
		ID:     m.id("task"),
		Status: swarmtypes.TaskStatus{State: state},
	}}
}

func newTestClient(api *mockAPI) *Client {
	c, _ := New(WithAPI(api), withSleep(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))
	return c
}

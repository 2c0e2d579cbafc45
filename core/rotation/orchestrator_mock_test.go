package rotation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/swarmcert/swarmcert/integration/imds"
	"github.com/swarmcert/swarmcert/integration/swarm"
)

// fakeClock is a mutable clock advanced by the injected sleeper, so poll
// loops run instantly in tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return nil
}

type storedSecret struct {
	id   string
	data []byte
}

// mockCluster is an in-memory Cluster.
type mockCluster struct {
	secrets  map[string]storedSecret
	attached map[string][]string // service -> secret names

	launched    []swarm.TaskSpec
	launchErr   error
	pollScript  map[string][]swarm.TaskState
	pollDefault swarm.TaskState

	removeCalls        map[string]int
	removedSecrets     []string
	updates            []serviceUpdate
	updateErr          map[string]error // per service
	createErr          error
	waitErr            error
	attachedErr        map[string]error
	nextID             int
	createdSecretOrder []string
}

type serviceUpdate struct {
	service   string
	removals  []string
	additions []swarm.SecretRef
}

func newMockCluster() *mockCluster {
	return &mockCluster{
		secrets:     make(map[string]storedSecret),
		attached:    make(map[string][]string),
		pollScript:  make(map[string][]swarm.TaskState),
		pollDefault: swarm.TaskSucceeded,
		removeCalls: make(map[string]int),
		updateErr:   make(map[string]error),
		attachedErr: make(map[string]error),
	}
}

func (m *mockCluster) addSecret(name string) string {
	m.nextID++
	id := fmt.Sprintf("sec-%d", m.nextID)
	m.secrets[name] = storedSecret{id: id}
	return id
}

func (m *mockCluster) attach(service string, names ...string) {
	m.attached[service] = append(m.attached[service], names...)
}

func (m *mockCluster) WaitManagerReady(_ context.Context, _ time.Duration) error {
	return m.waitErr
}

func (m *mockCluster) CreateSecret(_ context.Context, name string, data []byte, _ map[string]string) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	if _, ok := m.secrets[name]; ok {
		return "", swarm.ErrSecretExists
	}
	m.nextID++
	id := fmt.Sprintf("sec-%d", m.nextID)
	m.secrets[name] = storedSecret{id: id, data: data}
	m.createdSecretOrder = append(m.createdSecretOrder, name)
	return id, nil
}

func (m *mockCluster) RemoveSecret(_ context.Context, name string) error {
	if _, ok := m.secrets[name]; !ok {
		return swarm.ErrSecretNotFound
	}
	delete(m.secrets, name)
	m.removedSecrets = append(m.removedSecrets, name)
	return nil
}

func (m *mockCluster) SecretExists(_ context.Context, name string) (bool, error) {
	_, ok := m.secrets[name]
	return ok, nil
}

func (m *mockCluster) ListSecrets(_ context.Context, prefix string) ([]swarm.SecretInfo, error) {
	var out []swarm.SecretInfo
	for name, s := range m.secrets {
		if strings.HasPrefix(name, prefix) {
			out = append(out, swarm.SecretInfo{ID: s.id, Name: name})
		}
	}
	return out, nil
}

func (m *mockCluster) LaunchOneShot(_ context.Context, spec swarm.TaskSpec) (string, error) {
	if m.launchErr != nil {
		return "", m.launchErr
	}
	m.launched = append(m.launched, spec)
	return "svc-" + spec.Name, nil
}

func (m *mockCluster) PollState(_ context.Context, id string) (swarm.TaskState, error) {
	script := m.pollScript[id]
	if len(script) == 0 {
		return m.pollDefault, nil
	}
	state := script[0]
	if len(script) > 1 {
		m.pollScript[id] = script[1:]
	}
	return state, nil
}

func (m *mockCluster) Remove(_ context.Context, id string) error {
	m.removeCalls[id]++
	return nil
}

func (m *mockCluster) UpdateServiceSecrets(_ context.Context, service string, removals []string, additions []swarm.SecretRef) error {
	if err := m.updateErr[service]; err != nil {
		return err
	}
	m.updates = append(m.updates, serviceUpdate{service: service, removals: removals, additions: additions})

	keep := m.attached[service][:0:0]
	drop := make(map[string]bool, len(removals))
	for _, name := range removals {
		drop[name] = true
	}
	for _, name := range m.attached[service] {
		if !drop[name] {
			keep = append(keep, name)
		}
	}
	for _, ref := range additions {
		keep = append(keep, ref.Name)
	}
	m.attached[service] = keep
	return nil
}

func (m *mockCluster) AttachedSecrets(_ context.Context, service string) ([]string, error) {
	if err := m.attachedErr[service]; err != nil {
		return nil, err
	}
	return append([]string(nil), m.attached[service]...), nil
}

// mockObjects is an in-memory ObjectStore mirroring the artifact store's
// CopyPrefix semantics. Run identifiers are minted inside the cycle, so
// tests seed artifacts through run-agnostic hooks instead of exact keys.
type mockObjects struct {
	objects map[string][]byte
	getErr  error
	copyErr error

	// getHook serves a key before the object map is consulted.
	getHook func(key string) ([]byte, bool)
	// copyHook returns relative path -> data to stage for any prefix.
	copyHook func(prefix string) map[string][]byte
}

func newMockObjects() *mockObjects {
	return &mockObjects{objects: make(map[string][]byte)}
}

func (m *mockObjects) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getHook != nil {
		if data, ok := m.getHook(key); ok {
			return data, nil
		}
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (m *mockObjects) CopyPrefix(_ context.Context, prefix, dstDir string) ([]string, error) {
	if m.copyErr != nil {
		return nil, m.copyErr
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	files := make(map[string][]byte)
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			files[strings.TrimPrefix(key, prefix)] = data
		}
	}
	if m.copyHook != nil {
		for rel, data := range m.copyHook(prefix) {
			files[rel] = data
		}
	}

	var written []string
	for rel, data := range files {
		local := filepath.Join(dstDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(local), 0o700); err != nil {
			return written, err
		}
		if err := os.WriteFile(local, data, 0o600); err != nil {
			return written, err
		}
		written = append(written, local)
	}
	return written, nil
}

type mockCreds struct {
	creds imds.Credentials
	err   error
	calls []string
}

func (m *mockCreds) FetchTemporaryCredentials(_ context.Context, roleName string) (imds.Credentials, error) {
	if m.err != nil {
		return imds.Credentials{}, m.err
	}
	m.calls = append(m.calls, roleName)
	return m.creds, nil
}

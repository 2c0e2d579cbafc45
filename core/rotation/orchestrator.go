package rotation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/swarmcert/swarmcert/core/renewal"
	"github.com/swarmcert/swarmcert/integration/imds"
	"github.com/swarmcert/swarmcert/integration/swarm"
	"github.com/swarmcert/swarmcert/pkg/secretname"
)

// Cluster is the orchestrator's view of the container cluster. Satisfied
// by *swarm.Client.
type Cluster interface {
	WaitManagerReady(ctx context.Context, timeout time.Duration) error
	CreateSecret(ctx context.Context, name string, data []byte, labels map[string]string) (string, error)
	RemoveSecret(ctx context.Context, name string) error
	SecretExists(ctx context.Context, name string) (bool, error)
	ListSecrets(ctx context.Context, prefix string) ([]swarm.SecretInfo, error)
	LaunchOneShot(ctx context.Context, spec swarm.TaskSpec) (string, error)
	PollState(ctx context.Context, id string) (swarm.TaskState, error)
	Remove(ctx context.Context, id string) error
	UpdateServiceSecrets(ctx context.Context, serviceID string, removals []string, additions []swarm.SecretRef) error
	AttachedSecrets(ctx context.Context, serviceID string) ([]string, error)
}

// ObjectStore is the read side of the artifact store the worker
// publishes to.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	CopyPrefix(ctx context.Context, prefix, dstDir string) ([]string, error)
}

// CredentialSource mints short-lived credentials for the worker task.
type CredentialSource interface {
	FetchTemporaryCredentials(ctx context.Context, roleName string) (imds.Credentials, error)
}

// Config carries the orchestrator's settings.
type Config struct {
	Domains       []string          `env:"CERT_DOMAINS,required" envSeparator:","`
	ServiceMap    map[string]string `env:"CERT_SERVICE_MAP" envSeparator:"," envKeyValSeparator:"="`
	Prefix        string            `env:"CERT_S3_PREFIX" envDefault:"certificates"`
	WorkerImage   string            `env:"CERT_WORKER_IMAGE,required"`
	WorkerTimeout time.Duration     `env:"CERT_WORKER_TIMEOUT" envDefault:"10m"`
	PollInterval  time.Duration     `env:"CERT_POLL_INTERVAL" envDefault:"5s"`
	ReadyTimeout  time.Duration     `env:"CERT_READY_TIMEOUT" envDefault:"2m"`
	RetainRuns    int               `env:"CERT_SECRET_RETAIN_RUNS" envDefault:"3"`
	RoleName      string            `env:"CERT_ROLE_NAME"`
	StagingDir    string            `env:"CERT_STAGING_DIR" envDefault:"/tmp/swarmcert"`
	Constraints   []string          `env:"CERT_WORKER_CONSTRAINTS" envSeparator:"," envDefault:"node.role==manager"`
	DryRun        bool              `env:"CERT_DRY_RUN" envDefault:"false"`

	// Renewal knobs forwarded verbatim into the worker's environment.
	ForceRenewal  bool              `env:"CERT_FORCE_RENEWAL" envDefault:"false"`
	ThresholdDays int               `env:"CERT_RENEWAL_THRESHOLD_DAYS" envDefault:"30"`
	CheckMode     renewal.CheckMode `env:"CERT_RENEWAL_CHECK_MODE" envDefault:"first-domain"`
	ACMEStaging   bool              `env:"CERT_ACME_STAGING" envDefault:"false"`
}

// ServicesFor returns the services consuming a domain's certificate.
// Map values hold pipe-separated service names so a domain can feed
// more than one service.
func (c Config) ServicesFor(domain string) []string {
	raw, ok := c.ServiceMap[domain]
	if !ok || raw == "" {
		return nil
	}
	var out []string
	for _, svc := range strings.Split(raw, "|") {
		if svc = strings.TrimSpace(svc); svc != "" {
			out = append(out, svc)
		}
	}
	return out
}

// State is the coarse phase a cycle is in, reported in logs and the
// cycle result.
type State string

const (
	StateAwaitingTarget State = "awaiting-target"
	StateLaunching      State = "launching"
	StatePolling        State = "polling"
	StateFetching       State = "fetching"
	StateDownloading    State = "downloading"
	StatePublishing     State = "publishing"
	StateCuttingOver    State = "cutting-over"
	StateDone           State = "done"
)

// CycleResult summarizes one rotation cycle.
type CycleResult struct {
	RunID           string
	State           State
	RenewalOccurred bool
	RenewedDomains  []string
	CutOverServices []string
	PrunedSecrets   []string
	Duration        time.Duration
}

// Orchestrator runs rotation cycles against one cluster.
type Orchestrator struct {
	cfg     Config
	cluster Cluster
	objects ObjectStore
	creds   CredentialSource // nil when the worker uses ambient credentials

	log   *slog.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithClock overrides the wall clock. Test seam.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSleep overrides the poll sleeper. Test seam.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// New wires an Orchestrator. creds may be nil when the worker relies on
// node-level credentials instead of a minted credential secret.
func New(cfg Config, cluster Cluster, objects ObjectStore, creds CredentialSource, opts ...Option) (*Orchestrator, error) {
	if len(cfg.Domains) == 0 {
		return nil, fmt.Errorf("%w: no domains", ErrInvalidConfig)
	}
	if cfg.WorkerImage == "" {
		return nil, fmt.Errorf("%w: worker image required", ErrInvalidConfig)
	}
	if err := secretname.ValidateDistinct(cfg.Domains); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RetainRuns < 1 {
		cfg.RetainRuns = 1
	}

	o := &Orchestrator{
		cfg:     cfg,
		cluster: cluster,
		objects: objects,
		creds:   creds,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		sleep:   defaultSleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

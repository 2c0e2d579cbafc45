package renewal

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/swarmcert/swarmcert/pkg/logger"
	"github.com/swarmcert/swarmcert/pkg/secretname"
)

// Issuer is the ACME client collaborator.
type Issuer interface {
	// Obtain performs initial issuance for untracked domains.
	Obtain(ctx context.Context, domains []string) error
	// Renew re-issues every tracked domain and returns those renewed.
	Renew(ctx context.Context) ([]string, error)
}

// CertificateStore reads the trusted local certificate storage the ACME
// client maintains.
type CertificateStore interface {
	Tracked() ([]string, error)
	Exists(domain string) bool
	Read(domain string, role secretname.Role) ([]byte, error)
}

// ObjectStore is the worker's write side of the artifact store. Puts are
// idempotent overwrites, so republishing a run is always safe.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// PasswordStore rotates the shared archive password.
type PasswordStore interface {
	RotateArchivePassword(ctx context.Context, newPassword string) error
}

// Config carries the worker's settings.
type Config struct {
	Domains       []string  `env:"CERT_DOMAINS,required" envSeparator:","`
	ThresholdDays int       `env:"CERT_RENEWAL_THRESHOLD_DAYS" envDefault:"30"`
	CheckMode     CheckMode `env:"CERT_RENEWAL_CHECK_MODE" envDefault:"first-domain"`
	ForceRenewal  bool      `env:"CERT_FORCE_RENEWAL" envDefault:"false"`
	DryRun        bool      `env:"CERT_DRY_RUN" envDefault:"false"`
	Prefix        string    `env:"CERT_S3_PREFIX" envDefault:"certificates"`
}

// Worker runs one renewal pass end-to-end.
type Worker struct {
	cfg       Config
	issuer    Issuer
	certs     CertificateStore
	objects   ObjectStore
	passwords PasswordStore // nil disables archive packaging

	log         *slog.Logger
	now         func() time.Time
	newPassword func() (string, error)
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker's logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *Worker) {
		if log != nil {
			w.log = log
		}
	}
}

// WithClock overrides the wall clock. Test seam.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithPasswordGenerator overrides archive password generation. Test seam.
func WithPasswordGenerator(gen func() (string, error)) Option {
	return func(w *Worker) {
		if gen != nil {
			w.newPassword = gen
		}
	}
}

// NewWorker wires a Worker. passwords may be nil when no archive secret
// is configured; bundles are then published without the archive form.
func NewWorker(cfg Config, issuer Issuer, certs CertificateStore, objects ObjectStore, passwords PasswordStore, opts ...Option) (*Worker, error) {
	if len(cfg.Domains) == 0 {
		return nil, ErrNoDomains
	}

	w := &Worker{
		cfg:         cfg,
		issuer:      issuer,
		certs:       certs,
		objects:     objects,
		passwords:   passwords,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		newPassword: generatePassword,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run executes one renewal pass for runID: assess, issue, package,
// publish. A no-renewal outcome still publishes a record so the
// orchestrator can tell "no work" from "worker never got that far".
func (w *Worker) Run(ctx context.Context, runID string) error {
	decision, err := w.AssessRenewalNeed()
	if err != nil {
		return err
	}

	if !decision.Renew {
		w.log.InfoContext(ctx, "no renewal needed",
			logger.RunID(runID),
			logger.Domain(decision.Domain),
			slog.Int("days_left", decision.DaysLeft))
		return w.publishRecord(ctx, runID, &Record{
			RenewalOccurred: false,
			Timestamp:       w.now().UTC(),
		})
	}

	w.log.InfoContext(ctx, "renewal needed",
		logger.RunID(runID),
		slog.String("reason", decision.Reason))

	if w.cfg.DryRun {
		w.log.InfoContext(ctx, "dry run, skipping issuance and packaging",
			logger.RunID(runID),
			slog.Int("domains", len(w.cfg.Domains)))
		return w.publishRecord(ctx, runID, &Record{
			RenewalOccurred: false,
			Timestamp:       w.now().UTC(),
		})
	}

	renewed, err := w.Issue(ctx)
	if err != nil {
		return err
	}

	bundles, err := w.Package(ctx, renewed)
	if err != nil {
		return err
	}

	if err := w.Publish(ctx, bundles, runID); err != nil {
		return err
	}

	return w.publishRecord(ctx, runID, &Record{
		RenewalOccurred: true,
		RenewedDomains:  renewed,
		Timestamp:       w.now().UTC(),
	})
}

// AssessRenewalNeed applies the configured check mode to the managed
// domain set.
func (w *Worker) AssessRenewalNeed() (Decision, error) {
	return Assess(w.certs, w.cfg.Domains, w.cfg.ThresholdDays, w.cfg.ForceRenewal, w.cfg.CheckMode, w.now())
}

// Issue obtains certificates for untracked domains first, then renews the
// tracked union (the ACME client's renew operation only covers domains it
// already tracks). Returns the managed domains renewed this run.
func (w *Worker) Issue(ctx context.Context) ([]string, error) {
	var untracked []string
	for _, domain := range w.cfg.Domains {
		if !w.certs.Exists(domain) {
			untracked = append(untracked, domain)
		}
	}

	if len(untracked) > 0 {
		w.log.InfoContext(ctx, "issuing certificates for new domains",
			slog.Int("count", len(untracked)))
		if err := w.issuer.Obtain(ctx, untracked); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIssuance, err)
		}
	}

	renewed, err := w.issuer.Renew(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIssuance, err)
	}

	// Renew covers everything tracked; report only the managed set.
	managed := make(map[string]bool, len(w.cfg.Domains))
	for _, d := range w.cfg.Domains {
		managed[d] = true
	}
	var result []string
	for _, d := range renewed {
		if managed[d] {
			result = append(result, d)
		}
	}
	return result, nil
}

// Package assembles bundles for the renewed domains. Archive creation
// failure (or an unavailable password store) downgrades a bundle to
// partial rather than failing the run.
func (w *Worker) Package(ctx context.Context, domains []string) ([]Bundle, error) {
	password := ""
	if w.passwords != nil {
		pw, err := w.newPassword()
		if err != nil {
			return nil, fmt.Errorf("%w: generate password: %v", ErrSecretStore, err)
		}
		if err := w.RotateSharedSecret(ctx, pw); err != nil {
			return nil, err
		}
		password = pw
	}

	bundles := make([]Bundle, 0, len(domains))
	for _, domain := range domains {
		files, err := readPEMRoles(w.certs, domain)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIssuance, err)
		}

		bundle := Bundle{Domain: domain, Files: files}

		if password == "" {
			bundle.Partial = true
		} else {
			archive, err := buildArchive(
				files[secretname.RoleKey],
				files[secretname.RoleCert],
				files[secretname.RoleChain],
				password,
			)
			if err != nil {
				w.log.WarnContext(ctx, "archive packaging failed, publishing partial bundle",
					logger.Domain(domain), logger.Error(err))
				bundle.Partial = true
			} else {
				bundle.Files[secretname.RoleArchive] = archive
			}
		}

		bundles = append(bundles, bundle)
	}
	return bundles, nil
}

// Publish uploads every bundle file under the run-scoped prefix. Each
// upload gets exactly one attempt; a failed run is retried wholesale by
// the next scheduled cycle.
func (w *Worker) Publish(ctx context.Context, bundles []Bundle, runID string) error {
	for _, bundle := range bundles {
		for role, data := range bundle.Files {
			key := BundleKey(w.cfg.Prefix, runID, bundle.Domain, role)
			if err := w.upload(ctx, key, data); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrUpload, key, err)
			}
		}
		w.log.InfoContext(ctx, "bundle published",
			logger.RunID(runID),
			logger.Domain(bundle.Domain),
			slog.Bool("partial", bundle.Partial))
	}
	return nil
}

// RotateSharedSecret writes the new archive password to the shared
// password store as a new version.
func (w *Worker) RotateSharedSecret(ctx context.Context, newPassword string) error {
	if err := w.passwords.RotateArchivePassword(ctx, newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrSecretStore, err)
	}
	return nil
}

func (w *Worker) publishRecord(ctx context.Context, runID string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", ErrUpload, err)
	}
	key := RecordKey(w.cfg.Prefix, runID)
	if err := w.upload(ctx, key, data); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpload, key, err)
	}
	return nil
}

func (w *Worker) upload(ctx context.Context, key string, data []byte) error {
	return w.objects.Put(ctx, key, data)
}

func generatePassword() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

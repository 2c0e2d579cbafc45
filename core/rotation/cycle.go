package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/swarmcert/swarmcert/core/renewal"
	"github.com/swarmcert/swarmcert/integration/storage/s3"
	"github.com/swarmcert/swarmcert/integration/swarm"
	"github.com/swarmcert/swarmcert/pkg/logger"
	"github.com/swarmcert/swarmcert/pkg/retry"
	"github.com/swarmcert/swarmcert/pkg/runid"
	"github.com/swarmcert/swarmcert/pkg/secretname"
)

// credsSecretPrefix names the run-scoped credential secret mounted into
// the worker task. Removed during cleanup, never left behind.
const credsSecretPrefix = "renewal-worker-creds-"

// RunCycle executes one full rotation cycle and returns its summary.
// Consuming services are only ever touched after the new run's secrets
// exist, so a failure at any phase leaves them on their previous
// certificates.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleResult, error) {
	started := o.now()
	runID := runid.New(started)
	res := &CycleResult{RunID: runID, State: StateAwaitingTarget}
	log := o.log.With(logger.RunID(runID))

	defer func() { res.Duration = o.now().Sub(started) }()

	log.InfoContext(ctx, "cycle started", logger.State(string(res.State)))
	if err := o.cluster.WaitManagerReady(ctx, o.cfg.ReadyTimeout); err != nil {
		return res, fmt.Errorf("%w: %v", ErrTargetUnavailable, err)
	}

	res.State = StateLaunching
	serviceID, cleanup, err := o.launchWorker(ctx, log, runID)
	if err != nil {
		return res, err
	}
	defer cleanup()

	res.State = StatePolling
	if err := o.pollWorker(ctx, log, serviceID); err != nil {
		return res, err
	}

	// The worker is done; tear it down before touching services so a
	// cutover failure never leaves a finished task lingering.
	cleanup()

	res.State = StateFetching
	record := o.fetchRecord(ctx, log, runID)
	if record != nil && !record.RenewalOccurred {
		log.InfoContext(ctx, "worker reported no renewal needed")
		res.State = StateDone
		return res, nil
	}

	res.State = StateDownloading
	staged, err := o.downloadBundles(ctx, runID)
	if err != nil {
		return res, err
	}
	if len(staged) == 0 {
		// Nothing published under the run prefix: the worker had no
		// artifacts to hand over.
		log.WarnContext(ctx, "no bundles published for run, nothing to rotate")
		res.State = StateDone
		return res, nil
	}

	domains := o.renewedDomains(record, staged)
	res.RenewalOccurred = true
	res.RenewedDomains = domains

	if o.cfg.DryRun {
		log.InfoContext(ctx, "dry run, skipping secret publication and cutover",
			slog.Any("domains", domains))
		res.State = StateDone
		return res, nil
	}

	res.State = StatePublishing
	published, err := o.publishSecrets(ctx, log, runID, domains, staged)
	if err != nil {
		return res, err
	}

	res.State = StateCuttingOver
	cutOver, err := o.cutOver(ctx, log, runID, domains, published)
	res.CutOverServices = cutOver
	if err != nil {
		return res, err
	}

	res.PrunedSecrets = o.pruneSecrets(ctx, log, domains)

	res.State = StateDone
	log.InfoContext(ctx, "cycle complete",
		slog.Any("domains", domains),
		slog.Any("services", cutOver))
	return res, nil
}

// launchWorker creates the run's credential secret (when a role is
// configured) and starts the one-shot worker task. The returned cleanup
// removes both and is safe to call more than once.
func (o *Orchestrator) launchWorker(ctx context.Context, log *slog.Logger, runID string) (string, func(), error) {
	var secrets []swarm.SecretRef
	credsName := ""

	if o.creds != nil && o.cfg.RoleName != "" {
		creds, err := o.creds.FetchTemporaryCredentials(ctx, o.cfg.RoleName)
		if err != nil {
			return "", nil, err
		}
		credsName = credsSecretPrefix + runID
		id, err := o.cluster.CreateSecret(ctx, credsName, []byte(strings.Join(creds.Env(), "\n")+"\n"), runLabels(runID))
		if err != nil {
			return "", nil, fmt.Errorf("create credential secret: %w", err)
		}
		secrets = append(secrets, swarm.SecretRef{ID: id, Name: credsName, Target: "aws-credentials.env"})
	}

	env := []string{
		"CERT_RUN_ID=" + runID,
		"CERT_DOMAINS=" + strings.Join(o.cfg.Domains, ","),
		"CERT_S3_PREFIX=" + o.cfg.Prefix,
	}
	if o.cfg.ThresholdDays > 0 {
		env = append(env, "CERT_RENEWAL_THRESHOLD_DAYS="+strconv.Itoa(o.cfg.ThresholdDays))
	}
	if o.cfg.CheckMode != "" {
		env = append(env, "CERT_RENEWAL_CHECK_MODE="+string(o.cfg.CheckMode))
	}
	if o.cfg.ForceRenewal {
		env = append(env, "CERT_FORCE_RENEWAL=true")
	}
	if o.cfg.ACMEStaging {
		env = append(env, "CERT_ACME_STAGING=true")
	}
	if o.cfg.DryRun {
		env = append(env, "CERT_DRY_RUN=true")
	}

	serviceID, err := o.cluster.LaunchOneShot(ctx, swarm.TaskSpec{
		Name:        "renewal-worker-" + runID,
		Image:       o.cfg.WorkerImage,
		Env:         env,
		Constraints: o.cfg.Constraints,
		Labels:      runLabels(runID),
		Secrets:     secrets,
	})
	if err != nil {
		if credsName != "" {
			if rmErr := o.cluster.RemoveSecret(ctx, credsName); rmErr != nil {
				log.WarnContext(ctx, "failed to remove credential secret", logger.Error(rmErr))
			}
		}
		return "", nil, fmt.Errorf("launch renewal worker: %w", err)
	}
	log.InfoContext(ctx, "renewal worker launched", logger.Task(serviceID))

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			// Teardown must run even when ctx is already cancelled.
			cctx := context.WithoutCancel(ctx)
			if err := o.cluster.Remove(cctx, serviceID); err != nil {
				log.WarnContext(cctx, "failed to remove worker task", logger.Task(serviceID), logger.Error(err))
			}
			if credsName != "" {
				if err := o.cluster.RemoveSecret(cctx, credsName); err != nil {
					log.WarnContext(cctx, "failed to remove credential secret", logger.Error(err))
				}
			}
		})
	}
	return serviceID, cleanup, nil
}

// pollWorker waits for the worker task to reach a terminal state.
func (o *Orchestrator) pollWorker(ctx context.Context, log *slog.Logger, serviceID string) error {
	deadline := o.now().Add(o.cfg.WorkerTimeout)

	for {
		state, err := o.cluster.PollState(ctx, serviceID)
		if err != nil {
			return fmt.Errorf("poll worker state: %w", err)
		}

		switch state {
		case swarm.TaskSucceeded:
			log.InfoContext(ctx, "renewal worker finished")
			return nil
		case swarm.TaskFailed:
			return ErrWorkerFailed
		}

		if o.now().After(deadline) {
			return fmt.Errorf("%w: after %s", ErrWorkerTimeout, o.cfg.WorkerTimeout)
		}
		if err := o.sleep(ctx, o.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// fetchRecord reads the run's renewal record. A missing or malformed
// record does not fail the cycle; recovery proceeds from the artifacts
// actually present under the run prefix.
func (o *Orchestrator) fetchRecord(ctx context.Context, log *slog.Logger, runID string) *renewal.Record {
	data, err := o.getObject(ctx, renewal.RecordKey(o.cfg.Prefix, runID))
	if err != nil {
		log.WarnContext(ctx, "renewal record unavailable, recovering from published artifacts", logger.Error(err))
		return nil
	}
	record, err := renewal.ParseRecord(data)
	if err != nil {
		log.WarnContext(ctx, "renewal record malformed, recovering from published artifacts", logger.Error(err))
		return nil
	}
	return record
}

// downloadBundles pulls the run's artifacts into a run-scoped staging
// directory and returns domain -> role -> local path.
func (o *Orchestrator) downloadBundles(ctx context.Context, runID string) (map[string]map[secretname.Role]string, error) {
	stagingDir := filepath.Join(o.cfg.StagingDir, runID)
	var paths []string
	err := retry.Do(ctx, func() error {
		var err error
		paths, err = o.objects.CopyPrefix(ctx, o.cfg.Prefix+"/"+runID, stagingDir)
		return transientOnly(err)
	})
	if err != nil {
		return nil, fmt.Errorf("download bundles: %w", err)
	}

	staged := make(map[string]map[secretname.Role]string)
	for _, p := range paths {
		rel, err := filepath.Rel(stagingDir, p)
		if err != nil {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 2 {
			continue // the record file sits at the top level
		}
		domain, file := parts[0], parts[1]

		role, ok := roleForFile(file)
		if !ok {
			continue
		}
		if staged[domain] == nil {
			staged[domain] = make(map[secretname.Role]string)
		}
		staged[domain][role] = p
	}
	return staged, nil
}

// getObject reads one key with retries on the transient fault class. A
// missing key is permanent; the caller decides what absence means.
func (o *Orchestrator) getObject(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := retry.Do(ctx, func() error {
		var err error
		data, err = o.objects.Get(ctx, key)
		return transientOnly(err)
	})
	return data, err
}

// transientOnly lets throttling and availability faults through to the
// backoff loop and marks everything else permanent.
func transientOnly(err error) error {
	if err == nil || errors.Is(err, s3.ErrUnavailable) {
		return err
	}
	return retry.Permanent(err)
}

func roleForFile(file string) (secretname.Role, bool) {
	for _, role := range secretname.FileRoles {
		if role.File() == file {
			return role, true
		}
	}
	return "", false
}

// renewedDomains resolves the domains this cycle rotates: the record's
// list intersected with what actually landed in staging, or the staged
// set alone when the record was lost.
func (o *Orchestrator) renewedDomains(record *renewal.Record, staged map[string]map[secretname.Role]string) []string {
	var candidates []string
	if record != nil {
		candidates = record.RenewedDomains
	} else {
		for domain := range staged {
			candidates = append(candidates, domain)
		}
	}

	var out []string
	for _, domain := range candidates {
		if len(staged[domain]) > 0 {
			out = append(out, domain)
		}
	}
	return out
}

// publishSecrets registers each staged bundle file as a run-scoped
// secret and returns domain -> role -> secret reference. An
// already-existing secret means a previous attempt of this run got this
// far; its ID is looked up and reused.
func (o *Orchestrator) publishSecrets(ctx context.Context, log *slog.Logger, runID string, domains []string, staged map[string]map[secretname.Role]string) (map[string][]swarm.SecretRef, error) {
	published := make(map[string][]swarm.SecretRef, len(domains))

	for _, domain := range domains {
		for role, path := range staged[domain] {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read staged bundle: %w", err)
			}

			name := secretname.Build(domain, role, runID)
			id, err := o.cluster.CreateSecret(ctx, name, data, runLabels(runID))
			switch {
			case errors.Is(err, swarm.ErrSecretExists):
				id, err = o.lookupSecretID(ctx, name)
				if err != nil {
					return nil, err
				}
				log.InfoContext(ctx, "secret already published, reusing", logger.Secret(name))
			case err != nil:
				return nil, fmt.Errorf("create secret %s: %w", name, err)
			}

			published[domain] = append(published[domain], swarm.SecretRef{
				ID:     id,
				Name:   name,
				Target: role.File(),
			})
		}
		log.InfoContext(ctx, "secrets published", logger.Domain(domain),
			slog.Int("count", len(published[domain])))
	}
	return published, nil
}

func (o *Orchestrator) lookupSecretID(ctx context.Context, name string) (string, error) {
	infos, err := o.cluster.ListSecrets(ctx, name)
	if err != nil {
		return "", fmt.Errorf("look up secret %s: %w", name, err)
	}
	for _, info := range infos {
		if info.Name == name {
			return info.ID, nil
		}
	}
	return "", fmt.Errorf("secret %s exists but was not found", name)
}

func runLabels(runID string) map[string]string {
	return map[string]string{
		"swarmcert.run-id":     runID,
		"swarmcert.managed-by": "swarmcert",
	}
}

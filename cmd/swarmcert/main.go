// Command swarmcert rotates TLS certificates for Docker Swarm services.
//
// It runs in one of three modes:
//
//	-mode=once    run a single rotation cycle and exit (default)
//	-mode=daemon  run rotation cycles on the check interval until signalled
//	-mode=worker  run the renewal worker; this is the entrypoint of the
//	              one-shot task the orchestrator launches inside the swarm
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swarmcert/swarmcert/core/config"
	"github.com/swarmcert/swarmcert/core/renewal"
	"github.com/swarmcert/swarmcert/core/rotation"
	"github.com/swarmcert/swarmcert/core/scheduler"
	"github.com/swarmcert/swarmcert/integration/acme"
	"github.com/swarmcert/swarmcert/integration/imds"
	"github.com/swarmcert/swarmcert/integration/secretsmanager"
	"github.com/swarmcert/swarmcert/integration/storage/s3"
	"github.com/swarmcert/swarmcert/integration/swarm"
	"github.com/swarmcert/swarmcert/pkg/logger"
	"github.com/swarmcert/swarmcert/pkg/runid"
)

// Exit codes, stable for supervisors and health checks.
const (
	exitOK         = 0
	exitFailure    = 1 // generic or configuration error
	exitDependency = 2 // a required external dependency is unavailable
	exitCredential = 3 // credential or secret store trouble
	exitIssuance   = 4 // certificate issuance failed
	exitUpload     = 5 // artifact upload failed
	exitHeldLock   = 6 // another instance holds the run lock
)

func main() {
	mode := flag.String("mode", "once", "run mode: once, daemon or worker")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch *mode {
	case "once":
		err = runScheduled(ctx, log, false)
	case "daemon":
		err = runScheduled(ctx, log, true)
	case "worker":
		err = runWorker(ctx, log)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("swarmcert exited with error", slog.String("mode", *mode), logger.Error(err))
		os.Exit(exitCode(err))
	}
}

// runScheduled wires the manager-side orchestrator and runs it once or
// forever under the scheduler.
func runScheduled(ctx context.Context, log *slog.Logger, daemon bool) error {
	var rotCfg rotation.Config
	if err := config.Load(&rotCfg); err != nil {
		return err
	}
	var schedCfg scheduler.Config
	if err := config.Load(&schedCfg); err != nil {
		return err
	}
	var storeCfg s3.Config
	if err := config.Load(&storeCfg); err != nil {
		return err
	}

	cluster, err := swarm.New(swarm.WithLogger(log.With(logger.Component("swarm"))))
	if err != nil {
		return fmt.Errorf("%w: %v", rotation.ErrTargetUnavailable, err)
	}

	objects, err := s3.New(ctx, storeCfg)
	if err != nil {
		return err
	}

	var creds rotation.CredentialSource
	if rotCfg.RoleName != "" {
		creds = imds.NewProvider()
	}

	orch, err := rotation.New(rotCfg, cluster, objects, creds,
		rotation.WithLogger(log.With(logger.Component("rotation"))))
	if err != nil {
		return err
	}

	sched, err := scheduler.New(schedCfg, orch,
		scheduler.WithLogger(log.With(logger.Component("scheduler"))))
	if err != nil {
		return err
	}

	if daemon {
		return sched.RunForever(ctx)
	}
	return sched.RunOnce(ctx)
}

// workerEnv carries worker-only settings outside renewal.Config.
type workerEnv struct {
	RunID string `env:"CERT_RUN_ID"`
}

// runWorker wires and runs one renewal pass. This is what executes
// inside the one-shot task.
func runWorker(ctx context.Context, log *slog.Logger) error {
	var wenv workerEnv
	if err := config.Load(&wenv); err != nil {
		return err
	}
	var workerCfg renewal.Config
	if err := config.Load(&workerCfg); err != nil {
		return err
	}
	var acmeCfg acme.Config
	if err := config.Load(&acmeCfg); err != nil {
		return err
	}
	var storeCfg s3.Config
	if err := config.Load(&storeCfg); err != nil {
		return err
	}
	var smCfg secretsmanager.Config
	if err := config.Load(&smCfg); err != nil {
		return err
	}

	runID := wenv.RunID
	if runid.Validate(runID) != nil {
		// Launched outside an orchestrated cycle; mint a run locally.
		runID = runid.New(time.Now())
		log.Warn("no run identifier provided, minted one", logger.RunID(runID))
	}

	certStorage, err := acme.NewStorage(acmeCfg.StorageDir)
	if err != nil {
		return err
	}
	issuer, err := acme.NewIssuer(acmeCfg, certStorage,
		acme.WithLogger(log.With(logger.Component("acme"))))
	if err != nil {
		return err
	}

	objects, err := s3.New(ctx, storeCfg)
	if err != nil {
		return err
	}

	// The archive secret is optional; without it bundles ship without
	// the archive form.
	var passwords renewal.PasswordStore
	if smCfg.SecretID != "" {
		store, err := secretsmanager.New(ctx, smCfg)
		if err != nil {
			return err
		}
		passwords = store
	}

	worker, err := renewal.NewWorker(workerCfg, issuer, certStorage, objects, passwords,
		renewal.WithLogger(log.With(logger.Component("renewal"))))
	if err != nil {
		return err
	}
	return worker.Run(ctx, runID)
}

// exitCode maps sentinel errors onto the stable exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return exitHeldLock
	case errors.Is(err, renewal.ErrIssuance):
		return exitIssuance
	case errors.Is(err, renewal.ErrUpload):
		return exitUpload
	case errors.Is(err, renewal.ErrSecretStore),
		errors.Is(err, imds.ErrCredentialFetch),
		errors.Is(err, s3.ErrAccessDenied):
		return exitCredential
	case errors.Is(err, rotation.ErrTargetUnavailable),
		errors.Is(err, s3.ErrUnavailable):
		return exitDependency
	default:
		return exitFailure
	}
}

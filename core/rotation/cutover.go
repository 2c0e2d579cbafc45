package rotation

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/swarmcert/swarmcert/integration/swarm"
	"github.com/swarmcert/swarmcert/pkg/logger"
	"github.com/swarmcert/swarmcert/pkg/runid"
	"github.com/swarmcert/swarmcert/pkg/secretname"
)

// cutOver points every service consuming a renewed domain at the run's
// new secrets. Each service is updated with a single call carrying both
// the removals and the additions, so the service never observes a state
// without a valid certificate. Domains and services fail independently;
// failures are aggregated into a PartialCutoverError.
func (o *Orchestrator) cutOver(ctx context.Context, log *slog.Logger, runID string, domains []string, published map[string][]swarm.SecretRef) ([]string, error) {
	var updated []string
	partial := &PartialCutoverError{}

	for _, domain := range domains {
		services := o.cfg.ServicesFor(domain)
		if len(services) == 0 {
			// A domain with no consuming services is valid: its secrets
			// are published for future consumers and nothing cuts over.
			log.InfoContext(ctx, "no services mapped, skipping cutover",
				logger.Domain(domain))
			continue
		}

		for _, service := range services {
			if err := o.cutOverService(ctx, runID, domain, service, published[domain]); err != nil {
				log.ErrorContext(ctx, "service cutover failed",
					logger.Domain(domain), logger.Service(service), logger.Error(err))
				partial.add(domain, service, err)
				continue
			}
			log.InfoContext(ctx, "service cut over",
				logger.Domain(domain), logger.Service(service))
			updated = append(updated, service)
		}
	}

	if !partial.empty() {
		return updated, partial
	}
	return updated, nil
}

func (o *Orchestrator) cutOverService(ctx context.Context, runID, domain, service string, refs []swarm.SecretRef) error {
	attached, err := o.cluster.AttachedSecrets(ctx, service)
	if err != nil {
		return err
	}

	attachedSet := make(map[string]bool, len(attached))
	for _, name := range attached {
		attachedSet[name] = true
	}

	// Previous runs of this domain still attached to the service.
	var removals []string
	for _, name := range attached {
		if domainForSecret(domain, name) && secretname.RunID(name) != runID {
			removals = append(removals, name)
		}
	}

	// Re-running a cycle after a crash may find some refs attached
	// already; only the missing ones are added.
	var additions []swarm.SecretRef
	for _, ref := range refs {
		if !attachedSet[ref.Name] {
			additions = append(additions, ref)
		}
	}

	if len(removals) == 0 && len(additions) == 0 {
		return nil
	}
	return o.cluster.UpdateServiceSecrets(ctx, service, removals, additions)
}

// domainForSecret reports whether a secret name belongs to the domain
// under any role.
func domainForSecret(domain, name string) bool {
	for _, role := range secretname.FileRoles {
		if strings.HasPrefix(name, secretname.Prefix(domain, role)) {
			return true
		}
	}
	return false
}

// PruneSecrets removes old run-scoped secrets for every configured
// domain beyond the retention window. Runs as part of a cycle after a
// successful cutover and is safe to invoke standalone.
func (o *Orchestrator) PruneSecrets(ctx context.Context) []string {
	return o.pruneSecrets(ctx, o.log, o.cfg.Domains)
}

// pruneSecrets removes old run-scoped secrets beyond the retention
// window. Secrets still attached to a consuming service are never
// removed, whatever their age. Best effort: failures are logged, not
// returned.
func (o *Orchestrator) pruneSecrets(ctx context.Context, log *slog.Logger, domains []string) []string {
	attached := o.allAttachedSecrets(ctx, log, domains)

	var pruned []string
	for _, domain := range domains {
		for _, role := range secretname.FileRoles {
			prefix := secretname.Prefix(domain, role)
			infos, err := o.cluster.ListSecrets(ctx, prefix)
			if err != nil {
				log.WarnContext(ctx, "failed to list secrets for pruning",
					logger.Domain(domain), logger.Error(err))
				continue
			}

			for _, name := range expiredRuns(infos, o.cfg.RetainRuns) {
				if attached[name] {
					continue
				}
				if err := o.cluster.RemoveSecret(ctx, name); err != nil {
					log.WarnContext(ctx, "failed to prune secret",
						logger.Secret(name), logger.Error(err))
					continue
				}
				pruned = append(pruned, name)
			}
		}
	}
	if len(pruned) > 0 {
		log.InfoContext(ctx, "pruned old secrets", slog.Int("count", len(pruned)))
	}
	return pruned
}

func (o *Orchestrator) allAttachedSecrets(ctx context.Context, log *slog.Logger, domains []string) map[string]bool {
	attached := make(map[string]bool)
	seen := make(map[string]bool)

	for _, domain := range domains {
		for _, service := range o.cfg.ServicesFor(domain) {
			if seen[service] {
				continue
			}
			seen[service] = true

			names, err := o.cluster.AttachedSecrets(ctx, service)
			if err != nil {
				log.WarnContext(ctx, "failed to inspect attached secrets",
					logger.Service(service), logger.Error(err))
				continue
			}
			for _, name := range names {
				attached[name] = true
			}
		}
	}
	return attached
}

// expiredRuns returns the secret names whose run falls outside the
// keep-newest retention window. Names without a valid run suffix are
// left alone.
func expiredRuns(infos []swarm.SecretInfo, retain int) []string {
	byRun := make(map[string][]string)
	for _, info := range infos {
		id := secretname.RunID(info.Name)
		if runid.Validate(id) != nil {
			continue
		}
		byRun[id] = append(byRun[id], info.Name)
	}

	runs := make([]string, 0, len(byRun))
	for id := range byRun {
		runs = append(runs, id)
	}
	// Run identifiers are timestamp-prefixed, so lexicographic order is
	// chronological.
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))

	var expired []string
	for i, id := range runs {
		if i < retain {
			continue
		}
		expired = append(expired, byRun[id]...)
	}
	return expired
}

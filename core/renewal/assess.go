package renewal

import (
	"fmt"
	"time"

	"github.com/swarmcert/swarmcert/pkg/certinfo"
	"github.com/swarmcert/swarmcert/pkg/secretname"
)

// CheckMode selects which certificates the renewal-need check inspects.
type CheckMode string

const (
	// CheckFirstDomain inspects only the first configured domain's
	// certificate and applies the outcome to the whole set. This is the
	// historical behavior; it can under- or over-trigger when domains
	// were added at different times.
	CheckFirstDomain CheckMode = "first-domain"

	// CheckPerDomain renews when any configured domain's certificate is
	// missing or within the threshold.
	CheckPerDomain CheckMode = "per-domain"
)

// Decision is the derived, never-persisted outcome of the renewal check.
type Decision struct {
	Renew    bool
	Reason   string
	Domain   string // domain that triggered the decision, if any
	DaysLeft int    // days remaining on the inspected certificate, -1 if none
}

// Assess decides whether renewal is needed. A force flag or an absent
// certificate always renews; otherwise the threshold comparison is
// inclusive: daysLeft == thresholdDays triggers renewal.
func Assess(store CertificateStore, domains []string, thresholdDays int, force bool, mode CheckMode, now time.Time) (Decision, error) {
	if len(domains) == 0 {
		return Decision{}, ErrNoDomains
	}

	if force {
		return Decision{Renew: true, Reason: "forced", DaysLeft: -1}, nil
	}

	check := domains
	if mode != CheckPerDomain {
		check = domains[:1]
	}

	var last Decision
	for _, domain := range check {
		d, err := assessOne(store, domain, thresholdDays, now)
		if err != nil {
			return Decision{}, err
		}
		if d.Renew {
			return d, nil
		}
		last = d
	}
	return last, nil
}

func assessOne(store CertificateStore, domain string, thresholdDays int, now time.Time) (Decision, error) {
	if !store.Exists(domain) {
		return Decision{
			Renew:    true,
			Reason:   "no existing certificate",
			Domain:   domain,
			DaysLeft: -1,
		}, nil
	}

	pemBytes, err := store.Read(domain, secretname.RoleCert)
	if err != nil {
		return Decision{}, fmt.Errorf("read certificate for %s: %w", domain, err)
	}

	cert, err := certinfo.Parse(pemBytes)
	if err != nil {
		// An unreadable certificate is as good as a missing one.
		return Decision{
			Renew:    true,
			Reason:   "unparseable certificate",
			Domain:   domain,
			DaysLeft: -1,
		}, nil
	}

	daysLeft := certinfo.DaysUntilExpiry(cert, now)
	if daysLeft <= thresholdDays {
		return Decision{
			Renew:    true,
			Reason:   fmt.Sprintf("%d days left, threshold %d", daysLeft, thresholdDays),
			Domain:   domain,
			DaysLeft: daysLeft,
		}, nil
	}

	return Decision{
		Renew:    false,
		Reason:   fmt.Sprintf("%d days left, threshold %d", daysLeft, thresholdDays),
		Domain:   domain,
		DaysLeft: daysLeft,
	}, nil
}

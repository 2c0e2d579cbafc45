package renewal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/swarmcert/swarmcert/pkg/secretname"
)

// RecordFile is the object name of the renewal record within a run prefix.
const RecordFile = "renewal-status.json"

// Record is the write-once completion record of one worker run. It is
// the orchestrator's sole signal for "was there new work".
type Record struct {
	RenewalOccurred bool      `json:"renewal_occurred"`
	RenewedDomains  []string  `json:"renewed_domains"`
	Timestamp       time.Time `json:"timestamp"`
}

// ParseRecord decodes and validates a renewal record. A record claiming
// no renewal but listing domains (or the inverse) is malformed; callers
// treat that the same as a missing record.
func ParseRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if !rec.RenewalOccurred && len(rec.RenewedDomains) > 0 {
		return nil, fmt.Errorf("%w: no renewal but %d domains listed", ErrMalformedRecord, len(rec.RenewedDomains))
	}
	if rec.RenewalOccurred && len(rec.RenewedDomains) == 0 {
		return nil, fmt.Errorf("%w: renewal without domains", ErrMalformedRecord)
	}
	return &rec, nil
}

// RecordKey is the object-store key of a run's renewal record.
func RecordKey(prefix, runID string) string {
	return prefix + "/" + runID + "/" + RecordFile
}

// BundleKey is the object-store key of one bundle file:
// {prefix}/{runID}/{domain}/{file}.
func BundleKey(prefix, runID, domain string, role secretname.Role) string {
	return prefix + "/" + runID + "/" + domain + "/" + role.File()
}

// Bundle is the artifact set for one domain from one issuance event.
// Partial marks bundles missing the optional archive form; the three PEM
// roles are always present in a bundle the worker publishes.
type Bundle struct {
	Domain  string
	Files   map[secretname.Role][]byte
	Partial bool
}

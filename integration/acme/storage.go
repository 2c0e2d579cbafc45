package acme

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/swarmcert/swarmcert/pkg/secretname"
)

// Storage provides access to the trusted local certificate layout,
// {dir}/live/{domain}/{file}. It is the read side the renewal worker uses
// to assess expiry and to package bundles.
type Storage struct {
	dir string
}

// NewStorage creates the storage handler, ensuring the live directory exists.
func NewStorage(dir string) (*Storage, error) {
	if dir == "" {
		return nil, ErrStorageDirRequired
	}
	if err := os.MkdirAll(filepath.Join(dir, "live"), 0o700); err != nil {
		return nil, fmt.Errorf("create certificate storage: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Dir returns the storage root.
func (s *Storage) Dir() string {
	return s.dir
}

// Tracked lists domains with issued artifacts, in lexical order.
func (s *Storage) Tracked() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "live"))
	if err != nil {
		return nil, fmt.Errorf("list tracked domains: %w", err)
	}

	var domains []string
	for _, entry := range entries {
		if entry.IsDir() {
			domains = append(domains, entry.Name())
		}
	}
	return domains, nil
}

// Exists reports whether the domain has a stored certificate.
func (s *Storage) Exists(domain string) bool {
	_, err := os.Stat(s.path(domain, secretname.RoleCert))
	return err == nil
}

// Read returns the stored artifact bytes for one bundle role of a domain.
func (s *Storage) Read(domain string, role secretname.Role) ([]byte, error) {
	data, err := os.ReadFile(s.path(domain, role))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotTracked, domain, role.File())
		}
		return nil, fmt.Errorf("read %s for %s: %w", role.File(), domain, err)
	}
	return data, nil
}

// WriteBundle stores a domain's artifacts as one unit. All files are
// staged first and swapped into live/{domain} with directory renames, so
// a crash mid-write never leaves a key paired with a certificate from a
// different issuance. The private key is written with owner-only
// permissions; everything else is world-readable PEM.
func (s *Storage) WriteBundle(domain string, files map[secretname.Role][]byte) error {
	if len(files) == 0 {
		return fmt.Errorf("empty bundle for %s", domain)
	}

	staging, err := os.MkdirTemp(s.dir, "staging-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	for role, data := range files {
		mode := os.FileMode(0o644)
		if role == secretname.RoleKey {
			mode = 0o600
		}
		if err := os.WriteFile(filepath.Join(staging, role.File()), data, mode); err != nil {
			return fmt.Errorf("stage %s for %s: %w", role.File(), domain, err)
		}
	}

	live := filepath.Join(s.dir, "live", domain)
	retired := filepath.Join(s.dir, "retired-"+domain)
	_ = os.RemoveAll(retired)

	replaced := false
	if _, err := os.Stat(live); err == nil {
		if err := os.Rename(live, retired); err != nil {
			return fmt.Errorf("retire previous bundle for %s: %w", domain, err)
		}
		replaced = true
	}
	if err := os.Rename(staging, live); err != nil {
		if replaced {
			_ = os.Rename(retired, live)
		}
		return fmt.Errorf("install bundle for %s: %w", domain, err)
	}
	if replaced {
		_ = os.RemoveAll(retired)
	}
	return nil
}

func (s *Storage) path(domain string, role secretname.Role) string {
	return filepath.Join(s.dir, "live", domain, role.File())
}

package renewal

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swarmcert/swarmcert/pkg/secretname"
)

// mockCertStore is an in-memory CertificateStore.
type mockCertStore struct {
	certs map[string]map[secretname.Role][]byte

	readErr error
}

func newMockCertStore() *mockCertStore {
	return &mockCertStore{certs: make(map[string]map[secretname.Role][]byte)}
}

func (m *mockCertStore) add(domain string, files map[secretname.Role][]byte) {
	m.certs[domain] = files
}

func (m *mockCertStore) Tracked() ([]string, error) {
	out := make([]string, 0, len(m.certs))
	for d := range m.certs {
		out = append(out, d)
	}
	return out, nil
}

func (m *mockCertStore) Exists(domain string) bool {
	_, ok := m.certs[domain]
	return ok
}

func (m *mockCertStore) Read(domain string, role secretname.Role) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.certs[domain][role], nil
}

// mockIssuer records Obtain/Renew calls.
type mockIssuer struct {
	tt    *testing.T
	store *mockCertStore
	now   func() time.Time
	ttl   time.Duration

	obtained  [][]string
	renewals  int
	obtainErr error
	renewErr  error
}

func (m *mockIssuer) Obtain(_ context.Context, domains []string) error {
	if m.obtainErr != nil {
		return m.obtainErr
	}
	m.obtained = append(m.obtained, domains)
	for _, d := range domains {
		m.store.add(d, testBundleFiles(m.t(), d, m.now().Add(m.ttl)))
	}
	return nil
}

func (m *mockIssuer) Renew(_ context.Context) ([]string, error) {
	if m.renewErr != nil {
		return nil, m.renewErr
	}
	m.renewals++
	renewed, err := m.store.Tracked()
	if err != nil {
		return nil, err
	}
	for _, d := range renewed {
		m.store.add(d, testBundleFiles(m.t(), d, m.now().Add(m.ttl)))
	}
	return renewed, nil
}

// t is kept on the issuer so cert material can be regenerated lazily.
func (m *mockIssuer) t() *testing.T { return m.tt }

type mockObjectStore struct {
	objects map[string][]byte
	putErr  error
	puts    []string
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{objects: make(map[string][]byte)}
}

func (m *mockObjectStore) Put(_ context.Context, key string, data []byte) error {
	m.puts = append(m.puts, key)
	if m.putErr != nil {
		return m.putErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[key] = cp
	return nil
}

type mockPasswordStore struct {
	rotated []string
	err     error
}

func (m *mockPasswordStore) RotateArchivePassword(_ context.Context, pw string) error {
	if m.err != nil {
		return m.err
	}
	m.rotated = append(m.rotated, pw)
	return nil
}

// testCertPEM issues a self-signed certificate for domain expiring at
// notAfter, returning cert and key PEM.
func testCertPEM(t *testing.T, domain string, notAfter time.Time) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    notAfter.Add(-90 * 24 * time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

// testBundleFiles builds the PEM role set for a domain.
func testBundleFiles(t *testing.T, domain string, notAfter time.Time) map[secretname.Role][]byte {
	t.Helper()

	certPEM, keyPEM := testCertPEM(t, domain, notAfter)
	return map[secretname.Role][]byte{
		secretname.RoleCert:  certPEM,
		secretname.RoleKey:   keyPEM,
		secretname.RoleChain: certPEM,
	}
}

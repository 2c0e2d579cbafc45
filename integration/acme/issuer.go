package acme

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/swarmcert/swarmcert/pkg/logger"
	"github.com/swarmcert/swarmcert/pkg/secretname"
)

// Config holds the issuer's account and challenge settings.
type Config struct {
	Email         string `env:"CERT_ACME_EMAIL,required"`
	StorageDir    string `env:"CERT_STORAGE_DIR" envDefault:"/var/lib/swarmcert"`
	Staging       bool   `env:"CERT_ACME_STAGING" envDefault:"false"`
	HTTP01Address string `env:"CERT_HTTP01_ADDRESS"`
}

// Issuer obtains and renews certificates through an ACME directory and
// persists artifacts in Storage.
type Issuer struct {
	email         string
	caDirURL      string
	http01Host    string
	http01Port    string
	keyType       certcrypto.KeyType
	storage       *Storage
	log           *slog.Logger
	clientFactory clientFactory
	accountKey    func() (crypto.PrivateKey, error)
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithLogger sets the issuer's logger.
func WithLogger(log *slog.Logger) Option {
	return func(i *Issuer) {
		if log != nil {
			i.log = log
		}
	}
}

// WithDirectoryURL overrides the ACME directory URL. Takes precedence
// over the Staging config switch.
func WithDirectoryURL(url string) Option {
	return func(i *Issuer) {
		i.caDirURL = strings.TrimSpace(url)
	}
}

// WithKeyType overrides the certificate key type (default RSA2048).
func WithKeyType(kt certcrypto.KeyType) Option {
	return func(i *Issuer) {
		i.keyType = kt
	}
}

// WithClientFactory injects a custom ACME client constructor. Test seam.
func WithClientFactory(f clientFactory) Option {
	return func(i *Issuer) {
		i.clientFactory = f
	}
}

// NewIssuer constructs an Issuer over the given storage.
func NewIssuer(cfg Config, storage *Storage, opts ...Option) (*Issuer, error) {
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, ErrEmailRequired
	}
	if storage == nil {
		return nil, ErrStorageDirRequired
	}

	caDirURL := lego.LEDirectoryProduction
	if cfg.Staging {
		caDirURL = lego.LEDirectoryStaging
	}

	host, port, err := parseHTTP01Address(cfg.HTTP01Address)
	if err != nil {
		return nil, err
	}

	i := &Issuer{
		email:         strings.TrimSpace(cfg.Email),
		caDirURL:      caDirURL,
		http01Host:    host,
		http01Port:    port,
		keyType:       certcrypto.RSA2048,
		storage:       storage,
		log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		clientFactory: defaultClientFactory,
		accountKey: func() (crypto.PrivateKey, error) {
			return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Obtain performs initial issuance for each domain and stores the
// artifacts. Domains get individual certificates so each bundle stays
// independently rotatable.
func (i *Issuer) Obtain(ctx context.Context, domains []string) error {
	if len(domains) == 0 {
		return ErrNoDomains
	}

	client, err := i.newClient()
	if err != nil {
		return err
	}

	for _, domain := range domains {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := i.obtainOne(client, domain); err != nil {
			return err
		}
		i.log.InfoContext(ctx, "certificate issued", logger.Domain(domain))
	}
	return nil
}

// Renew re-issues certificates for every tracked domain and returns the
// domains renewed. Like the underlying ACME tooling, it only acts on
// domains the storage already knows about.
func (i *Issuer) Renew(ctx context.Context) ([]string, error) {
	tracked, err := i.storage.Tracked()
	if err != nil {
		return nil, err
	}
	if len(tracked) == 0 {
		return nil, nil
	}

	client, err := i.newClient()
	if err != nil {
		return nil, err
	}

	var renewed []string
	for _, domain := range tracked {
		if err := ctx.Err(); err != nil {
			return renewed, err
		}
		if err := i.obtainOne(client, domain); err != nil {
			return renewed, err
		}
		renewed = append(renewed, domain)
		i.log.InfoContext(ctx, "certificate renewed", logger.Domain(domain))
	}
	return renewed, nil
}

func (i *Issuer) obtainOne(client acmeClient, domain string) error {
	res, err := client.Obtain(certificate.ObtainRequest{
		Domains: []string{domain},
		Bundle:  true,
	})
	if err != nil {
		return fmt.Errorf("obtain certificate for %s: %w", domain, err)
	}

	if len(res.Certificate) == 0 {
		return fmt.Errorf("empty certificate payload for %s", domain)
	}
	if len(res.PrivateKey) == 0 {
		return fmt.Errorf("empty private key for %s", domain)
	}

	// lego's bundled Certificate is leaf+issuer; the leaf alone is the
	// first block. Store the bundle as fullchain and the leaf as cert.
	leaf := firstPEMBlock(res.Certificate)

	return i.storage.WriteBundle(domain, map[secretname.Role][]byte{
		secretname.RoleKey:   res.PrivateKey,
		secretname.RoleCert:  leaf,
		secretname.RoleChain: res.Certificate,
	})
}

func (i *Issuer) newClient() (acmeClient, error) {
	key, err := i.accountKey()
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}

	user := &accountUser{email: i.email, key: key}

	legoCfg := lego.NewConfig(user)
	legoCfg.CADirURL = i.caDirURL
	legoCfg.Certificate.KeyType = i.keyType

	client, err := i.clientFactory(legoCfg)
	if err != nil {
		return nil, fmt.Errorf("create acme client: %w", err)
	}

	provider := http01.NewProviderServer(i.http01Host, i.http01Port)
	if err := client.SetHTTP01Provider(provider); err != nil {
		return nil, fmt.Errorf("configure http-01 provider: %w", err)
	}

	reg, err := client.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("register account: %w", err)
	}
	user.registration = reg

	return client, nil
}

func parseHTTP01Address(addr string) (string, string, error) {
	if strings.TrimSpace(addr) == "" {
		return "", "80", nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", "", fmt.Errorf("invalid http-01 address %q: %w", addr, err)
	}
	if port == "" {
		port = "80"
	}
	return host, port, nil
}

// firstPEMBlock returns the first PEM block of data including delimiters,
// or data unchanged when no boundary is found.
func firstPEMBlock(data []byte) []byte {
	const end = "-----END "
	s := string(data)
	idx := strings.Index(s, end)
	if idx < 0 {
		return data
	}
	nl := strings.Index(s[idx:], "\n")
	if nl < 0 {
		return data
	}
	return []byte(s[:idx+nl+1])
}

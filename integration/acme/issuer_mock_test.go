package acme

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"time"

	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
)

// fakeACMEClient fabricates self-signed certificates instead of talking
// to an ACME directory.
type fakeACMEClient struct {
	obtainCalls []string
	obtainErr   error
}

func (f *fakeACMEClient) Register(options registration.RegisterOptions) (*registration.Resource, error) {
	return &registration.Resource{}, nil
}

func (f *fakeACMEClient) SetHTTP01Provider(provider challenge.Provider) error {
	return nil
}

func (f *fakeACMEClient) Obtain(request certificate.ObtainRequest) (*certificate.Resource, error) {
	if f.obtainErr != nil {
		return nil, f.obtainErr
	}
	if len(request.Domains) != 1 {
		return nil, errors.New("fake client expects one domain per obtain")
	}
	domain := request.Domains[0]
	f.obtainCalls = append(f.obtainCalls, domain)

	leaf, key, err := selfSigned(domain, time.Now().Add(90*24*time.Hour))
	if err != nil {
		return nil, err
	}
	issuer, _, err := selfSigned("fake issuer", time.Now().Add(5*365*24*time.Hour))
	if err != nil {
		return nil, err
	}

	return &certificate.Resource{
		Domain:      domain,
		Certificate: append(leaf, issuer...), // bundled: leaf then issuer
		PrivateKey:  key,
	}, nil
}

func fakeFactory(f *fakeACMEClient) clientFactory {
	return func(*lego.Config) (acmeClient, error) {
		return f, nil
	}
}

func selfSigned(cn string, notAfter time.Time) (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		DNSNames:     []string{cn},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, err
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

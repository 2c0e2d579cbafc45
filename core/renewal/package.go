package renewal

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/swarmcert/swarmcert/pkg/secretname"
)

// buildArchive produces the password-protected PKCS#12 form of a bundle
// from its PEM artifacts. The archive is a convenience format for one
// consumer class; callers tolerate its failure and flag the bundle
// partial instead of failing the run.
func buildArchive(keyPEM, certPEM, chainPEM []byte, password string) ([]byte, error) {
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}

	leaf, err := parseCertificates(certPEM)
	if err != nil {
		return nil, err
	}

	chain, err := parseCertificates(chainPEM)
	if err != nil {
		return nil, err
	}

	// The chain file repeats the leaf; only the issuers go in as CA certs.
	var caCerts []*x509.Certificate
	for _, c := range chain {
		if !c.Equal(leaf[0]) {
			caCerts = append(caCerts, c)
		}
	}

	archive, err := pkcs12.Modern.Encode(key, leaf[0], caCerts, password)
	if err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}
	return archive, nil
}

func parsePrivateKey(keyPEM []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("no PEM block in private key")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported private key format")
}

func parseCertificates(certPEM []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := certPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates in PEM input")
	}
	return certs, nil
}

// readPEMRoles loads the three mandatory bundle files for a domain.
func readPEMRoles(store CertificateStore, domain string) (map[secretname.Role][]byte, error) {
	files := make(map[secretname.Role][]byte, len(secretname.PEMRoles)+1)
	for _, role := range secretname.PEMRoles {
		data, err := store.Read(domain, role)
		if err != nil {
			return nil, err
		}
		files[role] = data
	}
	return files, nil
}

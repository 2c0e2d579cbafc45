package certinfo

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoPEMData is returned when the input contains no PEM blocks.
	ErrNoPEMData = errors.New("no PEM data found")

	// ErrNoCertificate is returned when the PEM input contains blocks but
	// none of them is a certificate.
	ErrNoCertificate = errors.New("no certificate block found")
)

// Parse returns the first certificate found in the PEM input. For a
// fullchain file this is the leaf certificate.
func Parse(pemBytes []byte) (*x509.Certificate, error) {
	if len(pemBytes) == 0 {
		return nil, ErrNoPEMData
	}

	rest := pemBytes
	seenBlock := false
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		seenBlock = true
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		return cert, nil
	}

	if !seenBlock {
		return nil, ErrNoPEMData
	}
	return nil, ErrNoCertificate
}

// DaysUntilExpiry returns the number of whole calendar days between now
// and the certificate's NotAfter, both evaluated as UTC dates. A
// certificate expiring later today yields 0; an expired certificate
// yields a negative count.
func DaysUntilExpiry(cert *x509.Certificate, now time.Time) int {
	nowDate := midnightUTC(now)
	expDate := midnightUTC(cert.NotAfter)
	// Both operands sit at midnight UTC, so the division is exact.
	return int(expDate.Sub(nowDate) / (24 * time.Hour))
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

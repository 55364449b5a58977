package certgen

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DevPKI describes a development certificate set.
type DevPKI struct {
	Dir string
	// Hosts go into the server certificate's SAN list.
	Hosts []string
	// ClientLogin, if set, also gets a client certificate as client.crt/client.key.
	ClientLogin string
}

// Write creates a CA valid for ten years, a server certificate and an
// optional client certificate under p.Dir.
func (p DevPKI) Write() error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("create cert dir: %w", err)
	}

	caCert, caKey, caPEM, caKeyPEM, err := newCA(time.Now())
	if err != nil {
		return err
	}
	if err := p.writePair(CACertFile, CAKeyFile, caPEM, caKeyPEM); err != nil {
		return err
	}

	hosts := p.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost"}
	}
	certPEM, keyPEM, err := issue(caCert, caKey, leafSpec{
		commonName: hosts[0],
		dnsNames:   hosts,
		notBefore:  time.Now(),
		validity:   ClientValidity,
		usage:      []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	if err != nil {
		return err
	}
	if err := p.writePair(ServerCertFile, ServerKeyFile, certPEM, keyPEM); err != nil {
		return err
	}

	if p.ClientLogin == "" {
		return nil
	}
	issuer := &Issuer{ca: caCert, key: caKey, now: time.Now}
	certPEM, keyPEM, err = issuer.Issue(p.ClientLogin)
	if err != nil {
		return err
	}
	return p.writePair("client.crt", "client.key", certPEM, keyPEM)
}

func newCA(now time.Time) (*x509.Certificate, *ecdsa.PrivateKey, []byte, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("gen ca key: %w", err)
	}
	serial, err := serialNumber()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "LoginKeeper CA", Organization: []string{"LoginKeeper"}},
		NotBefore:             now,
		NotAfter:              now.AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create ca cert: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("parse ca cert: %w", err)
	}
	keyPEM, err := encodeECKey(key)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return cert, key, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), keyPEM, nil
}

func (p DevPKI) writePair(certName, keyName string, certPEM, keyPEM []byte) error {
	if err := os.WriteFile(filepath.Join(p.Dir, certName), certPEM, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", certName, err)
	}
	if err := os.WriteFile(filepath.Join(p.Dir, keyName), keyPEM, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", keyName, err)
	}
	return nil
}

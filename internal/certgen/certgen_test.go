package certgen

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDevPKI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, DevPKI{Dir: dir, Hosts: []string{"localhost", "127.0.0.1.nip.io"}, ClientLogin: "alice"}.Write())
	return dir
}

func parseCert(t *testing.T, certPEM []byte) *x509.Certificate {
	t.Helper()
	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	require.Equal(t, "CERTIFICATE", block.Type)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return cert
}

func TestDevPKI_Write(t *testing.T) {
	dir := writeDevPKI(t)

	ca, key, err := LoadCACredentials(filepath.Join(dir, CACertFile), filepath.Join(dir, CAKeyFile))
	require.NoError(t, err)
	assert.True(t, ca.IsCA)
	assert.Equal(t, "LoginKeeper CA", ca.Subject.CommonName)
	assert.Greater(t, ca.NotAfter.Sub(ca.NotBefore), 9*365*24*time.Hour)
	assert.IsType(t, &ecdsa.PrivateKey{}, key)

	serverPEM, err := os.ReadFile(filepath.Join(dir, ServerCertFile))
	require.NoError(t, err)
	server := parseCert(t, serverPEM)
	assert.Equal(t, []string{"localhost", "127.0.0.1.nip.io"}, server.DNSNames)
	assert.NoError(t, server.CheckSignatureFrom(ca))

	_, err = tls.LoadX509KeyPair(filepath.Join(dir, ServerCertFile), filepath.Join(dir, ServerKeyFile))
	assert.NoError(t, err)
	_, err = tls.LoadX509KeyPair(filepath.Join(dir, "client.crt"), filepath.Join(dir, "client.key"))
	assert.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, CAKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestIssuer_Issue(t *testing.T) {
	dir := writeDevPKI(t)
	issuer, err := LoadIssuer(dir)
	require.NoError(t, err)

	certPEM, keyPEM, err := issuer.Issue("bob@example.com")
	require.NoError(t, err)

	cert := parseCert(t, certPEM)
	assert.Equal(t, "bob@example.com", cert.Subject.CommonName)
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, cert.ExtKeyUsage)
	assert.NoError(t, cert.CheckSignatureFrom(issuer.ca))

	pool := x509.NewCertPool()
	pool.AddCert(issuer.ca)
	_, err = cert.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}})
	assert.NoError(t, err)

	block, _ := pem.Decode(keyPEM)
	require.NotNil(t, block)
	assert.Equal(t, "EC PRIVATE KEY", block.Type)
}

func TestGenerateUserCertificate(t *testing.T) {
	dir := writeDevPKI(t)
	ca, key, err := LoadCACredentials(filepath.Join(dir, CACertFile), filepath.Join(dir, CAKeyFile))
	require.NoError(t, err)

	certPEM, _, err := GenerateUserCertificate("carol", ca, key)
	require.NoError(t, err)
	assert.Equal(t, "carol", parseCert(t, certPEM).Subject.CommonName)
}

func TestLoadCACredentials_Errors(t *testing.T) {
	dir := writeDevPKI(t)
	caCert := filepath.Join(dir, CACertFile)
	caKey := filepath.Join(dir, CAKeyFile)
	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not pem"), 0o600))

	tests := []struct {
		name      string
		cert, key string
		want      string
	}{
		{"missing cert", "/no/such/file.pem", caKey, "read ca cert"},
		{"missing key", caCert, "/no/such/key.pem", "read ca key"},
		{"bad cert", garbage, caKey, "invalid CA cert PEM"},
		{"bad key", caCert, garbage, "invalid CA key PEM"},
		{"cert as key", caCert, caCert, "unsupported key type: CERTIFICATE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadCACredentials(tt.cert, tt.key)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := LoadIssuer(t.TempDir())
	assert.ErrorContains(t, err, "read ca cert")
}

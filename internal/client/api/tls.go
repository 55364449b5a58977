package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Names of the files Register writes.
const (
	ClientCertFile = "client.crt"
	ClientKeyFile  = "client.key"
)

func loadCAPool(caPath string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}
	return pool, nil
}

// NewTLSClient builds an HTTP client presenting the client certificate and
// trusting only the given CA.
func NewTLSClient(certFile, keyFile, caFile string) (*http.Client, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert/key: %w", err)
	}
	pool, err := loadCAPool(caFile)
	if err != nil {
		return nil, err
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      pool,
			MinVersion:   tls.VersionTLS12,
		},
	}
	return &http.Client{Transport: transport, Timeout: DefaultTimeout}, nil
}

// NewAnonymousTLSClient trusts the CA but presents no certificate. The backend
// treats such a connection as unauthenticated.
func NewAnonymousTLSClient(caFile string) (*http.Client, error) {
	pool, err := loadCAPool(caFile)
	if err != nil {
		return nil, err
	}
	transport := &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}}
	return &http.Client{Transport: transport, Timeout: DefaultTimeout}, nil
}

// Register creates an account for login and writes the issued certificate
// and key into outDir. It returns their paths.
func Register(ctx context.Context, baseURL, login, caPath, outDir string) (certPath, keyPath string, err error) {
	httpClient, err := NewAnonymousTLSClient(caPath)
	if err != nil {
		return "", "", err
	}

	var issued struct {
		Cert string `json:"cert"`
		Key  string `json:"key"`
	}
	resp, err := resty.NewWithClient(httpClient).R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"login": login}).
		SetResult(&issued).
		Post(strings.TrimRight(baseURL, "/") + "/api/register")
	if err != nil {
		return "", "", fmt.Errorf("register failed: %w", err)
	}
	if resp.IsError() {
		return "", "", fmt.Errorf("server error: %w", responseError(resp))
	}
	if issued.Cert == "" || issued.Key == "" {
		return "", "", errors.New("server returned no certificate")
	}

	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return "", "", fmt.Errorf("create %s: %w", outDir, err)
	}
	certPath = filepath.Join(outDir, ClientCertFile)
	keyPath = filepath.Join(outDir, ClientKeyFile)
	if err := os.WriteFile(certPath, []byte(issued.Cert), 0o600); err != nil {
		return "", "", fmt.Errorf("failed to save %s: %w", ClientCertFile, err)
	}
	if err := os.WriteFile(keyPath, []byte(issued.Key), 0o600); err != nil {
		return "", "", fmt.Errorf("failed to save %s: %w", ClientKeyFile, err)
	}
	return certPath, keyPath, nil
}

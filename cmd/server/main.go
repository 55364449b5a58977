// Package main starts the LoginKeeper storage backend: an HTTPS API with
// client-certificate sessions over a PostgreSQL credential store.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/certgen"
	"github.com/atinyakov/LoginKeeper/internal/config"
	"github.com/atinyakov/LoginKeeper/internal/db"
	"github.com/atinyakov/LoginKeeper/internal/logger"
	"github.com/atinyakov/LoginKeeper/internal/metrics"
	"github.com/atinyakov/LoginKeeper/internal/repository"
	"github.com/atinyakov/LoginKeeper/internal/server/handler/http"
	"github.com/atinyakov/LoginKeeper/internal/service"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	options, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	db.StartSoftDeleteCleaner(ctx, postgresDB,
		options.CleanupInterval.Duration,
		options.CleanupRetention.Duration,
		zapLogger,
	)

	issuer, err := certgen.LoadIssuer(options.CertDir)
	if err != nil {
		zapLogger.Fatal("failed to load CA", zap.Error(err))
	}

	m := metrics.New()

	authService := service.NewAuthService(repository.NewPostgresAuthRepository(postgresDB))
	credService := service.NewCredentialService(repository.NewPostgresCredentialRepository(postgresDB), m, zapLogger)

	router := http.NewRouter(
		&http.AuthHandler{AuthService: authService, Issuer: issuer, Logger: zapLogger},
		&http.CredentialHandler{Service: credService, Logger: zapLogger},
		zapLogger,
		m,
	)

	tlsConfig, err := serverTLS(options.CertDir)
	if err != nil {
		zapLogger.Fatal("failed to configure TLS", zap.Error(err))
	}

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
	if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start HTTPS server", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}

// serverTLS verifies client certificates when given; /api/register and
// /api/session must stay reachable without one.
func serverTLS(dir string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, certgen.ServerCertFile), filepath.Join(dir, certgen.ServerKeyFile))
	if err != nil {
		return nil, fmt.Errorf("load server cert/key: %w", err)
	}
	caCert, err := os.ReadFile(filepath.Join(dir, certgen.CACertFile))
	if err != nil {
		return nil, fmt.Errorf("read CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to append CA cert to pool")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Command fileharbordctl runs the FileHarbor server: it loads configuration,
// builds the library manager, authenticator, and per-library backends, then
// serves the mTLS data plane and the admin HTTP surface until an interrupt
// signal triggers graceful shutdown (spec §4.9 "Server runtime").
package main

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fileharbor/fileharbor/internal/adminhttp"
	"github.com/fileharbor/fileharbor/internal/auth"
	"github.com/fileharbor/fileharbor/internal/fileops"
	"github.com/fileharbor/fileharbor/internal/fileops/localfs"
	"github.com/fileharbor/fileharbor/internal/fileops/s3backend"
	"github.com/fileharbor/fileharbor/internal/library"
	"github.com/fileharbor/fileharbor/internal/library/manifestcache"
	"github.com/fileharbor/fileharbor/internal/logger"
	"github.com/fileharbor/fileharbor/internal/metrics"
	"github.com/fileharbor/fileharbor/internal/server"
	"github.com/fileharbor/fileharbor/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "path to server configuration file (default: platform config dir)")
	enableMetrics := flag.Bool("metrics", true, "expose Prometheus metrics on the admin HTTP surface")
	manifestCacheDir := flag.String("manifest-cache-dir", "", "directory for the BadgerDB manifest digest cache (empty disables caching)")
	flag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if w, err := openLogOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("open log output: %v", err)
	} else if w != nil {
		logger.SetOutput(w)
	}

	if *enableMetrics {
		metrics.InitRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	libraries, err := buildLibraries(cfg.Libraries)
	if err != nil {
		log.Fatalf("configure libraries: %v", err)
	}
	libManager, err := library.NewManager(libraries)
	if err != nil {
		log.Fatalf("build library manager: %v", err)
	}

	var cache *manifestcache.Cache
	if *manifestCacheDir != "" {
		cache, err = manifestcache.Open(*manifestCacheDir)
		if err != nil {
			log.Fatalf("open manifest cache: %v", err)
		}
		defer cache.Close()
	}

	backends, err := buildBackends(ctx, cfg.Libraries, cache)
	if err != nil {
		log.Fatalf("configure backends: %v", err)
	}

	authenticator, err := buildAuthenticator(cfg)
	if err != nil {
		log.Fatalf("configure authenticator: %v", err)
	}

	tlsConfig, err := server.BuildTLSConfig(cfg.Security)
	if err != nil {
		log.Fatalf("configure TLS: %v", err)
	}

	srv := server.New(
		tlsConfig, libManager, authenticator, backends,
		cfg.Network.ReadTimeout, cfg.Network.ShutdownTimeout, cfg.Network.DefaultChunkSize,
		cfg.Network.WorkerCount, cfg.Network.MaxConnections,
	)

	var adminSrv *adminhttp.Server
	if cfg.Network.AdminAddr != "" {
		adminSrv = adminhttp.New(cfg.Network.AdminAddr, srv.Sessions(), libraryStatsAdapter{srv})
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil {
				logger.Error("admin HTTP server failed: %v", err)
			}
		}()
		logger.Info("admin HTTP surface listening on %s", cfg.Network.AdminAddr)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Network.Host, cfg.Network.Port)
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx, addr, cfg.Network.ReaperInterval)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("FileHarbor server ready on %s. Press Ctrl+C to stop.", addr)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received, terminating sessions and closing the acceptor...")
		srv.Stop()
		cancel()
		if adminSrv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Network.ShutdownTimeout)
			_ = adminSrv.Shutdown(shutdownCtx)
			shutdownCancel()
		}
		<-serverDone
		logger.Info("server stopped gracefully")
	case err := <-serverDone:
		if err != nil {
			logger.Error("server error: %v", err)
			os.Exit(1)
		}
	}
}

// libraryStatsAdapter adapts server.Server.Stats to adminhttp.LibraryStatsProvider
// so adminhttp never needs to import internal/server.
type libraryStatsAdapter struct {
	srv *server.Server
}

func (a libraryStatsAdapter) Stats(ctx context.Context, libraryID string) (*adminhttp.LibraryStatsView, error) {
	stats, err := a.srv.Stats(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	return &adminhttp.LibraryStatsView{
		TotalSize:         stats.TotalSize,
		FileCount:         stats.FileCount,
		DirectoryCount:    stats.DirectoryCount,
		AuthorizedClients: stats.AuthorizedClients,
	}, nil
}

func openLogOutput(output string) (*os.File, error) {
	switch output {
	case "", "stdout":
		return nil, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
}

func buildLibraries(cfgs []config.LibraryConfig) ([]*library.Library, error) {
	libraries := make([]*library.Library, 0, len(cfgs))
	for _, lc := range cfgs {
		authorized := make(map[string]bool, len(lc.AuthorizedClients))
		for _, id := range lc.AuthorizedClients {
			authorized[id] = true
		}
		serialize := true
		if lc.SerializeWrites != nil {
			serialize = *lc.SerializeWrites
		}
		libraries = append(libraries, &library.Library{
			ID:              lc.ID,
			Name:            lc.Name,
			Root:            lc.Root,
			AuthorizedIDs:   authorized,
			RateCapBytes:    lc.RateCapBytesPerSec,
			IdleTimeout:     lc.IdleTimeout,
			SerializeWrites: serialize,
		})
	}
	return libraries, nil
}

// buildBackends constructs one fileops.Backend per library, decorated with
// digest caching when a manifest cache is configured (spec §11 domain
// stack). A local-disk library and an S3-backed library can coexist on the
// same server, selected per library by config.LibraryConfig.Backend.
func buildBackends(ctx context.Context, cfgs []config.LibraryConfig, cache *manifestcache.Cache) (map[string]fileops.Backend, error) {
	backends := make(map[string]fileops.Backend, len(cfgs))
	for _, lc := range cfgs {
		var backend fileops.Backend
		switch lc.Backend {
		case "s3":
			client, err := newS3Client(ctx, lc.S3)
			if err != nil {
				return nil, fmt.Errorf("library %q: %w", lc.ID, err)
			}
			backend = s3backend.New(s3backend.Config{Client: client, Bucket: lc.S3.Bucket, KeyPrefix: lc.S3.Prefix})
		default:
			backend = localfs.New()
		}

		if cache != nil {
			backend = manifestcache.Wrap(backend, cache, lc.ID)
		}
		backends[lc.ID] = backend
	}
	return backends, nil
}

func newS3Client(ctx context.Context, s3cfg *config.S3BackendConfig) (*s3.Client, error) {
	if s3cfg == nil {
		return nil, fmt.Errorf("s3 backend selected but no s3 configuration was provided")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s3cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = &s3cfg.Endpoint
			o.UsePathStyle = true
		}
	}), nil
}

// buildAuthenticator loads every configured client certificate once at
// startup (spec §4.3, §4.4) and derives each client's id as the SHA-256
// fingerprint of its certificate, cross-checked against the configured id.
func buildAuthenticator(cfg *config.ServerConfig) (*auth.Authenticator, error) {
	clients := make(map[string]*auth.ClientRecord, len(cfg.Clients))
	for _, cc := range cfg.Clients {
		cert, err := loadCertificate(cc.CertPath)
		if err != nil {
			return nil, fmt.Errorf("client %q: %w", cc.ID, err)
		}
		fingerprint := auth.Fingerprint(cert)
		if fingerprint != cc.ID {
			return nil, fmt.Errorf("client %q: configured id does not match certificate fingerprint %s", cc.ID, fingerprint)
		}
		clients[fingerprint] = &auth.ClientRecord{ID: fingerprint, DisplayName: cc.DisplayName, Revoked: cc.Revoked}
	}

	var crl []string
	if cfg.Security.CRLPath != "" {
		fingerprints, err := loadCRL(cfg.Security.CRLPath)
		if err != nil {
			return nil, fmt.Errorf("load CRL: %w", err)
		}
		crl = fingerprints
	}
	crl = append(crl, cfg.Security.RevokedFingerprints...)

	return auth.New(clients, crl), nil
}

func loadCertificate(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}
	return x509.ParseCertificate(block.Bytes)
}

// loadCRL reads a file of one certificate fingerprint per line.
func loadCRL(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fingerprints []string
	for _, line := range strings.Split(string(raw), "\n") {
		if line := strings.TrimSpace(line); line != "" {
			fingerprints = append(fingerprints, line)
		}
	}
	return fingerprints, nil
}

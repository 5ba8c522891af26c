// Package server implements the FileHarbor server runtime (spec §4.9
// "Server runtime") and connection handler (spec §4.8): a TLS acceptor, a
// bounded worker pool, and the per-connection state machine that
// authenticates, handshakes, and dispatches commands against the library
// manager, session registry, rate limiter, and file operations backend.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/fileharbor/fileharbor/internal/auth"
	"github.com/fileharbor/fileharbor/internal/fileops"
	"github.com/fileharbor/fileharbor/internal/library"
	"github.com/fileharbor/fileharbor/internal/logger"
	"github.com/fileharbor/fileharbor/internal/metrics"
	"github.com/fileharbor/fileharbor/internal/ratelimiter"
	"github.com/fileharbor/fileharbor/internal/session"
)

// Server is the FileHarbor server runtime: TLS acceptor, worker pool,
// signal-driven graceful shutdown (spec §4.9).
type Server struct {
	tlsConfig *tls.Config

	libraries     *library.Manager
	authenticator *auth.Authenticator
	sessions      *session.Registry
	limiters      *ratelimiter.Manager
	backends      map[string]fileops.Backend // library id -> backend

	readTimeout     time.Duration
	shutdownTimeout time.Duration
	chunkSizeHint   uint32
	workerCount     int
	maxConnections  int

	metrics metrics.ServerMetrics

	listener net.Listener
}

// New builds a Server ready to Serve. backends maps every configured
// library id to the fileops.Backend that serves it (spec §11 domain stack:
// a library may be local-disk or S3-backed, behind the same interface).
func New(
	tlsConfig *tls.Config,
	libraries *library.Manager,
	authenticator *auth.Authenticator,
	backends map[string]fileops.Backend,
	readTimeout, shutdownTimeout time.Duration,
	chunkSizeHint uint32,
	workerCount, maxConnections int,
) *Server {
	libCaps := make(map[string]uint64, len(libraries.All()))
	for _, lib := range libraries.All() {
		libCaps[lib.ID] = lib.RateCapBytes
	}

	return &Server{
		tlsConfig:       tlsConfig,
		libraries:       libraries,
		authenticator:   authenticator,
		sessions:        session.NewRegistry(libraries),
		limiters:        ratelimiter.NewManager(libCaps),
		backends:        backends,
		readTimeout:     readTimeout,
		shutdownTimeout: shutdownTimeout,
		chunkSizeHint:   chunkSizeHint,
		workerCount:     workerCount,
		maxConnections:  maxConnections,
		metrics:         metrics.NewServerMetrics(),
	}
}

// Sessions exposes the session registry for the admin HTTP surface.
func (s *Server) Sessions() *session.Registry { return s.sessions }

// LibraryStats reports aggregate size, file count, and directory count for
// a library, grounded on the original implementation's
// LibraryManager.get_library_stats (a recursive walk reported over an
// admin surface, not a wire command — spec §6's command set is closed).
type LibraryStats struct {
	TotalSize         uint64
	FileCount         int
	DirectoryCount    int
	AuthorizedClients int
}

// Stats walks libraryID's backend and returns LibraryStats, or a not-found
// error if no such library is configured.
func (s *Server) Stats(ctx context.Context, libraryID string) (*LibraryStats, error) {
	lib, err := s.libraries.Lookup(libraryID)
	if err != nil {
		return nil, err
	}
	backend, ok := s.backends[libraryID]
	if !ok {
		return nil, fmt.Errorf("no backend configured for library %q", libraryID)
	}

	entries, err := backend.Manifest(ctx, lib.Root)
	if err != nil {
		return nil, err
	}

	stats := &LibraryStats{AuthorizedClients: len(lib.AuthorizedIDs)}
	for _, e := range entries {
		switch e.Kind {
		case fileops.KindFile:
			stats.FileCount++
			stats.TotalSize += e.Size
		case fileops.KindDirectory:
			stats.DirectoryCount++
		}
	}
	return stats, nil
}

// Serve accepts TLS connections until ctx is cancelled (spec §5 scheduling
// model: "each accepted TLS connection runs on a worker"). It honors
// maxConnections via a bounded worker pool and starts the idle reaper.
// The pool size is workerCount (64 when unset), lowered to maxConnections
// when that is set and smaller.
func (s *Server) Serve(ctx context.Context, addr string, reaperInterval time.Duration) error {
	ln, err := tls.Listen("tcp", addr, s.tlsConfig)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.sessions.StartIdleReaper(ctx, reaperInterval)

	logger.Info("FileHarbor server listening on %s", addr)

	workers := s.workerCount
	if workers <= 0 {
		workers = 64
	}
	if s.maxConnections > 0 && s.maxConnections < workers {
		workers = s.maxConnections
	}
	p := pool.New().WithMaxGoroutines(workers)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		rawConn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				p.Wait()
				return nil
			default:
				logger.Warn("accept error: %v", err)
				continue
			}
		}

		tlsConn, ok := rawConn.(*tls.Conn)
		if !ok {
			_ = rawConn.Close()
			continue
		}

		c := s.newConn(tlsConn)
		p.Go(func() { c.serve(ctx) })
	}
}

// Stop closes the listener and terminates every live session (spec §4.9
// "exit code 0 on graceful shutdown"; §4.5 "Shutdown: ... terminates all
// sessions cleanly before the acceptor exits").
func (s *Server) Stop() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.sessions.Shutdown()
}

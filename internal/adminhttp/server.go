// Package adminhttp exposes a small HTTP surface alongside the mTLS data
// plane: health checks and Prometheus scraping. It is deliberately separate
// from the file-transfer protocol in internal/wire — operators shouldn't
// need a FileHarbor client cert just to curl /healthz.
package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/metrics"
	"github.com/fileharbor/fileharbor/internal/session"
)

// Server is the admin HTTP listener.
type Server struct {
	httpServer *http.Server
}

// StatusProvider supplies the live counters /healthz reports.
type StatusProvider interface {
	Count() int
}

// LibraryStatsProvider supplies the per-library usage figures behind
// GET /libraries/{id}/stats, grounded on the original implementation's
// LibraryManager.get_library_stats — an operator-facing read, never a wire
// command (spec §6's command set is closed).
type LibraryStatsProvider interface {
	Stats(ctx context.Context, libraryID string) (*LibraryStatsView, error)
}

// LibraryStatsView is the provider-agnostic shape adminhttp renders as
// JSON; callers adapt internal/server.LibraryStats into this type so
// adminhttp never imports internal/server.
type LibraryStatsView struct {
	TotalSize         uint64
	FileCount         int
	DirectoryCount    int
	AuthorizedClients int
}

var _ StatusProvider = (*session.Registry)(nil)

// New builds an admin server bound to addr. If metrics are enabled
// (metrics.IsEnabled), /metrics serves the Prometheus registry. stats may
// be nil, in which case /libraries/{id}/stats is not registered.
func New(addr string, sessions StatusProvider, stats LibraryStatsProvider) *Server {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", healthzHandler(sessions)).Methods(http.MethodGet)

	if metrics.IsEnabled() {
		router.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	if stats != nil {
		router.HandleFunc("/libraries/{id}/stats", libraryStatsHandler(stats)).Methods(http.MethodGet)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

type healthzResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
}

func healthzHandler(sessions StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthzResponse{
			Status:         "ok",
			ActiveSessions: sessions.Count(),
		})
	}
}

type libraryStatsResponse struct {
	TotalSize         uint64 `json:"total_size_bytes"`
	FileCount         int    `json:"file_count"`
	DirectoryCount    int    `json:"directory_count"`
	AuthorizedClients int    `json:"authorized_clients"`
}

func libraryStatsHandler(stats LibraryStatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		libraryID := mux.Vars(r)["id"]

		view, err := stats.Stats(r.Context(), libraryID)
		if err != nil {
			status := http.StatusInternalServerError
			if fe, ok := ferrors.As(err); ok && fe.Code == ferrors.CodeNotFound {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(libraryStatsResponse{
			TotalSize:         view.TotalSize,
			FileCount:         view.FileCount,
			DirectoryCount:    view.DirectoryCount,
			AuthorizedClients: view.AuthorizedClients,
		})
	}
}

// ListenAndServe starts the admin HTTP server; it blocks until Shutdown is
// called or the server fails.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

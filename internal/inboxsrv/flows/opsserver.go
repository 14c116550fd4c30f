package flows

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/httpx"
	"github.com/devatlas/devatlas/internal/common/middleware"
)

// OpsServer is the localhost listener a daemon exposes for supervision.
// It serves readiness and the loop counters; it never serves report data.
type OpsServer struct {
	Router *chi.Mux
	status *LoopStatus
}

// NewOpsServer creates the listener for one loop's status tracker.
func NewOpsServer(status *LoopStatus) *OpsServer {
	s := &OpsServer{
		Router: chi.NewRouter(),
		status: status,
	}
	s.mountHandlers()
	return s
}

func (s *OpsServer) mountHandlers() {
	s.Router.Use(middleware.RequestLogger)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(middleware.SetTimeout(10 * time.Second))
	s.Router.Get("/ready", s.getReadiness)
	s.Router.Get("/status", s.getStatus)
}

func (s *OpsServer) getReadiness(w http.ResponseWriter, r *http.Request) {
	httpx.SendJSON(r.Context(), w, http.StatusOK, map[string]string{
		"status": "ready",
		"loop":   s.status.Snapshot().Loop,
	})
}

func (s *OpsServer) getStatus(w http.ResponseWriter, r *http.Request) {
	httpx.SendJSON(r.Context(), w, http.StatusOK, s.status.Snapshot())
}

// Start runs the listener on addr. It returns a channel that yields the
// serve error and a shutdown func that drains in-flight requests for up to
// 5 seconds before closing the listener.
func (s *OpsServer) Start(ctx context.Context, addr string) (chan error, func()) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		log.Info().Str("addr", addr).Msg("ops listener started")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("could not stop ops listener gracefully")
			if err := srv.Close(); err != nil {
				log.Error().Err(err).Msg("could not stop ops listener")
			}
		}
	}

	return serverErrors, shutdown
}
